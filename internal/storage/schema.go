package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode"
)

// Canonical field names. Values are the snake_case spelling used by the
// migrated schema.
const (
	FieldID                = "id"
	FieldUserID            = "user_id"
	FieldName              = "name"
	FieldDescription       = "description"
	FieldAmount            = "amount"
	FieldType              = "type"
	FieldCategory          = "category"
	FieldSubCategory       = "sub_category"
	FieldAccountID         = "account_id"
	FieldDueDate           = "due_date"
	FieldLastProcessedDate = "last_processed_date"
	FieldIsActive          = "is_active"
	FieldDate              = "date"
	FieldIsRecurring       = "is_recurring"
	FieldLastRecurredDate  = "last_recurred_date"
	FieldCreatedAt         = "created_at"
	FieldUpdatedAt         = "updated_at"
	FieldSourceKind        = "source_kind"
	FieldSourceID          = "source_id"
)

// ObligationFields are resolved against the obligations table.
var ObligationFields = []string{
	FieldID, FieldUserID, FieldName, FieldAmount, FieldCategory, FieldAccountID,
	FieldDueDate, FieldLastProcessedDate, FieldIsActive, FieldUpdatedAt,
}

// TransactionFields are resolved against the transactions table, which holds
// both recurring templates and materialized ledger entries.
var TransactionFields = []string{
	FieldID, FieldUserID, FieldDescription, FieldAmount, FieldType, FieldCategory,
	FieldSubCategory, FieldAccountID, FieldDate, FieldIsRecurring,
	FieldLastRecurredDate, FieldCreatedAt, FieldSourceKind, FieldSourceID,
}

// renamedColumns lists historical spellings that are not a plain camelCase
// of the canonical name.
var renamedColumns = map[string][]string{
	FieldName:              {"title"},
	FieldDueDate:           {"next_due_date", "charge_date"},
	FieldLastProcessedDate: {"last_processed", "last_charged_date"},
	FieldIsActive:          {"active", "enabled"},
	FieldSubCategory:       {"subcategory"},
	FieldIsRecurring:       {"recurring"},
	FieldLastRecurredDate:  {"last_recurring_date"},
}

// ColumnMap maps canonical field names to the columns actually present in one
// table. A canonical name that resolved to nothing still maps to its own
// spelling; callers must check Has before using it in SQL.
type ColumnMap struct {
	Table   string
	names   map[string]string
	present map[string]bool
}

// Name returns the column to use for canonical.
func (m ColumnMap) Name(canonical string) string {
	if n, ok := m.names[canonical]; ok {
		return n
	}
	return canonical
}

// Has reports whether canonical resolved to a column that exists.
func (m ColumnMap) Has(canonical string) bool {
	return m.present[strings.ToLower(m.Name(canonical))]
}

// Exists reports whether the table had any columns at all.
func (m ColumnMap) Exists() bool {
	return len(m.present) > 0
}

// Col returns the quoted column for canonical, ready for SQL.
func (m ColumnMap) Col(canonical string) string {
	return quoteIdent(m.Name(canonical))
}

// IDExpr identifies a row: the resolved id column, or rowid when there is none.
func (m ColumnMap) IDExpr() string {
	if m.Has(FieldID) {
		return m.Col(FieldID)
	}
	return "rowid"
}

// Missing lists the canonical names that did not resolve.
func (m ColumnMap) Missing() []string {
	var out []string
	for canonical := range m.names {
		if !m.Has(canonical) {
			out = append(out, canonical)
		}
	}
	sort.Strings(out)
	return out
}

// Columns returns the column names of table. A table that does not exist has
// no columns; only a failing query is an error.
func Columns(ctx context.Context, q Querier, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, fmt.Errorf("introspect table %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column of %s: %w", table, err)
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns of %s: %w", table, err)
	}
	return cols, nil
}

// ResolveColumns maps each canonical field to the first matching historical
// variant present in table. Absent fields are logged and left unresolved.
func ResolveColumns(ctx context.Context, q Querier, table string, canonical []string) (ColumnMap, error) {
	cols, err := Columns(ctx, q, table)
	if err != nil {
		return ColumnMap{}, err
	}
	m := BuildColumnMap(table, cols, canonical)
	if !m.Exists() {
		slog.DebugContext(ctx, "Table not present, all operations on it are skipped", "table", table)
		return m, nil
	}
	for _, field := range canonical {
		if !m.Has(field) {
			slog.DebugContext(ctx, "Column not present, dependent predicates skipped",
				"table", table,
				"field", field)
		}
	}
	return m, nil
}

// BuildColumnMap resolves canonical names against an already known column list.
func BuildColumnMap(table string, cols []string, canonical []string) ColumnMap {
	m := ColumnMap{
		Table:   table,
		names:   make(map[string]string, len(canonical)),
		present: make(map[string]bool, len(cols)),
	}
	actual := make(map[string]string, len(cols))
	for _, c := range cols {
		m.present[strings.ToLower(c)] = true
		actual[strings.ToLower(c)] = c
	}
	for _, field := range canonical {
		m.names[field] = field
		for _, variant := range Variants(field) {
			if c, ok := actual[strings.ToLower(variant)]; ok {
				m.names[field] = c
				break
			}
		}
	}
	return m
}

// Variants returns the spellings tried for canonical, in priority order.
func Variants(canonical string) []string {
	out := []string{canonical}
	if camel := camelCase(canonical); camel != canonical {
		out = append(out, camel)
	}
	for _, alias := range renamedColumns[canonical] {
		out = append(out, alias)
		if camel := camelCase(alias); camel != alias {
			out = append(out, camel)
		}
	}
	return out
}

func camelCase(snake string) string {
	parts := strings.Split(snake, "_")
	var b strings.Builder
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i == 0 {
			b.WriteString(p)
			continue
		}
		r := []rune(p)
		r[0] = unicode.ToUpper(r[0])
		b.WriteString(string(r))
	}
	return b.String()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
