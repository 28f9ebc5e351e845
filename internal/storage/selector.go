package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"recurra/internal/core"
)

// Rejected is a selected row that could not be turned into a domain value.
// The runner reports it as a per-item failure.
type Rejected struct {
	ID   string
	Name string
	Err  error
}

// Selection is the result of one due-item query.
type Selection[T any] struct {
	Items    []T
	Rejected []Rejected
	// Unfiltered is set when the due-date column could not be resolved and
	// every row passing the remaining predicates was returned.
	Unfiltered bool
}

// predicateBuilder accumulates WHERE clauses for columns confirmed present.
type predicateBuilder struct {
	clauses []string
	args    []any
}

func (p *predicateBuilder) add(clause string, args ...any) {
	p.clauses = append(p.clauses, clause)
	p.args = append(p.args, args...)
}

func (p *predicateBuilder) where() string {
	if len(p.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(p.clauses, " AND ")
}

// truthy matches the boolean spellings older clients stored.
func truthy(col string) string {
	return col + " IN (1, 'true', 'TRUE', 't')"
}

// notProcessedSince is the guard "never processed, or processed before today".
func notProcessedSince(col string) string {
	return "(" + col + " IS NULL OR " + col + " = '' OR date(" + col + ") < date(?))"
}

// selectList projects every canonical field under its canonical name, with
// NULL standing in for absent columns.
func selectList(cols ColumnMap, fields []string) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		switch {
		case f == FieldID:
			parts = append(parts, cols.IDExpr()+" AS "+quoteIdent(f))
		case cols.Has(f):
			parts = append(parts, cols.Col(f)+" AS "+quoteIdent(f))
		default:
			parts = append(parts, "NULL AS "+quoteIdent(f))
		}
	}
	return strings.Join(parts, ", ")
}

var obligationProjection = []string{
	FieldID, FieldName, FieldAmount, FieldDueDate, FieldLastProcessedDate,
	FieldAccountID, FieldCategory, FieldIsActive,
}

// SelectDueObligations returns annual charges with due date on or before
// today that were not processed today and are active.
func SelectDueObligations(ctx context.Context, q Querier, cols ColumnMap, userID string, today core.Date) (Selection[core.Obligation], error) {
	var sel Selection[core.Obligation]
	if !cols.Exists() {
		return sel, nil
	}

	var p predicateBuilder
	if cols.Has(FieldDueDate) {
		p.add("date("+cols.Col(FieldDueDate)+") <= date(?)", today.String())
	} else {
		sel.Unfiltered = true
		slog.WarnContext(ctx, "Due date column unresolved, selecting without date filter",
			"table", cols.Table)
	}
	if cols.Has(FieldLastProcessedDate) {
		p.add(notProcessedSince(cols.Col(FieldLastProcessedDate)), today.String())
	}
	if cols.Has(FieldIsActive) {
		p.add(truthy(cols.Col(FieldIsActive)))
	}
	if cols.Has(FieldUserID) && userID != "" {
		p.add(cols.Col(FieldUserID)+" = ?", userID)
	}

	order := " ORDER BY rowid"
	if cols.Has(FieldDueDate) {
		order = " ORDER BY date(" + cols.Col(FieldDueDate) + "), rowid"
	}
	query := "SELECT " + selectList(cols, obligationProjection) +
		" FROM " + quoteIdent(cols.Table) + p.where() + order

	rows, err := queryMaps(ctx, q, query, p.args...)
	if err != nil {
		return sel, fmt.Errorf("select due obligations: %w", err)
	}

	for _, row := range rows {
		o, err := obligationFromRow(row)
		if err != nil {
			sel.Rejected = append(sel.Rejected, Rejected{ID: o.ID, Name: o.DisplayName(), Err: err})
			continue
		}
		sel.Items = append(sel.Items, o)
	}
	return sel, nil
}

var templateProjection = []string{
	FieldID, FieldDescription, FieldAmount, FieldType, FieldCategory,
	FieldSubCategory, FieldAccountID, FieldDate, FieldIsRecurring, FieldLastRecurredDate,
}

// SelectDueTemplates returns recurring templates whose anchor date is on or
// before today and that did not recur today. Without an is_recurring column
// templates cannot be told apart from ledger entries, so nothing is selected.
func SelectDueTemplates(ctx context.Context, q Querier, cols ColumnMap, userID string, today core.Date) (Selection[core.Template], error) {
	var sel Selection[core.Template]
	if !cols.Exists() {
		return sel, nil
	}
	if !cols.Has(FieldIsRecurring) {
		slog.DebugContext(ctx, "Recurring flag column unresolved, template selection skipped",
			"table", cols.Table)
		return sel, nil
	}

	var p predicateBuilder
	p.add(truthy(cols.Col(FieldIsRecurring)))
	if cols.Has(FieldDate) {
		p.add("date("+cols.Col(FieldDate)+") <= date(?)", today.String())
	} else {
		sel.Unfiltered = true
		slog.WarnContext(ctx, "Anchor date column unresolved, selecting without date filter",
			"table", cols.Table)
	}
	if cols.Has(FieldLastRecurredDate) {
		p.add(notProcessedSince(cols.Col(FieldLastRecurredDate)), today.String())
	}
	if cols.Has(FieldUserID) && userID != "" {
		p.add(cols.Col(FieldUserID)+" = ?", userID)
	}

	query := "SELECT " + selectList(cols, templateProjection) +
		" FROM " + quoteIdent(cols.Table) + p.where() + " ORDER BY rowid"

	rows, err := queryMaps(ctx, q, query, p.args...)
	if err != nil {
		return sel, fmt.Errorf("select due templates: %w", err)
	}

	for _, row := range rows {
		t, err := templateFromRow(row)
		if err != nil {
			sel.Rejected = append(sel.Rejected, Rejected{ID: t.ID, Name: t.DisplayName(), Err: err})
			continue
		}
		sel.Items = append(sel.Items, t)
	}
	return sel, nil
}

// queryMaps reads the full result set before returning so that no cursor is
// held open while items are processed.
func queryMaps(ctx context.Context, q Querier, query string, args ...any) ([]map[string]any, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(names))
		for i, n := range names {
			row[n] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func obligationFromRow(row map[string]any) (core.Obligation, error) {
	o := core.Obligation{
		ID:        asString(row[FieldID]),
		Name:      asString(row[FieldName]),
		AccountID: asString(row[FieldAccountID]),
		Category:  asString(row[FieldCategory]),
		IsActive:  asBool(row[FieldIsActive], true),
	}
	var err error
	if o.Amount, err = asAmount(row[FieldAmount]); err != nil {
		return o, fmt.Errorf("amount: %w", err)
	}
	if o.DueDate, err = asDate(row[FieldDueDate]); err != nil {
		return o, fmt.Errorf("due date: %w", err)
	}
	if o.LastProcessedDate, err = asDate(row[FieldLastProcessedDate]); err != nil {
		return o, fmt.Errorf("last processed date: %w", err)
	}
	return o, nil
}

func templateFromRow(row map[string]any) (core.Template, error) {
	t := core.Template{
		ID:          asString(row[FieldID]),
		Description: asString(row[FieldDescription]),
		Type:        asString(row[FieldType]),
		Category:    asString(row[FieldCategory]),
		SubCategory: asString(row[FieldSubCategory]),
		AccountID:   asString(row[FieldAccountID]),
		IsRecurring: asBool(row[FieldIsRecurring], false),
	}
	if t.Type == "" {
		t.Type = core.TypeExpense
	}
	var err error
	if t.Amount, err = asAmount(row[FieldAmount]); err != nil {
		return t, fmt.Errorf("amount: %w", err)
	}
	if t.Date, err = asDate(row[FieldDate]); err != nil {
		return t, fmt.Errorf("anchor date: %w", err)
	}
	if t.LastRecurredDate, err = asDate(row[FieldLastRecurredDate]); err != nil {
		return t, fmt.Errorf("last recurred date: %w", err)
	}
	return t, nil
}
