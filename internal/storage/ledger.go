package storage

import (
	"context"
	"fmt"
	"strings"

	"recurra/internal/core"
)

// InsertLedgerEntry writes exactly one ledger row, using only the columns the
// transactions table actually has. Constraint violations are returned as-is.
func InsertLedgerEntry(ctx context.Context, q Querier, cols ColumnMap, e core.LedgerEntry) error {
	if !cols.Exists() {
		return fmt.Errorf("insert ledger entry: table %s does not exist", cols.Table)
	}
	if err := e.Validate(); err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}

	values := []struct {
		field string
		value any
	}{
		{FieldID, e.ID},
		{FieldUserID, e.UserID},
		{FieldDescription, e.Description},
		{FieldAmount, e.Amount.String()},
		{FieldType, e.Type},
		{FieldCategory, e.Category},
		{FieldSubCategory, e.SubCategory},
		{FieldAccountID, e.AccountID},
		{FieldDate, e.Date.String()},
		{FieldIsRecurring, boolValue(e.IsRecurring)},
		{FieldCreatedAt, e.CreatedAt},
		{FieldSourceKind, string(e.SourceKind)},
		{FieldSourceID, e.SourceID},
	}

	var names, marks []string
	var args []any
	for _, v := range values {
		if !cols.Has(v.field) {
			continue
		}
		names = append(names, cols.Col(v.field))
		marks = append(marks, "?")
		args = append(args, v.value)
	}

	query := "INSERT INTO " + quoteIdent(cols.Table) +
		" (" + strings.Join(names, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")"
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert ledger entry %s: %w", e.ID, err)
	}
	return nil
}
