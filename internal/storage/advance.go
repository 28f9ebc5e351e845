package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"recurra/internal/core"
)

// AdvanceObligation moves an annual charge to its next due date and records
// today as its last processed date. The update only applies while the row is
// still unprocessed for today, so a concurrent run that got there first makes
// it report false.
func AdvanceObligation(ctx context.Context, q Querier, cols ColumnMap, adv core.Advance) (bool, error) {
	return advance(ctx, q, cols, adv, FieldDueDate, FieldLastProcessedDate)
}

// AdvanceTemplate moves a recurring template's anchor date and records today
// as its last recurred date.
func AdvanceTemplate(ctx context.Context, q Querier, cols ColumnMap, adv core.Advance) (bool, error) {
	return advance(ctx, q, cols, adv, FieldDate, FieldLastRecurredDate)
}

func advance(ctx context.Context, q Querier, cols ColumnMap, adv core.Advance, dueField, lastField string) (bool, error) {
	var set predicateBuilder
	if cols.Has(dueField) && !adv.NextDue.IsZero() {
		set.add(cols.Col(dueField)+" = ?", adv.NextDue.String())
	}
	if cols.Has(lastField) {
		set.add(cols.Col(lastField)+" = ?", adv.Today.String())
	}
	if cols.Has(FieldUpdatedAt) {
		set.add(cols.Col(FieldUpdatedAt)+" = ?", time.Now().UTC().Format(time.RFC3339Nano))
	}
	if len(set.clauses) == 0 {
		slog.DebugContext(ctx, "No date columns to advance",
			"table", cols.Table,
			"id", adv.ID)
		return true, nil
	}

	var where predicateBuilder
	where.add(cols.IDExpr()+" = ?", adv.ID)
	if cols.Has(lastField) {
		where.add(notProcessedSince(cols.Col(lastField)), adv.Today.String())
	}
	if cols.Has(dueField) && !adv.PreviousDue.IsZero() {
		where.add("date("+cols.Col(dueField)+") = date(?)", adv.PreviousDue.String())
	}

	query := "UPDATE " + quoteIdent(cols.Table) +
		" SET " + strings.Join(set.clauses, ", ") + where.where()
	res, err := q.ExecContext(ctx, query, append(set.args, where.args...)...)
	if err != nil {
		return false, fmt.Errorf("advance %s %s: %w", cols.Table, adv.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("advance %s %s: rows affected: %w", cols.Table, adv.ID, err)
	}
	return n == 1, nil
}
