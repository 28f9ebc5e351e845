package storage

import (
	"context"
	"fmt"
	"log/slog"

	"recurra/internal/core"
)

var pendingProjection = []string{
	FieldID, FieldName, FieldAmount, FieldDueDate, FieldAccountID, FieldCategory,
}

// ListPendingObligations returns active annual charges due within [from, to],
// earliest first. It never writes.
func ListPendingObligations(ctx context.Context, q Querier, cols ColumnMap, userID string, from, to core.Date) ([]core.PendingItem, error) {
	if !cols.Exists() {
		return []core.PendingItem{}, nil
	}
	if !cols.Has(FieldDueDate) {
		slog.DebugContext(ctx, "Due date column unresolved, no upcoming items", "table", cols.Table)
		return []core.PendingItem{}, nil
	}

	due := cols.Col(FieldDueDate)
	var p predicateBuilder
	p.add("date("+due+") BETWEEN date(?) AND date(?)", from.String(), to.String())
	if cols.Has(FieldIsActive) {
		p.add(truthy(cols.Col(FieldIsActive)))
	}
	if cols.Has(FieldUserID) && userID != "" {
		p.add(cols.Col(FieldUserID)+" = ?", userID)
	}

	query := "SELECT " + selectList(cols, pendingProjection) +
		" FROM " + quoteIdent(cols.Table) + p.where() +
		" ORDER BY date(" + due + ") ASC, rowid ASC"

	rows, err := queryMaps(ctx, q, query, p.args...)
	if err != nil {
		return nil, fmt.Errorf("list pending obligations: %w", err)
	}

	items := make([]core.PendingItem, 0, len(rows))
	for _, row := range rows {
		item := core.PendingItem{
			ID:        asString(row[FieldID]),
			Kind:      core.AnnualCharge,
			Name:      asString(row[FieldName]),
			AccountID: asString(row[FieldAccountID]),
			Category:  asString(row[FieldCategory]),
		}
		if item.DueDate, err = asDate(row[FieldDueDate]); err != nil {
			slog.WarnContext(ctx, "Skipping upcoming item with unreadable due date",
				"id", item.ID,
				"error", err)
			continue
		}
		if item.Amount, err = asAmount(row[FieldAmount]); err != nil {
			slog.WarnContext(ctx, "Skipping upcoming item with unreadable amount",
				"id", item.ID,
				"error", err)
			continue
		}
		items = append(items, item)
	}
	return items, nil
}
