package storage

import (
	"context"
	"fmt"

	"recurra/internal/core"
)

// Schema holds the resolved column maps of both tables a run touches.
type Schema struct {
	Obligations  ColumnMap
	Transactions ColumnMap
}

// ResolveSchema introspects the obligations and transactions tables
// independently. An error here means the store itself failed.
func (r *SQLiteRepository) ResolveSchema(ctx context.Context) (Schema, error) {
	obligations, err := ResolveColumns(ctx, r.db, ObligationsTable, ObligationFields)
	if err != nil {
		return Schema{}, fmt.Errorf("resolve obligations schema: %w", err)
	}
	transactions, err := ResolveColumns(ctx, r.db, TransactionsTable, TransactionFields)
	if err != nil {
		return Schema{}, fmt.Errorf("resolve transactions schema: %w", err)
	}
	return Schema{Obligations: obligations, Transactions: transactions}, nil
}

func (r *SQLiteRepository) DueObligations(ctx context.Context, s Schema, userID string, today core.Date) (Selection[core.Obligation], error) {
	return SelectDueObligations(ctx, r.db, s.Obligations, userID, today)
}

func (r *SQLiteRepository) DueTemplates(ctx context.Context, s Schema, userID string, today core.Date) (Selection[core.Template], error) {
	return SelectDueTemplates(ctx, r.db, s.Transactions, userID, today)
}

// PendingObligations lists active annual charges due between from and to.
func (r *SQLiteRepository) PendingObligations(ctx context.Context, userID string, from, to core.Date) ([]core.PendingItem, error) {
	cols, err := ResolveColumns(ctx, r.db, ObligationsTable, ObligationFields)
	if err != nil {
		return nil, fmt.Errorf("resolve obligations schema: %w", err)
	}
	return ListPendingObligations(ctx, r.db, cols, userID, from, to)
}
