package services

import (
	"context"
	"fmt"

	"recurra/internal/core"
	"recurra/internal/storage"
)

// DefaultUpcomingDays is the lookahead used when a caller does not pass one.
const DefaultUpcomingDays = 7

// PendingQuery lists annual charges coming due. It only reads.
type PendingQuery struct {
	storage *storage.SQLiteRepository
	today   func() core.Date
}

// NewPendingQuery creates a query over storage using today as its clock.
func NewPendingQuery(storage *storage.SQLiteRepository, today func() core.Date) *PendingQuery {
	return &PendingQuery{storage: storage, today: today}
}

// ListUpcoming returns active annual charges due between today and today+days
// inclusive, ordered by due date.
func (q *PendingQuery) ListUpcoming(ctx context.Context, userID string, days int) ([]core.PendingItem, error) {
	return q.ListUpcomingAt(ctx, userID, days, q.today())
}

func (q *PendingQuery) ListUpcomingAt(ctx context.Context, userID string, days int, today core.Date) ([]core.PendingItem, error) {
	if userID == "" {
		return nil, core.ErrMissingUser
	}
	if days < 0 {
		return nil, core.ErrInvalidDays
	}
	if q.storage == nil {
		return nil, fmt.Errorf("pending query not properly initialized")
	}
	items, err := q.storage.PendingObligations(ctx, userID, today, today.AddDays(days))
	if err != nil {
		return nil, fmt.Errorf("list upcoming: %w", err)
	}
	return items, nil
}
