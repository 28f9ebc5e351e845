package services

import (
	"context"
	"errors"
	"testing"

	"recurra/internal/core"
)

func TestPendingQuery_ListUpcoming(t *testing.T) {
	repo := newTestRepo(t)
	today := core.NewDate(2024, 3, 1)
	seedCharge(t, repo, "plus2", "Plus two", "20", today.AddDays(2).String())
	seedCharge(t, repo, "plus9", "Plus nine", "90", today.AddDays(9).String())
	seedCharge(t, repo, "plus5", "Plus five", "50", today.AddDays(5).String())
	seedCharge(t, repo, "past", "Yesterday", "10", today.AddDays(-1).String())
	seedCharge(t, repo, "off", "Inactive", "30", today.AddDays(3).String())
	exec(t, repo, `UPDATE annual_charges SET is_active = 0 WHERE id = 'off'`)

	q := NewPendingQuery(repo, func() core.Date { return today })

	tests := []struct {
		name string
		days int
		want []string
	}{
		{"week", 7, []string{"plus2", "plus5"}},
		{"today only", 0, nil},
		{"ten days", 10, []string{"plus2", "plus5", "plus9"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := q.ListUpcoming(context.Background(), testUser, tt.days)
			if err != nil {
				t.Fatalf("ListUpcoming() error = %v", err)
			}
			if len(items) != len(tt.want) {
				t.Fatalf("ListUpcoming() returned %d items, want %d", len(items), len(tt.want))
			}
			for i, id := range tt.want {
				if items[i].ID != id {
					t.Errorf("item %d = %s, want %s", i, items[i].ID, id)
				}
				if items[i].Kind != core.AnnualCharge {
					t.Errorf("item %d kind = %s", i, items[i].Kind)
				}
			}
		})
	}

	// listing must not touch the charges
	if got := queryValue(t, repo, `SELECT COUNT(*) FROM annual_charges WHERE last_processed_date IS NOT NULL`); got != "0" {
		t.Errorf("ListUpcoming modified %s charges", got)
	}
}

func TestPendingQuery_InvalidInput(t *testing.T) {
	q := NewPendingQuery(newTestRepo(t), func() core.Date { return core.NewDate(2024, 3, 1) })

	if _, err := q.ListUpcoming(context.Background(), testUser, -1); !errors.Is(err, core.ErrInvalidDays) {
		t.Errorf("negative days error = %v, want ErrInvalidDays", err)
	}
	if _, err := q.ListUpcoming(context.Background(), "", 7); !errors.Is(err, core.ErrMissingUser) {
		t.Errorf("missing user error = %v, want ErrMissingUser", err)
	}
}

func TestPendingQuery_IncludesBoundaries(t *testing.T) {
	repo := newTestRepo(t)
	today := core.NewDate(2024, 12, 28)
	seedCharge(t, repo, "today", "Today", "1", today.String())
	seedCharge(t, repo, "edge", "Edge", "1", today.AddDays(7).String())
	q := NewPendingQuery(repo, func() core.Date { return today })

	items, err := q.ListUpcoming(context.Background(), testUser, 7)
	if err != nil {
		t.Fatalf("ListUpcoming() error = %v", err)
	}
	if len(items) != 2 || items[0].ID != "today" || items[1].ID != "edge" {
		t.Errorf("ListUpcoming() = %+v, want today then edge", items)
	}
	if !items[1].DueDate.Equal(core.NewDate(2025, 1, 4)) {
		t.Errorf("edge due date = %s, want 2025-01-04", items[1].DueDate)
	}
}
