package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Kind identifies the category an obligation belongs to. It is also the
// value reported as PendingItem.Kind.
type Kind string

const (
	AnnualCharge      Kind = "annual_charge"
	RecurringTemplate Kind = "recurring_template"
)

// Ledger entry types.
const (
	TypeExpense = "expense"
	TypeIncome  = "income"
)

// DefaultMaxPerRun bounds how many items of one kind a single run processes.
const DefaultMaxPerRun = 100

type (
	// Obligation is an annual charge. DueDate is zero when the store has no
	// usable due-date column.
	Obligation struct {
		ID                string
		Name              string
		Amount            decimal.Decimal
		DueDate           Date
		LastProcessedDate Date
		AccountID         string
		Category          string
		IsActive          bool
	}

	// Template is a recurring transaction template anchored on Date.
	Template struct {
		ID               string
		Description      string
		Amount           decimal.Decimal
		Type             string
		Category         string
		SubCategory      string
		AccountID        string
		Date             Date
		IsRecurring      bool
		LastRecurredDate Date
	}

	// LedgerEntry is one materialized instance of an obligation. It is never
	// mutated after creation.
	LedgerEntry struct {
		ID          string
		UserID      string
		Description string
		Amount      decimal.Decimal
		Type        string
		Category    string
		SubCategory string
		AccountID   string
		Date        Date
		IsRecurring bool
		CreatedAt   string
		SourceKind  Kind
		SourceID    string
	}

	// Advance describes the date fields written back after a successful
	// materialization.
	Advance struct {
		ID          string
		PreviousDue Date
		NextDue     Date
		Today       Date
	}

	// PendingItem is the read-only projection returned by the upcoming query.
	PendingItem struct {
		ID        string          `json:"id"`
		Kind      Kind            `json:"kind"`
		Name      string          `json:"name"`
		Amount    decimal.Decimal `json:"amount"`
		DueDate   Date            `json:"dueDate"`
		AccountID string          `json:"accountId"`
		Category  string          `json:"category"`
	}
)

var (
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidDays      = errors.New("days must be zero or positive")
	ErrMissingUser      = errors.New("user id is required")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyID          = errors.New("empty id")
)

// Validate checks the fields a ledger store requires.
func (e LedgerEntry) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(e.Description) == "" {
		return ErrEmptyDescription
	}
	if err := e.Date.Validate(); err != nil {
		return err
	}
	return nil
}

// DisplayName returns the name used to identify the obligation in errors.
func (o Obligation) DisplayName() string {
	if strings.TrimSpace(o.Name) != "" {
		return o.Name
	}
	return o.ID
}

// DisplayName returns the name used to identify the template in errors.
func (t Template) DisplayName() string {
	if strings.TrimSpace(t.Description) != "" {
		return t.Description
	}
	return t.ID
}
