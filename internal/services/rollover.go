// Package services provides business logic and orchestration services.
//
// This file implements the rollover strategies: given the date an obligation
// was due and the processing day, each strategy computes the next due date.
package services

import (
	"fmt"

	"recurra/internal/core"
)

// DefaultRolloverMaxAttempts bounds how many yearly steps the annual rollover
// tries before giving up on the original anniversary.
const DefaultRolloverMaxAttempts = 10

// Rollover computes the next due date of an obligation that was just
// materialized on today.
type Rollover interface {
	Next(due, today core.Date) core.Date
}

// AnnualRollover advances an annual charge to its first anniversary strictly
// after today.
type AnnualRollover struct {
	MaxAttempts int
}

// Next adds whole years to due until the result is after today. Each
// candidate is computed from the original date, so a Feb 29 anniversary comes
// back in leap years. When MaxAttempts steps are not enough, or due is
// unknown, the result is exactly one year after today.
func (r AnnualRollover) Next(due, today core.Date) core.Date {
	attempts := r.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultRolloverMaxAttempts
	}
	if due.IsZero() {
		return today.AddYears(1)
	}
	for years := 1; years <= attempts; years++ {
		if next := due.AddYears(years); next.After(today) {
			return next
		}
	}
	return today.AddYears(1)
}

// MonthlyRollover advances a recurring template's anchor by one calendar
// month, clipping to the last day of shorter months.
type MonthlyRollover struct{}

func (MonthlyRollover) Next(anchor, today core.Date) core.Date {
	if anchor.IsZero() {
		return today.AddMonths(1)
	}
	return anchor.AddMonths(1)
}

// rolloverStrategies maps obligation kinds to their rollover.
var rolloverStrategies = map[core.Kind]Rollover{
	core.AnnualCharge:      AnnualRollover{MaxAttempts: DefaultRolloverMaxAttempts},
	core.RecurringTemplate: MonthlyRollover{},
}

// GetRollover returns the rollover for a kind.
func GetRollover(kind core.Kind) (Rollover, error) {
	r, ok := rolloverStrategies[kind]
	if !ok {
		return nil, fmt.Errorf("unknown obligation kind: %s", kind)
	}
	return r, nil
}
