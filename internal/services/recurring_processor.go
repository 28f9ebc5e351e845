package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"recurra/internal/core"
	applog "recurra/internal/log"
	"recurra/internal/storage"
)

// ledgerNamespace scopes the deterministic ledger entry ids.
var ledgerNamespace = uuid.MustParse("6f1c9a52-3b8e-4d1f-9c57-2a8e4b0d7c13")

// LedgerPublisher announces ledger entries after they are committed.
type LedgerPublisher interface {
	PublishLedgerEntry(ctx context.Context, entry core.LedgerEntry) error
}

// ProcessorConfig holds configuration for the recurring processor
type ProcessorConfig struct {
	// MaxPerRun is the max number of items of each kind processed per run (default: 100)
	MaxPerRun int

	// RolloverMaxAttempts bounds the yearly steps of the annual rollover (default: 10)
	RolloverMaxAttempts int
}

// DefaultProcessorConfig returns sensible defaults
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		MaxPerRun:           core.DefaultMaxPerRun,
		RolloverMaxAttempts: DefaultRolloverMaxAttempts,
	}
}

// RecurringProcessor materializes due annual charges and recurring templates
// into ledger entries and advances their dates.
type RecurringProcessor struct {
	storage   *storage.SQLiteRepository
	publisher LedgerPublisher
	config    ProcessorConfig
	annual    Rollover
	monthly   Rollover
	logger    *applog.Logger
	now       func() time.Time

	// Overlapping runs for the same user and day share one execution.
	runs singleflight.Group
}

// NewRecurringProcessor creates a new recurring processor. publisher may be nil.
func NewRecurringProcessor(storage *storage.SQLiteRepository, publisher LedgerPublisher, config ProcessorConfig) *RecurringProcessor {
	if config.MaxPerRun <= 0 {
		config.MaxPerRun = core.DefaultMaxPerRun
	}
	if config.RolloverMaxAttempts <= 0 {
		config.RolloverMaxAttempts = DefaultRolloverMaxAttempts
	}
	annual, _ := GetRollover(core.AnnualCharge)
	if a, ok := annual.(AnnualRollover); ok {
		a.MaxAttempts = config.RolloverMaxAttempts
		annual = a
	}
	monthly, _ := GetRollover(core.RecurringTemplate)
	return &RecurringProcessor{
		storage:   storage,
		publisher: publisher,
		config:    config,
		annual:    annual,
		monthly:   monthly,
		logger:    applog.Default(applog.ComponentProcessor),
		now:       time.Now,
	}
}

// SetClock replaces the time source used for "today" and created_at stamps.
func (p *RecurringProcessor) SetClock(now func() time.Time) {
	p.now = now
}

// Today returns the processing date according to the processor's clock.
func (p *RecurringProcessor) Today() core.Date {
	return core.DateOf(p.now())
}

// RunProcessing processes everything due for userID as of today.
func (p *RecurringProcessor) RunProcessing(ctx context.Context, userID string) core.RunResult {
	return p.RunProcessingAt(ctx, userID, p.Today())
}

// RunProcessingAt processes everything due for userID as of today. It never
// fails: a store failure while resolving the schema aborts the run and is
// reported as the single entry of Errors. Cancelling ctx does not stop a run
// once started, since callers sharing it would see an aborted result.
func (p *RecurringProcessor) RunProcessingAt(ctx context.Context, userID string, today core.Date) core.RunResult {
	if userID == "" {
		return globalFailure(today, core.ErrMissingUser)
	}
	key := userID + "|" + today.String()
	v, _, shared := p.runs.Do(key, func() (any, error) {
		return p.run(context.WithoutCancel(ctx), userID, today), nil
	})
	if shared {
		p.logger.InfoContext(ctx, "Joined in-flight processing run", applog.FieldUserID, userID)
	}
	return v.(core.RunResult)
}

func globalFailure(today core.Date, err error) core.RunResult {
	result := core.NewRunResult(today)
	result.Errors = []string{fmt.Sprintf("processing aborted: %v", err)}
	return result
}

func (p *RecurringProcessor) run(ctx context.Context, userID string, today core.Date) core.RunResult {
	if p.storage == nil {
		return globalFailure(today, fmt.Errorf("processor not properly initialized"))
	}

	logger := p.logger.With(applog.FieldUserID, userID, applog.FieldToday, today.String())

	schema, err := p.storage.ResolveSchema(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "Schema resolution failed, run aborted", applog.FieldError, err)
		return globalFailure(today, err)
	}

	result := core.NewRunResult(today)
	p.processObligations(ctx, logger, &result, schema, userID, today)
	p.processTemplates(ctx, logger, &result, schema, userID, today)

	logger.InfoContext(ctx, "Recurring processing complete",
		"processed", result.ProcessedCount,
		"errors", len(result.Errors),
		"cap_reached", result.CapReached())

	return result
}

func (p *RecurringProcessor) processObligations(ctx context.Context, logger *applog.Logger, result *core.RunResult, schema storage.Schema, userID string, today core.Date) {
	sel, err := p.storage.DueObligations(ctx, schema, userID, today)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to select due annual charges", applog.FieldError, err)
		result.Errors = append(result.Errors, fmt.Sprintf("annual charges: %v", err))
		return
	}
	if sel.Unfiltered {
		result.Warnings = append(result.Warnings, "annual charges: due date column missing, selection not filtered by date")
	}

	cat := core.CategoryResult{Selected: len(sel.Items) + len(sel.Rejected)}
	p.recordRejected(ctx, logger, result, &cat, core.AnnualCharge, sel.Rejected)

	for i, o := range sel.Items {
		if i >= p.config.MaxPerRun {
			p.deferRemaining(ctx, logger, result, &cat, core.AnnualCharge, len(sel.Items)-i)
			break
		}
		applied, err := p.processObligation(ctx, schema, userID, today, o)
		p.recordItem(ctx, logger, result, &cat, core.AnnualCharge, o.ID, o.DisplayName(), applied, err)
	}

	result.Categories[core.AnnualCharge] = cat
	result.ProcessedCount += cat.Processed
}

func (p *RecurringProcessor) processTemplates(ctx context.Context, logger *applog.Logger, result *core.RunResult, schema storage.Schema, userID string, today core.Date) {
	sel, err := p.storage.DueTemplates(ctx, schema, userID, today)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to select due recurring templates", applog.FieldError, err)
		result.Errors = append(result.Errors, fmt.Sprintf("recurring templates: %v", err))
		return
	}
	if sel.Unfiltered {
		result.Warnings = append(result.Warnings, "recurring templates: anchor date column missing, selection not filtered by date")
	}

	cat := core.CategoryResult{Selected: len(sel.Items) + len(sel.Rejected)}
	p.recordRejected(ctx, logger, result, &cat, core.RecurringTemplate, sel.Rejected)

	for i, t := range sel.Items {
		if i >= p.config.MaxPerRun {
			p.deferRemaining(ctx, logger, result, &cat, core.RecurringTemplate, len(sel.Items)-i)
			break
		}
		applied, err := p.processTemplate(ctx, schema, userID, today, t)
		p.recordItem(ctx, logger, result, &cat, core.RecurringTemplate, t.ID, t.DisplayName(), applied, err)
	}

	result.Categories[core.RecurringTemplate] = cat
	result.ProcessedCount += cat.Processed
}

// processObligation inserts the ledger entry and advances the charge in one
// transaction. It reports false without error when another run already
// advanced the charge.
func (p *RecurringProcessor) processObligation(ctx context.Context, schema storage.Schema, userID string, today core.Date, o core.Obligation) (bool, error) {
	period := o.DueDate
	if period.IsZero() {
		period = today
	}
	category := o.Category
	if category == "" {
		category = string(core.AnnualCharge)
	}

	entry := core.LedgerEntry{
		ID:          LedgerEntryID(userID, core.AnnualCharge, o.ID, period),
		UserID:      userID,
		Description: o.DisplayName(),
		Amount:      o.Amount,
		Type:        core.TypeExpense,
		Category:    category,
		AccountID:   o.AccountID,
		Date:        today,
		CreatedAt:   p.now().UTC().Format(time.RFC3339Nano),
		SourceKind:  core.AnnualCharge,
		SourceID:    o.ID,
	}
	adv := core.Advance{
		ID:          o.ID,
		PreviousDue: o.DueDate,
		NextDue:     p.annual.Next(o.DueDate, today),
		Today:       today,
	}

	return p.materialize(ctx, schema, entry, func(q storage.Querier) (bool, error) {
		return storage.AdvanceObligation(ctx, q, schema.Obligations, adv)
	})
}

func (p *RecurringProcessor) processTemplate(ctx context.Context, schema storage.Schema, userID string, today core.Date, t core.Template) (bool, error) {
	period := t.Date
	if period.IsZero() {
		period = today
	}

	entry := core.LedgerEntry{
		ID:          LedgerEntryID(userID, core.RecurringTemplate, t.ID, period),
		UserID:      userID,
		Description: t.DisplayName(),
		Amount:      t.Amount,
		Type:        t.Type,
		Category:    t.Category,
		SubCategory: t.SubCategory,
		AccountID:   t.AccountID,
		Date:        today,
		CreatedAt:   p.now().UTC().Format(time.RFC3339Nano),
		SourceKind:  core.RecurringTemplate,
		SourceID:    t.ID,
	}
	adv := core.Advance{
		ID:          t.ID,
		PreviousDue: t.Date,
		NextDue:     p.monthly.Next(t.Date, today),
		Today:       today,
	}

	return p.materialize(ctx, schema, entry, func(q storage.Querier) (bool, error) {
		return storage.AdvanceTemplate(ctx, q, schema.Transactions, adv)
	})
}

func (p *RecurringProcessor) materialize(ctx context.Context, schema storage.Schema, entry core.LedgerEntry, advance func(storage.Querier) (bool, error)) (bool, error) {
	committed, err := p.storage.WithTx(ctx, func(q storage.Querier) error {
		if err := storage.InsertLedgerEntry(ctx, q, schema.Transactions, entry); err != nil {
			return err
		}
		ok, err := advance(q)
		if err != nil {
			return err
		}
		if !ok {
			return storage.ErrRollback
		}
		return nil
	})
	if err != nil || !committed {
		return false, err
	}

	p.publish(ctx, entry)
	return true, nil
}

func (p *RecurringProcessor) publish(ctx context.Context, entry core.LedgerEntry) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.PublishLedgerEntry(ctx, entry); err != nil {
		// The entry is committed; delivery is best effort.
		p.logger.ErrorContext(ctx, "Failed to publish ledger entry",
			applog.FieldLedgerID, entry.ID,
			applog.FieldError, err)
	}
}

func (p *RecurringProcessor) recordItem(ctx context.Context, logger *applog.Logger, result *core.RunResult, cat *core.CategoryResult, kind core.Kind, id, name string, applied bool, err error) {
	fields := applog.NewFields().WithSource(string(kind), id, name)
	switch {
	case err != nil:
		cat.Failed++
		result.Errors = append(result.Errors, fmt.Sprintf("%s %q: %v", kind, name, err))
		logger.ErrorContext(ctx, "Failed to process obligation", fields.WithError(err).ToSlice()...)
	case !applied:
		cat.Skipped++
		logger.InfoContext(ctx, "Obligation already processed by another run", fields.ToSlice()...)
	default:
		cat.Processed++
		logger.DebugContext(ctx, "Materialized obligation", fields.ToSlice()...)
	}
}

func (p *RecurringProcessor) recordRejected(ctx context.Context, logger *applog.Logger, result *core.RunResult, cat *core.CategoryResult, kind core.Kind, rejected []storage.Rejected) {
	for _, r := range rejected {
		cat.Failed++
		result.Errors = append(result.Errors, fmt.Sprintf("%s %q: %v", kind, r.Name, r.Err))
		logger.ErrorContext(ctx, "Unreadable obligation row",
			applog.NewFields().WithSource(string(kind), r.ID, r.Name).WithError(r.Err).ToSlice()...)
	}
}

func (p *RecurringProcessor) deferRemaining(ctx context.Context, logger *applog.Logger, result *core.RunResult, cat *core.CategoryResult, kind core.Kind, remaining int) {
	cat.CapReached = true
	cat.Deferred = remaining
	result.Warnings = append(result.Warnings,
		fmt.Sprintf("%s: batch cap of %d reached, %d deferred to next run", kind, p.config.MaxPerRun, remaining))
	logger.WarnContext(ctx, "Batch cap reached",
		applog.FieldKind, string(kind),
		"max_per_run", p.config.MaxPerRun,
		"deferred", remaining)
}

// LedgerEntryID derives the ledger entry id from the obligation and the
// period being materialized, so materializing the same period twice collides
// on the primary key.
func LedgerEntryID(userID string, kind core.Kind, sourceID string, period core.Date) string {
	name := userID + ":" + string(kind) + ":" + sourceID + ":" + period.String()
	return uuid.NewSHA1(ledgerNamespace, []byte(name)).String()
}
