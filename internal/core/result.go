package core

// CategoryResult summarizes one kind of obligation within a run.
type CategoryResult struct {
	Selected   int  `json:"selected"`
	Processed  int  `json:"processed"`
	Failed     int  `json:"failed"`
	Skipped    int  `json:"skipped"`
	Deferred   int  `json:"deferred"`
	CapReached bool `json:"capReached"`
}

// RunResult is what a processing run reports back. Failures are data here,
// never a returned error.
type RunResult struct {
	ProcessedCount int                     `json:"processedCount"`
	Errors         []string                `json:"errors"`
	Warnings       []string                `json:"warnings,omitempty"`
	Categories     map[Kind]CategoryResult `json:"categories,omitempty"`
	Today          Date                    `json:"today"`
}

// NewRunResult returns an empty result with non-nil collections so that it
// encodes as [] rather than null.
func NewRunResult(today Date) RunResult {
	return RunResult{
		Errors:     []string{},
		Categories: make(map[Kind]CategoryResult),
		Today:      today,
	}
}

// CapReached reports whether any category stopped at the batch cap.
func (r RunResult) CapReached() bool {
	for _, c := range r.Categories {
		if c.CapReached {
			return true
		}
	}
	return false
}
