// Package cost bounds per-session analysis spend.
package cost

import (
	"sync"

	"github.com/hpungsan/lens/internal/config"
	"github.com/hpungsan/lens/internal/errors"
)

// Budget dimensions, as reported in limit errors.
const (
	DimensionFrames       = "frames"
	DimensionCalls        = "calls"
	DimensionInputTokens  = "input_tokens"
	DimensionOutputTokens = "output_tokens"
)

// Budget is the immutable set of limits for one session.
type Budget struct {
	MaxFrames       int `json:"max_frames"`
	MaxCalls        int `json:"max_calls"`
	MaxInputTokens  int `json:"max_input_tokens"`
	MaxOutputTokens int `json:"max_output_tokens"`
}

// BudgetFromConfig converts a config budget.
func BudgetFromConfig(b config.Budget) Budget {
	return Budget{
		MaxFrames:       b.MaxFrames,
		MaxCalls:        b.MaxCalls,
		MaxInputTokens:  b.MaxInputTokens,
		MaxOutputTokens: b.MaxOutputTokens,
	}
}

// Usage holds monotonically increasing counters.
type Usage struct {
	Frames       int `json:"frames"`
	Calls        int `json:"calls"`
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Report is the final usage summary of a session.
type Report struct {
	Budget Budget `json:"budget"`
	Used   Usage  `json:"used"`
	// Rejected counts increments refused by the tracker.
	Rejected int `json:"rejected"`
}

// Tracker checks every increment against its budget before committing it.
// It is safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	budget   Budget
	used     Usage
	rejected int
}

// NewTracker creates a tracker with zeroed usage.
func NewTracker(budget Budget) *Tracker {
	return &Tracker{budget: budget}
}

// RecordFrames commits n more frames, or fails without changing any counter.
func (t *Tracker) RecordFrames(n int) error {
	if n < 0 {
		return errors.NewInvalidInput("frame count must not be negative")
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.used.Frames+n > t.budget.MaxFrames {
		t.rejected++
		return errors.NewCostLimitExceeded(DimensionFrames, t.used.Frames, n, t.budget.MaxFrames)
	}
	t.used.Frames += n
	return nil
}

// CanMakeCall reports whether another remote call fits in the budget.
// It never mutates usage.
func (t *Tracker) CanMakeCall() bool {
	return t.CheckCall() == nil
}

// CheckCall is CanMakeCall with the exhausted dimension as an error.
func (t *Tracker) CheckCall() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case t.used.Calls >= t.budget.MaxCalls:
		return errors.NewCostLimitExceeded(DimensionCalls, t.used.Calls, 1, t.budget.MaxCalls)
	case t.used.InputTokens >= t.budget.MaxInputTokens:
		return errors.NewCostLimitExceeded(DimensionInputTokens, t.used.InputTokens, 1, t.budget.MaxInputTokens)
	case t.used.OutputTokens >= t.budget.MaxOutputTokens:
		return errors.NewCostLimitExceeded(DimensionOutputTokens, t.used.OutputTokens, 1, t.budget.MaxOutputTokens)
	}
	return nil
}

// RecordCall commits one call with its token counts. All three dimensions are
// checked before any is committed.
func (t *Tracker) RecordCall(inputTokens, outputTokens int) error {
	if inputTokens < 0 || outputTokens < 0 {
		return errors.NewInvalidInput("token counts must not be negative")
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	var err error
	switch {
	case t.used.Calls+1 > t.budget.MaxCalls:
		err = errors.NewCostLimitExceeded(DimensionCalls, t.used.Calls, 1, t.budget.MaxCalls)
	case t.used.InputTokens+inputTokens > t.budget.MaxInputTokens:
		err = errors.NewCostLimitExceeded(DimensionInputTokens, t.used.InputTokens, inputTokens, t.budget.MaxInputTokens)
	case t.used.OutputTokens+outputTokens > t.budget.MaxOutputTokens:
		err = errors.NewCostLimitExceeded(DimensionOutputTokens, t.used.OutputTokens, outputTokens, t.budget.MaxOutputTokens)
	}
	if err != nil {
		t.rejected++
		return err
	}

	t.used.Calls++
	t.used.InputTokens += inputTokens
	t.used.OutputTokens += outputTokens
	return nil
}

// Remaining returns the headroom left in each dimension.
func (t *Tracker) Remaining() Usage {
	t.mu.Lock()
	defer t.mu.Unlock()

	return Usage{
		Frames:       max(t.budget.MaxFrames-t.used.Frames, 0),
		Calls:        max(t.budget.MaxCalls-t.used.Calls, 0),
		InputTokens:  max(t.budget.MaxInputTokens-t.used.InputTokens, 0),
		OutputTokens: max(t.budget.MaxOutputTokens-t.used.OutputTokens, 0),
	}
}

// Used returns a snapshot of the committed counters.
func (t *Tracker) Used() Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.used
}

// Finalize returns the usage report. The tracker stays usable.
func (t *Tracker) Finalize() Report {
	t.mu.Lock()
	defer t.mu.Unlock()

	return Report{
		Budget:   t.budget,
		Used:     t.used,
		Rejected: t.rejected,
	}
}
