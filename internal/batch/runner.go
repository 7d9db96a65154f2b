// Package batch runs the per-record pipeline over a filtered clash list.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/rogers-f/clash-section-engine/internal/domain"
	"github.com/rogers-f/clash-section-engine/internal/logging"
	"github.com/rogers-f/clash-section-engine/internal/pipeline"
	"github.com/rogers-f/clash-section-engine/internal/view"
)

// DefaultMaxFailureDetails is how many failures Summary.Message lists by name.
const DefaultMaxFailureDetails = 5

// CancelSignal is polled before each item.
type CancelSignal interface {
	Cancelled() bool
}

// CancelFlag is a CancelSignal set by another goroutine.
type CancelFlag struct {
	flag atomic.Bool
}

// Cancel requests that the run stop before its next item.
func (c *CancelFlag) Cancel() { c.flag.Store(true) }

// Cancelled reports whether Cancel was called.
func (c *CancelFlag) Cancelled() bool { return c.flag.Load() }

// ContextSignal is cancelled when its context is done.
type ContextSignal struct {
	Ctx context.Context
}

// Cancelled reports whether the context is done.
func (c ContextSignal) Cancelled() bool { return c.Ctx.Err() != nil }

// AnySignal is cancelled as soon as one of its signals is. Nil entries are
// skipped.
type AnySignal []CancelSignal

// Cancelled reports whether any signal is cancelled.
func (a AnySignal) Cancelled() bool {
	for _, s := range a {
		if s != nil && s.Cancelled() {
			return true
		}
	}
	return false
}

// ProgressSink receives an update before each item.
type ProgressSink interface {
	Report(u domain.ProgressUpdate)
}

// ProgressFunc adapts a function to ProgressSink.
type ProgressFunc func(domain.ProgressUpdate)

// Report calls f.
func (f ProgressFunc) Report(u domain.ProgressUpdate) { f(u) }

// ItemProcessor processes one record.
type ItemProcessor interface {
	ProcessOne(ctx context.Context, v view.ViewState, rec domain.ClashRecord, folder domain.FolderHandle) (pipeline.Outcome, error)
}

// Summary is the result of a run.
type Summary struct {
	Total     int                 `json:"total"`
	Processed int                 `json:"processed"`
	Succeeded int                 `json:"succeeded"`
	Degraded  int                 `json:"degraded"`
	Failed    []domain.FailedItem `json:"failed"`
	Cancelled bool                `json:"cancelled"`
}

// Message renders the summary for a user. At most maxDetails failures are
// listed by name; above that only their count is given.
func (s Summary) Message(maxDetails int) string {
	if maxDetails < 0 {
		maxDetails = 0
	}
	var b strings.Builder
	if s.Cancelled {
		fmt.Fprintf(&b, "Cancelled after %d of %d clashes.\n", s.Processed, s.Total)
	}
	fmt.Fprintf(&b, "Created %d section viewpoints", s.Succeeded)
	if len(s.Failed) > 0 {
		fmt.Fprintf(&b, ", %d failed", len(s.Failed))
	}
	b.WriteString(".")
	if s.Degraded > 0 {
		fmt.Fprintf(&b, "\n%d saved without a cut-plane.", s.Degraded)
	}
	switch {
	case len(s.Failed) == 0:
	case len(s.Failed) <= maxDetails:
		b.WriteString("\nFailed clashes:")
		for _, f := range s.Failed {
			fmt.Fprintf(&b, "\n  - %s: %s", f.Name, f.Reason)
		}
	default:
		fmt.Fprintf(&b, "\n%d clashes failed; see the log for details.", len(s.Failed))
	}
	return b.String()
}

// Runner drives an ItemProcessor over records, one at a time.
type Runner struct {
	proc      ItemProcessor
	cutPlanes pipeline.CutPlaner
	logger    *slog.Logger
}

// NewRunner creates a Runner. cutPlanes is used for the final housekeeping.
func NewRunner(proc ItemProcessor, cutPlanes pipeline.CutPlaner, logger *slog.Logger) *Runner {
	return &Runner{proc: proc, cutPlanes: cutPlanes, logger: logging.Or(logger, "batch")}
}

// Run processes records in order on the calling goroutine. cancel is polled
// before each item, never during one, so an item in flight always finishes
// its reset. Items already saved stay saved when the run is cancelled.
//
// Only a missing view or folder is returned as an error; item failures are
// collected in the summary.
func (r *Runner) Run(ctx context.Context, v view.ViewState, records []domain.ClashRecord, folder domain.FolderHandle, cancel CancelSignal, progress ProgressSink) (Summary, error) {
	if v == nil {
		return Summary{}, domain.ErrNoDocument
	}
	if !folder.Valid() {
		return Summary{}, domain.ErrInvalidFolder
	}

	sum := Summary{Total: len(records), Failed: []domain.FailedItem{}}
	r.logger.Info("run started", "total", sum.Total, "folder", folder.Name)
	defer r.housekeeping(v)

	for i, rec := range records {
		if cancel != nil && cancel.Cancelled() {
			sum.Cancelled = true
			r.logger.Info("run cancelled", "processed", sum.Processed, "total", sum.Total)
			break
		}
		if progress != nil {
			progress.Report(domain.ProgressUpdate{Index: i, Total: sum.Total, ItemName: rec.DisplayName})
		}

		out, err := r.proc.ProcessOne(ctx, v, rec, folder)
		sum.Processed++
		if err != nil {
			sum.Failed = append(sum.Failed, domain.FailedItem{Name: rec.DisplayName, Reason: reason(err)})
			continue
		}
		sum.Succeeded++
		if out.Degraded {
			sum.Degraded++
		}
	}

	r.logger.Info("run finished", "succeeded", sum.Succeeded, "failed", len(sum.Failed), "cancelled", sum.Cancelled)
	return sum, nil
}

func reason(err error) string {
	var pe *domain.ProcessError
	if errors.As(err, &pe) {
		return pe.Reason()
	}
	return err.Error()
}

// housekeeping clears whatever the last item may have left behind: the
// document-wide selection, every override and the cut-plane.
func (r *Runner) housekeeping(v view.ViewState) {
	steps := []struct {
		name string
		fn   func() error
	}{
		{"clear selection", v.ClearSelection},
		{"reset all overrides", v.ResetAllOverrides},
		{"clear cut-plane", func() error { return r.cutPlanes.ClearCutPlane(v) }},
	}
	for _, s := range steps {
		if err := safely(s.fn); err != nil {
			r.logger.Warn("housekeeping step failed", "step", s.name, "error", err)
		}
	}
}

func safely(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn()
}
