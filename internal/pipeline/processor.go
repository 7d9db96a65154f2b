package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rogers-f/clash-section-engine/internal/domain"
	"github.com/rogers-f/clash-section-engine/internal/logging"
	"github.com/rogers-f/clash-section-engine/internal/view"
)

// CutPlaner sets and clears the horizontal cut-plane on a view.
type CutPlaner interface {
	ApplyCutPlane(v view.ViewState, elevation float64) (domain.CutPlaneBackend, error)
	ClearCutPlane(v view.ViewState) error
}

// ViewpointFiler stores captured viewpoints.
type ViewpointFiler interface {
	InsertViewpoint(ctx context.Context, folder domain.FolderHandle, snap domain.ViewpointSnapshot, name string) (domain.SavedItem, error)
}

// SelectionSetFiler stores companion selection sets.
type SelectionSetFiler interface {
	InsertSelectionSet(ctx context.Context, folder domain.FolderHandle, elems []domain.ElementRef, name string) (domain.SavedItem, error)
}

// Config controls optional behavior of a Processor.
type Config struct {
	// HighlightColor is the temporary color of the clashing elements.
	HighlightColor domain.RGB
	// ClearRedlines removes redline markup before the viewpoint is captured.
	ClearRedlines bool
	// SelectionSets, when set, receives a selection set of the clashing
	// elements in SelectionSetFolder for every saved viewpoint.
	SelectionSets      SelectionSetFiler
	SelectionSetFolder domain.FolderHandle
	// Gates run before the view is touched. Nil means DefaultGates.
	Gates []Gate
	// OnTransition is called after every state change.
	OnTransition func(Transition)
}

// Outcome describes how one record was processed.
type Outcome struct {
	State     State
	Backend   domain.CutPlaneBackend
	Degraded  bool
	Viewpoint domain.SavedItem
	// CleanupErr joins the reset failures. It never fails the item.
	CleanupErr error
}

// Processor drives the view through the per-record state machine.
type Processor struct {
	cutPlanes CutPlaner
	filer     ViewpointFiler
	cfg       Config
	logger    *slog.Logger
}

// NewProcessor creates a Processor.
func NewProcessor(cutPlanes CutPlaner, filer ViewpointFiler, cfg Config, logger *slog.Logger) *Processor {
	if cfg.Gates == nil {
		cfg.Gates = DefaultGates()
	}
	return &Processor{
		cutPlanes: cutPlanes,
		filer:     filer,
		cfg:       cfg,
		logger:    logging.Or(logger, "pipeline"),
	}
}

// ProcessOne highlights, focuses, clips, captures and files one record, then
// resets the view. A rejected record fails without any view mutation. Once
// the view has been touched the reset always runs, whatever happened, and a
// panic from the host is converted into the item's error.
//
// The returned error is nil or a *domain.ProcessError.
func (p *Processor) ProcessOne(ctx context.Context, v view.ViewState, rec domain.ClashRecord, folder domain.FolderHandle) (out Outcome, err error) {
	log := p.logger.With("clash", rec.DisplayName)
	m := &machine{record: rec.DisplayName, state: StateIdle, hook: p.cfg.OnTransition}

	for _, g := range p.cfg.Gates {
		if gerr := g.Evaluate(rec); gerr != nil {
			m.fail()
			log.Warn("clash rejected", "gate", g.Name(), "error", gerr)
			return Outcome{State: m.state}, &domain.ProcessError{RecordName: rec.DisplayName, State: string(StateIdle), Cause: gerr}
		}
	}
	if terr := m.to(StateValidated); terr != nil {
		return Outcome{State: m.state}, &domain.ProcessError{RecordName: rec.DisplayName, State: string(StateIdle), Cause: terr}
	}

	parts := rec.Participants()
	defer func() {
		if r := recover(); r != nil {
			failedIn := m.state
			m.fail()
			err = &domain.ProcessError{RecordName: rec.DisplayName, State: string(failedIn), Cause: fmt.Errorf("host panic: %v", r)}
			log.Error("clash processing panicked", "state", failedIn, "panic", r)
		}
		out.CleanupErr = p.reset(log, v, parts)
		if err == nil {
			if terr := m.to(StateReset); terr != nil {
				err = &domain.ProcessError{RecordName: rec.DisplayName, State: string(m.state), Cause: terr}
			}
		}
		out.State = m.state
	}()

	for _, s := range p.steps(ctx, v, rec, parts, folder, &out, log) {
		if serr := s.do(); serr != nil {
			failedIn := m.state
			m.fail()
			log.Warn("clash failed", "state", failedIn, "step", s.name, "error", serr)
			return out, &domain.ProcessError{RecordName: rec.DisplayName, State: string(failedIn), Cause: fmt.Errorf("%s: %w", s.name, serr)}
		}
		if terr := m.to(s.next); terr != nil {
			return out, &domain.ProcessError{RecordName: rec.DisplayName, State: string(m.state), Cause: terr}
		}
	}
	log.Info("clash viewpoint saved", "backend", out.Backend, "degraded", out.Degraded)
	return out, nil
}

type step struct {
	name string
	next State
	do   func() error
}

func (p *Processor) steps(ctx context.Context, v view.ViewState, rec domain.ClashRecord, parts []domain.ElementRef, folder domain.FolderHandle, out *Outcome, log *slog.Logger) []step {
	var snap domain.ViewpointSnapshot
	return []step{
		{"highlight", StateHighlighted, func() error {
			return v.OverrideColor(parts, p.cfg.HighlightColor)
		}},
		{"focus", StateFocusedSelection, func() error {
			if err := v.SetSelection(parts); err != nil {
				return err
			}
			return v.ZoomToSelection()
		}},
		{"clip", StateClipped, func() error {
			backend, err := p.cutPlanes.ApplyCutPlane(v, rec.Center.Z)
			if err != nil {
				out.Degraded = true
				log.Warn("continuing without cut-plane", "elevation", rec.Center.Z, "error", err)
				return nil
			}
			out.Backend = backend
			return nil
		}},
		{"capture", StateCaptured, func() error {
			p.clearRedlines(v, log)
			var err error
			snap, err = v.Capture()
			if err != nil {
				return domain.WrapEngineError(domain.ErrCaptureFailed.Code, domain.ErrCaptureFailed.Message, err)
			}
			return nil
		}},
		{"persist", StatePersisted, func() error {
			item, err := p.filer.InsertViewpoint(ctx, folder, snap, rec.DisplayName)
			if err != nil {
				return err
			}
			out.Viewpoint = item
			p.saveSelectionSet(ctx, rec, parts, log)
			return nil
		}},
	}
}

func (p *Processor) clearRedlines(v view.ViewState, log *slog.Logger) {
	if !p.cfg.ClearRedlines {
		return
	}
	r, ok := v.(view.Redliner)
	if !ok {
		return
	}
	if err := r.SetRedlines(view.EmptyRedlines); err != nil {
		log.Warn("clear redlines failed", "error", err)
	}
}

// saveSelectionSet files the companion selection set. Its failure is logged
// only; the viewpoint is already saved.
func (p *Processor) saveSelectionSet(ctx context.Context, rec domain.ClashRecord, parts []domain.ElementRef, log *slog.Logger) {
	if p.cfg.SelectionSets == nil || !p.cfg.SelectionSetFolder.Valid() {
		return
	}
	if _, err := p.cfg.SelectionSets.InsertSelectionSet(ctx, p.cfg.SelectionSetFolder, parts, rec.DisplayName); err != nil {
		log.Warn("selection set not saved", "error", err)
	}
}

// reset clears the record's overrides, the selection and the cut-plane. Every
// step runs even if an earlier one fails.
func (p *Processor) reset(log *slog.Logger, v view.ViewState, parts []domain.ElementRef) error {
	var errs []error
	cleanup := []struct {
		name string
		fn   func() error
	}{
		{"reset overrides", func() error { return v.ResetOverrides(parts) }},
		{"clear selection", v.ClearSelection},
		{"clear cut-plane", func() error { return p.cutPlanes.ClearCutPlane(v) }},
	}
	for _, c := range cleanup {
		if err := safely(c.fn); err != nil {
			log.Warn("cleanup step failed", "step", c.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	return errors.Join(errs...)
}

// safely runs fn and turns a panic into an error.
func safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
