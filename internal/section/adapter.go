// Package section sets and clears a horizontal cut-plane on the active view.
//
// Hosts have exposed several incompatible mechanisms for this over time. Each
// mechanism is a Backend; the Adapter tries them in a fixed priority order and
// reports which one succeeded. A failing backend is never fatal to the caller.
package section

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/rogers-f/clash-section-engine/internal/domain"
	"github.com/rogers-f/clash-section-engine/internal/logging"
	"github.com/rogers-f/clash-section-engine/internal/view"
)

// Backend is one mechanism for setting and clearing the cut-plane. A backend
// whose capability the view lacks returns domain.ErrBackendUnavailable.
type Backend interface {
	Name() domain.CutPlaneBackend
	Apply(v view.ViewState, plane domain.ClipPlane) error
	Clear(v view.ViewState) error
}

// BackendError records the failure of one backend for one operation.
type BackendError struct {
	Backend domain.CutPlaneBackend
	Op      string
	Err     error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

// Unwrap returns the backend's error.
func (e *BackendError) Unwrap() error {
	return e.Err
}

// Adapter applies cut-planes through the first backend that works.
type Adapter struct {
	backends []Backend
	logger   *slog.Logger
}

// NewAdapter creates an Adapter trying backends in the given order. With no
// backends it uses DefaultBackends.
func NewAdapter(logger *slog.Logger, backends ...Backend) *Adapter {
	if len(backends) == 0 {
		backends = DefaultBackends()
	}
	return &Adapter{
		backends: backends,
		logger:   logging.Or(logger, "section"),
	}
}

// DefaultBackends returns the declarative, object model and reflective
// backends in priority order.
func DefaultBackends() []Backend {
	return []Backend{Declarative{}, ObjectModel{}, Reflective{}}
}

// BackendsByName resolves backend names in order.
func BackendsByName(names []string) ([]Backend, error) {
	out := make([]Backend, 0, len(names))
	seen := make(map[domain.CutPlaneBackend]bool, len(names))
	for _, n := range names {
		var b Backend
		switch domain.CutPlaneBackend(n) {
		case domain.BackendDeclarative:
			b = Declarative{}
		case domain.BackendObjectModel:
			b = ObjectModel{}
		case domain.BackendReflective:
			b = Reflective{}
		default:
			return nil, domain.NewEngineError(domain.ErrUnknownBackend.Code, fmt.Sprintf("%s: %q", domain.ErrUnknownBackend.Message, n))
		}
		if seen[b.Name()] {
			return nil, domain.NewEngineError(domain.ErrUnknownBackend.Code, fmt.Sprintf("duplicate cut-plane backend %q", n))
		}
		seen[b.Name()] = true
		out = append(out, b)
	}
	return out, nil
}

// Backends returns the configured backend names in priority order.
func (a *Adapter) Backends() []domain.CutPlaneBackend {
	names := make([]domain.CutPlaneBackend, len(a.backends))
	for i, b := range a.backends {
		names[i] = b.Name()
	}
	return names
}

// ApplyCutPlane sets a horizontal cut-plane so that the region at or above
// elevation stays visible. It returns the backend that succeeded, or an
// ErrAllBackendsFailed error joining every backend's failure.
func (a *Adapter) ApplyCutPlane(v view.ViewState, elevation float64) (domain.CutPlaneBackend, error) {
	if math.IsNaN(elevation) || math.IsInf(elevation, 0) {
		return domain.BackendNone, domain.ErrInvalidElevation
	}
	plane := domain.HorizontalCut(elevation)

	var errs []error
	for _, b := range a.backends {
		err := attempt(b, "apply", func() error { return b.Apply(v, plane) })
		if err == nil {
			a.logger.Debug("cut-plane applied", "backend", b.Name(), "elevation", elevation)
			return b.Name(), nil
		}
		a.logBackendFailure(err)
		errs = append(errs, err)
	}
	return domain.BackendNone, fmt.Errorf("%w: %w", domain.ErrAllBackendsFailed, errors.Join(errs...))
}

// ClearCutPlane neutralizes the cut-plane whichever backend created it. Every
// available backend clears its own mechanism; the call succeeds when at least
// one of them did. Clearing an already clear view changes nothing.
func (a *Adapter) ClearCutPlane(v view.ViewState) error {
	var errs []error
	cleared := false
	for _, b := range a.backends {
		err := attempt(b, "clear", func() error { return b.Clear(v) })
		if err == nil {
			cleared = true
			continue
		}
		if !errors.Is(err, domain.ErrBackendUnavailable) {
			a.logBackendFailure(err)
		}
		errs = append(errs, err)
	}
	if cleared {
		return nil
	}
	return fmt.Errorf("%w: %w", domain.ErrAllBackendsFailed, errors.Join(errs...))
}

func (a *Adapter) logBackendFailure(err error) {
	var be *BackendError
	if errors.As(err, &be) {
		if errors.Is(be.Err, domain.ErrBackendUnavailable) {
			a.logger.Debug("cut-plane backend unavailable", "backend", be.Backend, "op", be.Op)
			return
		}
		a.logger.Warn("cut-plane backend failed", "backend", be.Backend, "op", be.Op, "error", be.Err)
		return
	}
	a.logger.Warn("cut-plane backend failed", "error", err)
}

// attempt runs fn and converts both errors and host panics into a BackendError.
func attempt(b Backend, op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &BackendError{
				Backend: b.Name(),
				Op:      op,
				Err:     domain.WrapEngineError(domain.ErrBackendFailed.Code, "panic in backend", fmt.Errorf("%v", r)),
			}
		}
	}()
	if ferr := fn(); ferr != nil {
		return &BackendError{Backend: b.Name(), Op: op, Err: ferr}
	}
	return nil
}
