package section

import (
	"fmt"

	"github.com/rogers-f/clash-section-engine/internal/domain"
	"github.com/rogers-f/clash-section-engine/internal/view"
)

// ObjectModel drives the view's clip plane collection call by call: existing
// planes are removed one at a time before the new one is added. The native
// handle never outlives a single Apply or Clear.
type ObjectModel struct{}

// Name returns the backend identity.
func (ObjectModel) Name() domain.CutPlaneBackend { return domain.BackendObjectModel }

// Apply removes every plane, adds the new one and enables clipping.
func (ObjectModel) Apply(v view.ViewState, plane domain.ClipPlane) error {
	return withClipPlanes(v, func(h view.ClipPlaneHandle) error {
		if err := removeAll(h); err != nil {
			return err
		}
		if err := h.Add(plane); err != nil {
			return fmt.Errorf("add plane: %w", err)
		}
		return h.SetEnabled(true)
	})
}

// Clear removes every plane and disables clipping.
func (ObjectModel) Clear(v view.ViewState) error {
	return withClipPlanes(v, func(h view.ClipPlaneHandle) error {
		if err := removeAll(h); err != nil {
			return err
		}
		return h.SetEnabled(false)
	})
}

// withClipPlanes opens the handle, runs fn and releases the handle on every
// exit path, panics included.
func withClipPlanes(v view.ViewState, fn func(h view.ClipPlaneHandle) error) (err error) {
	om, ok := v.(view.ObjectModelClipper)
	if !ok {
		return domain.ErrBackendUnavailable
	}
	h, err := om.OpenClipPlanes()
	if err != nil {
		return fmt.Errorf("open clip planes: %w", err)
	}
	defer func() {
		if rerr := h.Release(); rerr != nil && err == nil {
			err = fmt.Errorf("release clip planes: %w", rerr)
		}
	}()
	return fn(h)
}

func removeAll(h view.ClipPlaneHandle) error {
	n, err := h.Count()
	if err != nil {
		return fmt.Errorf("count planes: %w", err)
	}
	for i := n - 1; i >= 0; i-- {
		if err := h.RemoveAt(i); err != nil {
			return fmt.Errorf("remove plane %d: %w", i, err)
		}
	}
	return nil
}
