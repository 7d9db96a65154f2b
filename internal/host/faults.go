package host

import (
	"fmt"

	"github.com/rogers-f/clash-section-engine/internal/domain"
)

// Op names one host call that can be made to fail.
type Op string

const (
	OpSetSelection      Op = "set_selection"
	OpClearSelection    Op = "clear_selection"
	OpZoom              Op = "zoom"
	OpOverrideColor     Op = "override_color"
	OpResetOverrides    Op = "reset_overrides"
	OpResetAllOverrides Op = "reset_all_overrides"
	OpCapture           Op = "capture"
	OpSetClipping       Op = "set_clipping_planes"
	OpOpenClipPlanes    Op = "open_clip_planes"
	OpClipPlaneAdd      Op = "clip_plane_add"
	OpClipPlaneRemove   Op = "clip_plane_remove"
	OpCopyViewpoint     Op = "copy_viewpoint"
	OpApplyViewpoint    Op = "apply_viewpoint"
	OpSetRedlines       Op = "set_redlines"
)

type fault struct {
	err      error
	panicMsg string
}

// Fail makes every later call of op return err until Heal is called.
func (d *Document) Fail(op Op, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.faults[op] = fault{err: err}
}

// Panic makes every later call of op panic with msg until Heal is called.
func (d *Document) Panic(op Op, msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.faults[op] = fault{panicMsg: msg}
}

// Heal removes the fault on op. With no arguments it removes every fault.
func (d *Document) Heal(ops ...Op) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(ops) == 0 {
		d.faults = make(map[Op]fault)
		return
	}
	for _, op := range ops {
		delete(d.faults, op)
	}
}

// Withdraw makes a cut-plane capability report itself unavailable, as an
// older or newer host would.
func (d *Document) Withdraw(backend domain.CutPlaneBackend) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.withdrawn[backend] = true
}

// available must be called with d.mu held.
func (d *Document) available(backend domain.CutPlaneBackend) error {
	if d.withdrawn[backend] {
		return domain.ErrBackendUnavailable
	}
	return nil
}

// check must be called with d.mu held.
func (d *Document) check(op Op) error {
	f, ok := d.faults[op]
	if !ok {
		return nil
	}
	if f.panicMsg != "" {
		panic(fmt.Sprintf("host %s: %s", op, f.panicMsg))
	}
	return fmt.Errorf("host %s: %w", op, f.err)
}
