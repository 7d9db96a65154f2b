package host

import (
	"errors"
	"fmt"

	"github.com/rogers-f/clash-section-engine/internal/domain"
	"github.com/rogers-f/clash-section-engine/internal/view"
)

var errHandleReleased = errors.New("clip plane handle already released")

// clipHandle is the native handle onto the view's clip plane collection.
// Every change goes straight to the document.
type clipHandle struct {
	doc      *Document
	released bool
}

// OpenClipPlanes opens a handle onto the clip plane collection. The handle
// counts as open until Release.
func (d *Document) OpenClipPlanes() (view.ClipPlaneHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.available(domain.BackendObjectModel); err != nil {
		return nil, err
	}
	if err := d.check(OpOpenClipPlanes); err != nil {
		return nil, err
	}
	d.openHandles++
	return &clipHandle{doc: d}, nil
}

func (h *clipHandle) Count() (int, error) {
	h.doc.mu.Lock()
	defer h.doc.mu.Unlock()
	if h.released {
		return 0, errHandleReleased
	}
	return len(h.doc.clip.Planes), nil
}

func (h *clipHandle) RemoveAt(i int) error {
	h.doc.mu.Lock()
	defer h.doc.mu.Unlock()
	if h.released {
		return errHandleReleased
	}
	if err := h.doc.check(OpClipPlaneRemove); err != nil {
		return err
	}
	planes := h.doc.clip.Planes
	if i < 0 || i >= len(planes) {
		return fmt.Errorf("clip plane index %d out of range [0,%d)", i, len(planes))
	}
	h.doc.clip.Planes = append(planes[:i:i], planes[i+1:]...)
	h.doc.mutations++
	return nil
}

func (h *clipHandle) Add(p domain.ClipPlane) error {
	h.doc.mu.Lock()
	defer h.doc.mu.Unlock()
	if h.released {
		return errHandleReleased
	}
	if err := h.doc.check(OpClipPlaneAdd); err != nil {
		return err
	}
	h.doc.clip.Planes = append(h.doc.clip.Planes, p)
	h.doc.mutations++
	return nil
}

func (h *clipHandle) SetEnabled(enabled bool) error {
	h.doc.mu.Lock()
	defer h.doc.mu.Unlock()
	if h.released {
		return errHandleReleased
	}
	if h.doc.clip.Enabled != enabled {
		h.doc.clip.Enabled = enabled
		h.doc.mutations++
	}
	return nil
}

func (h *clipHandle) Release() error {
	h.doc.mu.Lock()
	defer h.doc.mu.Unlock()
	if h.released {
		return errHandleReleased
	}
	h.released = true
	h.doc.openHandles--
	return nil
}

// Viewpoint is a detached copy of the current viewpoint. InternalClipPlanes is
// not part of any published interface; callers reach it by name.
type Viewpoint struct {
	Camera             domain.Camera
	InternalClipPlanes *ClipPlaneSetObject
}

// ClipPlaneSetObject is the clip plane set attached to a viewpoint copy.
type ClipPlaneSetObject struct {
	set domain.ClipPlaneSet
}

// ReplacePlanes replaces every plane in the set.
func (c *ClipPlaneSetObject) ReplacePlanes(planes []domain.ClipPlane) error {
	c.set.Planes = append([]domain.ClipPlane(nil), planes...)
	return nil
}

// SetEnabled switches the whole set on or off.
func (c *ClipPlaneSetObject) SetEnabled(enabled bool) {
	c.set.Enabled = enabled
}

// CopyCurrentViewpoint returns a *Viewpoint detached from the view.
func (d *Document) CopyCurrentViewpoint() (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.available(domain.BackendReflective); err != nil {
		return nil, err
	}
	if err := d.check(OpCopyViewpoint); err != nil {
		return nil, err
	}
	return &Viewpoint{
		Camera:             d.camera,
		InternalClipPlanes: &ClipPlaneSetObject{set: d.clip.Clone()},
	}, nil
}

// ApplyViewpoint makes a viewpoint copy current.
func (d *Document) ApplyViewpoint(vp any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(OpApplyViewpoint); err != nil {
		return err
	}
	v, ok := vp.(*Viewpoint)
	if !ok || v == nil {
		return fmt.Errorf("apply viewpoint: unsupported viewpoint %T", vp)
	}
	d.camera = v.Camera
	if v.InternalClipPlanes != nil {
		d.setClip(v.InternalClipPlanes.set)
	}
	return nil
}

// Basic returns d as a plain view.ViewState without any optional capability.
func Basic(d *Document) view.ViewState {
	return basicView{d}
}

type basicView struct {
	view.ViewState
}
