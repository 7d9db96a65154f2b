// Package view declares the host view operations the pipeline depends on.
//
// ViewState is the single mutable view of a document session. Every pipeline
// step reads or mutates it, so it is passed explicitly and owned by one
// goroutine at a time. The cut-plane mechanisms are optional capabilities
// that callers discover with a type assertion.
package view

import "github.com/rogers-f/clash-section-engine/internal/domain"

// ViewState is the current selection, camera, clip configuration and
// temporary color overrides of the active view.
type ViewState interface {
	SetSelection(elems []domain.ElementRef) error
	ClearSelection() error
	Selection() []domain.ElementRef
	ZoomToSelection() error

	OverrideColor(elems []domain.ElementRef, c domain.RGB) error
	ResetOverrides(elems []domain.ElementRef) error
	ResetAllOverrides() error

	// Capture copies camera, clip and selection into an immutable snapshot.
	Capture() (domain.ViewpointSnapshot, error)
}

// DeclarativeClipper accepts a complete clip plane set description in one
// call. The description is the host's JSON ClipPlaneSet format.
type DeclarativeClipper interface {
	SetClippingPlanes(desc string) error
}

// ClipPlaneHandle is a native handle onto the view's clip plane collection.
// It must be released by whoever opened it.
type ClipPlaneHandle interface {
	Count() (int, error)
	RemoveAt(i int) error
	Add(p domain.ClipPlane) error
	SetEnabled(enabled bool) error
	Release() error
}

// ObjectModelClipper exposes the low-level clip plane collection.
type ObjectModelClipper interface {
	OpenClipPlanes() (ClipPlaneHandle, error)
}

// ViewpointCopier copies the current viewpoint into a detached host object and
// writes a modified copy back.
type ViewpointCopier interface {
	CopyCurrentViewpoint() (any, error)
	ApplyViewpoint(vp any) error
}

// Redliner replaces the view's redline markup.
type Redliner interface {
	SetRedlines(desc string) error
}

// EmptyRedlines is the markup that removes every redline.
const EmptyRedlines = `{"Type":"RedlineCollection","Version":1,"Values":[]}`
