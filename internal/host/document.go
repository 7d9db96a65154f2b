// Package host is the reference in-memory document and active view.
//
// Document implements view.ViewState together with every optional cut-plane
// capability, so the whole pipeline can run headless. It also records what
// happened to it: mutation counts, open native handles and injected faults.
package host

import (
	"sort"
	"sync"
	"time"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/rogers-f/clash-section-engine/internal/domain"
	"github.com/rogers-f/clash-section-engine/internal/view"
)

var (
	_ view.ViewState          = (*Document)(nil)
	_ view.DeclarativeClipper = (*Document)(nil)
	_ view.ObjectModelClipper = (*Document)(nil)
	_ view.ViewpointCopier    = (*Document)(nil)
	_ view.Redliner           = (*Document)(nil)
)

// defaultCamera looks at the origin from above and to the side.
var defaultCamera = domain.Camera{
	Position: domain.Point3{X: 10, Y: -10, Z: 10},
}

// Document is one open model document with its single active view.
type Document struct {
	mu sync.Mutex

	elements  map[string]domain.ElementRef
	selection []domain.ElementRef
	overrides map[string]domain.RGB
	camera    domain.Camera
	clip      domain.ClipPlaneSet
	redlines  string

	faults      map[Op]fault
	withdrawn   map[domain.CutPlaneBackend]bool
	mutations   int
	openHandles int
	now         func() time.Time
}

// NewDocument creates a document containing the given elements.
func NewDocument(elements ...domain.ElementRef) *Document {
	d := &Document{
		elements:  make(map[string]domain.ElementRef),
		overrides: make(map[string]domain.RGB),
		camera:    defaultCamera,
		redlines:  view.EmptyRedlines,
		faults:    make(map[Op]fault),
		withdrawn: make(map[domain.CutPlaneBackend]bool),
		now:       time.Now,
	}
	d.Register(elements...)
	return d
}

// Register adds or replaces model elements. Elements without an ID are ignored.
func (d *Document) Register(elements ...domain.ElementRef) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range elements {
		if e.ID == "" {
			continue
		}
		d.elements[e.ID] = e
	}
}

// RegisterTests registers every element referenced by the clash tests.
func (d *Document) RegisterTests(tests []domain.ClashTest) {
	for _, t := range tests {
		d.registerGroup(t.Root)
	}
}

func (d *Document) registerGroup(g domain.ClashGroup) {
	for _, child := range g.Children {
		switch {
		case child.Record != nil:
			d.Register(child.Record.Elements...)
		case child.Group != nil:
			d.registerGroup(*child.Group)
		}
	}
}

// SetClock replaces the time source used for capture timestamps.
func (d *Document) SetClock(now func() time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.now = now
}

// ---- view.ViewState ----

// SetSelection replaces the current selection.
func (d *Document) SetSelection(elems []domain.ElementRef) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(OpSetSelection); err != nil {
		return err
	}
	d.selection = make([]domain.ElementRef, 0, len(elems))
	for _, e := range elems {
		d.selection = append(d.selection, d.resolve(e))
	}
	d.mutations++
	return nil
}

// ClearSelection empties the current selection.
func (d *Document) ClearSelection() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(OpClearSelection); err != nil {
		return err
	}
	if len(d.selection) > 0 {
		d.selection = nil
		d.mutations++
	}
	return nil
}

// Selection returns a copy of the current selection.
func (d *Document) Selection() []domain.ElementRef {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.ElementRef(nil), d.selection...)
}

// ZoomToSelection fits the camera to the union of the selected elements'
// bounds. Elements without bounds do not contribute; with no bounds at all the
// camera is left unchanged.
func (d *Document) ZoomToSelection() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(OpZoom); err != nil {
		return err
	}
	box, ok := d.selectionBox()
	if !ok {
		return nil
	}
	center := box.Center()
	radius := box.Size().Length() / 2
	if radius == 0 {
		radius = 1
	}
	// Back off along the default view diagonal far enough to fit the box.
	eye := center.Add(v3.Vec{X: 1, Y: -1, Z: 1}.Normalize().MulScalar(radius * 2))
	d.camera = domain.Camera{Position: fromVec(eye), Target: fromVec(center)}
	d.mutations++
	return nil
}

func (d *Document) selectionBox() (sdf.Box3, bool) {
	var box sdf.Box3
	found := false
	for _, e := range d.selection {
		if e.Bounds == nil {
			continue
		}
		b := sdf.Box3{Min: toVec(e.Bounds.Min), Max: toVec(e.Bounds.Max)}
		if !found {
			box, found = b, true
			continue
		}
		box = box.Extend(b)
	}
	return box, found
}

// OverrideColor sets a temporary color on each element.
func (d *Document) OverrideColor(elems []domain.ElementRef, c domain.RGB) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(OpOverrideColor); err != nil {
		return err
	}
	for _, e := range elems {
		d.overrides[e.ID] = c
	}
	d.mutations++
	return nil
}

// ResetOverrides removes the temporary color of each element.
func (d *Document) ResetOverrides(elems []domain.ElementRef) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(OpResetOverrides); err != nil {
		return err
	}
	for _, e := range elems {
		delete(d.overrides, e.ID)
	}
	d.mutations++
	return nil
}

// ResetAllOverrides removes every temporary color in the document.
func (d *Document) ResetAllOverrides() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(OpResetAllOverrides); err != nil {
		return err
	}
	if len(d.overrides) > 0 {
		d.overrides = make(map[string]domain.RGB)
		d.mutations++
	}
	return nil
}

// Capture copies camera, clip configuration and selection.
func (d *Document) Capture() (domain.ViewpointSnapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(OpCapture); err != nil {
		return domain.ViewpointSnapshot{}, err
	}
	return domain.ViewpointSnapshot{
		Camera:     d.camera,
		Clip:       d.clip.Clone(),
		Selection:  append([]domain.ElementRef(nil), d.selection...),
		CapturedAt: d.now().Unix(),
	}, nil
}

// ---- view.DeclarativeClipper ----

// SetClippingPlanes replaces the clip configuration from a JSON description.
func (d *Document) SetClippingPlanes(desc string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.available(domain.BackendDeclarative); err != nil {
		return err
	}
	if err := d.check(OpSetClipping); err != nil {
		return err
	}
	set, err := view.DecodeClipPlaneSet(desc)
	if err != nil {
		return err
	}
	d.setClip(set)
	return nil
}

// ---- view.Redliner ----

// SetRedlines replaces the redline markup.
func (d *Document) SetRedlines(desc string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(OpSetRedlines); err != nil {
		return err
	}
	if d.redlines != desc {
		d.redlines = desc
		d.mutations++
	}
	return nil
}

// ---- inspection ----

// Overrides returns a copy of the temporary color overrides by element ID.
func (d *Document) Overrides() map[string]domain.RGB {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]domain.RGB, len(d.overrides))
	for k, v := range d.overrides {
		out[k] = v
	}
	return out
}

// ClipPlanes returns a copy of the active view's clip configuration.
func (d *Document) ClipPlanes() domain.ClipPlaneSet {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clip.Clone()
}

// Camera returns the current camera.
func (d *Document) Camera() domain.Camera {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.camera
}

// Redlines returns the current redline markup.
func (d *Document) Redlines() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.redlines
}

// Mutations returns how many state-changing calls the view has accepted.
func (d *Document) Mutations() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mutations
}

// OpenHandles returns the number of clip plane handles not yet released.
func (d *Document) OpenHandles() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.openHandles
}

// ElementIDs returns the registered element IDs in sorted order.
func (d *Document) ElementIDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]string, 0, len(d.elements))
	for id := range d.elements {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IsClean reports whether the view has no selection, no overrides and no
// active cut-plane.
func (d *Document) IsClean() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.selection) == 0 && len(d.overrides) == 0 && !d.clip.Active()
}

// resolve fills in registered data for a reference that only carries an ID.
func (d *Document) resolve(e domain.ElementRef) domain.ElementRef {
	reg, ok := d.elements[e.ID]
	if !ok {
		return e
	}
	if e.Name == "" {
		e.Name = reg.Name
	}
	if e.Bounds == nil {
		e.Bounds = reg.Bounds
	}
	return e
}

func (d *Document) setClip(set domain.ClipPlaneSet) {
	d.clip = set.Clone()
	d.mutations++
}

func toVec(p domain.Point3) v3.Vec {
	return v3.Vec{X: p.X, Y: p.Y, Z: p.Z}
}

func fromVec(v v3.Vec) domain.Point3 {
	return domain.Point3{X: v.X, Y: v.Y, Z: v.Z}
}
