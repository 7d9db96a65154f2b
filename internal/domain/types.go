// Package domain defines the core types for the clash section engine.
package domain

import (
	"fmt"
	"math"
	"strings"
)

// ClashStatus is the review status assigned by the detection engine.
type ClashStatus string

const (
	StatusNew      ClashStatus = "new"
	StatusActive   ClashStatus = "active"
	StatusReviewed ClashStatus = "reviewed"
	StatusApproved ClashStatus = "approved"
	StatusResolved ClashStatus = "resolved"
)

// DefaultEligibleStatuses are the statuses that still need a section view.
var DefaultEligibleStatuses = []ClashStatus{StatusNew, StatusActive, StatusReviewed}

// ParseClashStatus converts a case-insensitive status name.
func ParseClashStatus(s string) (ClashStatus, error) {
	switch ClashStatus(strings.ToLower(strings.TrimSpace(s))) {
	case StatusNew:
		return StatusNew, nil
	case StatusActive:
		return StatusActive, nil
	case StatusReviewed:
		return StatusReviewed, nil
	case StatusApproved:
		return StatusApproved, nil
	case StatusResolved:
		return StatusResolved, nil
	}
	return "", NewEngineError(ErrInvalidStatus.Code, fmt.Sprintf("%s: %q", ErrInvalidStatus.Message, s))
}

// Point3 is a point in document coordinates. Z is the vertical axis.
type Point3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// IsFinite reports whether every coordinate is a finite number.
func (p Point3) IsFinite() bool {
	for _, v := range [3]float64{p.X, p.Y, p.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Bounds is an axis-aligned box in document coordinates.
type Bounds struct {
	Min Point3 `json:"min"`
	Max Point3 `json:"max"`
}

// ElementRef references one model element taking part in a clash.
type ElementRef struct {
	ID     string  `json:"id"`
	Name   string  `json:"name,omitempty"`
	Bounds *Bounds `json:"bounds,omitempty"`
}

// ClashRecord is an immutable snapshot of one detected interference.
type ClashRecord struct {
	ID          string
	DisplayName string
	Status      ClashStatus
	// Center is nil when the detection engine reported no center.
	Center   *Point3
	Elements []ElementRef
}

// HasUsableCenter reports whether the record carries a finite center point.
func (r ClashRecord) HasUsableCenter() bool {
	return r.Center != nil && r.Center.IsFinite()
}

// Participants returns at most two element references with a non-empty ID.
func (r ClashRecord) Participants() []ElementRef {
	out := make([]ElementRef, 0, 2)
	for _, e := range r.Elements {
		if e.ID == "" {
			continue
		}
		out = append(out, e)
		if len(out) == 2 {
			break
		}
	}
	return out
}

// ClashNode is a tagged union: exactly one of Record or Group is set.
type ClashNode struct {
	Record *ClashRecord
	Group  *ClashGroup
}

// ClashGroup is a named container of records and nested groups.
type ClashGroup struct {
	DisplayName string
	Children    []ClashNode
}

// ClashTest is one test from the detection engine with its result tree.
type ClashTest struct {
	ID          string
	DisplayName string
	Root        ClashGroup
}

// RGB is a color with components in [0, 1].
type RGB struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
}

// Red is the default clash highlight color.
var Red = RGB{R: 1}

// ClipPlane uses the host convention: the plane is normal·p == Distance and
// points with normal·p <= Distance stay visible.
type ClipPlane struct {
	Normal   [3]float64 `json:"normal"`
	Distance float64    `json:"distance"`
	Enabled  bool       `json:"enabled"`
}

// Keeps reports whether p is on the visible side of the plane.
func (c ClipPlane) Keeps(p Point3) bool {
	return c.Normal[0]*p.X+c.Normal[1]*p.Y+c.Normal[2]*p.Z <= c.Distance
}

// HorizontalCut returns the canonical plane whose visible region is at or above
// elevation z: normal along -Z and distance -z.
func HorizontalCut(z float64) ClipPlane {
	return ClipPlane{Normal: [3]float64{0, 0, -1}, Distance: -z, Enabled: true}
}

// ClipPlaneSet is the cut-plane configuration of a view or viewpoint.
type ClipPlaneSet struct {
	Planes  []ClipPlane `json:"planes"`
	Linked  bool        `json:"linked"`
	Enabled bool        `json:"enabled"`
}

// Active reports whether the set clips anything.
func (s ClipPlaneSet) Active() bool {
	if !s.Enabled {
		return false
	}
	for _, p := range s.Planes {
		if p.Enabled {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the set.
func (s ClipPlaneSet) Clone() ClipPlaneSet {
	out := s
	out.Planes = append([]ClipPlane(nil), s.Planes...)
	return out
}

// Camera is the view position and the point it looks at.
type Camera struct {
	Position Point3 `json:"position"`
	Target   Point3 `json:"target"`
}

// ViewpointSnapshot is an immutable copy of the view's camera, clip and
// selection state at capture time.
type ViewpointSnapshot struct {
	Camera     Camera       `json:"camera"`
	Clip       ClipPlaneSet `json:"clip"`
	Selection  []ElementRef `json:"selection"`
	CapturedAt int64        `json:"captured_at"`
}

// CutPlaneBackend identifies one mechanism for setting a cut-plane.
type CutPlaneBackend string

const (
	BackendDeclarative CutPlaneBackend = "declarative"
	BackendObjectModel CutPlaneBackend = "object_model"
	BackendReflective  CutPlaneBackend = "reflective"
	BackendNone        CutPlaneBackend = ""
)

// SavedItemKind distinguishes entries in a saved item tree.
type SavedItemKind string

const (
	KindFolder       SavedItemKind = "folder"
	KindViewpoint    SavedItemKind = "viewpoint"
	KindSelectionSet SavedItemKind = "selection_set"
)

// Saved item trees in a document.
const (
	TreeViewpoints    = "viewpoints"
	TreeSelectionSets = "selection_sets"
)

// SavedItem is a persisted entry of a document's saved viewpoint or
// selection-set tree.
type SavedItem struct {
	ID          string        `json:"id"`
	Tree        string        `json:"tree"`
	ParentID    string        `json:"parent_id"`
	Kind        SavedItemKind `json:"kind"`
	DisplayName string        `json:"display_name"`
	Position    int           `json:"position"`
	PayloadJSON string        `json:"payload_json"`
	CreatedAt   int64         `json:"created_at"`
}

// FolderHandle identifies a folder in a saved item tree.
type FolderHandle struct {
	ID   string
	Tree string
	Name string
}

// Valid reports whether the handle refers to a folder.
func (h FolderHandle) Valid() bool {
	return h.ID != ""
}

// ProgressUpdate is reported before each item of a batch.
type ProgressUpdate struct {
	Index    int    `json:"index"`
	Total    int    `json:"total"`
	ItemName string `json:"item_name"`
}

// FailedItem is one failed record in a batch summary.
type FailedItem struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// RunStatus is the lifecycle status of a recorded run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunCancelled RunStatus = "cancelled"
	RunAborted   RunStatus = "aborted"
)

// RunRecord is the persisted history of one batch run.
type RunRecord struct {
	RunID      string    `json:"run_id"`
	TestName   string    `json:"test_name"`
	FolderName string    `json:"folder_name"`
	Status     RunStatus `json:"status"`
	Total      int       `json:"total"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	StartedAt  int64     `json:"started_at"`
	FinishedAt int64     `json:"finished_at"`
}
