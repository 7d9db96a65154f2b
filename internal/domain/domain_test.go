package domain

import (
	"errors"
	"fmt"
	"math"
	"testing"
)

func TestEngineError_IsMatchesByCode(t *testing.T) {
	wrapped := fmt.Errorf("insert viewpoint: %w", WrapEngineError(ErrInsertFailed.Code, "insert", errors.New("disk full")))
	if !errors.Is(wrapped, ErrInsertFailed) {
		t.Error("errors.Is(wrapped, ErrInsertFailed) = false, want true")
	}
	if errors.Is(wrapped, ErrFolderCreate) {
		t.Error("errors.Is(wrapped, ErrFolderCreate) = true, want false")
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"no document", ErrNoDocument, true},
		{"invalid folder wrapped", fmt.Errorf("run: %w", ErrInvalidFolder), true},
		{"no test selected", ErrNoTestSelected, true},
		{"insert failed", ErrInsertFailed, false},
		{"config", ErrConfigInvalid, false},
		{"plain", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFatal(tt.err); got != tt.want {
				t.Errorf("IsFatal(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestProcessError_ReasonAndUnwrap(t *testing.T) {
	pe := &ProcessError{RecordName: "Clash1", State: "persisted", Cause: fmt.Errorf("save: %w", ErrInsertFailed)}
	if pe.Reason() != ErrInsertFailed.Message {
		t.Errorf("Reason() = %q, want %q", pe.Reason(), ErrInsertFailed.Message)
	}
	if !errors.Is(pe, ErrInsertFailed) {
		t.Error("ProcessError should unwrap to its cause")
	}

	plain := &ProcessError{RecordName: "Clash2", Cause: errors.New("host exploded")}
	if plain.Reason() != "host exploded" {
		t.Errorf("Reason() = %q, want %q", plain.Reason(), "host exploded")
	}
}

func TestParseClashStatus(t *testing.T) {
	for _, in := range []string{"New", " active ", "REVIEWED", "approved", "resolved"} {
		if _, err := ParseClashStatus(in); err != nil {
			t.Errorf("ParseClashStatus(%q): %v", in, err)
		}
	}
	if _, err := ParseClashStatus("closed"); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("ParseClashStatus(closed) err = %v, want ErrInvalidStatus", err)
	}
}

func TestClashRecord_CenterAndParticipants(t *testing.T) {
	rec := ClashRecord{
		Center:   &Point3{X: 1, Y: 2, Z: math.NaN()},
		Elements: []ElementRef{{ID: "a"}, {ID: ""}, {ID: "b"}, {ID: "c"}},
	}
	if rec.HasUsableCenter() {
		t.Error("NaN center reported as usable")
	}
	if got := len(rec.Participants()); got != 2 {
		t.Errorf("Participants() len = %d, want 2", got)
	}
	if (ClashRecord{}).HasUsableCenter() {
		t.Error("nil center reported as usable")
	}
}

func TestHorizontalCut_VisibleAtOrAboveElevation(t *testing.T) {
	plane := HorizontalCut(3.5)
	if plane.Distance != -3.5 {
		t.Errorf("Distance = %v, want -3.5", plane.Distance)
	}
	if plane.Normal != [3]float64{0, 0, -1} {
		t.Errorf("Normal = %v, want (0,0,-1)", plane.Normal)
	}
	if !plane.Keeps(Point3{Z: 3.5}) || !plane.Keeps(Point3{Z: 10}) {
		t.Error("points at or above the elevation should stay visible")
	}
	if plane.Keeps(Point3{Z: 3.4}) {
		t.Error("point below the elevation should be clipped")
	}
}

func TestClipPlaneSet_ActiveAndClone(t *testing.T) {
	set := ClipPlaneSet{Planes: []ClipPlane{HorizontalCut(1)}, Enabled: true}
	if !set.Active() {
		t.Error("Active() = false for enabled set with enabled plane")
	}
	clone := set.Clone()
	clone.Planes[0].Enabled = false
	if !set.Planes[0].Enabled {
		t.Error("Clone shares plane storage with the original")
	}
	if (ClipPlaneSet{Planes: set.Planes}).Active() {
		t.Error("disabled set reported active")
	}
}
