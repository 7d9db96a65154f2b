package view

import (
	"encoding/json"
	"fmt"

	"github.com/rogers-f/clash-section-engine/internal/domain"
)

type clipPlaneDesc struct {
	Type     string     `json:"Type"`
	Version  int        `json:"Version"`
	Normal   [3]float64 `json:"Normal"`
	Distance float64    `json:"Distance"`
	Enabled  bool       `json:"Enabled"`
}

type clipPlaneSetDesc struct {
	Type    string          `json:"Type"`
	Version int             `json:"Version"`
	Planes  []clipPlaneDesc `json:"Planes"`
	Linked  bool            `json:"Linked"`
	Enabled bool            `json:"Enabled"`
}

// EncodeClipPlaneSet renders set in the host's declarative description format.
func EncodeClipPlaneSet(set domain.ClipPlaneSet) (string, error) {
	desc := clipPlaneSetDesc{
		Type:    "ClipPlaneSet",
		Version: 1,
		Planes:  make([]clipPlaneDesc, 0, len(set.Planes)),
		Linked:  set.Linked,
		Enabled: set.Enabled,
	}
	for _, p := range set.Planes {
		desc.Planes = append(desc.Planes, clipPlaneDesc{
			Type:     "ClipPlane",
			Version:  1,
			Normal:   p.Normal,
			Distance: p.Distance,
			Enabled:  p.Enabled,
		})
	}
	b, err := json.Marshal(desc)
	if err != nil {
		return "", fmt.Errorf("encode clip plane set: %w", err)
	}
	return string(b), nil
}

// DecodeClipPlaneSet parses a declarative description.
func DecodeClipPlaneSet(s string) (domain.ClipPlaneSet, error) {
	var desc clipPlaneSetDesc
	if err := json.Unmarshal([]byte(s), &desc); err != nil {
		return domain.ClipPlaneSet{}, fmt.Errorf("decode clip plane set: %w", err)
	}
	if desc.Type != "ClipPlaneSet" {
		return domain.ClipPlaneSet{}, fmt.Errorf("decode clip plane set: unexpected type %q", desc.Type)
	}
	set := domain.ClipPlaneSet{Linked: desc.Linked, Enabled: desc.Enabled}
	for i, p := range desc.Planes {
		if p.Type != "ClipPlane" {
			return domain.ClipPlaneSet{}, fmt.Errorf("decode clip plane set: plane %d has type %q", i, p.Type)
		}
		set.Planes = append(set.Planes, domain.ClipPlane{Normal: p.Normal, Distance: p.Distance, Enabled: p.Enabled})
	}
	return set, nil
}
