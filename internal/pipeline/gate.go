package pipeline

import "github.com/rogers-f/clash-section-engine/internal/domain"

// Gate decides whether a record can be processed at all. A rejected record
// fails before the view is touched.
type Gate interface {
	Name() string
	Evaluate(rec domain.ClashRecord) error
}

// CenterGate requires a finite center point.
type CenterGate struct{}

// Name returns the gate name.
func (CenterGate) Name() string { return "center" }

// Evaluate rejects records without a usable center.
func (CenterGate) Evaluate(rec domain.ClashRecord) error {
	if !rec.HasUsableCenter() {
		return domain.ErrInvalidCenter
	}
	return nil
}

// ParticipantsGate requires at least one element reference.
type ParticipantsGate struct{}

// Name returns the gate name.
func (ParticipantsGate) Name() string { return "participants" }

// Evaluate rejects records that reference no elements.
func (ParticipantsGate) Evaluate(rec domain.ClashRecord) error {
	if len(rec.Participants()) == 0 {
		return domain.ErrNoParticipants
	}
	return nil
}

// DefaultGates returns the gates every record passes before processing.
func DefaultGates() []Gate {
	return []Gate{CenterGate{}, ParticipantsGate{}}
}
