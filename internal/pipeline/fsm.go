// Package pipeline turns one clash record into a saved section viewpoint.
package pipeline

import (
	"fmt"

	"github.com/rogers-f/clash-section-engine/internal/domain"
)

// State is a step of the per-item state machine.
type State string

const (
	StateIdle             State = "idle"
	StateValidated        State = "validated"
	StateHighlighted      State = "highlighted"
	StateFocusedSelection State = "focused_selection"
	StateClipped          State = "clipped"
	StateCaptured         State = "captured"
	StatePersisted        State = "persisted"
	StateReset            State = "reset"
	StateFailed           State = "failed"
)

// validTransitions defines the legal state transitions.
// Failed is reachable from every non-terminal state and has no way out.
var validTransitions = map[State]map[State]bool{
	StateIdle:             {StateValidated: true, StateFailed: true},
	StateValidated:        {StateHighlighted: true, StateFailed: true},
	StateHighlighted:      {StateFocusedSelection: true, StateFailed: true},
	StateFocusedSelection: {StateClipped: true, StateFailed: true},
	StateClipped:          {StateCaptured: true, StateFailed: true},
	StateCaptured:         {StatePersisted: true, StateFailed: true},
	StatePersisted:        {StateReset: true, StateFailed: true},
}

// IsValidTransition checks if a state transition is legal.
func IsValidTransition(from, to State) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// IsTerminal reports whether s ends the item.
func IsTerminal(s State) bool {
	return s == StateReset || s == StateFailed
}

// Transition is one state change of one record.
type Transition struct {
	Record string
	From   State
	To     State
}

// machine tracks the state of the record being processed.
type machine struct {
	record string
	state  State
	hook   func(Transition)
}

func (m *machine) to(next State) error {
	if !IsValidTransition(m.state, next) {
		return domain.NewEngineError(
			domain.ErrInvalidTransition.Code,
			fmt.Sprintf("illegal transition %s -> %s", m.state, next),
		)
	}
	prev := m.state
	m.state = next
	if m.hook != nil {
		m.hook(Transition{Record: m.record, From: prev, To: next})
	}
	return nil
}

// fail moves to Failed unless the machine already ended.
func (m *machine) fail() {
	if IsTerminal(m.state) {
		return
	}
	_ = m.to(StateFailed)
}
