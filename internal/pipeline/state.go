package pipeline

import (
	"errors"
	"fmt"
	"sync"
)

// State is a step of a submission run.
type State string

const (
	StateIdle             State = "idle"
	StateValidating       State = "validating"
	StatePreviewing       State = "previewing"
	StateAnalyzing        State = "analyzing"
	StateAnalysisFallback State = "analysis_fallback"
	StateAnalyzed         State = "analyzed"
	StateQuotaCheck       State = "quota_check"
	StateGenerating       State = "generating"
	StateCompleted        State = "completed"
	StateFailed           State = "failed"
)

// ErrInvalidTransition is returned when a transition is not in the table.
var ErrInvalidTransition = errors.New("invalid state transition")

// A text prompt run enters at QuotaCheck, skipping the upload stages.
var transitions = map[State][]State{
	StateIdle:             {StateValidating, StateQuotaCheck},
	StateValidating:       {StatePreviewing, StateFailed},
	StatePreviewing:       {StateAnalyzing},
	StateAnalyzing:        {StateAnalyzed, StateAnalysisFallback, StateFailed},
	StateAnalysisFallback: {StateAnalyzed, StateFailed},
	StateAnalyzed:         {StateQuotaCheck},
	StateQuotaCheck:       {StateGenerating, StateFailed},
	StateGenerating:       {StateCompleted, StateFailed},
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Machine tracks the state of a single run. Each run owns a fresh machine.
type Machine struct {
	mu       sync.Mutex
	state    State
	history  []State
	err      error
	observer func(from, to State)
}

// NewMachine returns a machine in StateIdle. observer, if not nil, is called
// after every successful transition.
func NewMachine(observer func(from, to State)) *Machine {
	return &Machine{state: StateIdle, history: []State{StateIdle}, observer: observer}
}

// Transition moves the machine to the given state.
func (m *Machine) Transition(to State) error {
	if to == StateFailed {
		return fmt.Errorf("%w: use Fail to enter %s", ErrInvalidTransition, StateFailed)
	}
	return m.move(to, nil)
}

// Fail moves the machine to StateFailed and records the reason.
func (m *Machine) Fail(reason error) error {
	if reason == nil {
		reason = errors.New("unknown failure")
	}
	return m.move(StateFailed, reason)
}

func (m *Machine) move(to State, reason error) error {
	m.mu.Lock()
	from := m.state
	if !CanTransition(from, to) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	m.state = to
	m.history = append(m.history, to)
	if reason != nil {
		m.err = reason
	}
	observer := m.observer
	m.mu.Unlock()

	if observer != nil {
		observer(from, to)
	}
	return nil
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// History returns every state visited so far, starting with StateIdle.
func (m *Machine) History() []State {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]State, len(m.history))
	copy(out, m.history)
	return out
}

// Err returns the failure reason once the machine is in StateFailed.
func (m *Machine) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}
