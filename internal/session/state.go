package session

import (
	"sync/atomic"
	"time"
)

// State is the session lifecycle state
type State int32

const (
	StateIdle              State = iota // No audio consumed yet
	StateAwaitingMoreAudio              // Inside or between utterances
	StateEmittedFinal                   // A final hypothesis is being surfaced
	StateStopped                        // Terminal
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingMoreAudio:
		return "awaiting_more_audio"
	case StateEmittedFinal:
		return "emitted_final"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// stateMachine holds the current state. Once stopped it never leaves StateStopped.
type stateMachine struct {
	v atomic.Int32
}

func (m *stateMachine) load() State {
	return State(m.v.Load())
}

// transition moves to next unless the machine is already stopped
func (m *stateMachine) transition(next State) bool {
	for {
		cur := m.v.Load()
		if State(cur) == StateStopped {
			return next == StateStopped
		}
		if m.v.CompareAndSwap(cur, int32(next)) {
			return true
		}
	}
}

// Kind distinguishes partial from final hypotheses
type Kind int

const (
	KindPartial Kind = iota
	KindFinal
)

func (k Kind) String() string {
	if k == KindFinal {
		return "final"
	}
	return "partial"
}

// MarshalText encodes the kind by name
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Hypothesis is one decoder result. MatchedTerms is set only on finals.
type Hypothesis struct {
	Kind         Kind      `json:"kind"`
	Text         string    `json:"text"`
	MatchedTerms []string  `json:"matched_terms,omitempty"`
	Utterance    int       `json:"utterance"` // 1-based index of the utterance the text belongs to
	At           time.Time `json:"at"`
}
