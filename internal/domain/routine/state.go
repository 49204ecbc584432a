package routine

import (
	"github.com/tonydantona/practice-routines-api/internal/domain"
)

// State is the completion state of a routine.
type State string

const (
	// StateNotCompleted is the initial state of every routine.
	StateNotCompleted State = "not_completed"
	// StateCompleted marks a routine the user has finished.
	StateCompleted State = "completed"
)

// AnyState is the query wildcard: no restriction on state.
const AnyState State = ""

// Valid reports whether s is one of the two lifecycle states.
func (s State) Valid() bool {
	return s == StateNotCompleted || s == StateCompleted
}

func (s State) String() string { return string(s) }

// ParseState converts user input into a State. Empty input yields AnyState.
func ParseState(s string) (State, error) {
	st := State(s)
	if st == AnyState || st.Valid() {
		return st, nil
	}
	return "", domain.InvalidArgument("state must be %q or %q, got %q", StateNotCompleted, StateCompleted, s)
}
