// Package filter defines the closed set of query filters a routine lookup can carry.
package filter

import (
	"github.com/tonydantona/practice-routines-api/internal/domain"
	"github.com/tonydantona/practice-routines-api/internal/domain/routine"
)

// Intent is one of NoFilter, CategoryOnly, CategoryAndState or StateOnly.
// The unexported method keeps the set closed to this package.
type Intent interface {
	intent()
	// Validate checks that every field the variant carries is set.
	Validate() error
}

// NoFilter matches every routine.
type NoFilter struct{}

// CategoryOnly matches routines in one category, in any state.
type CategoryOnly struct {
	Category string
}

// CategoryAndState matches routines in one category and one state.
type CategoryAndState struct {
	Category string
	State    routine.State
}

// StateOnly matches routines in one state, in any category.
type StateOnly struct {
	State routine.State
}

func (NoFilter) intent()         {}
func (CategoryOnly) intent()     {}
func (CategoryAndState) intent() {}
func (StateOnly) intent()        {}

// Validate always succeeds.
func (NoFilter) Validate() error { return nil }

// Validate requires a category.
func (f CategoryOnly) Validate() error {
	if f.Category == "" {
		return domain.InvalidArgument("category is required")
	}
	return nil
}

// Validate requires a category and a valid state.
func (f CategoryAndState) Validate() error {
	if f.Category == "" {
		return domain.InvalidArgument("category is required")
	}
	return validState(f.State)
}

// Validate requires a valid state.
func (f StateOnly) Validate() error {
	return validState(f.State)
}

func validState(s routine.State) error {
	if s == routine.AnyState {
		return domain.InvalidArgument("state is required")
	}
	if !s.Valid() {
		return domain.InvalidArgument("invalid state %q", s)
	}
	return nil
}

// For picks the variant matching the supplied restrictions.
// An empty category or routine.AnyState means "no restriction" on that field.
func For(category string, state routine.State) Intent {
	switch {
	case category != "" && state != routine.AnyState:
		return CategoryAndState{Category: category, State: state}
	case category != "":
		return CategoryOnly{Category: category}
	case state != routine.AnyState:
		return StateOnly{State: state}
	default:
		return NoFilter{}
	}
}
