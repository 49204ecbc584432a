package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tonydantona/practice-routines-api/internal/domain"
	"github.com/tonydantona/practice-routines-api/internal/domain/routine"
)

func TestFor(t *testing.T) {
	tests := []struct {
		name     string
		category string
		state    routine.State
		want     Intent
	}{
		{"none", "", routine.AnyState, NoFilter{}},
		{"category", "technique", routine.AnyState, CategoryOnly{Category: "technique"}},
		{"state", "", routine.StateCompleted, StateOnly{State: routine.StateCompleted}},
		{
			"both", "technique", routine.StateNotCompleted,
			CategoryAndState{Category: "technique", State: routine.StateNotCompleted},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, For(tc.category, tc.state))
		})
	}
}

func TestValidate(t *testing.T) {
	valid := []Intent{
		NoFilter{},
		CategoryOnly{Category: "daily"},
		StateOnly{State: routine.StateCompleted},
		CategoryAndState{Category: "daily", State: routine.StateNotCompleted},
	}
	for _, f := range valid {
		assert.NoError(t, f.Validate(), "%#v", f)
	}

	invalid := []Intent{
		CategoryOnly{},
		StateOnly{},
		StateOnly{State: "done"},
		CategoryAndState{State: routine.StateCompleted},
		CategoryAndState{Category: "daily"},
	}
	for _, f := range invalid {
		assert.ErrorIs(t, f.Validate(), domain.ErrInvalidArgument, "%#v", f)
	}
}
