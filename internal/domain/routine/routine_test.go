package routine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonydantona/practice-routines-api/internal/domain"
)

func TestNew_DefaultsStateAndBuildsMetadata(t *testing.T) {
	r, err := New("Play C major scale", "technique", []string{"scales", " c-major ", "scales", ""}, AnyState)
	require.NoError(t, err)

	assert.Equal(t, StateNotCompleted, r.State())
	assert.Equal(t, []string{"scales", "c-major"}, r.Tags())
	assert.Equal(t, map[string]string{
		KeyCategory: "technique",
		KeyTags:     "scales, c-major",
		KeyState:    "not_completed",
	}, r.Metadata())
	assert.Empty(t, r.ID())
	_, hasScore := r.Score()
	assert.False(t, hasScore)
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		category string
		state    State
	}{
		{"empty text", "", "technique", StateNotCompleted},
		{"empty category", "scales", "", StateNotCompleted},
		{"bad state", "scales", "technique", State("done")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.text, tc.category, nil, tc.state)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
		})
	}
}

func TestReconstruct_TagsRoundTrip(t *testing.T) {
	md := map[string]string{KeyCategory: "technique", KeyTags: "a, b", KeyState: "completed"}
	r := Reconstruct("id-1", "text", md, nil)

	assert.Equal(t, []string{"a", "b"}, r.Tags())
	assert.Equal(t, "a, b", r.TagsString())
	assert.Equal(t, StateCompleted, r.State())
	assert.Equal(t, "a, b", JoinTags(ParseTags(r.TagsString())))
}

func TestReconstruct_MissingStateReadsNotCompleted(t *testing.T) {
	r := Reconstruct("id-1", "text", map[string]string{KeyCategory: "daily"}, nil)
	assert.Equal(t, StateNotCompleted, r.State())
	assert.Nil(t, r.Tags())
}

func TestReconstruct_UnknownStateReadsNotCompleted(t *testing.T) {
	md := map[string]string{KeyCategory: "daily", KeyState: "done"}
	r := Reconstruct("id-1", "text", md, nil)

	assert.Equal(t, StateNotCompleted, r.State())
	assert.False(t, r.StateStored())
	assert.Equal(t, "done", r.Metadata()[KeyState], "metadata keeps the stored value")
}

func TestStateStored(t *testing.T) {
	stored := Reconstruct("id-1", "text", map[string]string{KeyState: "completed"}, nil)
	assert.True(t, stored.StateStored())

	missing := Reconstruct("id-2", "text", map[string]string{KeyCategory: "daily"}, nil)
	assert.False(t, missing.StateStored())
	assert.True(t, missing.WithState(StateNotCompleted).StateStored())
}

func TestNew_RejectsTagSeparatorInCategory(t *testing.T) {
	_, err := New("Play scales", "scales|arpeggios", nil, StateNotCompleted)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestReconstruct_Score(t *testing.T) {
	d := 0.25
	r := Reconstruct("id-1", "text", nil, &d)

	score, ok := r.Score()
	assert.True(t, ok)
	assert.InDelta(t, 0.25, score, 1e-9)
}

func TestReconstruct_CopiesInput(t *testing.T) {
	md := map[string]string{KeyCategory: "daily"}
	r := Reconstruct("id-1", "text", md, nil)
	md[KeyCategory] = "changed"

	assert.Equal(t, "daily", r.Category())
	assert.Equal(t, "daily", r.Metadata()[KeyCategory])
}

func TestWithState_PreservesUnknownKeys(t *testing.T) {
	md := map[string]string{
		KeyCategory: "technique",
		KeyTags:     "scales",
		KeyState:    "not_completed",
		"source":    "import-2024",
	}
	r := Reconstruct("id-1", "text", md, nil)

	done := r.WithState(StateCompleted)

	assert.Equal(t, StateCompleted, done.State())
	assert.Equal(t, map[string]string{
		KeyCategory: "technique",
		KeyTags:     "scales",
		KeyState:    "completed",
		"source":    "import-2024",
	}, done.Metadata())
	assert.Equal(t, StateNotCompleted, r.State(), "original must be unchanged")
	assert.Equal(t, "not_completed", r.Metadata()[KeyState])
}

func TestParseTags(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"   ", nil},
		{"a", []string{"a"}},
		{"a, b", []string{"a", "b"}},
		{"a,b ,, a", []string{"a", "b"}},
		{" , ", nil},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, ParseTags(tc.in), "ParseTags(%q)", tc.in)
	}
}

func TestParseState(t *testing.T) {
	s, err := ParseState("")
	require.NoError(t, err)
	assert.Equal(t, AnyState, s)

	s, err = ParseState("completed")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, s)

	_, err = ParseState("all")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
