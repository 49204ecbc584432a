package routine

import (
	"maps"
	"strings"

	"github.com/tonydantona/practice-routines-api/internal/domain"
)

// Metadata keys written for every routine.
const (
	KeyCategory = "category"
	KeyTags     = "tags"
	KeyState    = "state"
)

// CategorySeparator cannot appear in a category: tag indexes split values on it.
const CategorySeparator = "|"

// Routine is a stored practice routine (immutable value object).
// The raw metadata map read from the store is retained so that a
// metadata update writes back every key, including ones this package
// does not interpret.
type Routine struct {
	id       string
	text     string
	category string
	tags     []string
	state    State
	metadata map[string]string
	score    float64
	hasScore bool
}

// New validates and creates a Routine that has not been stored yet.
// An empty state defaults to StateNotCompleted.
func New(text, category string, tags []string, state State) (Routine, error) {
	if text == "" {
		return Routine{}, domain.InvalidArgument("routine text is required")
	}
	if category == "" {
		return Routine{}, domain.InvalidArgument("routine category is required")
	}
	if strings.Contains(category, CategorySeparator) {
		return Routine{}, domain.InvalidArgument("routine category must not contain %q", CategorySeparator)
	}
	if state == AnyState {
		state = StateNotCompleted
	}
	if !state.Valid() {
		return Routine{}, domain.InvalidArgument("invalid routine state %q", state)
	}

	tags = normalizeTags(tags)
	return Routine{
		text:     text,
		category: category,
		tags:     tags,
		state:    state,
		metadata: map[string]string{
			KeyCategory: category,
			KeyTags:     JoinTags(tags),
			KeyState:    string(state),
		},
	}, nil
}

// Reconstruct hydrates a Routine from store output. A missing or
// unrecognized state reads as StateNotCompleted; Metadata keeps the stored
// value so conditional writes still match. score is nil for non-similarity
// reads.
func Reconstruct(id, text string, metadata map[string]string, score *float64) Routine {
	md := maps.Clone(metadata)
	if md == nil {
		md = map[string]string{}
	}

	state := State(md[KeyState])
	if !state.Valid() {
		state = StateNotCompleted
	}

	r := Routine{
		id:       id,
		text:     text,
		category: md[KeyCategory],
		tags:     ParseTags(md[KeyTags]),
		state:    state,
		metadata: md,
	}
	if score != nil {
		r.score = *score
		r.hasScore = true
	}
	return r
}

// ID returns the store identifier. Empty until the routine is stored.
func (r Routine) ID() string { return r.id }

// Text returns the routine description.
func (r Routine) Text() string { return r.text }

// Category returns the exact-match category label.
func (r Routine) Category() string { return r.category }

// Tags returns the canonical tag list.
func (r Routine) Tags() []string {
	if r.tags == nil {
		return nil
	}
	return append([]string(nil), r.tags...)
}

// TagsString returns the tags exactly as stored.
func (r Routine) TagsString() string { return r.metadata[KeyTags] }

// State returns the completion state.
func (r Routine) State() State { return r.state }

// Score returns the similarity distance and whether one is present.
// Lower is closer.
func (r Routine) Score() (float64, bool) { return r.score, r.hasScore }

// Metadata returns a copy of the full metadata map.
func (r Routine) Metadata() map[string]string { return maps.Clone(r.metadata) }

// StateStored reports whether the stored metadata already holds State().
// It is false for records read with a missing or unrecognized state.
func (r Routine) StateStored() bool { return r.metadata[KeyState] == string(r.state) }

// WithID returns a copy carrying the given identifier.
func (r Routine) WithID(id string) Routine {
	c := r
	c.id = id
	c.tags = r.Tags()
	c.metadata = maps.Clone(r.metadata)
	return c
}

// WithState returns a copy whose state and state metadata key are set to s.
// Every other metadata key is carried over unchanged.
func (r Routine) WithState(s State) Routine {
	c := r.WithID(r.id)
	c.state = s
	if c.metadata == nil {
		c.metadata = map[string]string{}
	}
	c.metadata[KeyState] = string(s)
	return c
}
