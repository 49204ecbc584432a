package db

import (
	"encoding/json"
	"strings"
)

// Match is a single exact-equality clause on a metadata key.
type Match struct {
	Key   string
	Value string
}

// Eq builds a Match.
func Eq(key, value string) Match {
	return Match{Key: key, Value: value}
}

// Where is a metadata filter: empty, a bare predicate, or an explicit
// conjunction of two or more predicates. A conjunction of fewer than two
// clauses cannot be built.
type Where struct {
	clauses []Match
	and     bool
}

// Bare builds a single-predicate filter.
func Bare(m Match) Where {
	return Where{clauses: []Match{m}}
}

// And builds an explicit conjunction.
func And(first, second Match, more ...Match) Where {
	clauses := make([]Match, 0, 2+len(more))
	clauses = append(clauses, first, second)
	clauses = append(clauses, more...)
	return Where{clauses: clauses, and: true}
}

// IsEmpty reports whether the filter matches everything.
func (w Where) IsEmpty() bool { return len(w.clauses) == 0 }

// IsConjunction reports whether the filter is an explicit $and.
func (w Where) IsConjunction() bool { return w.and }

// Clauses returns the predicates. Every clause must hold.
func (w Where) Clauses() []Match {
	return append([]Match(nil), w.clauses...)
}

// Matches reports whether metadata satisfies every clause.
func (w Where) Matches(metadata map[string]string) bool {
	for _, c := range w.clauses {
		v, ok := metadata[c.Key]
		if !ok || v != c.Value {
			return false
		}
	}
	return true
}

// MarshalJSON renders the filter in its wire shape:
// {} for empty, {"k":"v"} for a bare predicate, {"$and":[{"k":"v"},...]} for a conjunction.
func (w Where) MarshalJSON() ([]byte, error) {
	if w.IsEmpty() {
		return []byte("{}"), nil
	}
	if !w.and {
		c := w.clauses[0]
		return json.Marshal(map[string]string{c.Key: c.Value})
	}
	parts := make([]map[string]string, len(w.clauses))
	for i, c := range w.clauses {
		parts[i] = map[string]string{c.Key: c.Value}
	}
	return json.Marshal(map[string]any{"$and": parts})
}

func (w Where) String() string {
	if w.IsEmpty() {
		return "*"
	}
	parts := make([]string, len(w.clauses))
	for i, c := range w.clauses {
		parts[i] = c.Key + "=" + c.Value
	}
	if w.and {
		return "$and(" + strings.Join(parts, ", ") + ")"
	}
	return parts[0]
}
