package routine

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tonydantona/practice-routines-api/internal/domain"
	domroutine "github.com/tonydantona/practice-routines-api/internal/domain/routine"
	"github.com/tonydantona/practice-routines-api/internal/domain/routine/filter"
)

// --- Mocks ---

type mockRepo struct {
	all       []domroutine.Routine
	byCat     []domroutine.Routine
	byState   []domroutine.Routine
	similar   []domroutine.Routine
	byID      map[string]domroutine.Routine
	err       error
	updateErr error

	gotCategory string
	gotState    domroutine.State
	gotLimit    int
	gotFilter   filter.Intent
	gotVector   []float32
	updates     []update
	calls       int
}

type update struct {
	id       string
	expected map[string]string
	next     map[string]string
}

func (m *mockRepo) GetAll(_ context.Context) ([]domroutine.Routine, error) {
	m.calls++
	return m.all, m.err
}

func (m *mockRepo) GetByCategory(_ context.Context, category string, state domroutine.State) ([]domroutine.Routine, error) {
	m.calls++
	m.gotCategory, m.gotState = category, state
	return m.byCat, m.err
}

func (m *mockRepo) GetByState(_ context.Context, state domroutine.State) ([]domroutine.Routine, error) {
	m.calls++
	m.gotState = state
	return m.byState, m.err
}

func (m *mockRepo) SearchBySimilarity(
	_ context.Context, vector []float32, limit int, f filter.Intent,
) ([]domroutine.Routine, error) {
	m.calls++
	m.gotVector, m.gotLimit, m.gotFilter = vector, limit, f
	return m.similar, m.err
}

func (m *mockRepo) GetByID(_ context.Context, id string) (domroutine.Routine, bool, error) {
	m.calls++
	if m.err != nil {
		return domroutine.Routine{}, false, m.err
	}
	rt, ok := m.byID[id]
	return rt, ok, nil
}

func (m *mockRepo) UpdateMetadataIf(_ context.Context, id string, expected, next map[string]string) error {
	m.calls++
	m.updates = append(m.updates, update{id: id, expected: expected, next: next})
	return m.updateErr
}

type mockEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: m.vec}, nil
}

func stored(id, text, category string, state domroutine.State) domroutine.Routine {
	return domroutine.Reconstruct(id, text, map[string]string{
		domroutine.KeyCategory: category,
		domroutine.KeyTags:     "scales, technique",
		domroutine.KeyState:    string(state),
	}, nil)
}

func scored(id string, score float64) domroutine.Routine {
	return domroutine.Reconstruct(id, "text "+id, map[string]string{domroutine.KeyCategory: "one day"}, &score)
}

func ids(rs []domroutine.Routine) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID()
	}
	return out
}

func equalIDs(t *testing.T, got []domroutine.Routine, want ...string) {
	t.Helper()
	g := ids(got)
	if len(g) != len(want) {
		t.Fatalf("expected ids %v, got %v", want, g)
	}
	for i := range want {
		if g[i] != want[i] {
			t.Fatalf("expected ids %v, got %v", want, g)
		}
	}
}

// --- Queries ---

func TestGetAllRoutines(t *testing.T) {
	repo := &mockRepo{all: []domroutine.Routine{stored("a", "x", "c", domroutine.StateCompleted)}}
	got, err := New(repo, &mockEmbedder{}).GetAllRoutines(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	equalIDs(t, got, "a")
}

func TestGetAllRoutines_StoreError(t *testing.T) {
	storeErr := domain.NewStoreError("get_all", errors.New("down"))
	_, err := New(&mockRepo{err: storeErr}, &mockEmbedder{}).GetAllRoutines(context.Background())
	if !errors.Is(err, domain.ErrStore) {
		t.Fatalf("expected ErrStore, got %v", err)
	}
}

func TestGetRoutinesByCategory_Validation(t *testing.T) {
	tests := []struct {
		name     string
		category string
		state    domroutine.State
	}{
		{"empty category", "", domroutine.AnyState},
		{"bad state", "one day", domroutine.State("done")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo := &mockRepo{}
			_, err := New(repo, &mockEmbedder{}).GetRoutinesByCategory(context.Background(), tc.category, tc.state)
			if !errors.Is(err, domain.ErrInvalidArgument) {
				t.Fatalf("expected ErrInvalidArgument, got %v", err)
			}
			if repo.calls != 0 {
				t.Errorf("expected no repository calls, got %d", repo.calls)
			}
		})
	}
}

func TestGetRoutinesByCategory_PassesState(t *testing.T) {
	repo := &mockRepo{byCat: []domroutine.Routine{stored("a", "x", "weekly", domroutine.StateNotCompleted)}}
	got, err := New(repo, &mockEmbedder{}).
		GetRoutinesByCategory(context.Background(), "weekly", domroutine.StateNotCompleted)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	equalIDs(t, got, "a")
	if repo.gotCategory != "weekly" || repo.gotState != domroutine.StateNotCompleted {
		t.Errorf("unexpected repository args: %q %q", repo.gotCategory, repo.gotState)
	}
}

func TestGetRandomRoutineByCategory(t *testing.T) {
	repo := &mockRepo{byCat: []domroutine.Routine{
		stored("a", "x", "c", domroutine.StateNotCompleted),
		stored("b", "y", "c", domroutine.StateNotCompleted),
		stored("c", "z", "c", domroutine.StateNotCompleted),
	}}
	var gotN int
	svc := New(repo, &mockEmbedder{}).WithRandom(func(n int) int {
		gotN = n
		return 2
	})

	rt, found, err := svc.GetRandomRoutineByCategory(context.Background(), "c", domroutine.AnyState)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found || rt.ID() != "c" {
		t.Errorf("expected routine c, got %q (found=%v)", rt.ID(), found)
	}
	if gotN != 3 {
		t.Errorf("expected pick over 3 candidates, got %d", gotN)
	}
}

func TestGetRandomRoutineByCategory_Empty(t *testing.T) {
	svc := New(&mockRepo{}, &mockEmbedder{}).WithRandom(func(int) int {
		t.Fatal("random source must not be called for an empty set")
		return 0
	})
	_, found, err := svc.GetRandomRoutineByCategory(context.Background(), "c", domroutine.StateCompleted)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Error("expected not found")
	}
}

func TestGetRandomRoutineByCategory_DefaultRandomReachesEveryRoutine(t *testing.T) {
	repo := &mockRepo{byCat: []domroutine.Routine{
		stored("a", "x", "c", domroutine.StateNotCompleted),
		stored("b", "y", "c", domroutine.StateNotCompleted),
	}}
	svc := New(repo, &mockEmbedder{})

	seen := map[string]int{}
	for range 200 {
		rt, found, err := svc.GetRandomRoutineByCategory(context.Background(), "c", domroutine.AnyState)
		if err != nil || !found {
			t.Fatalf("unexpected result: found=%v err=%v", found, err)
		}
		if rt.ID() != "a" && rt.ID() != "b" {
			t.Fatalf("picked routine outside the filtered set: %q", rt.ID())
		}
		seen[rt.ID()]++
	}
	for _, id := range []string{"a", "b"} {
		if seen[id] == 0 {
			t.Errorf("routine %q never picked in 200 draws: %v", id, seen)
		}
	}
}

func TestGetNotCompletedRoutines(t *testing.T) {
	repo := &mockRepo{byState: []domroutine.Routine{stored("a", "x", "c", domroutine.StateNotCompleted)}}
	got, err := New(repo, &mockEmbedder{}).GetNotCompletedRoutines(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	equalIDs(t, got, "a")
	if repo.gotState != domroutine.StateNotCompleted {
		t.Errorf("expected not_completed, got %q", repo.gotState)
	}
}

func TestGetRoutinesByState_Invalid(t *testing.T) {
	for _, st := range []domroutine.State{domroutine.AnyState, "done"} {
		_, err := New(&mockRepo{}, &mockEmbedder{}).GetRoutinesByState(context.Background(), st)
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("state %q: expected ErrInvalidArgument, got %v", st, err)
		}
	}
}

// --- Search ---

func TestSearchRoutines_ThresholdKeepsOrder(t *testing.T) {
	repo := &mockRepo{similar: []domroutine.Routine{
		scored("a", 0.1), scored("b", 0.5), scored("c", 0.3), scored("d", 0.2),
	}}
	emb := &mockEmbedder{vec: []float32{1, 0}}

	got, err := New(repo, emb).SearchRoutines(context.Background(), "scales", 4, 0.3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	equalIDs(t, got, "a", "c", "d")
	if repo.gotLimit != 4 {
		t.Errorf("expected limit 4, got %d", repo.gotLimit)
	}
	if _, ok := repo.gotFilter.(filter.NoFilter); !ok {
		t.Errorf("expected NoFilter, got %T", repo.gotFilter)
	}
	if emb.calls != 1 {
		t.Errorf("expected one embedding call, got %d", emb.calls)
	}
}

func TestSearchRoutines_NegativeThresholdDropsAll(t *testing.T) {
	repo := &mockRepo{similar: []domroutine.Routine{scored("a", 0)}}
	got, err := New(repo, &mockEmbedder{vec: []float32{1}}).SearchRoutines(context.Background(), "q", 5, -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no results, got %v", ids(got))
	}
}

func TestSearchRoutines_InfiniteThresholdKeepsAll(t *testing.T) {
	repo := &mockRepo{similar: []domroutine.Routine{scored("a", 0.9), scored("b", 1.7)}}
	got, err := New(repo, &mockEmbedder{vec: []float32{1}}).
		SearchRoutines(context.Background(), "q", 5, math.Inf(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	equalIDs(t, got, "a", "b")
}

func TestSearchRoutines_Validation(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		topN     int
		minScore float64
	}{
		{"empty query", "", 5, 0.3},
		{"zero top_n", "q", 0, 0.3},
		{"nan min_score", "q", 5, math.NaN()},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo := &mockRepo{}
			emb := &mockEmbedder{vec: []float32{1}}
			_, err := New(repo, emb).SearchRoutines(context.Background(), tc.query, tc.topN, tc.minScore)
			if !errors.Is(err, domain.ErrInvalidArgument) {
				t.Fatalf("expected ErrInvalidArgument, got %v", err)
			}
			if emb.calls != 0 || repo.calls != 0 {
				t.Errorf("expected no collaborator calls, got embed=%d repo=%d", emb.calls, repo.calls)
			}
		})
	}
}

func TestSearchRoutines_EmbeddingError(t *testing.T) {
	repo := &mockRepo{}
	_, err := New(repo, &mockEmbedder{err: errors.New("timeout")}).
		SearchRoutines(context.Background(), "q", 5, 0.3)
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected ErrEmbeddingProviderError, got %v", err)
	}
	var embErr *domain.EmbeddingError
	if !errors.As(err, &embErr) {
		t.Errorf("expected *domain.EmbeddingError, got %T", err)
	}
	if repo.calls != 0 {
		t.Errorf("expected no store search, got %d calls", repo.calls)
	}
}

func TestSearchRoutines_StoreError(t *testing.T) {
	repo := &mockRepo{err: domain.NewStoreError("search_by_similarity", errors.New("boom"))}
	_, err := New(repo, &mockEmbedder{vec: []float32{1}}).SearchRoutines(context.Background(), "q", 5, 0.3)
	if !errors.Is(err, domain.ErrStore) {
		t.Fatalf("expected ErrStore, got %v", err)
	}
}

// --- State transitions ---

func TestMarkRoutineCompleted(t *testing.T) {
	rt := domroutine.Reconstruct("r1", "x", map[string]string{
		domroutine.KeyCategory: "one day",
		domroutine.KeyTags:     "a,  b",
		domroutine.KeyState:    "not_completed",
		"source":               "import",
	}, nil)
	repo := &mockRepo{byID: map[string]domroutine.Routine{"r1": rt}}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "t"}, []string{"to", "result"})

	err := New(repo, &mockEmbedder{}).WithTransitionMetric(transitions).
		MarkRoutineCompleted(context.Background(), "r1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.updates) != 1 {
		t.Fatalf("expected one update, got %d", len(repo.updates))
	}

	u := repo.updates[0]
	if u.expected[domroutine.KeyState] != "not_completed" {
		t.Errorf("expected precondition state not_completed, got %q", u.expected[domroutine.KeyState])
	}
	want := map[string]string{
		domroutine.KeyCategory: "one day",
		domroutine.KeyTags:     "a,  b",
		domroutine.KeyState:    "completed",
		"source":               "import",
	}
	if len(u.next) != len(want) {
		t.Fatalf("expected metadata %v, got %v", want, u.next)
	}
	for k, v := range want {
		if u.next[k] != v {
			t.Errorf("metadata[%q]: expected %q, got %q", k, v, u.next[k])
		}
	}
	if v := testutil.ToFloat64(transitions.WithLabelValues("completed", "changed")); v != 1 {
		t.Errorf("expected one changed transition, got %v", v)
	}
}

func TestMarkRoutineNotCompleted(t *testing.T) {
	repo := &mockRepo{byID: map[string]domroutine.Routine{
		"r1": stored("r1", "x", "c", domroutine.StateCompleted),
	}}
	if err := New(repo, &mockEmbedder{}).MarkRoutineNotCompleted(context.Background(), "r1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.updates) != 1 || repo.updates[0].next[domroutine.KeyState] != "not_completed" {
		t.Fatalf("expected state not_completed written, got %+v", repo.updates)
	}
}

func TestMarkRoutineCompleted_AlreadyCompletedSkipsWrite(t *testing.T) {
	repo := &mockRepo{byID: map[string]domroutine.Routine{
		"r1": stored("r1", "x", "c", domroutine.StateCompleted),
	}}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "t"}, []string{"to", "result"})
	emb := &mockEmbedder{}

	svc := New(repo, emb).WithTransitionMetric(transitions)
	for range 2 {
		if err := svc.MarkRoutineCompleted(context.Background(), "r1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if len(repo.updates) != 0 {
		t.Errorf("expected no writes, got %d", len(repo.updates))
	}
	if emb.calls != 0 {
		t.Errorf("state transitions must not embed, got %d calls", emb.calls)
	}
	if v := testutil.ToFloat64(transitions.WithLabelValues("completed", "unchanged")); v != 2 {
		t.Errorf("expected two unchanged transitions, got %v", v)
	}
}

func TestMarkRoutineNotCompleted_RepairsUnknownStoredState(t *testing.T) {
	rt := domroutine.Reconstruct("r1", "x", map[string]string{
		domroutine.KeyCategory: "c",
		domroutine.KeyState:    "done",
	}, nil)
	repo := &mockRepo{byID: map[string]domroutine.Routine{"r1": rt}}

	if err := New(repo, &mockEmbedder{}).MarkRoutineNotCompleted(context.Background(), "r1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.updates) != 1 {
		t.Fatalf("expected one update, got %d", len(repo.updates))
	}
	u := repo.updates[0]
	if u.expected[domroutine.KeyState] != "done" {
		t.Errorf("precondition: got %q, want the stored value", u.expected[domroutine.KeyState])
	}
	if u.next[domroutine.KeyState] != "not_completed" {
		t.Errorf("next state: got %q, want not_completed", u.next[domroutine.KeyState])
	}
}

func TestMarkRoutineCompleted_NotFound(t *testing.T) {
	repo := &mockRepo{}
	err := New(repo, &mockEmbedder{}).MarkRoutineCompleted(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(repo.updates) != 0 {
		t.Errorf("expected no writes, got %d", len(repo.updates))
	}
}

func TestMarkRoutineCompleted_EmptyID(t *testing.T) {
	repo := &mockRepo{}
	err := New(repo, &mockEmbedder{}).MarkRoutineCompleted(context.Background(), "")
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if repo.calls != 0 {
		t.Errorf("expected no repository calls, got %d", repo.calls)
	}
}

func TestMarkRoutineCompleted_UpdateErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"conflict", domain.ErrConflict, domain.ErrConflict},
		{"deleted in between", domain.ErrNotFound, domain.ErrNotFound},
		{"store", domain.NewStoreError("update_metadata_if", errors.New("io")), domain.ErrStore},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo := &mockRepo{
				byID:      map[string]domroutine.Routine{"r1": stored("r1", "x", "c", domroutine.StateNotCompleted)},
				updateErr: tc.err,
			}
			err := New(repo, &mockEmbedder{}).MarkRoutineCompleted(context.Background(), "r1")
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestMarkRoutineCompleted_LookupError(t *testing.T) {
	repo := &mockRepo{err: domain.NewStoreError("get_by_id", errors.New("down"))}
	err := New(repo, &mockEmbedder{}).MarkRoutineCompleted(context.Background(), "r1")
	if !errors.Is(err, domain.ErrStore) {
		t.Fatalf("expected ErrStore, got %v", err)
	}
	if len(repo.updates) != 0 {
		t.Errorf("expected no writes, got %d", len(repo.updates))
	}
}
