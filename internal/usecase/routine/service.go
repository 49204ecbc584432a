// Package routine implements routine retrieval, semantic search and state transitions.
package routine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/tonydantona/practice-routines-api/internal/domain"
	domroutine "github.com/tonydantona/practice-routines-api/internal/domain/routine"
	"github.com/tonydantona/practice-routines-api/internal/domain/routine/filter"
	"github.com/tonydantona/practice-routines-api/internal/logger"
)

// Search defaults applied by callers that receive no explicit value.
const (
	DefaultTopN     = 5
	DefaultMinScore = 0.3
)

// Service answers routine queries and flips routine state.
type Service struct {
	repo        Repository
	embedder    Embedder
	intn        func(n int) int
	transitions *prometheus.CounterVec
}

// New creates a routine service. Random picks use math/rand/v2 until
// WithRandom replaces it.
func New(repo Repository, embedder Embedder) *Service {
	return &Service{
		repo:     repo,
		embedder: embedder,
		intn:     rand.IntN,
	}
}

// WithRandom sets the index source for random picks. intn(n) must return
// a value in [0, n).
func (s *Service) WithRandom(intn func(n int) int) *Service {
	if intn != nil {
		s.intn = intn
	}
	return s
}

// WithTransitionMetric counts state transitions by target state and result.
func (s *Service) WithTransitionMetric(c *prometheus.CounterVec) *Service {
	s.transitions = c
	return s
}

// GetAllRoutines returns every stored routine.
func (s *Service) GetAllRoutines(ctx context.Context) ([]domroutine.Routine, error) {
	logger.FromContext(ctx).Info("Getting all routines")

	routines, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("get all routines: %w", err)
	}
	return routines, nil
}

// GetRoutinesByCategory returns routines in category. routine.AnyState
// returns every state.
func (s *Service) GetRoutinesByCategory(
	ctx context.Context, category string, state domroutine.State,
) ([]domroutine.Routine, error) {
	if category == "" {
		return nil, domain.InvalidArgument("category is required")
	}
	if state != domroutine.AnyState && !state.Valid() {
		return nil, domain.InvalidArgument("invalid state %q", state)
	}

	logger.FromContext(ctx).Info("Getting routines by category",
		zap.String("category", category), zap.Stringer("state", state))

	routines, err := s.repo.GetByCategory(ctx, category, state)
	if err != nil {
		return nil, fmt.Errorf("get routines by category: %w", err)
	}
	return routines, nil
}

// GetRandomRoutineByCategory picks one routine uniformly from those
// GetRoutinesByCategory returns. found is false when none match.
func (s *Service) GetRandomRoutineByCategory(
	ctx context.Context, category string, state domroutine.State,
) (domroutine.Routine, bool, error) {
	routines, err := s.GetRoutinesByCategory(ctx, category, state)
	if err != nil {
		return domroutine.Routine{}, false, err
	}
	if len(routines) == 0 {
		logger.FromContext(ctx).Info("No routines found",
			zap.String("category", category), zap.Stringer("state", state))
		return domroutine.Routine{}, false, nil
	}

	i := s.intn(len(routines))
	logger.FromContext(ctx).Info("Selected random routine", zap.Int("options", len(routines)))
	return routines[i], true, nil
}

// GetNotCompletedRoutines returns every routine still to be practiced.
func (s *Service) GetNotCompletedRoutines(ctx context.Context) ([]domroutine.Routine, error) {
	return s.GetRoutinesByState(ctx, domroutine.StateNotCompleted)
}

// GetRoutinesByState returns routines in state across all categories.
func (s *Service) GetRoutinesByState(ctx context.Context, state domroutine.State) ([]domroutine.Routine, error) {
	if !state.Valid() {
		return nil, domain.InvalidArgument("invalid state %q", state)
	}

	logger.FromContext(ctx).Info("Getting routines by state", zap.Stringer("state", state))

	routines, err := s.repo.GetByState(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("get routines by state: %w", err)
	}
	return routines, nil
}

// SearchRoutines embeds query, fetches the topN nearest routines and keeps
// those whose distance is at most minScore, in store order.
func (s *Service) SearchRoutines(
	ctx context.Context, query string, topN int, minScore float64,
) ([]domroutine.Routine, error) {
	if query == "" {
		return nil, domain.InvalidArgument("query must be a non-empty string")
	}
	if topN < 1 {
		return nil, domain.InvalidArgument("top_n must be at least 1")
	}
	if math.IsNaN(minScore) {
		return nil, domain.InvalidArgument("min_score must be a number")
	}

	log := logger.FromContext(ctx)
	log.Info("Semantic search",
		zap.String("query", query), zap.Int("top_n", topN), zap.Float64("min_score", minScore))

	emb, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, domain.NewEmbeddingError(err)
	}
	if len(emb.Embedding) == 0 {
		return nil, domain.NewEmbeddingError(errors.New("empty query embedding"))
	}
	domain.UsageFromContext(ctx).AddTokens(emb.TotalTokens)

	candidates, err := s.repo.SearchBySimilarity(ctx, emb.Embedding, topN, filter.NoFilter{})
	if err != nil {
		return nil, fmt.Errorf("search routines: %w", err)
	}

	out := make([]domroutine.Routine, 0, len(candidates))
	for _, rt := range candidates {
		if score, ok := rt.Score(); ok && score <= minScore {
			out = append(out, rt)
		}
	}

	log.Info("Search finished", zap.Int("candidates", len(candidates)), zap.Int("results", len(out)))
	return out, nil
}

// MarkRoutineCompleted sets the routine's state to completed.
func (s *Service) MarkRoutineCompleted(ctx context.Context, id string) error {
	return s.transition(ctx, id, domroutine.StateCompleted)
}

// MarkRoutineNotCompleted sets the routine's state back to not_completed.
func (s *Service) MarkRoutineNotCompleted(ctx context.Context, id string) error {
	return s.transition(ctx, id, domroutine.StateNotCompleted)
}

// transition rewrites only the state key of the routine's metadata.
// A routine already stored in target is left untouched.
func (s *Service) transition(ctx context.Context, id string, target domroutine.State) error {
	if id == "" {
		return domain.InvalidArgument("routine id is required")
	}

	log := logger.FromContext(ctx).With(zap.String("routine_id", id), zap.Stringer("to", target))

	rt, found, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.countTransition(target, "error")
		return fmt.Errorf("get routine %s: %w", id, err)
	}
	if !found {
		return fmt.Errorf("routine %s: %w", id, domain.ErrNotFound)
	}

	if rt.State() == target && rt.StateStored() {
		s.countTransition(target, "unchanged")
		log.Info("Routine already in target state")
		return nil
	}

	next := rt.WithState(target)
	if err := s.repo.UpdateMetadataIf(ctx, id, rt.Metadata(), next.Metadata()); err != nil {
		s.countTransition(target, "error")
		return fmt.Errorf("update routine %s: %w", id, err)
	}

	s.countTransition(target, "changed")
	log.Info("Routine state updated")
	return nil
}

func (s *Service) countTransition(to domroutine.State, result string) {
	if s.transitions != nil {
		s.transitions.WithLabelValues(string(to), result).Inc()
	}
}
