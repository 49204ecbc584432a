// Package build loads routines into an empty or rebuilt database.
package build

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tonydantona/practice-routines-api/internal/domain"
	domroutine "github.com/tonydantona/practice-routines-api/internal/domain/routine"
	"github.com/tonydantona/practice-routines-api/internal/logger"
)

// Chunking defaults for embedding a routines file.
const (
	DefaultChunkSize   = 256
	DefaultConcurrency = 4
)

// Result reports what a build did.
type Result struct {
	Skipped bool // database already populated and force was not set
	Deleted int
	Added   int
}

// Service embeds routines and writes them to the store.
type Service struct {
	repo        Repository
	embedder    domain.Embedder
	chunkSize   int
	concurrency int
	newID       func() string
	loaded      prometheus.Counter
}

// New creates a build service.
func New(repo Repository, embedder domain.Embedder) *Service {
	return &Service{
		repo:        repo,
		embedder:    embedder,
		chunkSize:   DefaultChunkSize,
		concurrency: DefaultConcurrency,
		newID:       uuid.NewString,
	}
}

// WithChunking sets how many texts go into one embedding call and how many
// calls run at once.
func (s *Service) WithChunking(size, concurrency int) *Service {
	if size > 0 {
		s.chunkSize = size
	}
	if concurrency > 0 {
		s.concurrency = concurrency
	}
	return s
}

// WithIDGenerator replaces uuid.NewString.
func (s *Service) WithIDGenerator(gen func() string) *Service {
	if gen != nil {
		s.newID = gen
	}
	return s
}

// WithLoadedMetric counts routines added by builds.
func (s *Service) WithLoadedMetric(c prometheus.Counter) *Service {
	s.loaded = c
	return s
}

// Build writes routines to the store. A populated store is left alone
// unless force is set, in which case its records are replaced. Every
// embedding is computed before the store is touched, so a failed
// embedding leaves it unchanged.
func (s *Service) Build(ctx context.Context, routines []domroutine.Routine, force bool) (Result, error) {
	if len(routines) == 0 {
		return Result{}, domain.InvalidArgument("no routines to build")
	}

	log := logger.FromContext(ctx)
	log.Info("Building database", zap.Int("routines", len(routines)), zap.Bool("force", force))

	existing, err := s.repo.IDs(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("count existing routines: %w", err)
	}
	if len(existing) > 0 && !force {
		log.Info("Database already populated, skipping rebuild", zap.Int("existing", len(existing)))
		return Result{Skipped: true}, nil
	}

	texts := make([]string, len(routines))
	for i, rt := range routines {
		texts[i] = rt.Text()
	}
	embeddings, err := s.embed(ctx, texts)
	if err != nil {
		return Result{}, err
	}

	if err := s.repo.EnsureCollection(ctx, len(embeddings[0])); err != nil {
		return Result{}, fmt.Errorf("ensure collection: %w", err)
	}

	var res Result
	if len(existing) > 0 {
		log.Info("Force rebuild: deleting existing routines", zap.Int("existing", len(existing)))
		if err := s.repo.Delete(ctx, existing); err != nil {
			return Result{}, fmt.Errorf("delete existing routines: %w", err)
		}
		res.Deleted = len(existing)
	}

	withIDs := make([]domroutine.Routine, len(routines))
	for i, rt := range routines {
		withIDs[i] = rt.WithID(s.newID())
	}
	if err := s.repo.Add(ctx, withIDs, embeddings); err != nil {
		return res, fmt.Errorf("add routines: %w", err)
	}
	res.Added = len(withIDs)

	if s.loaded != nil {
		s.loaded.Add(float64(res.Added))
	}
	log.Info("Routines added", zap.Int("added", res.Added), zap.Int("deleted", res.Deleted))
	return res, nil
}

// embed vectorizes texts in chunks, several chunks at a time. The first
// failing chunk cancels the rest.
func (s *Service) embed(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	tokens := make([]int, (len(texts)+s.chunkSize-1)/s.chunkSize)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for chunk, offset := 0, 0; offset < len(texts); chunk, offset = chunk+1, offset+s.chunkSize {
		end := min(offset+s.chunkSize, len(texts))
		g.Go(func() error {
			res, err := domain.EmbedAll(gctx, s.embedder, texts[offset:end])
			if err != nil {
				return fmt.Errorf("chunk at %d: %w", offset, err)
			}
			if len(res.Embeddings) != end-offset {
				return fmt.Errorf("chunk at %d: got %d vectors for %d texts", offset, len(res.Embeddings), end-offset)
			}
			copy(embeddings[offset:end], res.Embeddings)
			tokens[chunk] = res.TotalTokens
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, domain.NewEmbeddingError(err)
	}

	dim := len(embeddings[0])
	for i, v := range embeddings {
		if len(v) == 0 || len(v) != dim {
			return nil, domain.NewEmbeddingError(
				fmt.Errorf("routine %d: embedding has %d dimensions, want %d", i, len(v), dim))
		}
	}

	usage := domain.UsageFromContext(ctx)
	for _, n := range tokens {
		usage.AddTokens(n)
	}
	return embeddings, nil
}
