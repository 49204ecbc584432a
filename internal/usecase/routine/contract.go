package routine

import (
	"context"

	"github.com/tonydantona/practice-routines-api/internal/domain"
	domroutine "github.com/tonydantona/practice-routines-api/internal/domain/routine"
	"github.com/tonydantona/practice-routines-api/internal/domain/routine/filter"
)

// Repository defines the storage contract for routines.
type Repository interface {
	GetAll(ctx context.Context) ([]domroutine.Routine, error)
	GetByCategory(ctx context.Context, category string, state domroutine.State) ([]domroutine.Routine, error)
	GetByState(ctx context.Context, state domroutine.State) ([]domroutine.Routine, error)
	SearchBySimilarity(ctx context.Context, vector []float32, limit int, f filter.Intent) ([]domroutine.Routine, error)
	GetByID(ctx context.Context, id string) (domroutine.Routine, bool, error)
	UpdateMetadataIf(ctx context.Context, id string, expected, next map[string]string) error
}

// Embedder vectorizes search queries.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
