package build

import (
	"context"

	domroutine "github.com/tonydantona/practice-routines-api/internal/domain/routine"
)

// Repository defines the storage contract for a database build.
type Repository interface {
	IDs(ctx context.Context) ([]string, error)
	EnsureCollection(ctx context.Context, dim int) error
	Add(ctx context.Context, routines []domroutine.Routine, embeddings [][]float32) error
	Delete(ctx context.Context, ids []string) error
}
