package chi

import (
	"context"

	domroutine "github.com/tonydantona/practice-routines-api/internal/domain/routine"
	healthuc "github.com/tonydantona/practice-routines-api/internal/usecase/health"
)

// RoutineService is the consumer interface for routine handlers (ISP).
type RoutineService interface {
	GetAllRoutines(ctx context.Context) ([]domroutine.Routine, error)
	GetRoutinesByCategory(ctx context.Context, category string, state domroutine.State) ([]domroutine.Routine, error)
	GetRandomRoutineByCategory(
		ctx context.Context, category string, state domroutine.State,
	) (domroutine.Routine, bool, error)
	GetNotCompletedRoutines(ctx context.Context) ([]domroutine.Routine, error)
	GetRoutinesByState(ctx context.Context, state domroutine.State) ([]domroutine.Routine, error)
	SearchRoutines(ctx context.Context, query string, topN int, minScore float64) ([]domroutine.Routine, error)
	MarkRoutineCompleted(ctx context.Context, id string) error
	MarkRoutineNotCompleted(ctx context.Context, id string) error
}

// HealthReporter is the consumer interface for the health handler (ISP).
type HealthReporter interface {
	Check(ctx context.Context) healthuc.Report
}
