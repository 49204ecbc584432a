package health

import "context"

// DBPinger checks vector store availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// RoutineCounter reports how many routines are stored.
type RoutineCounter interface {
	Count(ctx context.Context) (int, error)
}
