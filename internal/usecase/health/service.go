// Package health reports the availability of the store and embedding provider.
package health

import (
	"context"

	"go.uber.org/zap"

	"github.com/tonydantona/practice-routines-api/internal/logger"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates reads work but semantic search does not.
	Degraded Status = "degraded"
	// Unhealthy indicates the store is unreachable.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
	// Routines is the stored routine count, -1 when unknown.
	Routines int
}

// Service coordinates health checks.
type Service struct {
	db        DBPinger
	embedding EmbeddingChecker
	counter   RoutineCounter
}

// New creates a Service. embedding can be nil.
func New(db DBPinger, embedding EmbeddingChecker) *Service {
	return &Service{db: db, embedding: embedding}
}

// WithRoutineCounter adds the stored routine count to reports.
func (s *Service) WithRoutineCounter(c RoutineCounter) *Service {
	s.counter = c
	return s
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	log := logger.FromContext(ctx)
	checks := make(map[string]CheckResult)
	report := Report{Status: Healthy, Checks: checks, Routines: -1}

	if err := s.db.Ping(ctx); err != nil {
		log.Warn("Database health check failed", zap.Error(err))
		checks["database"] = CheckError
		report.Status = Unhealthy
	} else {
		checks["database"] = CheckOK
	}

	if s.embedding != nil {
		if err := s.embedding.HealthCheck(ctx); err != nil {
			log.Warn("Embedding health check failed", zap.Error(err))
			checks["embedding"] = CheckError
			if report.Status == Healthy {
				report.Status = Degraded
			}
		} else {
			checks["embedding"] = CheckOK
		}
	}

	if s.counter != nil && checks["database"] == CheckOK {
		if n, err := s.counter.Count(ctx); err != nil {
			log.Warn("Routine count failed", zap.Error(err))
		} else {
			report.Routines = n
		}
	}

	return report
}
