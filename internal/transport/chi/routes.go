package chi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/tonydantona/practice-routines-api/internal/metrics"
)

// Options configures the router built by NewRouter.
type Options struct {
	Logger      *zap.Logger
	APIKeys     []string
	CORSOrigins []string
}

// NewRouter mounts the server's routes behind the standard middleware chain.
func NewRouter(s *Server, opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(JSONRecoverer(log))
	r.Use(chiMiddleware.RequestID)
	r.Use(WideEventMiddleware(log))
	r.Use(CORSMiddleware(opts.CORSOrigins))
	r.Use(metrics.Middleware())
	r.Use(BearerAuthMiddleware(opts.APIKeys))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, ErrorCodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrorCodeBadRequest, "method not allowed")
	})

	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/api", func(r chi.Router) {
		r.Get("/get-random-routine-by-category-state", s.GetRandomRoutine)
		r.Get("/routines", s.ListRoutines)
		r.Get("/routines/search", s.SearchRoutines)
		r.Put("/routines/{id}/complete", s.CompleteRoutine)
		r.Put("/routines/{id}/uncomplete", s.UncompleteRoutine)
	})

	return r
}
