package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tonydantona/practice-routines-api/internal/domain"
	domroutine "github.com/tonydantona/practice-routines-api/internal/domain/routine"
	"github.com/tonydantona/practice-routines-api/internal/logger"
	healthuc "github.com/tonydantona/practice-routines-api/internal/usecase/health"
	routineuc "github.com/tonydantona/practice-routines-api/internal/usecase/routine"
)

// stateAll is the query value that lifts the state restriction.
const stateAll = "all"

// headerEmbeddingTokens reports the tokens a search spent on its query embedding.
const headerEmbeddingTokens = "X-Embedding-Tokens"

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server serves the routine API.
type Server struct {
	routines        RoutineService
	health          HealthReporter
	defaultTopN     int
	defaultMinScore float64
	errorHandlers   []errorHandler
}

// NewServer creates an HTTP API server. health can be nil.
func NewServer(routines RoutineService, health HealthReporter) *Server {
	return &Server{
		routines:        routines,
		health:          health,
		defaultTopN:     routineuc.DefaultTopN,
		defaultMinScore: routineuc.DefaultMinScore,
		errorHandlers: []errorHandler{
			invalidArgumentHandler,
			sentinelHandler(domain.ErrNotFound, http.StatusNotFound, ErrorCodeNotFound),
			sentinelHandler(domain.ErrConflict, http.StatusConflict, ErrorCodeConflict),
			sentinelHandler(domain.ErrEmbeddingProviderError,
				http.StatusBadGateway, ErrorCodeEmbeddingProviderError),
		},
	}
}

// WithSearchDefaults sets top_n and min_score used when a search request omits them.
func (s *Server) WithSearchDefaults(topN int, minScore float64) *Server {
	if topN > 0 {
		s.defaultTopN = topN
	}
	s.defaultMinScore = minScore
	return s
}

// GetRandomRoutine handles GET /api/get-random-routine-by-category-state.
func (s *Server) GetRandomRoutine(w http.ResponseWriter, r *http.Request) {
	params, err := bindRandomRoutineParams(r)
	if err != nil {
		writeParamError(w, err)
		return
	}
	if params.Category == nil || *params.Category == "" {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, "Category parameter is required.")
		return
	}

	stateParam := string(domroutine.StateNotCompleted)
	if params.State != nil {
		stateParam = *params.State
	}
	state, err := parseStateParam(stateParam)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	rt, found, err := s.routines.GetRandomRoutineByCategory(r.Context(), *params.Category, state)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, ErrorCodeNotFound, "No routines found for this category and state.")
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: rt.Text()})
}

// ListRoutines handles GET /api/routines. A category selects by category
// (optionally by state too), a lone state selects by state, neither lists all.
func (s *Server) ListRoutines(w http.ResponseWriter, r *http.Request) {
	params, err := bindListRoutinesParams(r)
	if err != nil {
		writeParamError(w, err)
		return
	}

	var state domroutine.State
	if params.State != nil {
		if state, err = parseStateParam(*params.State); err != nil {
			s.handleDomainError(w, r, err)
			return
		}
	}

	ctx := r.Context()
	var routines []domroutine.Routine
	switch {
	case params.Category != nil && *params.Category != "":
		routines, err = s.routines.GetRoutinesByCategory(ctx, *params.Category, state)
	case state == domroutine.StateNotCompleted:
		routines, err = s.routines.GetNotCompletedRoutines(ctx)
	case state != domroutine.AnyState:
		routines, err = s.routines.GetRoutinesByState(ctx, state)
	default:
		routines, err = s.routines.GetAllRoutines(ctx)
	}
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items := routinesToWire(routines)
	writeJSON(w, http.StatusOK, RoutineListResponse{Count: len(items), Routines: items})
}

// SearchRoutines handles GET /api/routines/search.
func (s *Server) SearchRoutines(w http.ResponseWriter, r *http.Request) {
	params, err := bindSearchRoutinesParams(r)
	if err != nil {
		writeParamError(w, err)
		return
	}
	if params.Query == nil || *params.Query == "" {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, "Query parameter is required.")
		return
	}

	topN := s.defaultTopN
	if params.TopN != nil {
		topN = *params.TopN
	}
	minScore := s.defaultMinScore
	if params.MinScore != nil {
		minScore = *params.MinScore
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	routines, err := s.routines.SearchRoutines(ctx, *params.Query, topN, minScore)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	setEmbeddingHeaders(w, usage)
	items := routinesToWire(routines)
	writeJSON(w, http.StatusOK, SearchResponse{Query: *params.Query, Count: len(items), Routines: items})
}

// CompleteRoutine handles PUT /api/routines/{id}/complete.
func (s *Server) CompleteRoutine(w http.ResponseWriter, r *http.Request) {
	id, err := bindRoutineID(r)
	if err != nil {
		writeParamError(w, err)
		return
	}
	if err := s.routines.MarkRoutineCompleted(r.Context(), id); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: fmt.Sprintf("Routine %s marked as completed", id)})
}

// UncompleteRoutine handles PUT /api/routines/{id}/uncomplete.
func (s *Server) UncompleteRoutine(w http.ResponseWriter, r *http.Request) {
	id, err := bindRoutineID(r)
	if err != nil {
		writeParamError(w, err)
		return
	}
	if err := s.routines.MarkRoutineNotCompleted(r.Context(), id); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: fmt.Sprintf("Routine %s marked as not completed", id)})
}

// HealthCheck handles GET /health. A degraded service still answers 200.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, HealthResponse{Status: string(healthuc.Healthy), Checks: map[string]string{}})
		return
	}

	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}
	resp := HealthResponse{Status: string(report.Status), Checks: checks}
	if report.Routines >= 0 {
		n := report.Routines
		resp.Routines = &n
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, resp)
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// parseStateParam maps the query value onto a State; "all" and "" mean any.
func parseStateParam(v string) (domroutine.State, error) {
	if v == stateAll {
		return domroutine.AnyState, nil
	}
	st, err := domroutine.ParseState(v)
	if err != nil {
		return "", fmt.Errorf("parse state: %w", err)
	}
	return st, nil
}

func routinesToWire(routines []domroutine.Routine) []Routine {
	items := make([]Routine, len(routines))
	for i, rt := range routines {
		items[i] = routineToWire(rt)
	}
	return items
}

func routineToWire(rt domroutine.Routine) Routine {
	item := Routine{
		ID:       rt.ID(),
		Text:     rt.Text(),
		Category: rt.Category(),
		Tags:     rt.TagsString(),
		State:    string(rt.State()),
	}
	if score, ok := rt.Score(); ok {
		item.Score = &score
	}
	return item
}

func setEmbeddingHeaders(w http.ResponseWriter, usage *domain.EmbeddingUsage) {
	if usage != nil && usage.Used {
		w.Header().Set(headerEmbeddingTokens, strconv.Itoa(usage.TotalTokens))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

func writeParamError(w http.ResponseWriter, err error) {
	var pe *ParamError
	if errors.As(err, &pe) {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "invalid "+pe.Param+" parameter")
		return
	}
	writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "invalid request")
}

// invalidArgumentHandler exposes only the validation message, not the
// operation chain wrapped around it.
func invalidArgumentHandler(w http.ResponseWriter, err error) bool {
	if !errors.Is(err, domain.ErrInvalidArgument) {
		return false
	}
	msg := err.Error()
	if i := strings.Index(msg, domain.ErrInvalidArgument.Error()); i >= 0 {
		msg = msg[i:]
	}
	writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, msg)
	return true
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, sentinel.Error())
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())
	for _, h := range s.errorHandlers {
		if h(w, err) {
			log.Warn("domain error", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal error")
}
