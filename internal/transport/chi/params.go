package chi

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// ParamError reports a query or path parameter that could not be bound.
type ParamError struct {
	Param string
	Err   error
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("invalid format for parameter %s: %v", e.Param, e.Err)
}

func (e *ParamError) Unwrap() error { return e.Err }

// ListRoutinesParams are the query parameters of GET /api/routines.
type ListRoutinesParams struct {
	Category *string
	State    *string
}

// RandomRoutineParams are the query parameters of
// GET /api/get-random-routine-by-category-state.
type RandomRoutineParams struct {
	Category *string
	State    *string
}

// SearchRoutinesParams are the query parameters of GET /api/routines/search.
type SearchRoutinesParams struct {
	Query    *string
	TopN     *int
	MinScore *float64
}

func bindListRoutinesParams(r *http.Request) (ListRoutinesParams, error) {
	var p ListRoutinesParams
	q := r.URL.Query()
	if err := bindQuery("category", q, &p.Category); err != nil {
		return p, err
	}
	if err := bindQuery("state", q, &p.State); err != nil {
		return p, err
	}
	return p, nil
}

func bindRandomRoutineParams(r *http.Request) (RandomRoutineParams, error) {
	var p RandomRoutineParams
	q := r.URL.Query()
	if err := bindQuery("category", q, &p.Category); err != nil {
		return p, err
	}
	if err := bindQuery("state", q, &p.State); err != nil {
		return p, err
	}
	return p, nil
}

func bindSearchRoutinesParams(r *http.Request) (SearchRoutinesParams, error) {
	var p SearchRoutinesParams
	q := r.URL.Query()
	if err := bindQuery("query", q, &p.Query); err != nil {
		return p, err
	}
	if err := bindQuery("top_n", q, &p.TopN); err != nil {
		return p, err
	}
	if err := bindQuery("min_score", q, &p.MinScore); err != nil {
		return p, err
	}
	return p, nil
}

func bindRoutineID(r *http.Request) (string, error) {
	var id string
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		return "", &ParamError{Param: "id", Err: err}
	}
	return id, nil
}

func bindQuery(name string, q url.Values, dest any) error {
	if err := runtime.BindQueryParameter("form", true, false, name, q, dest); err != nil {
		return &ParamError{Param: name, Err: err}
	}
	return nil
}
