package chi

// ErrorCode is the machine-readable error code in ErrorResponse.
type ErrorCode string

// Error codes returned by the API.
const (
	ErrorCodeBadRequest             ErrorCode = "bad_request"
	ErrorCodeValidationFailed       ErrorCode = "validation_failed"
	ErrorCodeUnauthorized           ErrorCode = "unauthorized"
	ErrorCodeNotFound               ErrorCode = "not_found"
	ErrorCodeConflict               ErrorCode = "conflict"
	ErrorCodeEmbeddingProviderError ErrorCode = "embedding_provider_error"
	ErrorCodeInternalError          ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// MessageResponse carries a single human-readable message.
type MessageResponse struct {
	Message string `json:"message"`
}

// Routine is the wire form of a routine. Tags keep their stored
// comma-joined form.
type Routine struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Category string   `json:"category"`
	Tags     string   `json:"tags"`
	State    string   `json:"state"`
	Score    *float64 `json:"score,omitempty"`
}

// RoutineListResponse is returned by GET /api/routines.
type RoutineListResponse struct {
	Count    int       `json:"count"`
	Routines []Routine `json:"routines"`
}

// SearchResponse is returned by GET /api/routines/search.
type SearchResponse struct {
	Query    string    `json:"query"`
	Count    int       `json:"count"`
	Routines []Routine `json:"routines"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status   string            `json:"status"`
	Checks   map[string]string `json:"checks"`
	Routines *int              `json:"routines,omitempty"`
}
