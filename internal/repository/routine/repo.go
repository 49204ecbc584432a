// Package routine maps practice routines onto a vector store.
package routine

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/tonydantona/practice-routines-api/internal/db"
	"github.com/tonydantona/practice-routines-api/internal/domain"
	domroutine "github.com/tonydantona/practice-routines-api/internal/domain/routine"
	"github.com/tonydantona/practice-routines-api/internal/domain/routine/filter"
	"github.com/tonydantona/practice-routines-api/internal/logger"
)

// Repository operation names carried by domain.StoreError.
const (
	OpGetAll           = "get_all"
	OpGetByCategory    = "get_by_category"
	OpGetByState       = "get_by_state"
	OpGetByID          = "get_by_id"
	OpSearch           = "search_by_similarity"
	OpUpdateMetadata   = "update_metadata"
	OpUpdateMetadataIf = "update_metadata_if"
	OpCount            = "count"
	OpAdd              = "add"
	OpDelete           = "delete"
	OpEnsureCollection = "ensure_collection"
)

// store is the consumer interface for routines (ISP).
type store interface {
	Get(ctx context.Context, req db.GetRequest) (*db.GetResult, error)
	Query(ctx context.Context, req db.QueryRequest) (*db.QueryResult, error)
	Add(ctx context.Context, req db.AddRequest) error
	Update(ctx context.Context, id string, metadata map[string]string) error
	Delete(ctx context.Context, ids []string) error
	EnsureCollection(ctx context.Context, dim int) error
}

// Repo implements usecase/routine.Repository and usecase/build.Repository.
type Repo struct {
	store    store
	cas      db.CompareAndSwapper // nil when the store has no conditional write
	duration *prometheus.HistogramVec
}

// New creates a routine repository. Conditional updates use the store's
// compare-and-swap when it implements db.CompareAndSwapper.
func New(s store) *Repo {
	r := &Repo{store: s}
	if cas, ok := s.(db.CompareAndSwapper); ok {
		r.cas = cas
	}
	return r
}

// WithDurationMetric records store call latency by op and status.
func (r *Repo) WithDurationMetric(h *prometheus.HistogramVec) *Repo {
	r.duration = h
	return r
}

// SupportsConditionalUpdate reports whether UpdateMetadataIf is atomic.
func (r *Repo) SupportsConditionalUpdate() bool { return r.cas != nil }

// GetAll returns every routine.
func (r *Repo) GetAll(ctx context.Context) ([]domroutine.Routine, error) {
	return r.list(ctx, OpGetAll, filter.NoFilter{})
}

// GetByCategory returns routines in category, optionally restricted to state.
// routine.AnyState means every state.
func (r *Repo) GetByCategory(ctx context.Context, category string, state domroutine.State) ([]domroutine.Routine, error) {
	if category == "" {
		return nil, domain.InvalidArgument("category is required")
	}
	return r.list(ctx, OpGetByCategory, filter.For(category, state))
}

// GetByState returns routines in state, across categories.
func (r *Repo) GetByState(ctx context.Context, state domroutine.State) ([]domroutine.Routine, error) {
	return r.list(ctx, OpGetByState, filter.StateOnly{State: state})
}

func (r *Repo) list(ctx context.Context, op string, f filter.Intent) ([]domroutine.Routine, error) {
	where, err := compileWhere(f)
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Debug("store get", zap.String("op", op), zap.Stringer("where", where))

	start := time.Now()
	res, err := r.store.Get(ctx, db.GetRequest{Where: where})
	r.observe(op, start, err)
	if err != nil {
		return nil, domain.NewStoreError(op, err)
	}
	return fromGetResult(res), nil
}

// SearchBySimilarity returns up to limit nearest routines to vector that
// satisfy f, in store order. Each result carries its distance as score.
func (r *Repo) SearchBySimilarity(
	ctx context.Context, vector []float32, limit int, f filter.Intent,
) ([]domroutine.Routine, error) {
	if len(vector) == 0 {
		return nil, domain.InvalidArgument("query vector is empty")
	}
	if limit < 1 {
		return nil, domain.InvalidArgument("limit must be at least 1, got %d", limit)
	}
	where, err := compileWhere(f)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := r.store.Query(ctx, db.QueryRequest{
		Vectors: [][]float32{vector},
		Limit:   limit,
		Where:   where,
	})
	r.observe(OpSearch, start, err)
	if err != nil {
		return nil, domain.NewStoreError(OpSearch, err)
	}
	return fromQueryResult(res), nil
}

// GetByID returns the routine with id. found is false when it does not exist.
func (r *Repo) GetByID(ctx context.Context, id string) (domroutine.Routine, bool, error) {
	if id == "" {
		return domroutine.Routine{}, false, domain.InvalidArgument("id is required")
	}

	start := time.Now()
	res, err := r.store.Get(ctx, db.GetRequest{IDs: []string{id}})
	r.observe(OpGetByID, start, err)
	if err != nil {
		return domroutine.Routine{}, false, domain.NewStoreError(OpGetByID, err)
	}

	routines := fromGetResult(res)
	if len(routines) == 0 {
		return domroutine.Routine{}, false, nil
	}
	return routines[0], true, nil
}

// UpdateMetadata replaces the metadata of id. Text and embedding are untouched.
func (r *Repo) UpdateMetadata(ctx context.Context, id string, metadata map[string]string) error {
	if id == "" {
		return domain.InvalidArgument("id is required")
	}
	if len(metadata) == 0 {
		return domain.InvalidArgument("metadata is required")
	}

	start := time.Now()
	err := r.store.Update(ctx, id, metadata)
	r.observe(OpUpdateMetadata, start, err)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domain.ErrNotFound
		}
		return domain.NewStoreError(OpUpdateMetadata, err)
	}
	return nil
}

// UpdateMetadataIf replaces the metadata of id only if it still equals expected.
// Returns domain.ErrConflict when it changed in between. Without store
// support this is a plain UpdateMetadata and a concurrent writer can be lost.
func (r *Repo) UpdateMetadataIf(ctx context.Context, id string, expected, next map[string]string) error {
	if r.cas == nil {
		return r.UpdateMetadata(ctx, id, next)
	}
	if id == "" {
		return domain.InvalidArgument("id is required")
	}
	if len(next) == 0 {
		return domain.InvalidArgument("metadata is required")
	}

	start := time.Now()
	err := r.cas.UpdateIf(ctx, id, expected, next)
	r.observe(OpUpdateMetadataIf, start, err)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, db.ErrKeyNotFound):
		return domain.ErrNotFound
	case errors.Is(err, db.ErrPreconditionFailed):
		return domain.ErrConflict
	default:
		return domain.NewStoreError(OpUpdateMetadataIf, err)
	}
}

// Count returns the number of stored routines.
func (r *Repo) Count(ctx context.Context) (int, error) {
	ids, err := r.IDs(ctx)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// IDs returns the ids of every stored routine.
func (r *Repo) IDs(ctx context.Context) ([]string, error) {
	start := time.Now()
	res, err := r.store.Get(ctx, db.GetRequest{})
	r.observe(OpCount, start, err)
	if err != nil {
		return nil, domain.NewStoreError(OpCount, err)
	}
	return res.IDs, nil
}

// Add stores routines with their embeddings. Every routine must carry an id.
func (r *Repo) Add(ctx context.Context, routines []domroutine.Routine, embeddings [][]float32) error {
	if len(routines) != len(embeddings) {
		return domain.InvalidArgument("%d routines but %d embeddings", len(routines), len(embeddings))
	}
	if len(routines) == 0 {
		return nil
	}

	req := db.AddRequest{
		IDs:        make([]string, len(routines)),
		Documents:  make([]string, len(routines)),
		Embeddings: embeddings,
		Metadatas:  make([]map[string]string, len(routines)),
	}
	for i, rt := range routines {
		if rt.ID() == "" {
			return domain.InvalidArgument("routine %d has no id", i)
		}
		req.IDs[i] = rt.ID()
		req.Documents[i] = rt.Text()
		req.Metadatas[i] = rt.Metadata()
	}

	start := time.Now()
	err := r.store.Add(ctx, req)
	r.observe(OpAdd, start, err)
	if err != nil {
		return domain.NewStoreError(OpAdd, err)
	}
	return nil
}

// Delete removes routines by id.
func (r *Repo) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	start := time.Now()
	err := r.store.Delete(ctx, ids)
	r.observe(OpDelete, start, err)
	if err != nil {
		return domain.NewStoreError(OpDelete, err)
	}
	return nil
}

// EnsureCollection prepares the store for vectors of dim dimensions.
func (r *Repo) EnsureCollection(ctx context.Context, dim int) error {
	if dim < 1 {
		return domain.InvalidArgument("dimension must be positive, got %d", dim)
	}
	if err := r.store.EnsureCollection(ctx, dim); err != nil {
		return domain.NewStoreError(OpEnsureCollection, err)
	}
	return nil
}

func (r *Repo) observe(op string, start time.Time, err error) {
	if r.duration == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.duration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
}

func fromGetResult(res *db.GetResult) []domroutine.Routine {
	if res.Len() == 0 {
		return nil
	}
	out := make([]domroutine.Routine, 0, res.Len())
	for i, id := range res.IDs {
		out = append(out, domroutine.Reconstruct(id, at(res.Documents, i), atMap(res.Metadatas, i), nil))
	}
	return out
}

// fromQueryResult flattens the nested result of a single-vector query.
func fromQueryResult(res *db.QueryResult) []domroutine.Routine {
	if res == nil || len(res.IDs) == 0 {
		return nil
	}
	ids := res.IDs[0]
	out := make([]domroutine.Routine, 0, len(ids))
	for i, id := range ids {
		var docs []string
		if len(res.Documents) > 0 {
			docs = res.Documents[0]
		}
		var mds []map[string]string
		if len(res.Metadatas) > 0 {
			mds = res.Metadatas[0]
		}
		var score *float64
		if len(res.Distances) > 0 && i < len(res.Distances[0]) {
			d := res.Distances[0][i]
			score = &d
		}
		out = append(out, domroutine.Reconstruct(id, at(docs, i), atMap(mds, i), score))
	}
	return out
}

func at(s []string, i int) string {
	if i < len(s) {
		return s[i]
	}
	return ""
}

func atMap(s []map[string]string, i int) map[string]string {
	if i < len(s) {
		return s[i]
	}
	return nil
}
