package db

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Store is the vector store facade every backend implements.
//
//nolint:interfacebloat // facade by design -- consumers use narrow sub-interfaces (ISP)
type Store interface {
	Pinger
	CollectionManager
	Reader
	Writer
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CollectionManager prepares the backing collection or index.
type CollectionManager interface {
	// EnsureCollection creates the collection for vectors of dim dimensions if absent.
	EnsureCollection(ctx context.Context, dim int) error
}

// Reader fetches records by id or filter and runs nearest-neighbor queries.
type Reader interface {
	Get(ctx context.Context, req GetRequest) (*GetResult, error)
	Query(ctx context.Context, req QueryRequest) (*QueryResult, error)
}

// Writer adds, updates and deletes records.
type Writer interface {
	Add(ctx context.Context, req AddRequest) error
	// Update replaces the metadata of an existing record. The stored
	// document text and embedding are left untouched. Returns
	// ErrKeyNotFound when id is absent.
	Update(ctx context.Context, id string, metadata map[string]string) error
	Delete(ctx context.Context, ids []string) error
}

// CompareAndSwapper is implemented by stores that can replace metadata
// conditionally in one atomic step.
type CompareAndSwapper interface {
	// UpdateIf replaces the metadata of id with next only if the stored
	// metadata equals expected. Returns ErrPreconditionFailed otherwise.
	UpdateIf(ctx context.Context, id string, expected, next map[string]string) error
}

// GetRequest selects records by id, by filter, or both. Empty means all.
type GetRequest struct {
	IDs   []string
	Where Where
	Limit int // 0 = no limit
}

// GetResult holds parallel lists: IDs[i], Documents[i] and Metadatas[i] describe one record.
type GetResult struct {
	IDs       []string
	Documents []string
	Metadatas []map[string]string
}

// Len returns the number of records.
func (r *GetResult) Len() int {
	if r == nil {
		return 0
	}
	return len(r.IDs)
}

// QueryRequest asks for the Limit nearest neighbors of each vector.
type QueryRequest struct {
	Vectors [][]float32
	Limit   int
	Where   Where
}

// Validate checks the query shape before it reaches a backend.
func (q *QueryRequest) Validate() error {
	if len(q.Vectors) == 0 {
		return errors.New("at least one query vector is required")
	}
	for i, v := range q.Vectors {
		if len(v) == 0 {
			return fmt.Errorf("query vector %d is empty", i)
		}
	}
	if q.Limit <= 0 {
		return errors.New("limit must be positive")
	}
	return nil
}

// QueryResult holds one nested list per query vector, closest first.
// Distances are raw: lower is closer.
type QueryResult struct {
	IDs       [][]string
	Documents [][]string
	Metadatas [][]map[string]string
	Distances [][]float64
}

// AddRequest holds parallel lists of records to insert.
type AddRequest struct {
	IDs        []string
	Documents  []string
	Embeddings [][]float32
	Metadatas  []map[string]string
}

// Validate checks that all lists have the same length and ids are set.
func (r *AddRequest) Validate() error {
	n := len(r.IDs)
	if len(r.Documents) != n || len(r.Embeddings) != n || len(r.Metadatas) != n {
		return fmt.Errorf("add: mismatched lengths ids=%d documents=%d embeddings=%d metadatas=%d",
			n, len(r.Documents), len(r.Embeddings), len(r.Metadatas))
	}
	for i, id := range r.IDs {
		if id == "" {
			return fmt.Errorf("add: id %d is empty", i)
		}
	}
	return nil
}
