// Package qdrant implements db.Store over a Qdrant collection.
//
// Each record is one point: the UUID id, the embedding, and a payload that
// holds the document under "__content" plus the metadata keys. Qdrant has no
// conditional payload write, so Store does not implement db.CompareAndSwapper.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	qc "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tonydantona/practice-routines-api/internal/db"
)

var _ db.Store = (*Store)(nil)

const (
	payloadContent = "__content"

	// Page size for listings. Get pages through the whole collection.
	defaultListWindow = 1000

	opCollection = "qdrant.collection"
	opUpsert     = "qdrant.upsert"
	opGet        = "qdrant.get"
	opScroll     = "qdrant.scroll"
	opQuery      = "qdrant.query"
	opSetPayload = "qdrant.overwrite_payload"
	opDelete     = "qdrant.delete"
)

// client is the subset of *qc.Client the store uses.
type client interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, req *qc.CreateCollection) error
	CreateFieldIndex(ctx context.Context, req *qc.CreateFieldIndexCollection) (*qc.UpdateResult, error)
	Upsert(ctx context.Context, req *qc.UpsertPoints) (*qc.UpdateResult, error)
	Get(ctx context.Context, req *qc.GetPoints) ([]*qc.RetrievedPoint, error)
	Scroll(ctx context.Context, req *qc.ScrollPoints) ([]*qc.RetrievedPoint, error)
	Query(ctx context.Context, req *qc.QueryPoints) ([]*qc.ScoredPoint, error)
	OverwritePayload(ctx context.Context, req *qc.SetPayloadPoints) (*qc.UpdateResult, error)
	Delete(ctx context.Context, req *qc.DeletePoints) (*qc.UpdateResult, error)
	HealthCheck(ctx context.Context) (*qc.HealthCheckReply, error)
	Close() error
}

// Config holds connection and layout parameters.
type Config struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	// TagFields get keyword payload indexes when the collection is created.
	TagFields []string
}

// Store implements db.Store over Qdrant's gRPC API.
type Store struct {
	client     client
	collection string
	tagFields  []string
	listWindow uint32
}

// NewStore connects to Qdrant.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Collection == "" {
		return nil, errors.New("collection is required")
	}
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 6334
	}

	c, err := qc.NewClient(&qc.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return newStore(c, cfg), nil
}

func newStore(c client, cfg Config) *Store {
	return &Store{
		client:     c,
		collection: cfg.Collection,
		tagFields:  cfg.TagFields,
		listWindow: defaultListWindow,
	}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close shuts down the gRPC connection.
func (s *Store) Close() {
	_ = s.client.Close()
}

// WaitForReady polls Ping until Qdrant responds or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for database: %w", ctx.Err())
		case <-ticker.C:
			if err := s.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

// EnsureCollection creates a cosine collection of dim dimensions with keyword
// indexes on the tag fields. An existing collection is left as is.
func (s *Store) EnsureCollection(ctx context.Context, dim int) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return &db.Error{Op: opCollection, Err: err}
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qc.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &qc.VectorsConfig{
			Config: &qc.VectorsConfig_Params{
				Params: &qc.VectorParams{
					Size:     uint64(dim),
					Distance: qc.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return &db.Error{Op: opCollection, Err: err}
	}

	for _, field := range s.tagFields {
		_, err := s.client.CreateFieldIndex(ctx, &qc.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      field,
			FieldType:      qc.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return &db.Error{Op: opCollection, Err: fmt.Errorf("index %s: %w", field, err)}
		}
	}
	return nil
}

// Add upserts one point per record and waits for the write to apply.
func (s *Store) Add(ctx context.Context, req db.AddRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if len(req.IDs) == 0 {
		return nil
	}

	points := make([]*qc.PointStruct, len(req.IDs))
	for i, id := range req.IDs {
		pid, ok := pointID(id)
		if !ok {
			return fmt.Errorf("add: id %q is not a UUID", id)
		}
		points[i] = &qc.PointStruct{
			Id:      pid,
			Vectors: qc.NewVectors(req.Embeddings[i]...),
			Payload: toPayload(req.Documents[i], req.Metadatas[i]),
		}
	}

	_, err := s.client.Upsert(ctx, &qc.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qc.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return &db.Error{Op: opUpsert, Err: err}
	}
	return nil
}

// Get returns points by id, by filter, or all points. Ids that are not
// UUIDs cannot exist in the collection and are skipped.
func (s *Store) Get(ctx context.Context, req db.GetRequest) (*db.GetResult, error) {
	var (
		points []*qc.RetrievedPoint
		err    error
	)

	if len(req.IDs) > 0 {
		ids := make([]*qc.PointId, 0, len(req.IDs))
		for _, id := range req.IDs {
			if pid, ok := pointID(id); ok {
				ids = append(ids, pid)
			}
		}
		if len(ids) == 0 {
			return &db.GetResult{}, nil
		}
		points, err = s.client.Get(ctx, &qc.GetPoints{
			CollectionName: s.collection,
			Ids:            ids,
			WithPayload:    qc.NewWithPayload(true),
		})
		if err != nil {
			return nil, &db.Error{Op: opGet, Err: err}
		}
	} else {
		points, err = s.scrollAll(ctx, buildFilter(req.Where), req.Limit)
		if err != nil {
			if isMissingCollection(err) {
				return &db.GetResult{}, nil
			}
			return nil, &db.Error{Op: opScroll, Err: err}
		}
	}

	out := &db.GetResult{}
	for _, p := range points {
		doc, md := fromPayload(p.GetPayload())
		if len(req.IDs) > 0 && !req.Where.Matches(md) {
			continue
		}
		out.IDs = append(out.IDs, idString(p.GetId()))
		out.Documents = append(out.Documents, doc)
		out.Metadatas = append(out.Metadatas, md)
		if req.Limit > 0 && out.Len() == req.Limit {
			break
		}
	}
	return out, nil
}

// scrollAll reads every point matching filter, listWindow points per call.
// Each non-final call asks for one extra point, whose id is the inclusive
// offset of the next page. limit > 0 caps the total.
func (s *Store) scrollAll(ctx context.Context, filter *qc.Filter, limit int) ([]*qc.RetrievedPoint, error) {
	var (
		points []*qc.RetrievedPoint
		offset *qc.PointId
	)
	for {
		size := s.listWindow
		last := false
		if limit > 0 {
			if left := limit - len(points); left <= int(size) {
				size = uint32(left)
				last = true
			}
		}
		ask := size
		if !last {
			ask = size + 1
		}

		page, err := s.client.Scroll(ctx, &qc.ScrollPoints{
			CollectionName: s.collection,
			Filter:         filter,
			Offset:         offset,
			Limit:          qc.PtrOf(ask),
			WithPayload:    qc.NewWithPayload(true),
		})
		if err != nil {
			return nil, err
		}

		if last || len(page) <= int(size) {
			return append(points, page...), nil
		}
		points = append(points, page[:size]...)
		offset = page[size].GetId()
	}
}

// Query runs one nearest-neighbor search per vector.
// Qdrant reports cosine similarity; distances are 1 - similarity.
func (s *Store) Query(ctx context.Context, req db.QueryRequest) (*db.QueryResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	out := &db.QueryResult{
		IDs:       make([][]string, len(req.Vectors)),
		Documents: make([][]string, len(req.Vectors)),
		Metadatas: make([][]map[string]string, len(req.Vectors)),
		Distances: make([][]float64, len(req.Vectors)),
	}

	limit := uint64(req.Limit)
	filter := buildFilter(req.Where)
	for i, vec := range req.Vectors {
		hits, err := s.client.Query(ctx, &qc.QueryPoints{
			CollectionName: s.collection,
			Query:          qc.NewQuery(vec...),
			Filter:         filter,
			Limit:          &limit,
			WithPayload:    qc.NewWithPayload(true),
		})
		if err != nil {
			if isMissingCollection(err) {
				continue
			}
			return nil, &db.Error{Op: opQuery, Err: err}
		}
		for _, h := range hits {
			doc, md := fromPayload(h.GetPayload())
			out.IDs[i] = append(out.IDs[i], idString(h.GetId()))
			out.Documents[i] = append(out.Documents[i], doc)
			out.Metadatas[i] = append(out.Metadatas[i], md)
			out.Distances[i] = append(out.Distances[i], 1-float64(h.GetScore()))
		}
	}
	return out, nil
}

// Update overwrites the payload of id, keeping the stored document.
// The read and the write are separate calls; a concurrent writer between
// them is lost.
func (s *Store) Update(ctx context.Context, id string, metadata map[string]string) error {
	pid, ok := pointID(id)
	if !ok {
		return db.ErrKeyNotFound
	}

	points, err := s.client.Get(ctx, &qc.GetPoints{
		CollectionName: s.collection,
		Ids:            []*qc.PointId{pid},
		WithPayload:    qc.NewWithPayload(true),
	})
	if err != nil {
		return &db.Error{Op: opGet, Err: err}
	}
	if len(points) == 0 {
		return db.ErrKeyNotFound
	}
	doc, _ := fromPayload(points[0].GetPayload())

	_, err = s.client.OverwritePayload(ctx, &qc.SetPayloadPoints{
		CollectionName: s.collection,
		Wait:           qc.PtrOf(true),
		Payload:        toPayload(doc, metadata),
		PointsSelector: qc.NewPointsSelector(pid),
	})
	if err != nil {
		return &db.Error{Op: opSetPayload, Err: err}
	}
	return nil
}

// Delete removes points by id. Non-UUID ids are ignored.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	pids := make([]*qc.PointId, 0, len(ids))
	for _, id := range ids {
		if pid, ok := pointID(id); ok {
			pids = append(pids, pid)
		}
	}
	if len(pids) == 0 {
		return nil
	}

	_, err := s.client.Delete(ctx, &qc.DeletePoints{
		CollectionName: s.collection,
		Wait:           qc.PtrOf(true),
		Points:         qc.NewPointsSelector(pids...),
	})
	if err != nil {
		return &db.Error{Op: opDelete, Err: err}
	}
	return nil
}

// --- conversion helpers ---

func isMissingCollection(err error) bool {
	return status.Code(err) == codes.NotFound
}

func pointID(id string) (*qc.PointId, bool) {
	u, err := uuid.Parse(id)
	if err != nil {
		return nil, false
	}
	return qc.NewIDUUID(u.String()), true
}

func idString(id *qc.PointId) string {
	if id == nil {
		return ""
	}
	switch x := id.PointIdOptions.(type) {
	case *qc.PointId_Uuid:
		return x.Uuid
	case *qc.PointId_Num:
		return strconv.FormatUint(x.Num, 10)
	}
	return ""
}

func toPayload(doc string, metadata map[string]string) map[string]*qc.Value {
	payload := make(map[string]*qc.Value, len(metadata)+1)
	for k, v := range metadata {
		payload[k] = qc.NewValueString(v)
	}
	payload[payloadContent] = qc.NewValueString(doc)
	return payload
}

func fromPayload(payload map[string]*qc.Value) (string, map[string]string) {
	md := make(map[string]string, len(payload))
	var doc string
	for k, v := range payload {
		if k == payloadContent {
			doc = valueString(v)
			continue
		}
		md[k] = valueString(v)
	}
	return doc, md
}

// valueString flattens a payload value. Metadata is written as strings;
// other kinds only appear when points were written by another client.
func valueString(v *qc.Value) string {
	switch val := v.GetKind().(type) {
	case *qc.Value_StringValue:
		return val.StringValue
	case *qc.Value_IntegerValue:
		return strconv.FormatInt(val.IntegerValue, 10)
	case *qc.Value_DoubleValue:
		return strconv.FormatFloat(val.DoubleValue, 'g', -1, 64)
	case *qc.Value_BoolValue:
		return strconv.FormatBool(val.BoolValue)
	}
	return ""
}

// buildFilter turns every clause into a keyword match under Must.
func buildFilter(w db.Where) *qc.Filter {
	if w.IsEmpty() {
		return nil
	}
	clauses := w.Clauses()
	must := make([]*qc.Condition, 0, len(clauses))
	for _, c := range clauses {
		must = append(must, qc.NewMatch(c.Key, c.Value))
	}
	return &qc.Filter{Must: must}
}
