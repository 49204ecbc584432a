// Package sqlite implements db.Store in a single SQLite file.
//
// Nearest-neighbor search is a full scan with cosine distance computed in
// Go, which is fine for a personal routine list of a few thousand rows.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	_ "modernc.org/sqlite" // driver registration

	"github.com/tonydantona/practice-routines-api/internal/db"
)

// Compile-time checks.
var (
	_ db.Store             = (*Store)(nil)
	_ db.CompareAndSwapper = (*Store)(nil)
)

const (
	opOpen    = "sqlite.open"
	opEnsure  = "sqlite.ensure"
	opInsert  = "sqlite.insert"
	opSelect  = "sqlite.select"
	opUpdate  = "sqlite.update"
	opDelete  = "sqlite.delete"
	opMigrate = "sqlite.migrate"
)

const schema = `
CREATE TABLE IF NOT EXISTS collections (
	name TEXT PRIMARY KEY,
	dim  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS records (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	document   TEXT NOT NULL,
	metadata   TEXT NOT NULL,
	embedding  BLOB NOT NULL,
	PRIMARY KEY (collection, id)
);`

// Config selects the database file and collection.
type Config struct {
	Path       string
	Collection string
}

// Store keeps every record of one collection in the records table.
type Store struct {
	db         *sql.DB
	collection string
}

// NewStore opens (or creates) the database file and applies the schema.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("path is required")
	}
	if cfg.Collection == "" {
		return nil, errors.New("collection is required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, &db.Error{Op: opOpen, Err: err}
	}
	// One writer keeps conditional updates serialized.
	conn.SetMaxOpenConns(1)

	if err := enablePragmas(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return nil, &db.Error{Op: opMigrate, Err: err}
	}

	return &Store{db: conn, collection: cfg.Collection}, nil
}

func enablePragmas(conn *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}
	return nil
}

// Ping checks the database handle.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() {
	_ = s.db.Close()
}

// WaitForReady returns once Ping succeeds. A local file is ready immediately
// unless it is locked by another process.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		if err := s.Ping(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for database: %w", ctx.Err())
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// EnsureCollection records the vector dimension for the collection.
// A collection created earlier with another dimension is an error.
func (s *Store) EnsureCollection(ctx context.Context, dim int) error {
	if dim <= 0 {
		return errors.New("dimension must be positive")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO collections (name, dim) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		s.collection, dim)
	if err != nil {
		return &db.Error{Op: opEnsure, Err: err}
	}

	var stored int
	err = s.db.QueryRowContext(ctx, `SELECT dim FROM collections WHERE name = ?`, s.collection).Scan(&stored)
	if err != nil {
		return &db.Error{Op: opEnsure, Err: err}
	}
	if stored != dim {
		return fmt.Errorf("collection %s has dimension %d, want %d", s.collection, stored, dim)
	}
	return nil
}

// Add inserts records in one transaction. Existing ids are replaced.
func (s *Store) Add(ctx context.Context, req db.AddRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if len(req.IDs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &db.Error{Op: opInsert, Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (collection, id, document, metadata, embedding)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			document = excluded.document,
			metadata = excluded.metadata,
			embedding = excluded.embedding`)
	if err != nil {
		return &db.Error{Op: opInsert, Err: err}
	}
	defer func() { _ = stmt.Close() }()

	for i, id := range req.IDs {
		md, err := encodeMetadata(req.Metadatas[i])
		if err != nil {
			return fmt.Errorf("add %s: %w", id, err)
		}
		_, err = stmt.ExecContext(ctx, s.collection, id, req.Documents[i], md, packEmbedding(req.Embeddings[i]))
		if err != nil {
			return &db.Error{Op: opInsert, Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &db.Error{Op: opInsert, Err: err}
	}
	return nil
}

// Get returns records by id, by filter, or all records of the collection.
func (s *Store) Get(ctx context.Context, req db.GetRequest) (*db.GetResult, error) {
	query, args := s.selectSQL("id, document, metadata", req.Where, req.IDs)
	if req.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", req.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &db.Error{Op: opSelect, Err: err}
	}
	defer func() { _ = rows.Close() }()

	out := &db.GetResult{}
	for rows.Next() {
		var id, doc, raw string
		if err := rows.Scan(&id, &doc, &raw); err != nil {
			return nil, &db.Error{Op: opSelect, Err: err}
		}
		md, err := decodeMetadata(raw)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", id, err)
		}
		out.IDs = append(out.IDs, id)
		out.Documents = append(out.Documents, doc)
		out.Metadatas = append(out.Metadatas, md)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: opSelect, Err: err}
	}
	return out, nil
}

type scored struct {
	id       string
	doc      string
	md       map[string]string
	distance float64
}

// Query scans the filtered records once and ranks them per vector by cosine distance.
func (s *Store) Query(ctx context.Context, req db.QueryRequest) (*db.QueryResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	query, args := s.selectSQL("id, document, metadata, embedding", req.Where, nil)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &db.Error{Op: opSelect, Err: err}
	}
	defer func() { _ = rows.Close() }()

	type candidate struct {
		scored
		vec []float32
	}
	var candidates []candidate
	for rows.Next() {
		var (
			c    candidate
			raw  string
			blob []byte
		)
		if err := rows.Scan(&c.id, &c.doc, &raw, &blob); err != nil {
			return nil, &db.Error{Op: opSelect, Err: err}
		}
		if c.md, err = decodeMetadata(raw); err != nil {
			return nil, fmt.Errorf("record %s: %w", c.id, err)
		}
		c.vec = unpackEmbedding(blob)
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: opSelect, Err: err}
	}

	out := &db.QueryResult{
		IDs:       make([][]string, len(req.Vectors)),
		Documents: make([][]string, len(req.Vectors)),
		Metadatas: make([][]map[string]string, len(req.Vectors)),
		Distances: make([][]float64, len(req.Vectors)),
	}
	for qi, q := range req.Vectors {
		ranked := make([]scored, 0, len(candidates))
		for _, c := range candidates {
			if len(c.vec) != len(q) {
				return nil, fmt.Errorf("record %s has dimension %d, query has %d", c.id, len(c.vec), len(q))
			}
			r := c.scored
			r.distance = cosineDistance(q, c.vec)
			ranked = append(ranked, r)
		}
		slices.SortStableFunc(ranked, func(a, b scored) int {
			switch {
			case a.distance < b.distance:
				return -1
			case a.distance > b.distance:
				return 1
			}
			return 0
		})
		if len(ranked) > req.Limit {
			ranked = ranked[:req.Limit]
		}
		for _, r := range ranked {
			out.IDs[qi] = append(out.IDs[qi], r.id)
			out.Documents[qi] = append(out.Documents[qi], r.doc)
			out.Metadatas[qi] = append(out.Metadatas[qi], r.md)
			out.Distances[qi] = append(out.Distances[qi], r.distance)
		}
	}
	return out, nil
}

// Update replaces the metadata column of id.
func (s *Store) Update(ctx context.Context, id string, metadata map[string]string) error {
	md, err := encodeMetadata(metadata)
	if err != nil {
		return fmt.Errorf("update %s: %w", id, err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE records SET metadata = ? WHERE collection = ? AND id = ?`,
		md, s.collection, id)
	if err != nil {
		return &db.Error{Op: opUpdate, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &db.Error{Op: opUpdate, Err: err}
	}
	if n == 0 {
		return db.ErrKeyNotFound
	}
	return nil
}

// UpdateIf replaces metadata only while the stored column still equals the
// canonical encoding of expected.
func (s *Store) UpdateIf(ctx context.Context, id string, expected, next map[string]string) error {
	want, err := encodeMetadata(expected)
	if err != nil {
		return fmt.Errorf("update %s: %w", id, err)
	}
	md, err := encodeMetadata(next)
	if err != nil {
		return fmt.Errorf("update %s: %w", id, err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE records SET metadata = ? WHERE collection = ? AND id = ? AND metadata = ?`,
		md, s.collection, id, want)
	if err != nil {
		return &db.Error{Op: opUpdate, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &db.Error{Op: opUpdate, Err: err}
	}
	if n > 0 {
		return nil
	}

	var one int
	err = s.db.QueryRowContext(ctx,
		`SELECT 1 FROM records WHERE collection = ? AND id = ?`, s.collection, id).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return db.ErrKeyNotFound
	case err != nil:
		return &db.Error{Op: opSelect, Err: err}
	}
	return db.ErrPreconditionFailed
}

// Delete removes records by id.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, s.collection)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `DELETE FROM records WHERE collection = ? AND id IN (` + placeholders(len(ids)) + `)`
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return &db.Error{Op: opDelete, Err: err}
	}
	return nil
}

// selectSQL builds a SELECT over the collection with metadata equality
// clauses and an optional id set.
func (s *Store) selectSQL(columns string, where db.Where, ids []string) (string, []any) {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(columns)
	sb.WriteString(" FROM records WHERE collection = ?")
	args := []any{s.collection}

	for _, c := range where.Clauses() {
		sb.WriteString(" AND json_extract(metadata, ?) = ?")
		args = append(args, jsonPath(c.Key), c.Value)
	}
	if len(ids) > 0 {
		sb.WriteString(" AND id IN (")
		sb.WriteString(placeholders(len(ids)))
		sb.WriteString(")")
		for _, id := range ids {
			args = append(args, id)
		}
	}
	sb.WriteString(" ORDER BY rowid")
	return sb.String(), args
}

func jsonPath(key string) string {
	return `$."` + strings.ReplaceAll(key, `"`, `\"`) + `"`
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// encodeMetadata renders metadata as JSON with sorted keys, so equal maps
// always produce equal text.
func encodeMetadata(md map[string]string) (string, error) {
	if md == nil {
		md = map[string]string{}
	}
	for k := range md {
		if k == "" {
			return "", errors.New("metadata key is empty")
		}
	}
	b, err := json.Marshal(md)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeMetadata(raw string) (map[string]string, error) {
	md := map[string]string{}
	if err := json.Unmarshal([]byte(raw), &md); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return md, nil
}

func packEmbedding(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func unpackEmbedding(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// cosineDistance is 1 - cosine similarity. A zero vector is at distance 1 from everything.
func cosineDistance(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
