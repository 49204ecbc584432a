package redis

import (
	"context"
	"sort"

	"github.com/tonydantona/practice-routines-api/internal/db"
)

// scanBatch is the COUNT hint passed to each SCAN call.
const scanBatch = 100

// getByScan lists records by walking the key space. Filtering happens
// client-side on the fetched metadata.
func (s *Store) getByScan(ctx context.Context, req db.GetRequest) (*db.GetResult, error) {
	keys, err := s.Scan(ctx, s.docPrefix+"*")
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return &db.GetResult{}, nil
	}

	sort.Strings(keys) // deterministic ordering

	ids := make([]string, len(keys))
	for i, k := range keys {
		ids[i] = s.idFromKey(k)
	}
	// keys deleted between SCAN and HGETALL come back empty and are skipped
	return s.getByIDs(ctx, db.GetRequest{IDs: ids, Where: req.Where, Limit: req.Limit})
}

// Scan iterates keys matching a pattern.
func (s *Store) Scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64

	for {
		cmd := s.b().Scan().Cursor(cursor).Match(pattern).Count(scanBatch).Build()
		res, err := s.do(ctx, cmd).AsScanEntry()
		if err != nil {
			return nil, &db.Error{Op: db.OpScan, Err: err}
		}
		keys = append(keys, res.Elements...)
		cursor = res.Cursor
		if cursor == 0 {
			break
		}
	}

	return keys, nil
}
