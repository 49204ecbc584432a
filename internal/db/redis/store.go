package redis

import (
	"context"
	"fmt"

	"github.com/redis/rueidis"

	"github.com/tonydantona/practice-routines-api/internal/db"
)

// Get returns records by id, by filter, or all records when the request is empty.
// Unknown ids are skipped.
func (s *Store) Get(ctx context.Context, req db.GetRequest) (*db.GetResult, error) {
	if len(req.IDs) > 0 {
		return s.getByIDs(ctx, req)
	}
	if s.listByScan {
		return s.getByScan(ctx, req)
	}

	entries, err := s.searchList(ctx, req.Where, req.Limit)
	if err != nil {
		return nil, err
	}

	out := &db.GetResult{}
	for _, e := range entries {
		doc, md := splitFields(e.fields)
		out.IDs = append(out.IDs, s.idFromKey(e.key))
		out.Documents = append(out.Documents, doc)
		out.Metadatas = append(out.Metadatas, md)
	}
	return out, nil
}

func (s *Store) getByIDs(ctx context.Context, req db.GetRequest) (*db.GetResult, error) {
	cmds := make(rueidis.Commands, 0, len(req.IDs))
	for _, id := range req.IDs {
		cmds = append(cmds, s.b().Hgetall().Key(s.docKey(id)).Build())
	}

	out := &db.GetResult{}
	for i, resp := range s.client.DoMulti(ctx, cmds...) {
		fields, err := resp.AsStrMap()
		if err != nil {
			return nil, &db.Error{Op: db.OpHGetAll, Err: err}
		}
		if len(fields) == 0 {
			continue
		}
		doc, md := splitFields(fields)
		if !req.Where.Matches(md) {
			continue
		}
		out.IDs = append(out.IDs, req.IDs[i])
		out.Documents = append(out.Documents, doc)
		out.Metadatas = append(out.Metadatas, md)
		if req.Limit > 0 && out.Len() == req.Limit {
			break
		}
	}
	return out, nil
}

// Add writes each record as one HASH: document, vector and metadata fields.
func (s *Store) Add(ctx context.Context, req db.AddRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if len(req.IDs) == 0 {
		return nil
	}

	cmds := make(rueidis.Commands, 0, len(req.IDs))
	for i, id := range req.IDs {
		if err := validateMetadata(req.Metadatas[i]); err != nil {
			return fmt.Errorf("add %s: %w", id, err)
		}
		fv := s.b().Hset().Key(s.docKey(id)).FieldValue().
			FieldValue(fieldContent, req.Documents[i]).
			FieldValue(fieldVector, vectorToBytes(req.Embeddings[i]))
		for k, v := range req.Metadatas[i] {
			fv = fv.FieldValue(k, v)
		}
		cmds = append(cmds, fv.Build())
	}

	for _, resp := range s.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return &db.Error{Op: db.OpHSet, Err: err}
		}
	}
	return nil
}

// Delete removes records by id. Missing ids are ignored.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.docKey(id)
	}
	cmd := s.b().Del().Key(keys...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpDel, Err: err}
	}
	return nil
}
