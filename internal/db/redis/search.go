package redis

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/tonydantona/practice-routines-api/internal/db"
)

// Page size for FT.SEARCH listings. Get pages until the reported total.
const defaultListWindow = 1000

// searchEntry is one FT.SEARCH hit before it is split into a record.
type searchEntry struct {
	key    string
	fields map[string]string
}

// Query runs one KNN search per vector, restricted by the filter.
// Distances are the raw cosine distances reported by the index.
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

	for i, vec := range req.Vectors {
		entries, err := s.searchKNN(ctx, vec, req.Limit, req.Where)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			dist, err := strconv.ParseFloat(e.fields[fieldVectorScore], 64)
			if err != nil {
				return nil, fmt.Errorf("parse %s for %s: %w", fieldVectorScore, e.key, err)
			}
			doc, md := splitFields(e.fields)
			out.IDs[i] = append(out.IDs[i], s.idFromKey(e.key))
			out.Documents[i] = append(out.Documents[i], doc)
			out.Metadatas[i] = append(out.Metadatas[i], md)
			out.Distances[i] = append(out.Distances[i], dist)
		}
	}
	return out, nil
}

func (s *Store) searchKNN(ctx context.Context, vec []float32, k int, where db.Where) ([]searchEntry, error) {
	knn := fmt.Sprintf("[KNN %d @%s $BLOB]", k, fieldVector)
	query := "*=>" + knn
	if f := buildFilter(where); f != "" {
		query = fmt.Sprintf("(%s)=>%s", f, knn)
	}

	cmd := s.b().Arbitrary("FT.SEARCH").Args(
		s.indexName, query,
		"PARAMS", "2", "BLOB", vectorToBytes(vec),
		"SORTBY", fieldVectorScore,
		"LIMIT", "0", strconv.Itoa(k),
		"DIALECT", "2",
	).Build()

	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		if isMissingIndex(err) {
			return nil, nil
		}
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}
	_, entries, err := parseSearchResult(raw)
	return entries, err
}

// searchList returns every record matching the filter, up to limit when
// limit > 0, reading listWindow records per FT.SEARCH call.
func (s *Store) searchList(ctx context.Context, where db.Where, limit int) ([]searchEntry, error) {
	query := buildFilter(where)
	if query == "" {
		query = "*"
	}

	var entries []searchEntry
	for offset := 0; ; {
		n := s.listWindow
		if limit > 0 {
			n = min(n, limit-len(entries))
		}

		cmd := s.b().Arbitrary("FT.SEARCH").Args(
			s.indexName, query,
			"LIMIT", strconv.Itoa(offset), strconv.Itoa(n),
			"DIALECT", "2",
		).Build()

		raw, err := s.do(ctx, cmd).ToArray()
		if err != nil {
			if isMissingIndex(err) {
				return entries, nil
			}
			return nil, &db.Error{Op: db.OpSearch, Err: err}
		}
		total, page, err := parseSearchResult(raw)
		if err != nil {
			return nil, err
		}
		entries = append(entries, page...)
		offset += n

		if len(page) < n || int64(offset) >= total || (limit > 0 && len(entries) >= limit) {
			return entries, nil
		}
	}
}

// --- Result parsing ---

// parseSearchResult reads the RESP2 reply [total, key1, fields1, key2, fields2, ...].
func parseSearchResult(raw []rueidis.RedisMessage) (int64, []searchEntry, error) {
	if len(raw) == 0 {
		return 0, nil, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return 0, nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return 0, nil, nil
	}

	entries := make([]searchEntry, 0, (len(raw)-1)/2)
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}
		entries = append(entries, searchEntry{key: key, fields: parseFieldPairs(fields)})
	}
	return total, entries, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// splitFields separates the stored document from user metadata.
// Reserved fields never reach callers.
func splitFields(fields map[string]string) (string, map[string]string) {
	md := make(map[string]string, len(fields))
	for k, v := range fields {
		if strings.HasPrefix(k, reservedPrefix) {
			continue
		}
		md[k] = v
	}
	return fields[fieldContent], md
}

// --- Filter building ---

// buildFilter translates a Where into an FT.SEARCH pre-filter.
// Space-separated tag clauses intersect, so a bare predicate and a
// conjunction render the same way here.
func buildFilter(w db.Where) string {
	if w.IsEmpty() {
		return ""
	}
	clauses := w.Clauses()
	parts := make([]string, 0, len(clauses))
	for _, c := range clauses {
		parts = append(parts, buildTagFilter(c.Key, c.Value))
	}
	return strings.Join(parts, " ")
}

func buildTagFilter(key, value string) string {
	return fmt.Sprintf("@%s:{%s}", key, tagEscaper.Replace(value))
}

var tagEscaper = strings.NewReplacer(
	`\`, `\\`,
	",", "\\,",
	".", "\\.",
	"<", "\\<",
	">", "\\>",
	"{", "\\{",
	"}", "\\}",
	"[", "\\[",
	"]", "\\]",
	"\"", "\\\"",
	"'", "\\'",
	":", "\\:",
	";", "\\;",
	"!", "\\!",
	"@", "\\@",
	"#", "\\#",
	"$", "\\$",
	"%", "\\%",
	"^", "\\^",
	"&", "\\&",
	"*", "\\*",
	"(", "\\(",
	")", "\\)",
	"-", "\\-",
	"+", "\\+",
	"=", "\\=",
	"~", "\\~",
	"|", "\\|",
	"/", "\\/",
	" ", "\\ ",
)

func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
