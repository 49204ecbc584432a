package redis

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/tonydantona/practice-routines-api/internal/db"
)

// replaceMetadataScript swaps every non-reserved field of KEYS[1] for the
// field/value pairs in ARGV. Returns -1 when the key is missing.
const replaceMetadataScript = `
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
local fields = redis.call('HKEYS', KEYS[1])
for _, f in ipairs(fields) do
  if string.sub(f, 1, 2) ~= '__' then redis.call('HDEL', KEYS[1], f) end
end
if #ARGV > 0 then redis.call('HSET', KEYS[1], unpack(ARGV)) end
return 1
`

// compareAndReplaceScript does the same swap only if the current metadata
// equals the expected pairs. ARGV[1] is the expected pair count n,
// ARGV[2..2n+1] the expected pairs, the rest the new pairs.
// Returns -1 for a missing key, 0 on mismatch, 1 on success.
const compareAndReplaceScript = `
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
local n = tonumber(ARGV[1])
local h = redis.call('HGETALL', KEYS[1])
local cur = {}
local count = 0
for i = 1, #h, 2 do
  if string.sub(h[i], 1, 2) ~= '__' then
    cur[h[i]] = h[i + 1]
    count = count + 1
  end
end
if count ~= n then return 0 end
for i = 2, 2 * n, 2 do
  if cur[ARGV[i]] ~= ARGV[i + 1] then return 0 end
end
for f, _ in pairs(cur) do redis.call('HDEL', KEYS[1], f) end
if #ARGV > 2 * n + 1 then redis.call('HSET', KEYS[1], unpack(ARGV, 2 * n + 2)) end
return 1
`

// Update replaces the metadata of id. Document and vector are untouched.
func (s *Store) Update(ctx context.Context, id string, metadata map[string]string) error {
	if err := validateMetadata(metadata); err != nil {
		return fmt.Errorf("update %s: %w", id, err)
	}

	n, err := s.updateLua.Exec(ctx, s.client, []string{s.docKey(id)}, flattenPairs(metadata)).AsInt64()
	if err != nil {
		return &db.Error{Op: db.OpEval, Err: err}
	}
	if n < 0 {
		return db.ErrKeyNotFound
	}
	return nil
}

// UpdateIf replaces the metadata of id only if it still equals expected.
// The check and the write run as one script, so concurrent writers cannot interleave.
func (s *Store) UpdateIf(ctx context.Context, id string, expected, next map[string]string) error {
	if err := validateMetadata(next); err != nil {
		return fmt.Errorf("update %s: %w", id, err)
	}

	args := make([]string, 0, 1+2*len(expected)+2*len(next))
	args = append(args, strconv.Itoa(len(expected)))
	args = append(args, flattenPairs(expected)...)
	args = append(args, flattenPairs(next)...)

	n, err := s.casLua.Exec(ctx, s.client, []string{s.docKey(id)}, args).AsInt64()
	if err != nil {
		return &db.Error{Op: db.OpEval, Err: err}
	}
	switch {
	case n < 0:
		return db.ErrKeyNotFound
	case n == 0:
		return db.ErrPreconditionFailed
	}
	return nil
}

// flattenPairs renders a map as sorted field, value, field, value...
func flattenPairs(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make([]string, 0, 2*len(m))
	for _, k := range keys {
		out = append(out, k, m[k])
	}
	return out
}
