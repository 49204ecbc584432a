package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/rueidis"

	"github.com/tonydantona/practice-routines-api/internal/db"
)

// Compile-time checks.
var (
	_ db.Store             = (*Store)(nil)
	_ db.CompareAndSwapper = (*Store)(nil)
)

// Hash fields reserved by the store. Metadata keys may not start with "__".
const (
	fieldContent     = "__content"
	fieldVector      = "__vector"
	fieldVectorScore = "__vector_score"
	reservedPrefix   = "__"
)

// Config holds connection and layout parameters for a Redis store.
type Config struct {
	Addrs      []string
	Username   string
	Password   string
	DB         int
	KeyPrefix  string // e.g. "routines:"
	Collection string // e.g. "guitar_routines"
	// TagFields are the metadata keys indexed for exact-match filtering.
	// Filters on any other key fail at query time.
	TagFields []string
	// ListByScan lists records with SCAN + HGETALL instead of a bare
	// FT.SEARCH, which valkey-search does not support.
	ListByScan bool

	HNSWM           int
	HNSWEFConstruct int
}

// Store implements db.Store over Redis 8+ (or Valkey with the search module) via rueidis.
// Records are HASH keys; an FT index covers the metadata tags and the vector.
type Store struct {
	client     rueidis.Client
	docPrefix  string
	indexName  string
	tagFields  []string
	hnswM      int
	hnswEF     int
	updateLua  *rueidis.Lua
	casLua     *rueidis.Lua
	listWindow int
	listByScan bool
}

// NewStore creates a Redis store via rueidis.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("collection is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
		AlwaysRESP2:  true, // FT.SEARCH result parsing expects RESP2 array format
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return newStore(client, cfg), nil
}

func newStore(client rueidis.Client, cfg Config) *Store {
	base := cfg.KeyPrefix + cfg.Collection
	return &Store{
		client:     client,
		docPrefix:  base + ":doc:",
		indexName:  base + ":idx",
		tagFields:  cfg.TagFields,
		hnswM:      cfg.HNSWM,
		hnswEF:     cfg.HNSWEFConstruct,
		updateLua:  rueidis.NewLuaScript(replaceMetadataScript),
		casLua:     rueidis.NewLuaScript(compareAndReplaceScript),
		listWindow: defaultListWindow,
		listByScan: cfg.ListByScan,
	}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	cmd := s.client.B().Ping().Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close shuts down the client.
func (s *Store) Close() {
	s.client.Close()
}

// KV exposes plain key-value access on the same connection.
func (s *Store) KV() *KV {
	return &KV{client: s.client}
}

// WaitForReady polls Ping until the store responds or timeout expires.
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

func (s *Store) do(ctx context.Context, cmd rueidis.Completed) rueidis.RedisResult {
	return s.client.Do(ctx, cmd)
}

func (s *Store) b() rueidis.Builder {
	return s.client.B()
}

func (s *Store) docKey(id string) string {
	return s.docPrefix + id
}

func (s *Store) idFromKey(key string) string {
	return strings.TrimPrefix(key, s.docPrefix)
}

// isRedisErr checks if err is a Redis server error containing substr (case-insensitive).
func isRedisErr(err error, substr string) bool {
	re, ok := rueidis.IsRedisErr(err)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(re.Error()), strings.ToLower(substr))
}

// isMissingIndex matches the Redis and Valkey spellings of an absent FT index.
func isMissingIndex(err error) bool {
	return isRedisErr(err, "unknown index name") || isRedisErr(err, "no such index")
}

func validateMetadata(md map[string]string) error {
	for k := range md {
		if k == "" || strings.HasPrefix(k, reservedPrefix) {
			return fmt.Errorf("metadata key %q is reserved", k)
		}
	}
	return nil
}
