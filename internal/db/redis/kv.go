package redis

import (
	"context"
	"time"

	"github.com/redis/rueidis"

	"github.com/tonydantona/practice-routines-api/internal/db"
)

// KV is plain string-key access sharing the store's connection.
// The embedding cache keeps its vectors here.
type KV struct {
	client rueidis.Client
	ttl    time.Duration
}

// WithTTL returns a copy whose Set expires keys after ttl. Zero keeps keys forever.
func (kv *KV) WithTTL(ttl time.Duration) *KV {
	return &KV{client: kv.client, ttl: ttl}
}

// Get retrieves a value by key.
func (kv *KV) Get(ctx context.Context, key string) ([]byte, error) {
	cmd := kv.client.B().Get().Key(key).Build()
	data, err := kv.client.Do(ctx, cmd).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, db.ErrKeyNotFound
		}
		return nil, &db.Error{Op: db.OpGet, Err: err}
	}
	return data, nil
}

// Set stores a value at the given key.
func (kv *KV) Set(ctx context.Context, key string, value []byte) error {
	var cmd rueidis.Completed
	if kv.ttl > 0 {
		cmd = kv.client.B().Set().Key(key).Value(string(value)).Ex(kv.ttl).Build()
	} else {
		cmd = kv.client.B().Set().Key(key).Value(string(value)).Build()
	}
	if err := kv.client.Do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpSet, Err: err}
	}
	return nil
}
