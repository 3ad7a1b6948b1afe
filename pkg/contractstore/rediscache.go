package contractstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taple-mesh/node/pkg/digest"
)

// RedisReadCache decorates a Store with a read-through cache for hot
// (governance_id, schema_id) lookups on busy nodes. Writes go to the inner
// Store and then delete the corresponding cache key rather than updating it
// in place. A failed delete is ignored, so a previously cached entry can
// stay visible until its TTL expires.
type RedisReadCache struct {
	inner Store
	rdb   *redis.Client
	ttl   time.Duration
}

// NewRedisReadCache builds a RedisReadCache wrapping inner.
func NewRedisReadCache(inner Store, rdb *redis.Client, ttl time.Duration) *RedisReadCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisReadCache{inner: inner, rdb: rdb, ttl: ttl}
}

type cachedEntry struct {
	Artifact          []byte `json:"artifact"`
	SourceHash        string `json:"source_hash"`
	GovernanceVersion uint64 `json:"governance_version"`
	EngineTag         string `json:"engine_tag"`
}

func redisKey(key Key) string {
	return fmt.Sprintf("contractstore:%s:%s", key.GovernanceID.Hex(), key.SchemaID)
}

// Get implements Store.
func (c *RedisReadCache) Get(ctx context.Context, key Key) (Entry, error) {
	rk := redisKey(key)

	if raw, err := c.rdb.Get(ctx, rk).Bytes(); err == nil {
		var ce cachedEntry
		if jsonErr := json.Unmarshal(raw, &ce); jsonErr == nil {
			hash, hashErr := digest.Parse(ce.SourceHash)
			if hashErr == nil {
				return Entry{
					Artifact:          ce.Artifact,
					SourceHash:        hash,
					GovernanceVersion: ce.GovernanceVersion,
					EngineTag:         ce.EngineTag,
				}, nil
			}
		}
	}

	entry, err := c.inner.Get(ctx, key)
	if err != nil {
		return Entry{}, err
	}

	c.fill(ctx, rk, entry)
	return entry, nil
}

func (c *RedisReadCache) fill(ctx context.Context, rk string, entry Entry) {
	raw, err := json.Marshal(cachedEntry{
		Artifact:          entry.Artifact,
		SourceHash:        entry.SourceHash.Hex(),
		GovernanceVersion: entry.GovernanceVersion,
		EngineTag:         entry.EngineTag,
	})
	if err != nil {
		return
	}
	// Best-effort: a cache-fill failure only costs a future cache miss,
	// never correctness.
	_ = c.rdb.Set(ctx, rk, raw, c.ttl).Err()
}

// Put implements Store.
func (c *RedisReadCache) Put(ctx context.Context, key Key, entry Entry) error {
	if err := c.inner.Put(ctx, key, entry); err != nil {
		return err
	}
	_ = c.rdb.Del(ctx, redisKey(key)).Err()
	return nil
}

// GetGovernance implements Store.
func (c *RedisReadCache) GetGovernance(ctx context.Context) (Entry, error) {
	return c.Get(ctx, GovernanceKey())
}

// PutGovernance implements Store.
func (c *RedisReadCache) PutGovernance(ctx context.Context, entry Entry) error {
	return c.Put(ctx, GovernanceKey(), entry)
}
