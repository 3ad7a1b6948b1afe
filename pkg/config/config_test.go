package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taple-mesh/node/pkg/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "1", cfg.SDKVersion)
	assert.Empty(t, cfg.S3Bucket)
	assert.Empty(t, cfg.RedisAddr)
}

func TestLoadS3AndRedisEnvOverride(t *testing.T) {
	t.Setenv("NODE_S3_BUCKET", "node-contracts")
	t.Setenv("NODE_S3_REGION", "us-east-1")
	t.Setenv("NODE_S3_ENDPOINT", "http://localhost:9000")
	t.Setenv("NODE_S3_INLINE_THRESHOLD", "4096")
	t.Setenv("NODE_REDIS_ADDR", "localhost:6379")
	t.Setenv("NODE_REDIS_TTL", "30s")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "node-contracts", cfg.S3Bucket)
	assert.Equal(t, "us-east-1", cfg.S3Region)
	assert.Equal(t, "http://localhost:9000", cfg.S3Endpoint)
	assert.Equal(t, 4096, cfg.S3InlineThreshold)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 30*time.Second, cfg.RedisTTL)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("NODE_HTTP_ADDR", ":9090")
	t.Setenv("NODE_LOG_LEVEL", "DEBUG")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
}

func TestLoadYAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sdk_version: "2"
rate_limit_per_sec: 5
rate_burst: 10
schema_path: /etc/node/schemas
s3_bucket: overlay-bucket
redis_addr: redis.internal:6379
redis_ttl: 1m
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "2", cfg.SDKVersion)
	assert.Equal(t, float64(5), cfg.RateLimitPerSec)
	assert.Equal(t, 10, cfg.RateBurst)
	assert.Equal(t, "/etc/node/schemas", cfg.SchemaPath)
	assert.Equal(t, "overlay-bucket", cfg.S3Bucket)
	assert.Equal(t, "redis.internal:6379", cfg.RedisAddr)
	assert.Equal(t, time.Minute, cfg.RedisTTL)
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "1", cfg.SDKVersion)
}
