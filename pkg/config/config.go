// Package config loads node configuration from environment variables with
// an optional YAML file overlay for values that don't fit comfortably in
// env vars.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds node process configuration.
type Config struct {
	HTTPAddr      string
	LogLevel      string
	DatabaseURL   string
	ContractsPath string
	BuildCmd      string
	BuildArgs     []string

	SDKVersion      string
	RateLimitPerSec float64
	RateBurst       int
	SchemaPath      string

	OTLPEndpoint string
	OTLPInsecure bool

	// S3Bucket being empty disables the remote blob-offload decorator;
	// the contract cache is then SQL-only.
	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3Prefix          string
	S3InlineThreshold int

	// RedisAddr being empty disables the read-through cache decorator.
	RedisAddr string
	RedisTTL  time.Duration
}

// fileOverlay is the shape of the optional YAML config file, limited to
// the fields that don't fit comfortably as env vars.
type fileOverlay struct {
	SDKVersion      string  `yaml:"sdk_version"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateBurst       int     `yaml:"rate_burst"`
	SchemaPath      string  `yaml:"schema_path"`

	S3Bucket          string `yaml:"s3_bucket"`
	S3Region          string `yaml:"s3_region"`
	S3Endpoint        string `yaml:"s3_endpoint"`
	S3Prefix          string `yaml:"s3_prefix"`
	S3InlineThreshold int    `yaml:"s3_inline_threshold"`

	RedisAddr string `yaml:"redis_addr"`
	RedisTTL  string `yaml:"redis_ttl"`
}

// Load reads configuration from the environment, then applies a YAML
// overlay from path if it is non-empty and the file exists.
func Load(path string) (*Config, error) {
	httpAddr := os.Getenv("NODE_HTTP_ADDR")
	if httpAddr == "" {
		httpAddr = ":8080"
	}

	logLevel := os.Getenv("NODE_LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	dbURL := os.Getenv("NODE_DATABASE_URL")
	if dbURL == "" {
		dbURL = "postgres://node@localhost:5432/node?sslmode=disable"
	}

	contractsPath := os.Getenv("NODE_CONTRACTS_PATH")
	if contractsPath == "" {
		contractsPath = "/var/lib/taple-mesh/contracts"
	}

	buildCmd := os.Getenv("NODE_BUILD_CMD")
	if buildCmd == "" {
		buildCmd = "cargo"
	}

	otlpEndpoint := os.Getenv("NODE_OTLP_ENDPOINT")
	if otlpEndpoint == "" {
		otlpEndpoint = "localhost:4317"
	}

	s3Threshold := 0
	if v := os.Getenv("NODE_S3_INLINE_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s3Threshold = n
		}
	}

	redisTTL := time.Duration(0)
	if v := os.Getenv("NODE_REDIS_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			redisTTL = d
		}
	}

	cfg := &Config{
		HTTPAddr:          httpAddr,
		LogLevel:          logLevel,
		DatabaseURL:       dbURL,
		ContractsPath:     contractsPath,
		BuildCmd:          buildCmd,
		SDKVersion:        "1",
		RateLimitPerSec:   0,
		RateBurst:         1,
		OTLPEndpoint:      otlpEndpoint,
		OTLPInsecure:      os.Getenv("NODE_OTLP_INSECURE") == "true",
		S3Bucket:          os.Getenv("NODE_S3_BUCKET"),
		S3Region:          os.Getenv("NODE_S3_REGION"),
		S3Endpoint:        os.Getenv("NODE_S3_ENDPOINT"),
		S3Prefix:          os.Getenv("NODE_S3_PREFIX"),
		S3InlineThreshold: s3Threshold,
		RedisAddr:         os.Getenv("NODE_REDIS_ADDR"),
		RedisTTL:          redisTTL,
	}

	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var overlay fileOverlay
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if overlay.SDKVersion != "" {
		cfg.SDKVersion = overlay.SDKVersion
	}
	if overlay.RateLimitPerSec > 0 {
		cfg.RateLimitPerSec = overlay.RateLimitPerSec
	}
	if overlay.RateBurst > 0 {
		cfg.RateBurst = overlay.RateBurst
	}
	if overlay.SchemaPath != "" {
		cfg.SchemaPath = overlay.SchemaPath
	}
	if overlay.S3Bucket != "" {
		cfg.S3Bucket = overlay.S3Bucket
	}
	if overlay.S3Region != "" {
		cfg.S3Region = overlay.S3Region
	}
	if overlay.S3Endpoint != "" {
		cfg.S3Endpoint = overlay.S3Endpoint
	}
	if overlay.S3Prefix != "" {
		cfg.S3Prefix = overlay.S3Prefix
	}
	if overlay.S3InlineThreshold > 0 {
		cfg.S3InlineThreshold = overlay.S3InlineThreshold
	}
	if overlay.RedisAddr != "" {
		cfg.RedisAddr = overlay.RedisAddr
	}
	if overlay.RedisTTL != "" {
		if d, err := time.ParseDuration(overlay.RedisTTL); err == nil {
			cfg.RedisTTL = d
		}
	}

	return cfg, nil
}
