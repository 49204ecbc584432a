// Package config loads per-environment YAML configuration.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Supported database drivers.
const (
	DriverRedis  = "redis"
	DriverValkey = "valkey"
	DriverQdrant = "qdrant"
	DriverSQLite = "sqlite"
)

// Config holds the practice routines service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	CLI       CLIConfig       `yaml:"cli"`
	Routines  RoutinesConfig  `yaml:"routines"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings. No keys means no auth.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	ReadTimeoutSec  int      `yaml:"read_timeout_sec"`
	WriteTimeoutSec int      `yaml:"write_timeout_sec"`
	ShutdownSec     int      `yaml:"shutdown_timeout_sec"`
	CORSOrigins     []string `yaml:"cors_origins"` // "*" allows any origin
}

// DatabaseConfig holds vector store settings. Which fields matter depends on Driver.
type DatabaseConfig struct {
	Driver           string       `yaml:"driver"` // redis, valkey, qdrant, sqlite (default: sqlite)
	Addrs            []string     `yaml:"addrs"`
	Password         string       `yaml:"password"`
	Path             string       `yaml:"path"`
	Collection       string       `yaml:"collection"`
	KeyPrefix        string       `yaml:"key_prefix"`
	HNSWM            int          `yaml:"hnsw_m"`
	HNSWEFConstruct  int          `yaml:"hnsw_ef_construction"`
	Qdrant           QdrantConfig `yaml:"qdrant"`
	ReadinessTimeout int          `yaml:"readiness_timeout_sec"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
	UseTLS bool   `yaml:"use_tls"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	APIKey            string      `yaml:"api_key"`
	BaseURL           string      `yaml:"base_url"`
	Provider          string      `yaml:"provider"`
	Model             string      `yaml:"model"`
	Dimensions        int         `yaml:"dimensions"`
	MaxBatchSize      int         `yaml:"max_batch_size"`
	BatchConcurrency  int         `yaml:"batch_concurrency"`
	RequestsPerSecond float64     `yaml:"requests_per_second"` // 0 = unlimited
	Cache             CacheConfig `yaml:"cache"`
}

// CacheConfig controls the embedding cache. It needs a redis or valkey database.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
	TTLSec  int  `yaml:"ttl_sec"` // 0 = no expiry
}

// SearchConfig holds HTTP semantic search defaults.
type SearchConfig struct {
	DefaultTopN     int     `yaml:"default_top_n"`
	DefaultMinScore float64 `yaml:"default_min_score"`
}

// CLIConfig holds interactive CLI settings.
type CLIConfig struct {
	TopN     int     `yaml:"top_n"`
	MinScore float64 `yaml:"min_score"`
}

// RoutinesConfig locates the routines file used by builds.
type RoutinesConfig struct {
	File string `yaml:"file"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
// A .env file in the working directory, if present, is loaded into the
// process environment first; variables already set win.
func Load(env string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse expands ${VAR} references in data, decodes it, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Host == "" {
		c.HTTP.Host = "127.0.0.1"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 5050
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if len(c.HTTP.CORSOrigins) == 0 {
		c.HTTP.CORSOrigins = []string{"*"}
	}

	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	if c.Database.Collection == "" {
		c.Database.Collection = "guitar_routines"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/routines.db"
	}
	if c.Database.KeyPrefix == "" {
		c.Database.KeyPrefix = "routines:"
	}
	if c.Database.HNSWM <= 0 {
		c.Database.HNSWM = 16
	}
	if c.Database.HNSWEFConstruct <= 0 {
		c.Database.HNSWEFConstruct = 200
	}
	if c.Database.Qdrant.Host == "" {
		c.Database.Qdrant.Host = "localhost"
	}
	if c.Database.Qdrant.Port <= 0 {
		c.Database.Qdrant.Port = 6334
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.MaxBatchSize <= 0 {
		c.Embedding.MaxBatchSize = 256
	}
	if c.Embedding.BatchConcurrency <= 0 {
		c.Embedding.BatchConcurrency = 4
	}

	if c.Search.DefaultTopN <= 0 {
		c.Search.DefaultTopN = 5
	}
	if c.Search.DefaultMinScore == 0 {
		c.Search.DefaultMinScore = 0.3
	}
	if c.CLI.TopN <= 0 {
		c.CLI.TopN = 5
	}
	if c.CLI.MinScore == 0 {
		c.CLI.MinScore = 1.0
	}
	if c.Routines.File == "" {
		c.Routines.File = "routines/routines.json"
	}

	// an unset ${API_KEY} expands to ""
	keys := c.Auth.APIKeys[:0]
	for _, k := range c.Auth.APIKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	c.Auth.APIKeys = keys
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	var errs []error

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port))
	}

	switch c.Database.Driver {
	case DriverRedis, DriverValkey:
		if len(c.Database.Addrs) == 0 {
			errs = append(errs, errors.New("database.addrs is required for redis and valkey"))
		}
	case DriverQdrant:
	case DriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf(
			"database.driver must be one of redis, valkey, qdrant, sqlite, got %q", c.Database.Driver))
	}
	if c.Database.Collection == "" {
		errs = append(errs, errors.New("database.collection cannot be empty"))
	}

	if c.Embedding.APIKey == "" {
		errs = append(errs, errors.New("embedding.api_key is required, set OPENAI_API_KEY"))
	}
	if c.Embedding.Dimensions < 0 {
		errs = append(errs, fmt.Errorf("embedding.dimensions must not be negative, got %d", c.Embedding.Dimensions))
	}
	if c.Embedding.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf(
			"embedding.requests_per_second must not be negative, got %v", c.Embedding.RequestsPerSecond))
	}
	if c.Embedding.Cache.Enabled &&
		c.Database.Driver != DriverRedis && c.Database.Driver != DriverValkey {
		errs = append(errs, errors.New("embedding.cache requires the redis or valkey driver"))
	}

	if math.IsNaN(c.Search.DefaultMinScore) || math.IsNaN(c.CLI.MinScore) {
		errs = append(errs, errors.New("min_score must be a number"))
	}

	return errors.Join(errs...)
}

// Summary returns the effective settings with secrets masked, for logging.
func (c *Config) Summary() map[string]any {
	return map[string]any{
		"database_driver":   c.Database.Driver,
		"collection":        c.Database.Collection,
		"database_path":     c.Database.Path,
		"database_addrs":    c.Database.Addrs,
		"embedding_api_key": mask(c.Embedding.APIKey),
		"embedding_model":   c.Embedding.Model,
		"embedding_cache":   c.Embedding.Cache.Enabled,
		"http_addr":         fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port),
		"cors_origins":      c.HTTP.CORSOrigins,
		"routines_file":     c.Routines.File,
		"auth_keys":         len(c.Auth.APIKeys),
	}
}

// mask keeps the last four characters of a secret.
func mask(secret string) string {
	if secret == "" {
		return "NOT SET"
	}
	if len(secret) <= 4 {
		return "***"
	}
	return "***" + secret[len(secret)-4:]
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
