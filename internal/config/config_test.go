package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfig() Config {
	cfg := Config{
		Embedding: EmbeddingConfig{APIKey: "sk-test"},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.Port != 5050 {
		t.Errorf("expected Port=5050, got %d", cfg.HTTP.Port)
	}
	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.ShutdownSec != 10 {
		t.Errorf("expected ShutdownSec=10, got %d", cfg.HTTP.ShutdownSec)
	}
	if len(cfg.HTTP.CORSOrigins) != 1 || cfg.HTTP.CORSOrigins[0] != "*" {
		t.Errorf("expected CORS origins [*], got %v", cfg.HTTP.CORSOrigins)
	}
	if cfg.Database.Driver != DriverSQLite {
		t.Errorf("expected Driver=sqlite, got %q", cfg.Database.Driver)
	}
	if cfg.Database.Collection != "guitar_routines" {
		t.Errorf("expected Collection=guitar_routines, got %q", cfg.Database.Collection)
	}
	if cfg.Database.Qdrant.Port != 6334 {
		t.Errorf("expected Qdrant.Port=6334, got %d", cfg.Database.Qdrant.Port)
	}
	if cfg.Embedding.Model != "text-embedding-3-small" {
		t.Errorf("expected default model, got %q", cfg.Embedding.Model)
	}
	if cfg.Embedding.MaxBatchSize != 256 {
		t.Errorf("expected MaxBatchSize=256, got %d", cfg.Embedding.MaxBatchSize)
	}
	if cfg.Search.DefaultTopN != 5 || cfg.Search.DefaultMinScore != 0.3 {
		t.Errorf("unexpected search defaults %+v", cfg.Search)
	}
	if cfg.CLI.MinScore != 1.0 {
		t.Errorf("expected CLI MinScore=1.0, got %v", cfg.CLI.MinScore)
	}
	if cfg.Routines.File != "routines/routines.json" {
		t.Errorf("unexpected routines file %q", cfg.Routines.File)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:     HTTPConfig{Port: 8080, ReadTimeoutSec: 3},
		Database: DatabaseConfig{Driver: DriverRedis, Collection: "mine", KeyPrefix: "x:"},
		Search:   SearchConfig{DefaultTopN: 9, DefaultMinScore: 0.8},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.Port != 8080 || cfg.HTTP.ReadTimeoutSec != 3 {
		t.Errorf("HTTP settings overridden: %+v", cfg.HTTP)
	}
	if cfg.Database.Driver != DriverRedis || cfg.Database.Collection != "mine" || cfg.Database.KeyPrefix != "x:" {
		t.Errorf("database settings overridden: %+v", cfg.Database)
	}
	if cfg.Search.DefaultTopN != 9 || cfg.Search.DefaultMinScore != 0.8 {
		t.Errorf("search settings overridden: %+v", cfg.Search)
	}
}

func TestApplyDefaults_DropsEmptyAPIKeys(t *testing.T) {
	cfg := Config{Auth: AuthConfig{APIKeys: []string{"", " key-1 ", ""}}}
	cfg.ApplyDefaults()

	if len(cfg.Auth.APIKeys) != 1 || cfg.Auth.APIKeys[0] != "key-1" {
		t.Errorf("expected [key-1], got %v", cfg.Auth.APIKeys)
	}
}

func TestValidate_Valid(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid port", func(c *Config) { c.HTTP.Port = 70000 }, "http.port"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "chroma" }, "database.driver"},
		{"redis without addrs", func(c *Config) { c.Database.Driver = DriverRedis }, "database.addrs"},
		{"valkey without addrs", func(c *Config) { c.Database.Driver = DriverValkey }, "database.addrs"},
		{"sqlite without path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"missing api key", func(c *Config) { c.Embedding.APIKey = "" }, "embedding.api_key"},
		{"negative rate", func(c *Config) { c.Embedding.RequestsPerSecond = -1 }, "requests_per_second"},
		{"cache without redis", func(c *Config) { c.Embedding.Cache.Enabled = true }, "embedding.cache"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = -1
	cfg.Embedding.APIKey = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"http.port", "embedding.api_key"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}

func TestValidate_CacheWithRedis(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Driver = DriverRedis
	cfg.Database.Addrs = []string{"localhost:6379"}
	cfg.Embedding.Cache.Enabled = true

	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("ROUTINES_TEST_KEY", "sk-from-env")
	t.Setenv("ROUTINES_TEST_DRIVER", "")

	cfg, err := Parse([]byte(`
http:
  port: 6060
database:
  driver: ${ROUTINES_TEST_DRIVER:-sqlite}
  path: ${ROUTINES_TEST_PATH:-tmp/test.db}
embedding:
  api_key: ${ROUTINES_TEST_KEY}
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 6060 {
		t.Errorf("expected port 6060, got %d", cfg.HTTP.Port)
	}
	if cfg.Database.Driver != DriverSQLite || cfg.Database.Path != "tmp/test.db" {
		t.Errorf("defaults not expanded: %+v", cfg.Database)
	}
	if cfg.Embedding.APIKey != "sk-from-env" {
		t.Errorf("expected api key from env, got %q", cfg.Embedding.APIKey)
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse([]byte("http: [")); err == nil {
		t.Error("expected YAML error")
	}
	if _, err := Parse([]byte("http:\n  port: 1\n")); err == nil {
		t.Error("expected validation error for missing api key")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("does-not-exist")
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestLoad_ShippedConfigs(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	for _, env := range []string{"local", "prod"} {
		t.Run(env, func(t *testing.T) {
			path := filepath.Join("..", "..", "config", env+".yaml")
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("read %s: %v", path, err)
			}
			if _, err := Parse(data); err != nil {
				t.Fatalf("parse %s: %v", path, err)
			}
		})
	}
}

func TestSummary_MasksKey(t *testing.T) {
	cfg := validConfig()
	cfg.Embedding.APIKey = "sk-abcdef1234"

	s := cfg.Summary()
	if s["embedding_api_key"] != "***1234" {
		t.Errorf("expected masked key, got %v", s["embedding_api_key"])
	}

	cfg.Embedding.APIKey = ""
	if got := cfg.Summary()["embedding_api_key"]; got != "NOT SET" {
		t.Errorf("expected NOT SET, got %v", got)
	}
}
