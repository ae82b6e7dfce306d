package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.JobSpy.BaseURL(); got != "http://127.0.0.1:9423" {
		t.Fatalf("expected default jobspy url, got %q", got)
	}
	if cfg.Postgres.Database != "n8n" || cfg.Postgres.User != "root" || cfg.Postgres.SSLMode != "disable" {
		t.Fatalf("unexpected postgres defaults: %+v", cfg.Postgres)
	}
	if cfg.Ingest.IDStrategy != "random" || cfg.Ingest.Strict {
		t.Fatalf("unexpected ingest defaults: %+v", cfg.Ingest)
	}
	if cfg.Schedule.LockTTL != 30*time.Minute {
		t.Fatalf("expected 30m lock ttl, got %v", cfg.Schedule.LockTTL)
	}
}

func TestLoadHistoricalEnvNames(t *testing.T) {
	t.Setenv("JOBSPY_HOST", "jobspy.internal")
	t.Setenv("JOBSPY_PORT", "9500")
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("POSTGRES_DB", "jobs")
	t.Setenv("POSTGRES_PASSWORD", "s3cret")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.JobSpy.BaseURL(); got != "http://jobspy.internal:9500" {
		t.Fatalf("expected env override of jobspy url, got %q", got)
	}
	dsn := cfg.Postgres.DSN()
	for _, want := range []string{"db.internal:5432", "/jobs", "root:s3cret@", "sslmode=disable"} {
		if !strings.Contains(dsn, want) {
			t.Fatalf("expected dsn %q to contain %q", dsn, want)
		}
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  auth:
    enabled: true
    api_key: secret
jobspy:
  host: 10.0.0.5
  port: 9999
  timeout_seconds: 90
postgres:
  schema: staging
  table: listings
ingest:
  strict: true
  id_strategy: content
archive:
  enabled: true
  backend: local
  base_dir: /tmp/jobspy
events:
  backend: none
schedule:
  lock_ttl: 5m
  searches:
    - name: frontend
      spec: "@every 6h"
      params: '{"searchTerm":"frontend developer","siteNames":"indeed","location":"remote"}'
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 || !cfg.Server.Auth.Enabled || cfg.Server.Auth.APIKey != "secret" {
		t.Fatalf("expected server overrides to apply: %+v", cfg.Server)
	}
	if cfg.JobSpy.BaseURL() != "http://10.0.0.5:9999" || cfg.JobSpy.Timeout() != 90*time.Second {
		t.Fatalf("expected jobspy overrides to apply: %+v", cfg.JobSpy)
	}
	if cfg.Postgres.Schema != "staging" || cfg.Postgres.Table != "listings" {
		t.Fatalf("expected postgres overrides to apply: %+v", cfg.Postgres)
	}
	if !cfg.Ingest.Strict || cfg.Ingest.IDStrategy != "content" {
		t.Fatalf("expected ingest overrides to apply: %+v", cfg.Ingest)
	}
	if len(cfg.Schedule.Searches) != 1 {
		t.Fatalf("expected one saved search, got %+v", cfg.Schedule.Searches)
	}
	params, err := cfg.Schedule.Searches[0].SearchParams()
	if err != nil {
		t.Fatalf("SearchParams() error = %v", err)
	}
	if params["searchTerm"] != "frontend developer" {
		t.Fatalf("expected camelCase key to survive, got %+v", params)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:   ServerConfig{Port: 8080},
		JobSpy:   JobSpyConfig{Host: "127.0.0.1", Port: 9423},
		Postgres: PostgresConfig{Port: 5432},
		Ingest:   IngestConfig{IDStrategy: "random"},
		Events:   EventsConfig{Backend: "memory"},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "auth missing api key",
			cfg: func() Config {
				c := base
				c.Server.Auth.Enabled = true
				return c
			}(),
			want: "server.auth.api_key",
		},
		{
			name: "jobspy port out of range",
			cfg: func() Config {
				c := base
				c.JobSpy.Port = 70000
				return c
			}(),
			want: "jobspy.port",
		},
		{
			name: "unknown id strategy",
			cfg: func() Config {
				c := base
				c.Ingest.IDStrategy = "hash"
				return c
			}(),
			want: "ingest.id_strategy",
		},
		{
			name: "gcs archive without bucket",
			cfg: func() Config {
				c := base
				c.Archive = ArchiveConfig{Enabled: true, Backend: "gcs"}
				return c
			}(),
			want: "archive.bucket",
		},
		{
			name: "redis events without addr",
			cfg: func() Config {
				c := base
				c.Events.Backend = "redis"
				return c
			}(),
			want: "redis.addr",
		},
		{
			name: "saved search with bad params",
			cfg: func() Config {
				c := base
				c.Schedule.Searches = []SavedSearch{{Name: "x", Spec: "@daily", Params: "{nope"}}
				return c
			}(),
			want: "schedule.searches[0]",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
