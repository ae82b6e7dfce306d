// Package config loads and validates ingestion configuration via Viper.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	JobSpy    JobSpyConfig    `mapstructure:"jobspy"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Events    EventsConfig    `mapstructure:"events"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Auth AuthConfig `mapstructure:"auth"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// JobSpyConfig locates the upstream search service.
type JobSpyConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// TimeoutSeconds of zero leaves the transport default in place.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// BaseURL renders the upstream origin, e.g. http://127.0.0.1:9423.
func (c JobSpyConfig) BaseURL() string {
	return "http://" + c.Host + ":" + strconv.Itoa(c.Port)
}

// Timeout converts TimeoutSeconds to a duration.
func (c JobSpyConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PostgresConfig controls access to the relational store.
type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"sslmode"`
	Schema          string        `mapstructure:"schema"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN builds a postgres:// connection string from the individual settings.
func (c PostgresConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   c.Host + ":" + strconv.Itoa(c.Port),
		Path:   "/" + c.Database,
	}
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// IngestConfig tunes record reconciliation.
type IngestConfig struct {
	// Strict aborts a batch on the first invalid record instead of skipping it.
	Strict bool `mapstructure:"strict"`
	// IDStrategy is "random" or "content".
	IDStrategy string `mapstructure:"id_strategy"`
}

// ArchiveConfig selects where raw upstream responses are kept.
type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Backend string `mapstructure:"backend"`
	Prefix  string `mapstructure:"prefix"`
	Bucket  string `mapstructure:"bucket"`
	BaseDir string `mapstructure:"base_dir"`
}

// EventsConfig selects where ingest summaries are published.
type EventsConfig struct {
	Backend   string `mapstructure:"backend"`
	Topic     string `mapstructure:"topic"`
	ProjectID string `mapstructure:"project_id"`
}

// RedisConfig is shared by the redis event backend and the scheduler lock.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ScheduleConfig lists saved searches run by the scheduler.
type ScheduleConfig struct {
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
	Searches []SavedSearch `mapstructure:"searches"`
}

// SavedSearch is one cron-driven search. Params holds a JSON object; Viper
// lowercases map keys, which would break camelCase search parameters.
type SavedSearch struct {
	Name   string `mapstructure:"name"`
	Spec   string `mapstructure:"spec"`
	Params string `mapstructure:"params"`
}

// SearchParams decodes Params. An empty string yields an empty object.
func (s SavedSearch) SearchParams() (map[string]any, error) {
	params := map[string]any{}
	if strings.TrimSpace(s.Params) == "" {
		return params, nil
	}
	if err := json.Unmarshal([]byte(s.Params), &params); err != nil {
		return nil, fmt.Errorf("decode params for search %q: %w", s.Name, err)
	}
	return params, nil
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TelemetryConfig toggles tracing.
type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
}

// envBindings keeps the historical variable names working alongside the
// JOBSPY_INGEST_ prefixed ones.
var envBindings = map[string]string{
	"jobspy.host":       "JOBSPY_HOST",
	"jobspy.port":       "JOBSPY_PORT",
	"postgres.host":     "POSTGRES_HOST",
	"postgres.port":     "POSTGRES_PORT",
	"postgres.database": "POSTGRES_DB",
	"postgres.user":     "POSTGRES_USER",
	"postgres.password": "POSTGRES_PASSWORD",
	"postgres.sslmode":  "POSTGRES_SSLMODE",
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("JOBSPY_INGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, "JOBSPY_INGEST_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.auth.enabled", false)
	v.SetDefault("jobspy.host", "127.0.0.1")
	v.SetDefault("jobspy.port", 9423)
	v.SetDefault("jobspy.timeout_seconds", 0)
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.database", "n8n")
	v.SetDefault("postgres.user", "root")
	v.SetDefault("postgres.password", "password")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.schema", "jobspy")
	v.SetDefault("postgres.table", "jobs")
	v.SetDefault("postgres.max_conns", 4)
	v.SetDefault("ingest.strict", false)
	v.SetDefault("ingest.id_strategy", "random")
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.backend", "memory")
	v.SetDefault("archive.prefix", "responses")
	v.SetDefault("events.backend", "memory")
	v.SetDefault("events.topic", "jobspy.ingested")
	v.SetDefault("redis.addr", "")
	v.SetDefault("schedule.lock_ttl", "30m")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("telemetry.service_name", "jobspy-ingest")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.Auth.Enabled && c.Server.Auth.APIKey == "" {
		return fmt.Errorf("server.auth.api_key must be set when auth is enabled")
	}
	if c.JobSpy.Host == "" {
		return fmt.Errorf("jobspy.host is required")
	}
	if c.JobSpy.Port <= 0 || c.JobSpy.Port > 65535 {
		return fmt.Errorf("jobspy.port must be between 1 and 65535")
	}
	if c.JobSpy.TimeoutSeconds < 0 {
		return fmt.Errorf("jobspy.timeout_seconds must be >= 0")
	}
	if c.Postgres.Port <= 0 {
		return fmt.Errorf("postgres.port must be > 0")
	}
	switch c.Ingest.IDStrategy {
	case "random", "content":
	default:
		return fmt.Errorf("ingest.id_strategy must be random or content, got %q", c.Ingest.IDStrategy)
	}
	if c.Archive.Enabled {
		switch c.Archive.Backend {
		case "memory":
		case "local":
			if c.Archive.BaseDir == "" {
				return fmt.Errorf("archive.base_dir must be set for the local backend")
			}
		case "gcs":
			if c.Archive.Bucket == "" {
				return fmt.Errorf("archive.bucket must be set for the gcs backend")
			}
		default:
			return fmt.Errorf("unknown archive.backend %q", c.Archive.Backend)
		}
	}
	switch c.Events.Backend {
	case "memory", "none":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr must be set for the redis events backend")
		}
	case "pubsub":
		if c.Events.ProjectID == "" {
			return fmt.Errorf("events.project_id must be set for the pubsub events backend")
		}
	default:
		return fmt.Errorf("unknown events.backend %q", c.Events.Backend)
	}
	for i, s := range c.Schedule.Searches {
		if s.Name == "" || s.Spec == "" {
			return fmt.Errorf("schedule.searches[%d] needs a name and a spec", i)
		}
		if _, err := s.SearchParams(); err != nil {
			return fmt.Errorf("schedule.searches[%d]: %w", i, err)
		}
	}
	return nil
}
