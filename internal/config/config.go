package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/oktsec/wafwatch/internal/safefile"
	"gopkg.in/yaml.v3"
)

// Storage engines accepted by server.store.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Config is the top-level wafwatch configuration.
type Config struct {
	Version   string          `yaml:"version"`
	LogLevel  string          `yaml:"log_level"`
	Backend   BackendConfig   `yaml:"backend"`
	Poll      PollConfig      `yaml:"poll"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Server    ServerConfig    `yaml:"server"`
	Simulate  SimulateConfig  `yaml:"simulate"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// BackendConfig points the client at a telemetry backend.
type BackendConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"` // per-request HTTP timeout
}

// PollConfig drives the poll controller.
type PollConfig struct {
	Interval    time.Duration `yaml:"interval"`
	EventLimit  int           `yaml:"event_limit"`
	AutoRefresh bool          `yaml:"auto_refresh"`
	Push        bool          `yaml:"push"` // follow the backend's websocket stream as well
}

// DashboardConfig holds browser dashboard settings.
type DashboardConfig struct {
	Port        int    `yaml:"port"`
	Bind        string `yaml:"bind"` // Address to bind (default: 127.0.0.1)
	ShowStale   bool   `yaml:"show_stale"`
	PlainLabels bool   `yaml:"plain_labels"`
}

// ServerConfig holds reference backend settings.
type ServerConfig struct {
	Port        int    `yaml:"port"`
	Bind        string `yaml:"bind"`
	Store       string `yaml:"store"`     // memory, sqlite, redis, postgres
	Retention   int    `yaml:"retention"` // events kept before the oldest are dropped
	SQLitePath  string `yaml:"sqlite_path,omitempty"`
	RedisAddr   string `yaml:"redis_addr,omitempty"`
	RedisPrefix string `yaml:"redis_prefix,omitempty"`
	PostgresURL string `yaml:"postgres_url,omitempty"`
}

// SimulateConfig paces the traffic simulator.
type SimulateConfig struct {
	Rate        float64 `yaml:"rate"` // reports per second
	Burst       int     `yaml:"burst"`
	Attempts    uint    `yaml:"attempts"`
	BlockedRate float64 `yaml:"blocked_rate"` // fraction of generated reports that are blocked
}

// TracingConfig toggles the stdout span exporter.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// maxConfigBytes caps the config file size.
const maxConfigBytes = 1 << 20

// Load reads and parses a wafwatch config file. Fields absent from the
// file keep their default values.
func Load(path string) (*Config, error) {
	data, err := safefile.ReadLimited(path, maxConfigBytes)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Apply zero-value defaults after unmarshal
	if cfg.Poll.EventLimit == 0 {
		cfg.Poll.EventLimit = 50
	}
	if cfg.Server.Retention == 0 {
		cfg.Server.Retention = 1000
	}

	return cfg, nil
}

// LoadOrDefaults loads path, falling back to defaults when the file does
// not exist. Parse errors are still returned.
func LoadOrDefaults(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Defaults(), nil
	}
	return cfg, err
}

// Defaults returns a config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Version:  "1",
		LogLevel: "info",
		Backend: BackendConfig{
			URL:     "http://localhost:5000/api",
			Timeout: 10 * time.Second,
		},
		Poll: PollConfig{
			Interval:    2 * time.Second,
			EventLimit:  50,
			AutoRefresh: true,
		},
		Dashboard: DashboardConfig{
			Port: 8080,
		},
		Server: ServerConfig{
			Port:        5000,
			Store:       StoreMemory,
			Retention:   1000,
			SQLitePath:  "wafwatch.db",
			RedisAddr:   "localhost:6379",
			RedisPrefix: "wafwatch",
		},
		Simulate: SimulateConfig{
			Rate:        2,
			Burst:       1,
			Attempts:    3,
			BlockedRate: 0.3,
		},
	}
}

// Save writes the config to a YAML file at the given path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Validate checks that the config is consistent.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Backend.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid backend url: %q", c.Backend.URL)
	}
	if c.Backend.Timeout < 0 {
		return fmt.Errorf("invalid backend timeout: %s", c.Backend.Timeout)
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("invalid poll interval: %s", c.Poll.Interval)
	}
	if c.Poll.EventLimit < 1 {
		return fmt.Errorf("invalid event_limit: %d", c.Poll.EventLimit)
	}
	if c.Dashboard.Port < 1 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("invalid dashboard port: %d", c.Dashboard.Port)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.Retention < 1 {
		return fmt.Errorf("invalid retention: %d", c.Server.Retention)
	}
	switch c.Server.Store {
	case StoreMemory:
	case StoreSQLite:
		if c.Server.SQLitePath == "" {
			return fmt.Errorf("sqlite_path is required when store is sqlite")
		}
	case StoreRedis:
		if c.Server.RedisAddr == "" {
			return fmt.Errorf("redis_addr is required when store is redis")
		}
	case StorePostgres:
		if c.Server.PostgresURL == "" {
			return fmt.Errorf("postgres_url is required when store is postgres")
		}
	default:
		return fmt.Errorf("unknown store %q", c.Server.Store)
	}
	if c.Simulate.BlockedRate < 0 || c.Simulate.BlockedRate > 1 {
		return fmt.Errorf("blocked_rate must be within [0,1], got %v", c.Simulate.BlockedRate)
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return nil
}

// Level maps log_level to a slog level. Unknown values mean info.
func (c *Config) Level() slog.Level {
	level := slog.LevelInfo
	switch c.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return level
}

// Logger returns a text logger on stderr at the configured level.
func (c *Config) Logger() *slog.Logger {
	return c.LoggerTo(os.Stderr)
}

// LoggerTo is Logger with a caller-chosen destination. The terminal
// dashboard uses it to keep log lines off the screen it draws.
func (c *Config) LoggerTo(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: c.Level()}))
}
