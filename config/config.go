// Package config loads tagcache settings from YAML or JSON with koanf and
// turns them into cache.Options and a durable.Store.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/IvanBrykalov/tagcache/cache"
)

var (
	// ErrEmptyPath is returned by Load for an empty path.
	ErrEmptyPath = errors.New("config: empty config path")
	// ErrUnsupportedFormat is returned for anything but YAML or JSON.
	ErrUnsupportedFormat = errors.New("config: unsupported config format")
	// ErrLoadFailed wraps file read errors.
	ErrLoadFailed = errors.New("config: failed to load config")
	// ErrParseFailed wraps parser errors.
	ErrParseFailed = errors.New("config: failed to parse config")
	// ErrInvalid wraps validation failures.
	ErrInvalid = errors.New("config: invalid config")
)

// Format is a config file format.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Persistence backends.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Value codecs.
const (
	CodecNone = ""
	CodecJSON = "json"
	CodecGob  = "gob"
	CodecZstd = "zstd"
)

// Eviction policies.
const (
	PolicyLRU = "lru"
	Policy2Q  = "2q"
)

// Config is the whole tagcache configuration. Durations accept Go syntax
// ("90s", "5m", "24h").
type Config struct {
	Cache       CacheConfig       `koanf:"cache"`
	Persistence PersistenceConfig `koanf:"persistence"`
	Log         LogConfig         `koanf:"log"`
	Metrics     MetricsConfig     `koanf:"metrics"`
	Server      ServerConfig      `koanf:"server"`
}

// CacheConfig maps onto cache.Options.
type CacheConfig struct {
	MaxSize       int           `koanf:"max_size"`
	DefaultTTL    time.Duration `koanf:"default_ttl"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
	// SweepCron, when set, schedules sweeps with a cron expression instead
	// of SweepInterval ("*/5 * * * *", "@every 90s").
	SweepCron string `koanf:"sweep_cron"`
	// Codec keeps values encoded in memory: "", "json", "gob" or "zstd".
	Codec string `koanf:"codec"`
	// Policy is "lru" (default) or "2q".
	Policy string `koanf:"policy"`
}

// PersistenceConfig selects and configures the durable store.
type PersistenceConfig struct {
	Backend string        `koanf:"backend"`
	Key     string        `koanf:"key"`
	Delay   time.Duration `koanf:"delay"`
	MaxAge  time.Duration `koanf:"max_age"`
	// Path is the directory for "file" and the database file for "sqlite".
	Path  string      `koanf:"path"`
	Redis RedisConfig `koanf:"redis"`
}

// RedisConfig configures the "redis" backend.
type RedisConfig struct {
	Addr       string        `koanf:"addr"`
	Password   string        `koanf:"password"`
	DB         int           `koanf:"db"`
	Prefix     string        `koanf:"prefix"`
	Expiration time.Duration `koanf:"expiration"`
}

// LogConfig configures internal/logging.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// MetricsConfig configures the Prometheus exporter.
type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Namespace string `koanf:"namespace"`
	Subsystem string `koanf:"subsystem"`
}

// ServerConfig configures the HTTP API of `tagcache serve`.
type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Default returns the configuration used when a field is not set.
func Default() Config {
	return Config{
		Cache: CacheConfig{
			MaxSize:       10_000,
			DefaultTTL:    cache.DefaultTTL,
			SweepInterval: cache.DefaultSweepInterval,
			Policy:        PolicyLRU,
		},
		Persistence: PersistenceConfig{
			Backend: BackendNone,
			Key:     cache.DefaultSnapshotKey,
			Delay:   cache.DefaultPersistDelay,
			MaxAge:  cache.DefaultMaxSnapshotAge,
		},
		Log: LogConfig{Level: "info", Format: "console"},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "tagcache",
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// Load reads path (format picked from its extension) over Default and validates it.
func Load(path string) (Config, error) {
	if path == "" {
		return Config{}, ErrEmptyPath
	}
	format, err := detectFormat(path)
	if err != nil {
		return Config{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	return Parse(data, format)
}

// Parse decodes data over Default and validates the result.
// Empty data yields the defaults.
func Parse(data []byte, format Format) (Config, error) {
	var parser koanf.Parser
	switch format {
	case FormatYAML:
		parser = yaml.Parser()
	case FormatJSON:
		parser = json.Parser()
	default:
		return Config{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	cfg := Default()
	if len(data) > 0 {
		k := koanf.New(".")
		if err := k.Load(rawbytes.Provider(data), parser); err != nil {
			return Config{}, fmt.Errorf("%w: %w", ErrParseFailed, err)
		}
		if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
			return Config{}, fmt.Errorf("%w: %w", ErrParseFailed, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	var errs []error
	if c.Cache.MaxSize <= 0 || c.Cache.MaxSize > cache.MaxEntries {
		errs = append(errs, fmt.Errorf("cache.max_size must be in 1..%d, got %d", cache.MaxEntries, c.Cache.MaxSize))
	}
	switch c.Cache.Codec {
	case CodecNone, CodecJSON, CodecGob, CodecZstd:
	default:
		errs = append(errs, fmt.Errorf("cache.codec: unknown codec %q", c.Cache.Codec))
	}
	switch c.Cache.Policy {
	case "", PolicyLRU, Policy2Q:
	default:
		errs = append(errs, fmt.Errorf("cache.policy: unknown policy %q", c.Cache.Policy))
	}
	if c.Persistence.Delay < 0 {
		errs = append(errs, errors.New("persistence.delay must not be negative"))
	}
	switch c.Persistence.Backend {
	case BackendNone, BackendMemory:
	case BackendFile, BackendSQLite:
		if c.Persistence.Path == "" {
			errs = append(errs, fmt.Errorf("persistence.path is required for backend %q", c.Persistence.Backend))
		}
	case BackendRedis:
		if c.Persistence.Redis.Addr == "" {
			errs = append(errs, errors.New("persistence.redis.addr is required for backend \"redis\""))
		}
	default:
		errs = append(errs, fmt.Errorf("persistence.backend: unknown backend %q", c.Persistence.Backend))
	}
	if c.Server.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

func detectFormat(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown extension %s", ErrUnsupportedFormat, ext)
	}
}
