// Package config loads BIBLE_* settings from the environment (and an
// optional .env file) and wires a ready Service from them.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	bible "github.com/JohnPlummer/jp-go-bible"
	"github.com/JohnPlummer/jp-go-bible/cache"
)

// EnvPrefix prefixes every variable read by Parse.
const EnvPrefix = "BIBLE_"

// Cache drivers.
const (
	DriverFile   = "file"
	DriverBolt   = "bolt"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// Retry presets.
const (
	PresetDefault    = "default"
	PresetAggressive = "aggressive"
)

// Config holds client, cache and retry settings.
type Config struct {
	Version   string        `env:"VERSION" envDefault:"nvi"`
	UserToken string        `env:"USER_TOKEN"`
	Timeout   time.Duration `env:"TIMEOUT" envDefault:"5s"`
	APIURL    string        `env:"API_URL" envDefault:"https://www.abibliadigital.com.br/api/"`

	Cache CacheConfig `envPrefix:"CACHE_"`
	Retry RetryConfig `envPrefix:"RETRY_"`

	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	// RateLimit is requests per second; 0 disables limiting.
	RateLimit float64 `env:"RATE_LIMIT" envDefault:"0"`
	RateBurst int     `env:"RATE_BURST" envDefault:"1"`

	CircuitBreaker bool `env:"CIRCUIT_BREAKER" envDefault:"false"`
}

// CacheConfig selects and tunes the cache store.
type CacheConfig struct {
	Enabled  bool          `env:"ENABLED" envDefault:"true"`
	TTL      time.Duration `env:"TTL" envDefault:"1h"`
	Driver   string        `env:"DRIVER" envDefault:"file"`
	Dir      string        `env:"DIR"`
	Compress bool          `env:"COMPRESS" envDefault:"false"`
}

// RetryConfig selects the retry policy.
type RetryConfig struct {
	Enabled bool   `env:"ENABLED" envDefault:"true"`
	Preset  string `env:"PRESET" envDefault:"default"`
}

// Load reads the given .env files (".env" when none are given; a missing
// file is not an error) and then parses the process environment.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return Parse(nil)
}

// Parse builds a Config from environ, or from the process environment when
// environ is nil, and validates it.
func Parse(environ map[string]string) (*Config, error) {
	opts := env.Options{
		Prefix: EnvPrefix,
		FuncMap: map[reflect.Type]env.ParserFunc{
			reflect.TypeOf(time.Duration(0)): parseDuration,
		},
	}
	if environ != nil {
		opts.Environment = environ
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// parseDuration accepts Go durations ("5s") and plain seconds ("5", "2.5").
func parseDuration(v string) (any, error) {
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return nil, fmt.Errorf("invalid duration %q", v)
	}
	return d, nil
}

// Validate rejects settings the client cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Version == "" {
		errs = append(errs, errors.New("version must not be empty"))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative, got %s", c.Timeout))
	}
	if c.APIURL == "" {
		errs = append(errs, errors.New("api url must not be empty"))
	}
	switch c.Cache.Driver {
	case DriverFile, DriverBolt, DriverRedis, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown cache driver %q", c.Cache.Driver))
	}
	switch c.Retry.Preset {
	case PresetDefault, PresetAggressive:
	default:
		errs = append(errs, fmt.Errorf("unknown retry preset %q", c.Retry.Preset))
	}
	if c.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("rate limit must not be negative, got %v", c.RateLimit))
	}
	return errors.Join(errs...)
}

// RetryPolicy returns the policy selected by the retry settings.
func (c *Config) RetryPolicy() bible.RetryPolicy {
	if !c.Retry.Enabled {
		return bible.DisabledRetryPolicy()
	}
	if c.Retry.Preset == PresetAggressive {
		return bible.AggressiveRetryPolicy()
	}
	return bible.DefaultRetryPolicy()
}

// OpenStore opens the configured cache store. The caller closes it when it
// implements io.Closer.
func (c *Config) OpenStore(ctx context.Context, logger *slog.Logger) (cache.Store, error) {
	if !c.Cache.Enabled {
		return cache.NewNullStore(), nil
	}

	opts := []cache.Option{cache.WithLogger(logger)}
	switch c.Cache.Driver {
	case DriverMemory:
		return cache.NewMemoryStore(opts...), nil
	case DriverFile:
		return cache.NewFileStore(c.Cache.Dir, append(opts, cache.WithCompression(c.Cache.Compress))...)
	case DriverBolt:
		dir := c.Cache.Dir
		if dir == "" {
			dir = cache.DefaultFileDir()
		}
		if err := ensureDir(dir); err != nil {
			return nil, err
		}
		return cache.OpenBoltStore(filepath.Join(dir, "bible.db"), opts...)
	case DriverRedis:
		return cache.DialRedis(ctx, c.RedisURL, opts...)
	default:
		return nil, fmt.Errorf("unknown cache driver %q", c.Cache.Driver)
	}
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	return nil
}

// Runtime is a wired client stack.
type Runtime struct {
	Client  *bible.Client
	Service *bible.Service
	Store   cache.Store
	Metrics *bible.Metrics
}

// Close releases the store and idle connections.
func (r *Runtime) Close() error {
	var errs []error
	if closer, ok := r.Store.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}
	errs = append(errs, r.Client.Close())
	return errors.Join(errs...)
}

// Build wires store, client and service. A nil reg disables metrics
// registration but still records them.
func (c *Config) Build(ctx context.Context, logger *slog.Logger, reg prometheus.Registerer) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, err := c.OpenStore(ctx, logger)
	if err != nil {
		return nil, fmt.Errorf("opening %s cache: %w", c.Cache.Driver, err)
	}

	metrics := bible.NewMetrics(reg)

	opts := []bible.ClientOption{
		bible.WithBaseURL(c.APIURL),
		bible.WithUserToken(c.UserToken),
		bible.WithTimeout(c.Timeout),
		bible.WithRetryPolicy(c.RetryPolicy()),
		bible.WithRateLimit(rate.Limit(c.RateLimit), c.RateBurst),
		bible.WithMetrics(metrics),
		bible.WithLogger(logger),
	}
	if c.CircuitBreaker {
		opts = append(opts, bible.WithCircuitBreaker(bible.WithCircuitBreakerLogger(logger)))
	}
	client := bible.NewClient(opts...)

	service := bible.NewService(client,
		bible.WithStore(store),
		bible.WithCacheTTL(c.Cache.TTL),
		bible.WithVersion(c.Version),
		bible.WithServiceLogger(logger),
		bible.WithServiceMetrics(metrics),
	)

	logger.Debug("bible client configured",
		"api_url", c.APIURL,
		"version", c.Version,
		"cache_driver", c.Cache.Driver,
		"cache_enabled", c.Cache.Enabled,
		"retry_enabled", c.Retry.Enabled)

	return &Runtime{Client: client, Service: service, Store: store, Metrics: metrics}, nil
}
