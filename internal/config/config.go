package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/kode4food/timebox"

	"github.com/kode4food/flownode/internal/store/redisstore"
	"github.com/kode4food/flownode/pkg/api"
)

type (
	// Config holds configuration settings for the flow-node engine
	Config struct {
		// API Server
		APIHost  string
		APIPort  int
		LogLevel string

		// Stores & Archiving
		Store          StoreConfig
		Archive        ArchiveConfig
		DefinitionsDir string

		// Engine
		Workers         int
		RecoveryWorkers int
		Retry           api.RetryConfig
		ShutdownTimeout time.Duration
	}

	// StoreConfig selects and configures the persistence backend
	StoreConfig struct {
		Driver    string
		Ledger    timebox.StoreConfig
		CacheSize int
		Redis     redisstore.Config
		BoltPath  string
	}

	// ArchiveConfig locates the blob bucket finished processes are written
	// to. An empty BucketURL disables archiving
	ArchiveConfig struct {
		BucketURL string
		Prefix    string
	}
)

const (
	StoreTimebox = "timebox"
	StoreRedis   = "redis"
	StoreBolt    = "bolt"
)

const (
	DefaultShutdownTimeout = 10 * time.Second

	DefaultAPIPort = 8080
	DefaultAPIHost = "0.0.0.0"
	MaxTCPPort     = 65535
	DefaultRedisDB = 0

	DefaultRedisEndpoint       = "localhost:6379"
	DefaultRedisPrefix         = "flownode"
	DefaultSnapshotWorkers     = 4
	DefaultSnapshotQueueSize   = 1000
	DefaultSnapshotSaveTimeout = 30 * time.Second
	DefaultCacheSize           = 4096
	DefaultBoltPath            = "flownode.db"
	DefaultArchivePrefix       = "processes/"

	DefaultWorkers         = 8
	DefaultRecoveryWorkers = 16
	MaxWorkers             = 4096
	MaxCacheSize           = 1_000_000

	DefaultRetryMaxRetries  = 10
	DefaultRetryInitBackoff = 50
	DefaultMaxRetryBackoff  = 5000
	DefaultRetryBackoffType = api.BackoffTypeExponential

	MaxRetryMaxRetries  = 1000
	MaxRetryInitBackoff = 60 * 60 * 1000 // 1 hour in ms
	MaxRetryMaxBackoff  = MaxRetryInitBackoff
	MaxShutdownTimeout  = 10 * time.Minute
)

var (
	ErrInvalidAPIPort         = errors.New("invalid API port")
	ErrInvalidStoreDriver     = errors.New("invalid store driver")
	ErrInvalidWorkers         = errors.New("engine workers must be positive")
	ErrInvalidRecoveryWorkers = errors.New(
		"recovery workers must be positive",
	)
	ErrInvalidRetryMaxRetries = errors.New(
		"retry max retries cannot be zero",
	)
	ErrInvalidRetryInitBackoff = errors.New(
		"retry initial backoff must be positive",
	)
	ErrInvalidRetryMaxBackoff = errors.New(
		"retry max backoff must be positive",
	)
	ErrRetryMaxBackoffTooSmall = errors.New(
		"retry max backoff must be >= retry initial backoff",
	)
	ErrInvalidRetryBackoffType = errors.New("invalid retry backoff type")
	ErrMissingRedisAddr        = errors.New("redis store requires an address")
	ErrInvalidCacheSize        = errors.New("cache size must be positive")
	ErrMissingBoltPath         = errors.New("bolt store requires a file path")
)

// NewDefaultConfig creates a configuration with sensible defaults for the
// engine, stores, and retry behavior
func NewDefaultConfig() *Config {
	return &Config{
		APIPort: DefaultAPIPort,
		APIHost: DefaultAPIHost,
		Store: StoreConfig{
			Driver: StoreTimebox,
			Ledger: timebox.StoreConfig{
				Addr:         DefaultRedisEndpoint,
				DB:           DefaultRedisDB,
				Prefix:       DefaultRedisPrefix,
				WorkerCount:  DefaultSnapshotWorkers,
				MaxQueueSize: DefaultSnapshotQueueSize,
				SaveTimeout:  DefaultSnapshotSaveTimeout,
			},
			CacheSize: DefaultCacheSize,
			Redis: redisstore.Config{
				Addr:   DefaultRedisEndpoint,
				DB:     DefaultRedisDB,
				Prefix: DefaultRedisPrefix,
			},
			BoltPath: DefaultBoltPath,
		},
		Archive: ArchiveConfig{
			Prefix: DefaultArchivePrefix,
		},
		Workers:         DefaultWorkers,
		RecoveryWorkers: DefaultRecoveryWorkers,
		Retry: api.RetryConfig{
			MaxRetries:  DefaultRetryMaxRetries,
			InitBackoff: DefaultRetryInitBackoff,
			MaxBackoff:  DefaultMaxRetryBackoff,
			BackoffType: DefaultRetryBackoffType,
		},
		ShutdownTimeout: DefaultShutdownTimeout,
		LogLevel:        "info",
	}
}

// LoadFromEnv populates configuration values from environment variables.
// Returns an error if any env var cannot be parsed
func (c *Config) LoadFromEnv() error {
	loadEnvString("API_HOST", &c.APIHost)
	loadEnvString("LOG_LEVEL", &c.LogLevel)
	loadEnvString("STORE_DRIVER", &c.Store.Driver)
	loadEnvString("STORE_REDIS_ADDR", &c.Store.Redis.Addr)
	loadEnvString("STORE_REDIS_PASSWORD", &c.Store.Redis.Password)
	loadEnvString("STORE_REDIS_PREFIX", &c.Store.Redis.Prefix)
	loadEnvString("STORE_BOLT_PATH", &c.Store.BoltPath)
	LoadStoreConfigFromEnv(&c.Store.Ledger, "LEDGER")
	loadEnvString("ARCHIVE_BUCKET_URL", &c.Archive.BucketURL)
	loadEnvString("ARCHIVE_PREFIX", &c.Archive.Prefix)
	loadEnvString("DEFINITIONS_DIR", &c.DefinitionsDir)
	loadEnvString("RETRY_BACKOFF_TYPE", &c.Retry.BackoffType)

	if err := loadEnvInt("API_PORT", &c.APIPort, 0, MaxTCPPort); err != nil {
		return err
	}
	if err := loadEnvInt(
		"STORE_REDIS_DB", &c.Store.Redis.DB, -1, 15,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"LEDGER_CACHE_SIZE", &c.Store.CacheSize, 0, MaxCacheSize,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"ENGINE_WORKERS", &c.Workers, 0, MaxWorkers,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"RECOVERY_WORKERS", &c.RecoveryWorkers, 0, MaxWorkers,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"RETRY_MAX_RETRIES", &c.Retry.MaxRetries, -2, MaxRetryMaxRetries,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"RETRY_INITIAL_BACKOFF", &c.Retry.InitBackoff, 0, MaxRetryInitBackoff,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"RETRY_MAX_BACKOFF", &c.Retry.MaxBackoff, 0, MaxRetryMaxBackoff,
	); err != nil {
		return err
	}
	if s := os.Getenv("SHUTDOWN_TIMEOUT"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 || d > MaxShutdownTimeout {
			return fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %q", s)
		}
		c.ShutdownTimeout = d
	}

	return nil
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.APIPort <= 0 || c.APIPort > MaxTCPPort {
		return fmt.Errorf("%w: %d", ErrInvalidAPIPort, c.APIPort)
	}

	switch c.Store.Driver {
	case StoreTimebox:
		if c.Store.Ledger.Addr == "" {
			return ErrMissingRedisAddr
		}
		if c.Store.CacheSize <= 0 {
			return ErrInvalidCacheSize
		}
	case StoreRedis:
		if c.Store.Redis.Addr == "" {
			return ErrMissingRedisAddr
		}
	case StoreBolt:
		if c.Store.BoltPath == "" {
			return ErrMissingBoltPath
		}
	default:
		return fmt.Errorf("%w: %s", ErrInvalidStoreDriver, c.Store.Driver)
	}

	if c.Workers <= 0 {
		return ErrInvalidWorkers
	}

	if c.RecoveryWorkers <= 0 {
		return ErrInvalidRecoveryWorkers
	}

	return ValidateRetry(&c.Retry)
}

// ValidateRetry checks that a retry configuration is usable. A negative
// MaxRetries means retry forever
func ValidateRetry(r *api.RetryConfig) error {
	if r.MaxRetries == 0 {
		return ErrInvalidRetryMaxRetries
	}

	if r.InitBackoff <= 0 {
		return ErrInvalidRetryInitBackoff
	}

	if r.MaxBackoff <= 0 {
		return ErrInvalidRetryMaxBackoff
	}

	if r.MaxBackoff < r.InitBackoff {
		return ErrRetryMaxBackoffTooSmall
	}

	if !api.IsValidBackoffType(r.BackoffType) {
		return fmt.Errorf("%w: %s", ErrInvalidRetryBackoffType, r.BackoffType)
	}

	return nil
}

// LoadStoreConfigFromEnv loads timebox store settings from environment
// variables with the given prefix (e.g., "LEDGER")
func LoadStoreConfigFromEnv(s *timebox.StoreConfig, prefix string) {
	loadEnvString(prefix+"_REDIS_ADDR", &s.Addr)
	loadEnvString(prefix+"_REDIS_PASSWORD", &s.Password)
	loadEnvString(prefix+"_REDIS_PREFIX", &s.Prefix)
	if dbStr := os.Getenv(prefix + "_REDIS_DB"); dbStr != "" {
		if db, err := strconv.Atoi(dbStr); err == nil {
			s.DB = db
		}
	}
	if envCount := os.Getenv(prefix + "_SNAPSHOT_WORKERS"); envCount != "" {
		if wc, err := strconv.Atoi(envCount); err == nil && wc >= 0 {
			s.WorkerCount = wc
		}
	}
}

func loadEnvString(key string, dst *string) {
	if s := os.Getenv(key); s != "" {
		*dst = s
	}
}

// loadEnvInt reads key from the environment, parses it as an integer, and
// sets *dst if the value is in the range (min, max]. Returns an error if
// the value cannot be parsed or falls outside the valid range
func loadEnvInt[T ~int | ~int64](key string, dst *T, min, max T) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	tv := T(v)
	if tv <= min || tv > max {
		return fmt.Errorf("invalid %s: %d out of range [%d, %d]",
			key, tv, min+1, max)
	}
	*dst = tv
	return nil
}
