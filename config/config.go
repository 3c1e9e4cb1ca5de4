// Package config holds the configuration surface for the core engine:
// database backend selection, pool sizing, cache policy, and the dynamic
// CRUD table whitelist. It follows the flags-then-env-override pattern the
// rest of this codebase uses for its runnable demo.
package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/zigcms/core/cache"
	"github.com/zigcms/core/dynamicrud"
	"github.com/zigcms/core/pool"
)

// Backend identifies which SQL dialect/driver a Config targets.
type Backend string

const (
	BackendMySQL  Backend = "mysql"
	BackendSQLite Backend = "sqlite"
)

// Config holds every option the core engine's components need at startup.
type Config struct {
	// Database connection.
	Backend Backend
	DSN     string

	// Pool sizing.
	PoolMaxSize              int
	PoolMaxIdle              int
	PoolAcquireTimeout       time.Duration
	PoolIdleHealthCheckAfter time.Duration
	PoolMaxRetry             int
	PoolRetryBackoff         time.Duration
	PoolRetryBackoffMax      time.Duration
	PoolConnMaxLifetime      time.Duration

	// Cache policy.
	CacheEnabled  bool
	CacheMaxItems int
	CacheTTL      time.Duration
	CacheCleanup  time.Duration

	// Dynamic CRUD.
	AllowedTables []string

	// Ambient.
	LogLevel           string
	MonitoringEnabled  bool
	MonitoringInterval time.Duration
}

// DefaultConfig returns the configuration a freshly started engine runs
// with absent any flags or environment overrides.
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendSQLite,
		DSN:     "file::memory:?cache=shared",

		PoolMaxSize:              20,
		PoolMaxIdle:              10,
		PoolAcquireTimeout:       5 * time.Second,
		PoolIdleHealthCheckAfter: 30 * time.Second,
		PoolMaxRetry:             3,
		PoolRetryBackoff:         100 * time.Millisecond,
		PoolRetryBackoffMax:      2 * time.Second,
		PoolConnMaxLifetime:      10 * time.Minute,

		CacheEnabled:  true,
		CacheMaxItems: 2000,
		CacheTTL:      15 * time.Minute,
		CacheCleanup:  5 * time.Minute,

		AllowedTables: nil,

		LogLevel:           "info",
		MonitoringEnabled:  true,
		MonitoringInterval: time.Minute,
	}
}

// LoadFromFlags loads configuration from command line flags, then lets
// matching environment variables override whatever the flags produced —
// the same order the rest of this codebase's runnable demo follows.
func LoadFromFlags() *Config {
	c := DefaultConfig()

	var backend string
	flag.StringVar(&backend, "db-backend", string(c.Backend), "Database backend (mysql|sqlite)")
	flag.StringVar(&c.DSN, "db-dsn", c.DSN, "Database data source name")

	flag.IntVar(&c.PoolMaxSize, "pool-max-size", c.PoolMaxSize, "Maximum pool connections")
	flag.IntVar(&c.PoolMaxIdle, "pool-max-idle", c.PoolMaxIdle, "Maximum idle pool connections")
	flag.DurationVar(&c.PoolAcquireTimeout, "pool-acquire-timeout", c.PoolAcquireTimeout, "Deadline for acquiring a pooled connection")
	flag.DurationVar(&c.PoolIdleHealthCheckAfter, "pool-idle-health-check-after", c.PoolIdleHealthCheckAfter, "Idle duration after which a connection is health-checked before reuse")
	flag.IntVar(&c.PoolMaxRetry, "pool-max-retry", c.PoolMaxRetry, "Maximum transient-failure retries when opening a new connection")
	flag.DurationVar(&c.PoolRetryBackoff, "pool-retry-backoff", c.PoolRetryBackoff, "Base backoff between connection retries")
	flag.DurationVar(&c.PoolRetryBackoffMax, "pool-retry-backoff-max", c.PoolRetryBackoffMax, "Cap on connection retry backoff")
	flag.DurationVar(&c.PoolConnMaxLifetime, "pool-conn-max-lifetime", c.PoolConnMaxLifetime, "Maximum lifetime of a pooled connection")

	flag.BoolVar(&c.CacheEnabled, "cache-enabled", c.CacheEnabled, "Enable the shared cache")
	flag.IntVar(&c.CacheMaxItems, "cache-max-items", c.CacheMaxItems, "Maximum cache entries before LRU eviction")
	flag.DurationVar(&c.CacheTTL, "cache-ttl", c.CacheTTL, "Cache entry time-to-live")
	flag.DurationVar(&c.CacheCleanup, "cache-cleanup", c.CacheCleanup, "Cache background cleanup interval")

	var allowedTables string
	flag.StringVar(&allowedTables, "allowed-tables", "", "Comma-separated dynamic CRUD table whitelist")

	flag.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Logger level (debug|info|warn|error)")
	flag.BoolVar(&c.MonitoringEnabled, "monitoring-enabled", c.MonitoringEnabled, "Enable periodic pool/cache stats logging")
	flag.DurationVar(&c.MonitoringInterval, "monitoring-interval", c.MonitoringInterval, "Interval between monitoring samples")

	flag.Parse()

	c.Backend = Backend(backend)
	if allowedTables != "" {
		c.AllowedTables = splitAndTrim(allowedTables)
	}

	c.Backend = Backend(getEnv("DB_BACKEND", string(c.Backend)))
	c.DSN = getEnv("DB_DSN", c.DSN)
	c.PoolMaxSize = getEnvInt("POOL_MAX_SIZE", c.PoolMaxSize)
	c.PoolMaxIdle = getEnvInt("POOL_MAX_IDLE", c.PoolMaxIdle)
	c.PoolAcquireTimeout = getEnvDuration("POOL_ACQUIRE_TIMEOUT", c.PoolAcquireTimeout)
	c.PoolIdleHealthCheckAfter = getEnvDuration("POOL_IDLE_HEALTH_CHECK_AFTER", c.PoolIdleHealthCheckAfter)
	c.PoolMaxRetry = getEnvInt("POOL_MAX_RETRY", c.PoolMaxRetry)
	c.PoolRetryBackoff = getEnvDuration("POOL_RETRY_BACKOFF", c.PoolRetryBackoff)
	c.PoolRetryBackoffMax = getEnvDuration("POOL_RETRY_BACKOFF_MAX", c.PoolRetryBackoffMax)
	c.PoolConnMaxLifetime = getEnvDuration("POOL_CONN_MAX_LIFETIME", c.PoolConnMaxLifetime)

	c.CacheEnabled = getEnvBool("CACHE_ENABLED", c.CacheEnabled)
	c.CacheMaxItems = getEnvInt("CACHE_MAX_ITEMS", c.CacheMaxItems)
	c.CacheTTL = getEnvDuration("CACHE_TTL", c.CacheTTL)
	c.CacheCleanup = getEnvDuration("CACHE_CLEANUP", c.CacheCleanup)

	if tables := getEnv("ALLOWED_TABLES", ""); tables != "" {
		c.AllowedTables = splitAndTrim(tables)
	}

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.MonitoringEnabled = getEnvBool("MONITORING_ENABLED", c.MonitoringEnabled)
	c.MonitoringInterval = getEnvDuration("MONITORING_INTERVAL", c.MonitoringInterval)

	return c
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

// ToPoolConfig converts Config to the pool package's own config shape.
func (c *Config) ToPoolConfig() pool.Config {
	return pool.Config{
		MaxSize:              c.PoolMaxSize,
		MaxIdle:              c.PoolMaxIdle,
		AcquireTimeout:       c.PoolAcquireTimeout,
		IdleHealthCheckAfter: c.PoolIdleHealthCheckAfter,
		MaxRetry:             c.PoolMaxRetry,
		RetryBackoff:         c.PoolRetryBackoff,
		RetryBackoffMax:      c.PoolRetryBackoffMax,
		ConnMaxLifetime:      c.PoolConnMaxLifetime,
	}
}

// ToCacheConfig converts Config to the cache package's own config shape.
func (c *Config) ToCacheConfig() cache.Config {
	return cache.Config{
		Enabled:         c.CacheEnabled,
		MaxItems:        c.CacheMaxItems,
		TTL:             c.CacheTTL,
		CleanupInterval: c.CacheCleanup,
	}
}

// ToCRUDConfig converts Config to the dynamicrud package's own config shape.
func (c *Config) ToCRUDConfig() dynamicrud.Config {
	return dynamicrud.Config{
		AllowedTables: c.AllowedTables,
	}
}
