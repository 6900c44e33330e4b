package config // package config loads application configuration from environment variables

import (
    "errors"  // errors defines the ErrInvalid sentinel
    "fmt"     // fmt formats validation messages
    "net"     // net joins host and port into a listen address
    "strconv" // strconv validates the port number
    "time"    // time holds the shutdown deadline

    "github.com/joho/godotenv"   // godotenv loads an optional .env file
    "go.uber.org/multierr"       // multierr collects every validation problem at once
    "go.uber.org/zap/zapcore"    // zapcore parses LOG_LEVEL
)

// Default bind address. The service listens on loopback port 3901 unless
// APP_HOST / APP_PORT say otherwise.
const (
    DefaultHost = "127.0.0.1"
    DefaultPort = "3901"
)

// ErrInvalid wraps every configuration validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable; sub-configs are loaded by their own loaders.
type Config struct {
    Env             string        // application environment ("dev" or "prod")
    Host            string        // host to bind the HTTP server to
    Port            string        // HTTP port to listen on
    LogLevel        string        // zap level name (debug, info, warn, error)
    ShutdownTimeout time.Duration // deadline for graceful shutdown
    MetricsEnabled  bool          // expose /metrics and record HTTP metrics

    Cache  CacheConfig
    Redis  RedisConfig
    Events EventsConfig
}

// Load reads an optional .env file and then builds a Config from the
// environment.  Every value has a default, so Load only fails when a value
// is present but unusable.
func Load() (Config, error) {
    _ = godotenv.Load() // a missing .env is not an error

    cfg := Config{
        Env:             envStr("APP_ENV", "dev"),
        Host:            envStr("APP_HOST", DefaultHost),
        Port:            envStr("APP_PORT", DefaultPort),
        LogLevel:        envStr("LOG_LEVEL", "info"),
        ShutdownTimeout: envDur("SHUTDOWN_TIMEOUT", 10*time.Second),
        MetricsEnabled:  envBool("METRICS_ENABLED", false),
        Cache:           LoadCacheConfig(),
        Redis:           LoadRedisConfig(),
        Events:          LoadEventsConfig(),
    }
    if err := cfg.Validate(); err != nil {
        return Config{}, err
    }
    return cfg, nil
}

// Addr returns the host:port pair the HTTP server listens on.
func (c Config) Addr() string {
    return net.JoinHostPort(c.Host, c.Port)
}

// IsProd reports whether the service runs with production settings.
func (c Config) IsProd() bool { return c.Env == "prod" }

// Validate reports every problem found in c, not only the first one.
func (c Config) Validate() error {
    var err error
    if c.Env != "dev" && c.Env != "prod" {
        err = multierr.Append(err, fmt.Errorf("%w: APP_ENV must be dev or prod, got %q", ErrInvalid, c.Env))
    }
    if n, perr := strconv.Atoi(c.Port); perr != nil || n < 0 || n > 65535 {
        err = multierr.Append(err, fmt.Errorf("%w: APP_PORT must be 0-65535, got %q", ErrInvalid, c.Port))
    }
    if _, lerr := zapcore.ParseLevel(c.LogLevel); lerr != nil {
        err = multierr.Append(err, fmt.Errorf("%w: LOG_LEVEL %q: %v", ErrInvalid, c.LogLevel, lerr))
    }
    if c.ShutdownTimeout <= 0 {
        err = multierr.Append(err, fmt.Errorf("%w: SHUTDOWN_TIMEOUT must be positive", ErrInvalid))
    }
    if c.Cache.Enabled {
        for m := range c.Cache.Methods {
            // the key ignores the body, so only safe methods can be cached
            if m != "GET" && m != "HEAD" {
                err = multierr.Append(err, fmt.Errorf("%w: CACHE_METHODS may only list GET and HEAD, got %q", ErrInvalid, m))
            }
        }
    }
    if c.Events.Enabled && c.Events.Buffer < 1 {
        err = multierr.Append(err, fmt.Errorf("%w: CHAT_EVENTS_BUFFER must be at least 1, got %d", ErrInvalid, c.Events.Buffer))
    }
    return err
}
