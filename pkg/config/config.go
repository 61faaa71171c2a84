// Package config holds the tuning knobs of the element write path.
//
// Values are layered: built-in defaults, then an optional TOML file, then
// a .env file, then the process environment (ELEMWRITE_* variables).
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Options configures a realm.
type Options struct {
	// MaxCachedArrayTypes bounds the per-site array-type detection cache
	// before it goes megamorphic.
	MaxCachedArrayTypes int `toml:"max_cached_array_types"`
	// MaxHoleGap is the largest gap a dense write may open before the
	// storage is moved to the sparse representation.
	MaxHoleGap int `toml:"max_hole_gap"`
	// MaxContiguousStart is the largest first index that keeps an empty
	// array in a contiguous representation.
	MaxContiguousStart int `toml:"max_contiguous_start"`
	// CompatSetterInvocation retries unknown foreign members through a
	// "setX" host method.
	CompatSetterInvocation bool `toml:"compat_setter_invocation"`
	// TraceTransitions logs every storage transition at debug level.
	TraceTransitions bool `toml:"trace_transitions"`
	// DetailedCacheStats counts cache hits on the dispatch fast path.
	DetailedCacheStats bool `toml:"detailed_cache_stats"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level"`
}

// Environment variable names.
const (
	EnvFile                   = "ELEMWRITE_ENV_FILE"
	EnvMaxCachedArrayTypes    = "ELEMWRITE_MAX_CACHED_ARRAY_TYPES"
	EnvMaxHoleGap             = "ELEMWRITE_MAX_HOLE_GAP"
	EnvMaxContiguousStart     = "ELEMWRITE_MAX_CONTIGUOUS_START"
	EnvCompatSetterInvocation = "ELEMWRITE_COMPAT_SETTERS"
	EnvTraceTransitions       = "ELEMWRITE_TRACE_TRANSITIONS"
	EnvDetailedCacheStats     = "ELEMWRITE_DETAILED_CACHE_STATS"
	EnvLogLevel               = "ELEMWRITE_LOG_LEVEL"
)

// Default returns the built-in option set.
func Default() Options {
	return Options{
		MaxCachedArrayTypes: 4,
		MaxHoleGap:          1024,
		MaxContiguousStart:  64,
		LogLevel:            "warn",
	}
}

// Load returns defaults overridden by the .env file and the environment.
func Load() (Options, error) {
	return LoadFile("")
}

// LoadFile is Load with an additional TOML file applied before the
// environment. An empty path skips the file.
func LoadFile(path string) (Options, error) {
	opts := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &opts); err != nil {
			return opts, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	dotenv, err := readDotenv()
	if err != nil {
		return opts, err
	}
	opts = opts.apply(func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	})
	return opts, opts.Validate()
}

// readDotenv reads the .env file named by ELEMWRITE_ENV_FILE (default
// ".env"). A missing default file is not an error.
func readDotenv() (map[string]string, error) {
	path, explicit := os.LookupEnv(EnvFile)
	if !explicit {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if !explicit && os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: %w", err)
	}
	vals, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return vals, nil
}

func (o Options) apply(lookup func(string) (string, bool)) Options {
	o.MaxCachedArrayTypes = envInt(lookup, EnvMaxCachedArrayTypes, o.MaxCachedArrayTypes)
	o.MaxHoleGap = envInt(lookup, EnvMaxHoleGap, o.MaxHoleGap)
	o.MaxContiguousStart = envInt(lookup, EnvMaxContiguousStart, o.MaxContiguousStart)
	o.CompatSetterInvocation = envBool(lookup, EnvCompatSetterInvocation, o.CompatSetterInvocation)
	o.TraceTransitions = envBool(lookup, EnvTraceTransitions, o.TraceTransitions)
	o.DetailedCacheStats = envBool(lookup, EnvDetailedCacheStats, o.DetailedCacheStats)
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		o.LogLevel = v
	}
	return o
}

// envBool reads a boolean variable, keeping defaultVal when unset or
// malformed.
func envBool(lookup func(string) (string, bool), key string, defaultVal bool) bool {
	if val, ok := lookup(key); ok && val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// envInt reads an integer variable, keeping defaultVal when unset or
// malformed.
func envInt(lookup func(string) (string, bool), key string, defaultVal int) int {
	if val, ok := lookup(key); ok && val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// Validate rejects option sets the write path cannot run with.
func (o Options) Validate() error {
	if o.MaxCachedArrayTypes < 1 {
		return fmt.Errorf("config: max_cached_array_types must be positive, got %d", o.MaxCachedArrayTypes)
	}
	if o.MaxHoleGap < 0 {
		return fmt.Errorf("config: max_hole_gap must not be negative, got %d", o.MaxHoleGap)
	}
	if o.MaxContiguousStart < 0 {
		return fmt.Errorf("config: max_contiguous_start must not be negative, got %d", o.MaxContiguousStart)
	}
	if _, err := parseLevel(o.LogLevel); err != nil {
		return err
	}
	return nil
}

// SlogLevel maps LogLevel onto a slog level, falling back to warn.
func (o Options) SlogLevel() slog.Level {
	lvl, err := parseLevel(o.LogLevel)
	if err != nil {
		return slog.LevelWarn
	}
	return lvl
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "", "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelWarn, fmt.Errorf("config: unknown log level %q", s)
}
