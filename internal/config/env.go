package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables that override defaults. An explicitly set flag
// always wins over them.
const (
	EnvUserAgent   = "LINKPROBE_USER_AGENT"
	EnvDBDSN       = "LINKPROBE_DB_DSN"
	EnvProxy       = "LINKPROBE_PROXY"
	EnvConcurrency = "LINKPROBE_CONCURRENCY"
	EnvTimeout     = "LINKPROBE_TIMEOUT"
)

// envFlags maps each variable to the flag it stands in for.
var envFlags = map[string]string{
	EnvUserAgent:   "user-agent",
	EnvDBDSN:       "db-dsn",
	EnvProxy:       "proxy",
	EnvConcurrency: "concurrency",
	EnvTimeout:     "timeout",
}

// LookupFunc returns the value of an environment variable.
type LookupFunc func(key string) (string, bool)

// LoadEnv returns a LookupFunc over the process environment backed by the
// given .env files. Process variables take precedence over file entries,
// and missing files are skipped.
func LoadEnv(paths ...string) (LookupFunc, error) {
	fileEnv := make(map[string]string)
	for _, p := range paths {
		values, err := godotenv.Read(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		for k, v := range values {
			if _, ok := fileEnv[k]; !ok {
				fileEnv[k] = v
			}
		}
	}
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileEnv[key]
		return v, ok
	}, nil
}

// ApplyEnv copies environment overrides into c. explicit reports whether a
// flag was set on the command line; such flags are left alone. A nil
// explicit applies every override.
func (c *Config) ApplyEnv(lookup LookupFunc, explicit func(flag string) bool) error {
	get := func(key string) (string, bool) {
		if explicit != nil && explicit(envFlags[key]) {
			return "", false
		}
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvUserAgent); ok {
		c.UserAgent = v
	}
	if v, ok := get(EnvDBDSN); ok {
		c.DBDSN = v
	}
	if v, ok := get(EnvProxy); ok {
		c.ProxyAddress = v
	}
	if v, ok := get(EnvConcurrency); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidEnv, EnvConcurrency, v)
		}
		c.Concurrency = n
	}
	if v, ok := get(EnvTimeout); ok {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidEnv, EnvTimeout, v)
		}
		c.Timeout = d
	}
	return nil
}

// parseDuration accepts Go durations ("45s") and bare seconds ("45").
func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}
