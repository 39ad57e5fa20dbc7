package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	minResolveWorkers = 1
	maxResolveWorkers = 64
	maxRateLimit      = 200
	minRateLimit      = 0
	maxHTTPRetries    = 10
	minCheckTimeout   = 100 * time.Millisecond
	maxCheckTimeout   = 30 * time.Minute
	maxFlaggedTTL     = 24 * time.Hour
)

// Config holds 12-factor environment configuration used across binaries.
type Config struct {
	BackendURL      string
	BackendAPIKey   string
	Chain           string
	FlaggedDataset  string
	ClickHouseDSN   string
	StatusTable     string
	ResolveWorkers  int
	RateLimit       int
	HTTPRetries     int
	HTTPBackoffBase time.Duration
	FlaggedCacheTTL time.Duration
	Timeout         time.Duration
	LogLevel        string
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseIntEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	return def
}

func parseDurEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return def
}

func clamp[T int | time.Duration](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// BuildClickHouseDSN prefers CLICKHOUSE_DSN and otherwise assembles one from
// CLICKHOUSE_URL/DB/USER/PASS. Both URL and DB are needed for the latter.
func BuildClickHouseDSN() string {
	if dsn := env("CLICKHOUSE_DSN", ""); dsn != "" {
		return dsn
	}
	base := env("CLICKHOUSE_URL", "")
	db := env("CLICKHOUSE_DB", "")
	if base == "" || db == "" {
		return ""
	}
	u, err := url.Parse(base)
	if err != nil {
		return strings.TrimRight(base, "/") + "/" + db
	}
	if user := env("CLICKHOUSE_USER", ""); user != "" {
		if pass := env("CLICKHOUSE_PASS", ""); pass != "" {
			u.User = url.UserPassword(user, pass)
		} else {
			u.User = url.User(user)
		}
	}
	p := strings.TrimRight(u.Path, "/")
	switch {
	case p == "":
		u.Path = "/" + db
	case strings.HasSuffix(p, "/"+db):
		u.Path = p
	default:
		u.Path = p + "/" + db
	}
	return u.String()
}

// RedactDSN hides credentials in DSN-like URLs to avoid logging secrets.
func RedactDSN(s string) string {
	if s == "" {
		return s
	}
	u, err := url.Parse(s)
	if err == nil && u.User != nil {
		if name := u.User.Username(); name != "" {
			u.User = url.UserPassword(name, "***")
		} else {
			u.User = url.User("***")
		}
		return u.String()
	}
	return redactScan(s)
}

// redactScan masks a "user:pass@" run following "//" in strings url.Parse
// could not split into userinfo.
func redactScan(s string) string {
	i := strings.Index(s, "//")
	if i < 0 {
		return s
	}
	rest := s[i+2:]
	j := strings.Index(rest, "@")
	if j <= 0 {
		return s
	}
	user, _, ok := strings.Cut(rest[:j], ":")
	if !ok {
		return s
	}
	return s[:i+2] + user + ":***@" + rest[j+1:]
}

// RedactKey keeps the last four characters of an API key.
func RedactKey(k string) string {
	if k == "" {
		return ""
	}
	if len(k) <= 4 {
		return "***"
	}
	return "***" + k[len(k)-4:]
}

// Load reads environment variables and returns a Config with defaults applied.
func Load() Config {
	return Config{
		BackendURL:      strings.TrimRight(env("BACKEND_URL", ""), "/"),
		BackendAPIKey:   env("BACKEND_API_KEY", ""),
		Chain:           strings.ToLower(env("CHAIN", "ethereum")),
		FlaggedDataset:  env("FLAGGED_DATASET", ""),
		ClickHouseDSN:   BuildClickHouseDSN(),
		StatusTable:     env("STATUS_TABLE", "address_status"),
		ResolveWorkers:  clamp(parseIntEnv("RESOLVE_WORKERS", 4), minResolveWorkers, maxResolveWorkers),
		RateLimit:       clamp(parseIntEnv("RATE_LIMIT", 0), minRateLimit, maxRateLimit),
		HTTPRetries:     clamp(parseIntEnv("HTTP_RETRIES", 2), 0, maxHTTPRetries),
		HTTPBackoffBase: parseDurEnv("HTTP_BACKOFF_BASE", 100*time.Millisecond),
		FlaggedCacheTTL: clamp(parseDurEnv("FLAGGED_CACHE_TTL", 5*time.Minute), 0, maxFlaggedTTL),
		Timeout:         clamp(parseDurEnv("CHECK_TIMEOUT", 30*time.Second), minCheckTimeout, maxCheckTimeout),
		LogLevel:        env("LOG_LEVEL", "info"),
	}
}
