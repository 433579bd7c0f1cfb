package shared

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	AppEnv      string
	HTTPAddr    string
	MetricsAddr string
	MySQLDSN    string
	RedisAddr   string
	RedisDB     int
	RedisPass   string

	// ALS is the Hong Kong government address lookup service.
	ALSBase string
	ALSRate int

	// Workers bounds the geocode backfill concurrency.
	Workers int

	CacheTTL time.Duration

	// UniversitiesPath optionally overrides the built-in university and
	// campus registry with a JSON file.
	UniversitiesPath string
}

func Load() Config {
	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return def
	}
	return Config{
		AppEnv:           env("APP_ENV", "prod"),
		HTTPAddr:         env("HTTP_ADDR", ":8080"),
		MetricsAddr:      env("METRICS_ADDR", ":9100"),
		MySQLDSN:         env("MYSQL_DSN", "root:root@tcp(localhost:3306)/unihaven?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),
		RedisAddr:        env("REDIS_ADDR", "localhost:6379"),
		RedisPass:        env("REDIS_PASSWORD", ""),
		RedisDB:          atoi("REDIS_DB", 0),
		ALSBase:          env("ALS_BASE_URL", "https://www.als.gov.hk/lookup"),
		ALSRate:          atoi("ALS_RATE_RPS", 5),
		Workers:          atoi("GEOCODE_WORKERS", 8),
		CacheTTL:         time.Duration(atoi("CACHE_TTL_SECONDS", 900)) * time.Second,
		UniversitiesPath: env("UNIVERSITIES_PATH", ""),
	}
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
