package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	pstrings "linkage/pkg/platform/strings"
)

// Config captures everything the server wires from the environment so main
// stays lean. Empty DatabaseURL selects the in-memory store (demo mode);
// empty RedisURL selects the in-memory rate limiter; empty KafkaBrokers
// disables the event publisher.
type Config struct {
	Addr        string
	DatabaseURL string
	RedisURL    string

	KafkaBrokers []string
	KafkaTopic   string

	CORSAllowedOrigins []string

	RateLimit RateLimit
}

// RateLimit configures the per-client request limit on /identify.
type RateLimit struct {
	Enabled  bool
	Requests int
	Window   time.Duration
}

// FromEnv builds a Config from environment variables with development
// defaults.
func FromEnv() Config {
	cfg := Config{
		Addr:        envOr("LINKAGE_ADDR", ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		KafkaTopic:  envOr("KAFKA_TOPIC", "contact-events"),
		RateLimit: RateLimit{
			Enabled:  os.Getenv("RATE_LIMIT_DISABLED") != "true",
			Requests: envInt("RATE_LIMIT_REQUESTS", 60),
			Window:   envDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}

	origins := envOr("CORS_ALLOWED_ORIGINS", "*")
	cfg.CORSAllowedOrigins = splitAndTrim(origins)

	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// splitAndTrim turns a comma-separated env value into a clean list, dropping
// empties and duplicate entries.
func splitAndTrim(s string) []string {
	return pstrings.DedupeAndTrim(strings.Split(s, ","))
}
