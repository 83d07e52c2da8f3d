package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Server captures process level configuration.
type Server struct {
	Addr          string
	LogLevel      slog.Level
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
	TxTimeout     time.Duration
	Database      DatabaseConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	RateLimit     RateLimitConfig
}

// DatabaseConfig selects the PostgreSQL backend. An empty URL keeps the
// service on the in-memory stores.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig backs the distributed rate-limit window store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig enables the audit outbox relay when Brokers is non-empty.
type KafkaConfig struct {
	Brokers       []string
	AuditTopic    string
	RelayInterval time.Duration
	RelayBatch    int
}

type RateLimitConfig struct {
	PerMinute int
}

// LoadDotEnv reads a .env file when present. Missing files are not an error.
func LoadDotEnv(paths ...string) {
	_ = godotenv.Load(paths...)
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:          getenv("CRM_ADDR", ":8080"),
		JWTSigningKey: os.Getenv("JWT_SIGNING_KEY"),
		JWTIssuer:     os.Getenv("JWT_ISSUER"),
		JWTAudience:   os.Getenv("JWT_AUDIENCE"),
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:    splitList(os.Getenv("KAFKA_BROKERS")),
			AuditTopic: getenv("AUDIT_TOPIC", "crm.audit-events"),
			RelayBatch: 100,
		},
	}

	var err error
	if cfg.LogLevel, err = parseLevel(getenv("LOG_LEVEL", "info")); err != nil {
		return Server{}, err
	}
	if cfg.TxTimeout, err = parseDuration("TX_TIMEOUT", 5*time.Second); err != nil {
		return Server{}, err
	}
	if cfg.Kafka.RelayInterval, err = parseDuration("AUDIT_RELAY_INTERVAL", time.Second); err != nil {
		return Server{}, err
	}
	if cfg.RateLimit.PerMinute, err = parseInt("RATE_LIMIT_PER_MINUTE", 600); err != nil {
		return Server{}, err
	}
	if cfg.RateLimit.PerMinute < 0 {
		return Server{}, fmt.Errorf("RATE_LIMIT_PER_MINUTE must not be negative")
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseDuration(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s: invalid duration %q", key, raw)
	}
	return d, nil
}

func parseInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, raw)
	}
	return n, nil
}

func parseLevel(raw string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(raw)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return l, nil
}
