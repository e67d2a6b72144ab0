// Package config loads application configuration from environment
// variables, after reading an optional .env file.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Config holds all runtime configuration values.  Each field corresponds
// to an environment variable.
type Config struct {
	Env      string // APP_ENV (dev, test, prod)
	Port     string // APP_PORT
	LogLevel string // LOG_LEVEL, zerolog level name

	DBUser    string // DB_USER
	DBPass    string // DB_PASS (empty allowed)
	DBHost    string // DB_HOST
	DBPort    string // DB_PORT
	DBName    string // DB_NAME
	DBMigrate bool   // DB_MIGRATE, create tables at startup

	JWTSecret string // JWT_SECRET, verifies admin tokens

	SweepInterval time.Duration // BOOKING_SWEEP_INTERVAL

	AMQPURL      string // RABBITMQ_URL or AMQP_URL; empty disables events
	EventsQueue  string // BOOKING_EVENTS_QUEUE
	AuditEnabled bool   // BOOKING_AUDIT_ENABLED, run the event consumer
	AuditLogPath string // BOOKING_AUDIT_LOG

	Redis     RedisConfig
	RateLimit RateLimitConfig
}

// Load reads .env when present and then the environment.  Every missing
// required variable is reported in one error.
func Load() (Config, error) {
	_ = godotenv.Load()

	var missing []string
	must := func(key string) string {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := Config{
		Env:      envStr("APP_ENV", "dev"),
		Port:     envStr("APP_PORT", "8080"),
		LogLevel: envStr("LOG_LEVEL", "info"),

		DBUser:    must("DB_USER"),
		DBPass:    os.Getenv("DB_PASS"),
		DBHost:    must("DB_HOST"),
		DBPort:    envStr("DB_PORT", "3306"),
		DBName:    must("DB_NAME"),
		DBMigrate: envBool("DB_MIGRATE", false),

		JWTSecret: must("JWT_SECRET"),

		SweepInterval: envDur("BOOKING_SWEEP_INTERVAL", 30*time.Second),

		AMQPURL:      envStr("RABBITMQ_URL", os.Getenv("AMQP_URL")),
		EventsQueue:  envStr("BOOKING_EVENTS_QUEUE", "booking.lifecycle"),
		AuditEnabled: envBool("BOOKING_AUDIT_ENABLED", true),
		AuditLogPath: envStr("BOOKING_AUDIT_LOG", "logs/booking-events.log"),

		Redis:     LoadRedisConfig(),
		RateLimit: LoadRateLimitConfig(),
	}
	if len(missing) > 0 {
		return Config{}, errors.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 30 * time.Second
	}
	return cfg, nil
}
