package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	SLA          SLAConfig
	Sweep        SweepConfig
	Sentiment    SentimentConfig
	Kafka        KafkaConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32

	// StatementTimeoutMS is applied per connection; 0 leaves the server default.
	StatementTimeoutMS int
}

// RedisConfig holds Redis connection values. An empty Addr disables the sweep lock.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string

	// Format is "json" (default) or "console".
	Format  string
	Service string
	Env     string
}

// AuthConfig defines bearer token parameters.
type AuthConfig struct {
	JWTSecret             string
	Issuer                string
	AccessTokenTTLMinutes int
}

// SLAConfig controls deadline stamping and agent eligibility.
type SLAConfig struct {
	PolicyFile              string
	RestampOnPriorityChange bool
	AgentRoles              []string
}

// SweepConfig tunes the periodic SLA sweep.
type SweepConfig struct {
	BatchSize      int
	Concurrency    int
	LockTTLSeconds int
}

// SentimentConfig sizes the fire-and-forget sentiment queue.
type SentimentConfig struct {
	QueueSize      int
	Workers        int
	TimeoutSeconds int
}

// KafkaConfig configures outbound alert and sentiment topics. No brokers means log-only delivery.
type KafkaConfig struct {
	Brokers        []string
	AlertTopic     string
	SentimentTopic string
	MaxAttempts    int
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	EmailFrom  string
	WebhookURL string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))
	appName := getEnv("APP_NAME", "ticket-sla-engine")
	appEnv := getEnv("APP_ENV", "development")

	cfg := &Config{
		App: AppConfig{
			Name:                  appName,
			Env:                   appEnv,
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:                os.Getenv("POSTGRES_DSN"),
			MaxConns:           maxConns,
			MinConns:           minConns,
			RunMigrations:      runMigrations,
			ConnMaxIdleSec:     connMaxIdle,
			ConnMaxLifeSec:     connMaxLife,
			StatementTimeoutMS: getEnvAsInt("POSTGRES_STATEMENT_TIMEOUT_MS", 5000),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:   getEnv("LOG_LEVEL", "info"),
			Format:  getEnv("LOG_FORMAT", "json"),
			Service: appName,
			Env:     appEnv,
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			Issuer:                getEnv("AUTH_ISSUER", appName),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		SLA: SLAConfig{
			PolicyFile:              os.Getenv("SLA_POLICY_FILE"),
			RestampOnPriorityChange: getEnvAsBool("SLA_RESTAMP_ON_PRIORITY_CHANGE", false),
			AgentRoles:              getEnvAsList("SLA_AGENT_ROLES", []string{"AGENT", "TEAM_LEAD"}),
		},
		Sweep: SweepConfig{
			BatchSize:      getEnvAsInt("SLA_SWEEP_BATCH_SIZE", 200),
			Concurrency:    getEnvAsInt("SLA_SWEEP_CONCURRENCY", 4),
			LockTTLSeconds: getEnvAsInt("SLA_SWEEP_LOCK_TTL_SECONDS", 300),
		},
		Sentiment: SentimentConfig{
			QueueSize:      getEnvAsInt("SENTIMENT_QUEUE_SIZE", 1024),
			Workers:        getEnvAsInt("SENTIMENT_WORKERS", 2),
			TimeoutSeconds: getEnvAsInt("SENTIMENT_TIMEOUT_SECONDS", 5),
		},
		Kafka: KafkaConfig{
			Brokers:        getEnvAsList("KAFKA_BROKERS", nil),
			AlertTopic:     getEnv("KAFKA_ALERT_TOPIC", "ticket.sla.alerts"),
			SentimentTopic: getEnv("KAFKA_SENTIMENT_TOPIC", "ticket.sentiment.requests"),
			MaxAttempts:    getEnvAsInt("KAFKA_MAX_ATTEMPTS", 3),
		},
		Notification: NotificationConfig{
			EmailFrom:  getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// LockTTL returns how long a sweep holds its distributed lock.
func (s SweepConfig) LockTTL() time.Duration {
	if s.LockTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(s.LockTTLSeconds) * time.Second
}

// Timeout bounds a single sentiment analysis request.
func (s SentimentConfig) Timeout() time.Duration {
	if s.TimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(s.TimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	var result []string
	for _, part := range strings.Split(val, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return fallback
	}
	return result
}
