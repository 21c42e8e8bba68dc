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
	App       AppConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Auth      AuthConfig
	Mail      MailConfig
	Queue     QueueConfig
	Ingest    IngestConfig
	Schedule  ScheduleConfig
	Institute InstituteConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	CORSAllowOrigins      string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	CacheTTL  time.Duration
	KeyPrefix string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BootstrapAdminEmail   string
}

// MailConfig holds outbound SMTP settings.
type MailConfig struct {
	Enabled         bool
	Host            string
	Port            int
	User            string
	Password        string
	From            string
	TLSMode         string
	DialTimeout     time.Duration
	AlertRecipients []string
	PublicBaseURL   string
}

// QueueConfig holds broker settings for the email job queue.
type QueueConfig struct {
	URL            string
	EmailQueue     string
	PublishTimeout time.Duration
	Prefetch       int
}

// IngestConfig guards the email ingestion endpoint.
type IngestConfig struct {
	APIKeyHash   string
	MaxBodyBytes int
}

// ScheduleConfig drives background sweeps.
type ScheduleConfig struct {
	OverdueCron string
	Timezone    string
}

// InstituteConfig carries school specific rules.
type InstituteConfig struct {
	EmailDomain     string
	HolidayCalendar string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	smtpPort, err := strconv.Atoi(getEnv("SMTP_PORT", "587"))
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "maintenance-desk"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 15),
			CORSAllowOrigins:      getEnv("CORS_ALLOW_ORIGINS", "*"),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:      os.Getenv("REDIS_ADDR"),
			Password:  os.Getenv("REDIS_PASSWORD"),
			DB:        redisDB,
			CacheTTL:  getEnvAsDuration("REDIS_CACHE_TTL", 10*time.Minute),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "smc"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BootstrapAdminEmail:   strings.ToLower(strings.TrimSpace(os.Getenv("BOOTSTRAP_ADMIN_EMAIL"))),
		},
		Mail: MailConfig{
			Enabled:         getEnvAsBool("SMTP_ENABLED", false),
			Host:            getEnv("SMTP_HOST", "localhost"),
			Port:            smtpPort,
			User:            os.Getenv("SMTP_USER"),
			Password:        os.Getenv("SMTP_PASSWORD"),
			From:            getEnv("MAIL_FROM", "maintenance@example.org"),
			TLSMode:         getEnv("SMTP_TLS_MODE", "starttls"),
			DialTimeout:     getEnvAsDuration("SMTP_DIAL_TIMEOUT", 10*time.Second),
			AlertRecipients: getEnvAsList("ALERT_RECIPIENTS"),
			PublicBaseURL:   getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		},
		Queue: QueueConfig{
			URL:            os.Getenv("AMQP_URL"),
			EmailQueue:     getEnv("AMQP_EMAIL_QUEUE", "maintenance.email"),
			PublishTimeout: getEnvAsDuration("AMQP_PUBLISH_TIMEOUT", 5*time.Second),
			Prefetch:       getEnvAsInt("AMQP_PREFETCH", 20),
		},
		Ingest: IngestConfig{
			APIKeyHash:   os.Getenv("INGEST_API_KEY_HASH"),
			MaxBodyBytes: getEnvAsInt("INGEST_MAX_BODY_BYTES", 256*1024),
		},
		Schedule: ScheduleConfig{
			OverdueCron: getEnv("OVERDUE_SWEEP_CRON", "0 7 * * 1-5"),
			Timezone:    getEnv("TIMEZONE", "Europe/London"),
		},
		Institute: InstituteConfig{
			EmailDomain:     strings.ToLower(strings.TrimPrefix(os.Getenv("INSTITUTION_EMAIL_DOMAIN"), "@")),
			HolidayCalendar: getEnv("DUE_DATE_HOLIDAYS", "gb"),
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

// Location resolves the configured timezone, falling back to UTC.
func (s ScheduleConfig) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
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

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
