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
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Channel  ChannelConfig
	Push     PushConfig
	AMQP     AMQPConfig
	Seed     SeedConfig
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
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// ChannelConfig tunes the shared external messaging session.
type ChannelConfig struct {
	SendTimeoutSeconds int
	MaxMediaBytes      int64
	InboundWorkers     int
	DedupTTLMinutes    int
}

// PushConfig configures the agent push channel.
type PushConfig struct {
	AllowedOrigins       []string
	SocketTokenSecret    string
	SocketTokenTTLMinute int
	ClientBufferSize     int
}

// AMQPConfig configures the optional external event mirror.
type AMQPConfig struct {
	URL           string
	Exchange      string
	RetryAttempts int
	RetryDelaySec int
}

// SeedConfig lists departments created on boot when absent.
type SeedConfig struct {
	Departments []string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "whatsdesk"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Channel: ChannelConfig{
			SendTimeoutSeconds: getEnvAsInt("CHANNEL_SEND_TIMEOUT_SECONDS", 20),
			MaxMediaBytes:      int64(getEnvAsInt("CHANNEL_MAX_MEDIA_BYTES", 10*1024*1024)),
			InboundWorkers:     getEnvAsInt("CHANNEL_INBOUND_WORKERS", 8),
			DedupTTLMinutes:    getEnvAsInt("CHANNEL_DEDUP_TTL_MINUTES", 60),
		},
		Push: PushConfig{
			AllowedOrigins:       splitList(getEnv("PUSH_ALLOWED_ORIGINS", "*")),
			SocketTokenSecret:    getEnv("PUSH_SOCKET_TOKEN_SECRET", "dev-secret"),
			SocketTokenTTLMinute: getEnvAsInt("PUSH_SOCKET_TOKEN_TTL_MINUTES", 15),
			ClientBufferSize:     getEnvAsInt("PUSH_CLIENT_BUFFER_SIZE", 64),
		},
		AMQP: AMQPConfig{
			URL:           os.Getenv("AMQP_URL"),
			Exchange:      getEnv("AMQP_EXCHANGE", "whatsdesk.events"),
			RetryAttempts: getEnvAsInt("AMQP_RETRY_ATTEMPTS", 5),
			RetryDelaySec: getEnvAsInt("AMQP_RETRY_DELAY_SECONDS", 2),
		},
		Seed: SeedConfig{
			Departments: splitList(getEnv("SEED_DEPARTMENTS", "")),
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

// SendTimeout returns the provider round-trip deadline.
func (c ChannelConfig) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutSeconds) * time.Second
}

// DedupTTL returns the inbound dedup cache TTL.
func (c ChannelConfig) DedupTTL() time.Duration {
	return time.Duration(c.DedupTTLMinutes) * time.Minute
}

// SocketTokenTTL returns the socket token lifetime.
func (p PushConfig) SocketTokenTTL() time.Duration {
	return time.Duration(p.SocketTokenTTLMinute) * time.Minute
}

// RetryDelay returns the base AMQP reconnect delay.
func (a AMQPConfig) RetryDelay() time.Duration {
	return time.Duration(a.RetryDelaySec) * time.Second
}

func splitList(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
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
