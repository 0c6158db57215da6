package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env  string
	Port int

	Database      DatabaseConfig
	Redis         RedisConfig
	CORS          CORSConfig
	Log           LogConfig
	Sweep         SweepConfig
	Notifications NotificationsConfig
	Matching      MatchingConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SweepConfig governs the periodic class-request expiry sweep.
type SweepConfig struct {
	Interval  time.Duration
	BatchSize int
	// IncludePending widens the sweep filter from Active to Active+Pending.
	// The upstream sweep matches Active only even though requests are created
	// as Pending; keep this off to preserve that behaviour.
	IncludePending bool
}

// NotificationsConfig tunes the post-commit notification dispatcher.
type NotificationsConfig struct {
	Workers       int
	BufferSize    int
	MaxRetries    int
	RetryDelay    time.Duration
	ChannelPrefix string
}

// MatchingConfig holds workflow tunables.
type MatchingConfig struct {
	RequestTTL        time.Duration
	PriceTolerancePct int
	ScheduleHorizon   time.Duration
	TxMaxRetries      int
	TxRetryDelay      time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Sweep = SweepConfig{
		Interval:       parseDuration(v.GetString("SWEEP_INTERVAL"), time.Hour),
		BatchSize:      v.GetInt("SWEEP_BATCH_SIZE"),
		IncludePending: v.GetBool("SWEEP_INCLUDE_PENDING"),
	}

	cfg.Notifications = NotificationsConfig{
		Workers:       v.GetInt("NOTIFY_WORKERS"),
		BufferSize:    v.GetInt("NOTIFY_BUFFER_SIZE"),
		MaxRetries:    v.GetInt("NOTIFY_MAX_RETRIES"),
		RetryDelay:    parseDuration(v.GetString("NOTIFY_RETRY_DELAY"), time.Second),
		ChannelPrefix: v.GetString("NOTIFY_CHANNEL_PREFIX"),
	}

	cfg.Matching = MatchingConfig{
		RequestTTL:        parseDuration(v.GetString("REQUEST_TTL"), 7*24*time.Hour),
		PriceTolerancePct: v.GetInt("CONFLICT_PRICE_TOLERANCE_PCT"),
		ScheduleHorizon:   parseDuration(v.GetString("SCHEDULE_HORIZON"), 4*7*24*time.Hour),
		TxMaxRetries:      v.GetInt("TX_MAX_RETRIES"),
		TxRetryDelay:      parseDuration(v.GetString("TX_RETRY_DELAY"), 100*time.Millisecond),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "tutorhive_matching")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SWEEP_INTERVAL", "1h")
	v.SetDefault("SWEEP_BATCH_SIZE", 100)
	v.SetDefault("SWEEP_INCLUDE_PENDING", false)

	v.SetDefault("NOTIFY_WORKERS", 2)
	v.SetDefault("NOTIFY_BUFFER_SIZE", 64)
	v.SetDefault("NOTIFY_MAX_RETRIES", 3)
	v.SetDefault("NOTIFY_RETRY_DELAY", "1s")
	v.SetDefault("NOTIFY_CHANNEL_PREFIX", "notify:user:")

	v.SetDefault("REQUEST_TTL", "168h")
	v.SetDefault("CONFLICT_PRICE_TOLERANCE_PCT", 10)
	v.SetDefault("SCHEDULE_HORIZON", "672h")
	v.SetDefault("TX_MAX_RETRIES", 3)
	v.SetDefault("TX_RETRY_DELAY", "100ms")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
