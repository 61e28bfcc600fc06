// Package config loads and validates service configuration.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Engine   EngineConfig
	OTP      OTPConfig
	Pricing  PricingConfig
	Events   EventsConfig
	Metrics  MetricsConfig
}

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	CORSOrigins  []string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

// EngineConfig bounds every balance-mutating operation.
type EngineConfig struct {
	OperationTimeout time.Duration
	DefaultWireFee   decimal.Decimal
	MaxWireAmount    decimal.Decimal
}

type OTPConfig struct {
	TTL            time.Duration
	Digits         int
	MaxAttempts    int
	ResendCooldown time.Duration
	CheckTimeout   time.Duration
}

type PricingConfig struct {
	ProviderURL string
	Timeout     time.Duration
	CacheTTL    time.Duration
	// StaticPrices are used when no provider answers, e.g. "btc=60000,eth=3000".
	StaticPrices map[string]decimal.Decimal
}

type EventsConfig struct {
	Sink         string
	RedisChannel string
	KafkaBrokers []string
	KafkaTopic   string
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getDurationEnv("SERVER_IDLE_TIMEOUT", 120*time.Second),
			CORSOrigins:  getListEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:      normalizeRedisURL(getEnv("REDIS_URL", "localhost:6379")),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "change-this-secret"),
		},
		Engine: EngineConfig{
			OperationTimeout: getDurationEnv("ENGINE_OPERATION_TIMEOUT", 5*time.Second),
			DefaultWireFee:   getDecimalEnv("WIRE_DEFAULT_FEE", decimal.NewFromInt(25)),
			MaxWireAmount:    getDecimalEnv("WIRE_MAX_AMOUNT", decimal.NewFromInt(1000000)),
		},
		OTP: OTPConfig{
			TTL:            getDurationEnv("OTP_TTL", 5*time.Minute),
			Digits:         getIntEnv("OTP_DIGITS", 6),
			MaxAttempts:    getIntEnv("OTP_MAX_ATTEMPTS", 3),
			ResendCooldown: getDurationEnv("OTP_RESEND_COOLDOWN", 60*time.Second),
			CheckTimeout:   getDurationEnv("OTP_CHECK_TIMEOUT", 2*time.Second),
		},
		Pricing: PricingConfig{
			ProviderURL:  getEnv("PRICE_PROVIDER_URL", ""),
			Timeout:      getDurationEnv("PRICE_TIMEOUT", 3*time.Second),
			CacheTTL:     getDurationEnv("PRICE_CACHE_TTL", 30*time.Second),
			StaticPrices: parsePrices(getEnv("PRICE_STATIC", "btc=60000,eth=3000,ada=0.45")),
		},
		Events: EventsConfig{
			Sink:         strings.ToLower(getEnv("EVENTS_SINK", "redis")),
			RedisChannel: getEnv("EVENTS_REDIS_CHANNEL", "ledger_events"),
			KafkaBrokers: getListEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
			KafkaTopic:   getEnv("KAFKA_TOPIC", "ledger.events"),
		},
		Metrics: MetricsConfig{
			Enabled: getBoolEnv("METRICS_ENABLED", true),
			Path:    getEnv("METRICS_PATH", "/metrics"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func normalizeRedisURL(url string) string {
	// Strip redis:// or redis+tls:// scheme if present
	if strings.HasPrefix(url, "redis+tls://") {
		return url[len("redis+tls://"):]
	}
	if strings.HasPrefix(url, "redis://") {
		return url[len("redis://"):]
	}
	return url
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return defaultValue
}

func getDecimalEnv(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parsePrices(raw string) map[string]decimal.Decimal {
	prices := make(map[string]decimal.Decimal)
	for _, pair := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil || !d.IsPositive() {
			continue
		}
		prices[strings.ToLower(strings.TrimSpace(k))] = d
	}
	return prices
}
