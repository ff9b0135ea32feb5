package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
)

// NewsletterConfig configures the subscription relay.
type NewsletterConfig struct {
	Environment     string
	Port            int
	APIKey          string
	SubscribersFile string
	BlocklistFile   string
	AllowedOrigins  []string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	RateLimit       int
	RateWindow      time.Duration
	AMQPURL         string
	AMQPExchange    string
	OTLPEndpoint    string
	LogLevel        string
	LogPretty       bool
}

// LoadNewsletter reads the relay settings from .env and the environment.
func LoadNewsletter() (*NewsletterConfig, error) {
	_ = godotenv.Load()

	cfg := &NewsletterConfig{
		Environment:     getEnv("ENVIRONMENT", "development"),
		Port:            getEnvAsInt("PORT", 3000),
		APIKey:          getEnv("API_KEY", "wafflechat"),
		SubscribersFile: getEnv("SUBSCRIBERS_FILE", "subscribers.txt"),
		BlocklistFile:   getEnv("BLOCKLIST_FILE", "blocklist.txt"),
		AllowedOrigins:  getEnvAsList("ALLOWED_ORIGINS"),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getEnvAsInt("REDIS_DB", 0),
		RateLimit:       getEnvAsInt("RATE_LIMIT", 10),
		RateWindow:      getEnvAsDuration("RATE_WINDOW", time.Minute),
		AMQPURL:         getEnv("AMQP_URL", ""),
		AMQPExchange:    getEnv("AMQP_EXCHANGE", "waffle.events"),
		OTLPEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogPretty:       getEnvAsBool("LOG_PRETTY", false),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *NewsletterConfig) validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("API_KEY must be set")
	}
	if c.SubscribersFile == "" {
		return fmt.Errorf("SUBSCRIBERS_FILE must be set")
	}
	if c.RedisAddr != "" && (c.RateLimit <= 0 || c.RateWindow <= 0) {
		return fmt.Errorf("RATE_LIMIT and RATE_WINDOW must be positive when redis is configured")
	}
	return nil
}

// Addr is the listen address for the relay.
func (c *NewsletterConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
