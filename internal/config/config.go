package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	DatabaseURL   string
	PublicBaseURL string

	// WhatsApp Cloud API integration
	WhatsAppVerifyToken string
	MetaAppSecret       string
	WhatsAppAccessToken string
	WhatsAppAPIBaseURL  string
	WhatsAppMarkRead    bool

	// Realtime change events (optional; disabled when AMQPURL is empty)
	AMQPURL      string
	AMQPExchange string

	// Per-unit processing bound inside a webhook batch
	WebhookUnitTimeout time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),

		WhatsAppVerifyToken: getEnv("WHATSAPP_VERIFY_TOKEN", "chathive-webhook-verify"),
		MetaAppSecret:       getEnv("META_APP_SECRET", ""),
		WhatsAppAccessToken: getEnv("WHATSAPP_ACCESS_TOKEN", ""),
		WhatsAppAPIBaseURL:  getEnv("WHATSAPP_API_BASE_URL", "https://graph.facebook.com/v21.0"),
		WhatsAppMarkRead:    getEnvAsBool("WHATSAPP_MARK_READ", false),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "chathive.events"),

		WebhookUnitTimeout: getEnvAsDuration("WEBHOOK_UNIT_TIMEOUT", 5*time.Second),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
