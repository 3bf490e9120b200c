package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	PublicBaseURL string

	// Durable store
	StorageBackend   string
	RedisAddr        string
	RedisPassword    string
	RedisTLS         bool
	RedisKeyPrefix   string
	SQLitePath       string
	DatabaseURL      string
	StoreResync      bool
	SimulatedLatency bool

	// Sessions
	JWTSecret     string
	TokenTTL      time.Duration
	AdminEmail    string
	PatientEmail  string
	DemoPassword  string
	SessionPrefix string

	// HTTP
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	ReportsBucket       string
	EventsQueueURL      string

	// Event fan-out
	KafkaBrokers     []string
	KafkaTopic       string
	MQTTBroker       string
	MQTTTopic        string
	MQTTClientID     string
	EventsWebhookURL string
	EventQueueSize   int
	OutboxEnabled    bool

	// Email
	EmailProvider     string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
	SESConfigSet      string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),

		StorageBackend:   strings.ToLower(strings.TrimSpace(getEnv("STORAGE_BACKEND", "memory"))),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisTLS:         getEnvAsBool("REDIS_TLS", false),
		RedisKeyPrefix:   getEnv("REDIS_KEY_PREFIX", "hmpv:"),
		SQLitePath:       getEnv("SQLITE_PATH", "data/hmpv.db"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		StoreResync:      getEnvAsBool("STORE_RESYNC", false),
		SimulatedLatency: getEnvAsBool("SIMULATED_LATENCY", false),

		JWTSecret:     getEnv("JWT_SECRET", "dev-only-secret"),
		TokenTTL:      getEnvAsDuration("TOKEN_TTL", 24*time.Hour),
		AdminEmail:    getEnv("ADMIN_EMAIL", "admin@test.com"),
		PatientEmail:  getEnv("PATIENT_EMAIL", "patient@test.com"),
		DemoPassword:  getEnv("DEMO_PASSWORD", "password"),
		SessionPrefix: getEnv("SESSION_KEY_PREFIX", "session:"),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		ReportsBucket:       getEnv("REPORTS_BUCKET", ""),
		EventsQueueURL:      getEnv("EVENTS_QUEUE_URL", ""),

		KafkaBrokers:     getEnvAsList("KAFKA_BROKERS"),
		KafkaTopic:       getEnv("KAFKA_TOPIC", "lab-appointments"),
		MQTTBroker:       getEnv("MQTT_BROKER", ""),
		MQTTTopic:        getEnv("MQTT_TOPIC", "hmpv/appointments"),
		MQTTClientID:     getEnv("MQTT_CLIENT_ID", "hmpv-api"),
		EventsWebhookURL: getEnv("EVENTS_WEBHOOK_URL", ""),
		EventQueueSize:   getEnvAsInt("EVENT_QUEUE_SIZE", 256),
		OutboxEnabled:    getEnvAsBool("OUTBOX_ENABLED", false),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "HMPV Lab"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		SESConfigSet:      getEnv("SES_CONFIGURATION_SET", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
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

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
