package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Port             string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     string
	PostgresSSLMode  string
	PostgresTimeZone string

	StripeWebhookKey string
	Currency         string
	// MinorUnitsPerPoint is how many minor currency units earn one base
	// point (100 = one point per whole currency unit).
	MinorUnitsPerPoint int64

	JWTSecret string

	KafkaBrokers string
	AuditTopic   string

	PaymentSNSTopicARN string

	CatalogServiceURL string
	// FraudToleranceMinor allows this many minor units of rounding drift
	// before a total mismatch is recorded as a fraud signal.
	FraudToleranceMinor int64
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		Port:             getEnv("PORT", "8087"),
		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     os.Getenv("POSTGRES_HOST"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		PostgresTimeZone: getEnv("POSTGRES_TIMEZONE", "UTC"),

		StripeWebhookKey:   os.Getenv("STRIPE_WEBHOOK_SECRET"),
		Currency:           getEnv("CURRENCY", "usd"),
		MinorUnitsPerPoint: getEnvInt64("MINOR_UNITS_PER_POINT", 100),

		JWTSecret: os.Getenv("JWT_SECRET"),

		KafkaBrokers: os.Getenv("KAFKA_BROKERS"),
		AuditTopic:   getEnv("AUDIT_TOPIC", "rewards-audit"),

		PaymentSNSTopicARN: os.Getenv("PAYMENT_SNS_TOPIC_ARN"),

		CatalogServiceURL:   os.Getenv("CATALOG_SERVICE_URL"),
		FraudToleranceMinor: getEnvInt64("FRAUD_TOLERANCE_MINOR", 1),
	}

	if cfg.PostgresUser == "" || cfg.PostgresPassword == "" || cfg.PostgresDB == "" || cfg.PostgresHost == "" ||
		cfg.StripeWebhookKey == "" || cfg.JWTSecret == "" {
		return nil, fmt.Errorf("missing required environment variables")
	}
	if cfg.MinorUnitsPerPoint <= 0 {
		return nil, fmt.Errorf("MINOR_UNITS_PER_POINT must be positive")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
