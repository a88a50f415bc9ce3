package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/yourusername/freelance-billing/logger"
	"github.com/yourusername/freelance-billing/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Config struct {
	Port             string
	DatabaseURL      string
	JWTSecret        string
	JWTRefreshSecret string

	StripeSecretKey     string
	StripeWebhookSecret string

	RabbitMQURL  string
	EmailQueue   string
	SenderEmail  string
	BusinessName string

	KafkaBroker string
	KafkaTopic  string

	RecurringSchedule     string
	ReminderSchedule      string
	SendRecurringInvoices bool
	OperationTimeout      time.Duration

	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

func LoadConfig() (*Config, error) {
	godotenv.Load()

	timeout, err := time.ParseDuration(getEnvOrDefault("OPERATION_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid OPERATION_TIMEOUT: %w", err)
	}
	sendRecurring, err := strconv.ParseBool(getEnvOrDefault("SEND_RECURRING_INVOICES", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid SEND_RECURRING_INVOICES: %w", err)
	}

	cfg := &Config{
		Port:                  getEnvOrDefault("PORT", "8080"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		JWTSecret:             os.Getenv("JWT_SECRET"),
		JWTRefreshSecret:      os.Getenv("JWT_REFRESH_SECRET"),
		StripeSecretKey:       os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret:   os.Getenv("STRIPE_WEBHOOK_SECRET"),
		RabbitMQURL:           os.Getenv("RABBITMQ_URL"),
		EmailQueue:            getEnvOrDefault("EMAIL_QUEUE", "email_jobs"),
		SenderEmail:           getEnvOrDefault("SENDER_EMAIL", "billing@localhost"),
		BusinessName:          os.Getenv("BUSINESS_NAME"),
		KafkaBroker:           os.Getenv("KAFKA_BROKER"),
		KafkaTopic:            getEnvOrDefault("KAFKA_TOPIC", "invoice.events"),
		RecurringSchedule:     getEnvOrDefault("RECURRING_SCHEDULE", "0 6 * * *"),
		ReminderSchedule:      getEnvOrDefault("REMINDER_SCHEDULE", "0 9 * * *"),
		SendRecurringInvoices: sendRecurring,
		OperationTimeout:      timeout,
		LogLevel:              getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:             getEnvOrDefault("LOG_FORMAT", "json"),
		LogTimeFormat:         getEnvOrDefault("LOG_TIME_FORMAT", time.RFC3339),
		LogOutput:             getEnvOrDefault("LOG_OUTPUT", "stdout"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.OperationTimeout <= 0 {
		return fmt.Errorf("OPERATION_TIMEOUT must be positive")
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(models.All()...); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
