package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	NATSURL     string `validate:"required"`
	NATSSubject string `validate:"required"`
	NATSStream  string
	NATSDurable string `validate:"required"`

	DatabaseURL string `validate:"required"`

	// FlushIdleTimeout is how long the read loop waits for a message before
	// flushing whatever is buffered.
	FlushIdleTimeout time.Duration `validate:"gt=0"`
	// MaxDeliveries bounds redelivery of a failing message: the last attempt
	// is acknowledged and discarded instead of negatively acknowledged.
	MaxDeliveries int `validate:"min=1"`

	// Kafka sink for per-flush operator reports; disabled when no brokers
	// are configured.
	ReportKafkaBrokers []string
	ReportKafkaTopic   string

	HTTPAddr        string `validate:"required"`
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration `validate:"gt=0"`
}

// ReportKafkaEnabled reports whether flush reports should also be published
// to Kafka.
func (c *Config) ReportKafkaEnabled() bool {
	return len(c.ReportKafkaBrokers) > 0
}

// Load reads configuration from the environment (and a .env file when
// present), applying defaults where unset.
func Load() (*Config, error) {
	// .env is a local-dev convenience; missing files are fine.
	_ = godotenv.Load()

	flushTimeout, err := parseDuration("FLUSH_IDLE_TIMEOUT", "10m")
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "15s")
	if err != nil {
		return nil, err
	}
	maxDeliveries, err := parseInt("MAX_DELIVERIES", 2)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		NATSURL:     envOrDefault("NATS_URL", "nats://localhost:4222"),
		NATSSubject: envOrDefault("NATS_SUBJECT", "transit.breadcrumbs"),
		NATSStream:  os.Getenv("NATS_STREAM"),
		NATSDurable: envOrDefault("NATS_DURABLE", "breadcrumb-etl"),

		DatabaseURL: envOrDefault("DATABASE_URL",
			"postgres://postgres@localhost:5432/whimsy_data?sslmode=disable"),

		FlushIdleTimeout: flushTimeout,
		MaxDeliveries:    maxDeliveries,

		ReportKafkaBrokers: parseBrokers(os.Getenv("REPORT_KAFKA_BROKERS")),
		ReportKafkaTopic:   envOrDefault("REPORT_KAFKA_TOPIC", "breadcrumb-flush-reports"),

		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.ReportKafkaEnabled() && cfg.ReportKafkaTopic == "" {
		return nil, fmt.Errorf("REPORT_KAFKA_BROKERS is set but REPORT_KAFKA_TOPIC is empty")
	}
	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDuration(key, def string) (time.Duration, error) {
	s := envOrDefault(key, def)
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, s)
	}
	return d, nil
}

func parseInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid %s %q", key, s)
	}
	return n, nil
}

func parseBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
