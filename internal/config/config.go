package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	Logger LoggerConfig

	// CronSecret guards the automation trigger endpoint. When empty the
	// endpoint only accepts requests outside production.
	CronSecret string

	// DefaultRoyaltyRateBps is the royalty rate applied when a tenant has no
	// override configured, in basis points. Single source for both the
	// calculator and dashboard estimates.
	DefaultRoyaltyRateBps int64

	// InvoiceDueInDays is the default payment window for generated invoices.
	InvoiceDueInDays int

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string
}

type LoggerConfig struct {
	Level string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "campforge"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		Logger: LoggerConfig{
			Level: getenv("LOG_LEVEL", "info"),
		},
		CronSecret:            strings.TrimSpace(getenv("CRON_SECRET", "")),
		DefaultRoyaltyRateBps: getenvInt64("DEFAULT_ROYALTY_RATE_BPS", 1000),
		InvoiceDueInDays:      int(getenvInt64("INVOICE_DUE_IN_DAYS", 30)),
		DBType:                getenv("DATABASE_TYPE", "postgres"),
		DBHost:                getenv("DATABASE_HOST", "localhost"),
		DBPort:                getenv("DATABASE_PORT", "5432"),
		DBName:                getenv("DATABASE_NAME", "campforge"),
		DBUser:                getenv("DATABASE_USER", "postgres"),
		DBPassword:            getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:             getenv("DATABASE_SSLMODE", "disable"),
		SMTPHost:              getenv("SMTP_HOST", ""),
		SMTPPort:              getenv("SMTP_PORT", "587"),
		SMTPUser:              getenv("SMTP_USER", ""),
		SMTPPassword:          getenv("SMTP_PASSWORD", ""),
		SMTPFrom:              getenv("SMTP_FROM", "billing@campforge.dev"),
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

// Module provides the application configuration.
var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewBillingConfigHolder),
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}
