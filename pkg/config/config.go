package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds application configuration
type Config struct {
	Port           string
	DBDriver       string
	DBConn         string
	LogLevel       logrus.Level
	SweepInterval  time.Duration
	CapOverpayment bool

	SMTPHost        string
	SMTPPort        string
	SMTPUsername    string
	SMTPPassword    string
	SenderEmail     string
	OverdueNoticeTo []string
}

// NewConfig loads configuration from environment variables
func NewConfig() (*Config, error) {
	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		DBDriver:     getEnv("DB_DRIVER", "sqlite3"),
		DBConn:       getEnv("DB_CONN", "installments.db"),
		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnv("SMTP_PORT", "587"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SenderEmail:  getEnv("SENDER_EMAIL", "installments@localhost"),
	}

	if cfg.DBDriver != "sqlite3" && cfg.DBDriver != "postgres" {
		return nil, fmt.Errorf("DB_DRIVER must be sqlite3 or postgres, got %q", cfg.DBDriver)
	}
	if cfg.DBConn == "" {
		return nil, fmt.Errorf("DB_CONN is required")
	}

	level, err := logrus.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	cfg.LogLevel = level

	interval, err := time.ParseDuration(getEnv("SWEEP_INTERVAL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid SWEEP_INTERVAL: %w", err)
	}
	if interval < time.Second {
		return nil, fmt.Errorf("SWEEP_INTERVAL must be at least 1s, got %s", interval)
	}
	cfg.SweepInterval = interval

	capOverpayment, err := strconv.ParseBool(getEnv("CAP_PLAN_OVERPAYMENT", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid CAP_PLAN_OVERPAYMENT: %w", err)
	}
	cfg.CapOverpayment = capOverpayment

	for _, addr := range strings.Split(getEnv("OVERDUE_NOTICE_TO", ""), ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			cfg.OverdueNoticeTo = append(cfg.OverdueNoticeTo, addr)
		}
	}

	return cfg, nil
}

// NoticesEnabled reports whether overdue notices should be mailed.
func (c *Config) NoticesEnabled() bool {
	return c.SMTPHost != "" && len(c.OverdueNoticeTo) > 0
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}
