package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        int
	DatabaseURI string
	LogLevel    string
	LogPretty   bool

	PlaidClientID    string
	PlaidSecret      string
	PlaidEnvironment string

	TellerAppID    string
	TellerCertFile string
	TellerKeyFile  string
	TellerBaseURL  string

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	MailFrom     string
	AppBaseURL   string
}

func Load() (*Config, error) {
	_ = godotenv.Load() // .env file is optional in production

	port, err := strconv.Atoi(getEnvOrDefault("PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}
	smtpPort, err := strconv.Atoi(getEnvOrDefault("SMTP_PORT", "587"))
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}

	cfg := &Config{
		Port:        port,
		DatabaseURI: os.Getenv("DATABASE_URI"),
		LogLevel:    getEnvOrDefault("LOG_LEVEL", "info"),
		LogPretty:   getEnvOrDefault("LOG_PRETTY", "false") == "true",

		PlaidClientID:    os.Getenv("PLAID_CLIENT_ID"),
		PlaidSecret:      os.Getenv("PLAID_SECRET"),
		PlaidEnvironment: getEnvOrDefault("PLAID_ENV", "sandbox"),

		TellerAppID:    os.Getenv("TELLER_APPLICATION_ID"),
		TellerCertFile: os.Getenv("TELLER_CERT_PATH"),
		TellerKeyFile:  os.Getenv("TELLER_KEY_PATH"),
		TellerBaseURL:  getEnvOrDefault("TELLER_BASE_URL", "https://api.teller.io"),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     smtpPort,
		SMTPUser:     os.Getenv("SMTP_USER"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		MailFrom:     getEnvOrDefault("MAIL_FROM", "noreply@localhost"),
		AppBaseURL:   getEnvOrDefault("APP_BASE_URL", "http://localhost:5173"),
	}

	if cfg.DatabaseURI == "" {
		return nil, fmt.Errorf("DATABASE_URI is required")
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
