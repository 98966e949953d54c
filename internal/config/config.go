package config

import (
	"fmt"
	"os"
	"strconv"
)

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	Driver   string // "postgres" or "sqlite3"
}

type Config struct {
	HTTPPort        string
	JWTSecret       string
	LogLevel        string
	HubSendBuffer   int // queued events per subscriber before it is dropped
	ConflictRetries int
	DB              DatabaseConfig
}

func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		JWTSecret:       getEnv("JWT_SECRET", "secretKey"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		HubSendBuffer:   getEnvInt("HUB_SEND_BUFFER", 32),
		ConflictRetries: getEnvInt("CONFLICT_RETRIES", 3),
		DB: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "taskflow_user"),
			Password: getEnv("DB_PASSWORD", "taskflow_pass"),
			DBName:   getEnv("DB_NAME", "taskflow_db"),
			Driver:   getEnv("DB_DRIVER", "postgres"),
		},
	}
	if cfg.HubSendBuffer < 1 {
		return nil, fmt.Errorf("HUB_SEND_BUFFER must be positive")
	}
	if cfg.ConflictRetries < 0 {
		return nil, fmt.Errorf("CONFLICT_RETRIES must not be negative")
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func (db *DatabaseConfig) DSN() string {
	switch db.Driver {
	case "postgres":
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			db.Host, db.Port, db.User, db.Password, db.DBName)
	case "sqlite3":
		return fmt.Sprintf("%s.db", db.DBName)
	default:
		return ""
	}
}
