package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type AppConfig struct {
	ToolCommand    string // codeforge binary inside the container
	ContainerImage string
	ContainerShell string
	LogLevel       string
	ServiceName    string
	DatabaseURL    string // optional, enables campaign history
	RabbitMQURL    string // optional, enables event publishing
	RedisURL       string // optional, enables session status keys
	DiscoveryTTL   time.Duration
	RetryAttempts  int
}

func LoadConfig() *AppConfig {
	// use a temporary logger for now
	logger := zap.NewExample().Named("config")

	godotenv.Load()

	config := &AppConfig{
		ToolCommand:    os.Getenv("CODEFORGE_COMMAND"),
		ContainerImage: os.Getenv("CONTAINER_IMAGE"),
		ContainerShell: os.Getenv("CONTAINER_SHELL"),
		LogLevel:       os.Getenv("LOG_LEVEL"),
		ServiceName:    os.Getenv("SERVICE_NAME"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RabbitMQURL:    os.Getenv("RABBITMQ_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		DiscoveryTTL:   parseDuration(os.Getenv("DISCOVERY_TTL"), 30*time.Second),
		RetryAttempts:  parseInt(os.Getenv("RETRY_ATTEMPTS"), 3),
	}

	if config.ToolCommand == "" {
		config.ToolCommand = "codeforge"
	}
	if config.ContainerImage == "" {
		config.ContainerImage = "ghcr.io/tuliptreetech/codeforge:latest"
	}
	if config.ContainerShell == "" {
		config.ContainerShell = "/bin/bash"
	}
	if config.LogLevel == "" {
		config.LogLevel = "info" // Set default log level
	}
	if config.ServiceName == "" {
		config.ServiceName = "fuzzforge" // Default service name
	}
	if config.RetryAttempts < 1 {
		logger.Warn("RETRY_ATTEMPTS must be at least 1, using default")
		config.RetryAttempts = 3
	}

	return config
}

func parseDuration(val string, defaultVal time.Duration) time.Duration {
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}

func parseInt(val string, defaultVal int) int {
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}
