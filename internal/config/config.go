package config

import (
	"os"
	"strconv"

	"sitewatch/internal/models"
)

// Load returns the server configuration from environment variables
func Load() models.Config {
	return models.Config{
		Port:          getEnv("PORT", "9080"),
		DBPath:        getEnv("DB_PATH", "sitewatch.db"),
		LogDir:        getEnv("LOG_DIR", "logs"),
		AdminUser:     getEnv("ADMIN_USER", "admin"),
		AdminPass:     getEnv("ADMIN_PASS", ""),
		AuthEnabled:   getEnv("AUTH_ENABLED", "true") == "true",
		MaxConcurrent: getEnvInt("SCHEDULER_MAX_CONCURRENT", 16),
		RetentionDays: getEnvInt("RESULT_RETENTION_DAYS", 90),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
