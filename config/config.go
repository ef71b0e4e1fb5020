package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	AppPort string
	AppEnv  string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	JWTSecret string

	// Admin credentials for the management API. Env-provided; there is no
	// admin table, one operator account is enough for this deployment.
	AdminEmail    string
	AdminPassword string

	// EnrollmentWindow bounds how long an armed tag capture stays open
	// before the coordinator cancels it on its own.
	EnrollmentWindow time.Duration

	// RateLimit is the per-IP request budget for /api within RateWindow.
	RateLimit  int
	RateWindow time.Duration
}

func get(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func Load() *Config {
	return &Config{
		AppPort: get("APP_PORT", "3000"),
		AppEnv:  get("APP_ENV", "dev"),

		DBHost:     get("DB_HOST", "localhost"),
		DBPort:     get("DB_PORT", "5432"),
		DBUser:     get("DB_USER", "postgres"),
		DBPassword: get("DB_PASSWORD", "postgres"),
		DBName:     get("DB_NAME", "guivans"),
		DBSSLMode:  get("DB_SSLMODE", "disable"),

		JWTSecret: get("JWT_SECRET", "dev-secret"),

		AdminEmail:    get("ADMIN_EMAIL", "admin@guivans.com"),
		AdminPassword: get("ADMIN_PASSWORD", "admin123"),

		EnrollmentWindow: time.Duration(getInt("ENROLLMENT_WINDOW_SECONDS", 30)) * time.Second,

		RateLimit:  getInt("RATE_LIMIT", 100),
		RateWindow: time.Duration(getInt("RATE_WINDOW_MINUTES", 15)) * time.Minute,
	}
}

func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode,
	)
}
