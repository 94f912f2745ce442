package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Auth      AuthConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Mail      MailConfig
	Scheduler SchedulerConfig
}

type ServerConfig struct {
	Port        string
	GinMode     string
	Environment string
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	DBName       string
	SSLMode      string
	QueryTimeout time.Duration
}

type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

// AuthConfig carries the credential policy handed to the auth and reset services.
type AuthConfig struct {
	BcryptCost         int
	ResetTokenExpiry   time.Duration
	MinPasswordLength  int
	ConfirmMaxAttempts int
	FrontendResetURL   string
	// ResetMailTimeout bounds a reset email sent after the request returned.
	ResetMailTimeout time.Duration
}

// RedisConfig is optional. An empty Addr keeps rate limiting in process.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

// MailConfig is optional. Without Username/Password reset links are only logged.
type MailConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

type SchedulerConfig struct {
	ResetPurgeSpec string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("SERVER_PORT", "8080"),
			GinMode:     getEnv("GIN_MODE", "debug"),
			Environment: getEnv("ENVIRONMENT", "development"),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "ccs"),
			Password:     getEnv("DB_PASSWORD", "ccs"),
			DBName:       getEnv("DB_NAME", "ccs_membership"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			QueryTimeout: parseDuration(getEnv("DB_QUERY_TIMEOUT", "5s"), 5*time.Second),
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", "change-me"),
			AccessTokenExpiry: parseDuration(getEnv("JWT_ACCESS_TOKEN_EXPIRY", "15m"), 15*time.Minute),
		},
		CORS: CORSConfig{
			AllowedOrigins: parseSlice(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		},
		Auth: AuthConfig{
			BcryptCost:         parseInt(getEnv("AUTH_BCRYPT_COST", "12"), 12),
			ResetTokenExpiry:   parseDuration(getEnv("AUTH_RESET_TOKEN_EXPIRY", "1h"), time.Hour),
			MinPasswordLength:  parseInt(getEnv("AUTH_MIN_PASSWORD_LENGTH", "6"), 6),
			ConfirmMaxAttempts: parseInt(getEnv("AUTH_CONFIRM_MAX_ATTEMPTS", "3"), 3),
			FrontendResetURL:   getEnv("FRONTEND_RESET_URL", "http://localhost:3000/reset-password"),
			ResetMailTimeout:   parseDuration(getEnv("AUTH_RESET_MAIL_TIMEOUT", "30s"), 30*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       parseInt(getEnv("REDIS_DB", "0"), 0),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: parseInt(getEnv("RATE_LIMIT_PER_MINUTE", "20"), 20),
			Burst:             parseInt(getEnv("RATE_LIMIT_BURST", "5"), 5),
		},
		Mail: MailConfig{
			Host:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			Port:     getEnv("SMTP_PORT", "587"),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "no-reply@ccs.local"),
		},
		Scheduler: SchedulerConfig{
			ResetPurgeSpec: getEnv("RESET_PURGE_CRON", "@hourly"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	if c.Auth.MinPasswordLength < 1 {
		return fmt.Errorf("AUTH_MIN_PASSWORD_LENGTH must be positive, got %d", c.Auth.MinPasswordLength)
	}
	if c.Auth.ConfirmMaxAttempts < 1 {
		return fmt.Errorf("AUTH_CONFIRM_MAX_ATTEMPTS must be positive, got %d", c.Auth.ConfirmMaxAttempts)
	}
	if c.Auth.ResetTokenExpiry <= 0 {
		return fmt.Errorf("AUTH_RESET_TOKEN_EXPIRY must be positive, got %s", c.Auth.ResetTokenExpiry)
	}
	if c.Server.Environment == "production" && c.JWT.Secret == "change-me" {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// MailEnabled reports whether SMTP credentials are present.
func (c *MailConfig) MailEnabled() bool {
	return c.Username != "" && c.Password != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	duration, err := time.ParseDuration(s)
	if err != nil {
		log.Printf("Invalid duration %s, using default %s", s, fallback)
		return fallback
	}
	return duration
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		log.Printf("Invalid integer %s, using default %d", s, fallback)
		return fallback
	}
	return n
}

func parseSlice(s string) []string {
	if s == "" {
		return []string{}
	}
	var result []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
