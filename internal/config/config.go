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

type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	MFA       MFAConfig
	RateLimit RateLimitConfig
	Security  SecurityConfig
	Email     EmailConfig
}

type DatabaseConfig struct {
	Host              string `validate:"required"`
	Port              int    `validate:"min=1,max=65535"`
	User              string `validate:"required"`
	Password          string `validate:"required"`
	Name              string `validate:"required"`
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port         string `validate:"required"`
	Env          string `validate:"oneof=development staging production"`
	LogLevel     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type MFAConfig struct {
	TOTPDigits       int           `validate:"min=6,max=8"`
	TOTPPeriod       int           `validate:"min=15,max=120"`
	TOTPWindow       int           `validate:"min=0,max=4"`
	TOTPIssuer       string        `validate:"required"`
	MaxFailures      int           `validate:"min=1"`
	LockDuration     time.Duration `validate:"min=1m"`
	PendingSecretTTL time.Duration
	PendingLoginTTL  time.Duration
	OTPCodeLength    int           `validate:"min=4,max=10"`
	OTPTTL           time.Duration `validate:"min=1m"`
	OTPMaxAttempts   int           `validate:"min=1"`
	OTPIssueLimit    int           `validate:"min=1"`
	OTPIssueWindow   time.Duration
	RecoveryCount    int `validate:"min=4,max=20"`
}

type RateLimitConfig struct {
	Backend       string `validate:"oneof=redis file memory"`
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	FilePath      string
	MaxKeys       int
}

type SecurityConfig struct {
	SnapshotKey     string
	WebAuthnRPID    string
	WebAuthnRPName  string
	WebAuthnOrigins []string
	ChallengeTTL    time.Duration
}

type EmailConfig struct {
	AWSRegion   string
	FromAddress string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "punchdeck"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Env:          env,
			LogLevel:     getEnv("LOG_LEVEL", "info"),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		MFA: MFAConfig{
			TOTPDigits:       clampInt(getEnvAsInt("TOTP_DIGITS", 6), 6, 8),
			TOTPPeriod:       clampInt(getEnvAsInt("TOTP_PERIOD", 30), 15, 120),
			TOTPWindow:       clampInt(getEnvAsInt("TOTP_WINDOW", 1), 0, 4),
			TOTPIssuer:       getEnv("TOTP_ISSUER", "PunchDeck"),
			MaxFailures:      getEnvAsInt("MFA_MAX_FAILURES", 5),
			LockDuration:     getEnvAsDuration("MFA_LOCK_DURATION", 5*time.Minute),
			PendingSecretTTL: getEnvAsDuration("MFA_PENDING_SECRET_TTL", 10*time.Minute),
			PendingLoginTTL:  getEnvAsDuration("MFA_PENDING_LOGIN_TTL", 5*time.Minute),
			OTPCodeLength:    clampInt(getEnvAsInt("OTP_CODE_LENGTH", 6), 4, 10),
			OTPTTL:           getEnvAsDuration("OTP_TTL", 5*time.Minute),
			OTPMaxAttempts:   getEnvAsInt("OTP_MAX_ATTEMPTS", 5),
			OTPIssueLimit:    getEnvAsInt("OTP_ISSUE_LIMIT", 3),
			OTPIssueWindow:   getEnvAsDuration("OTP_ISSUE_WINDOW", time.Hour),
			RecoveryCount:    clampInt(getEnvAsInt("RECOVERY_CODE_COUNT", 10), 4, 20),
		},
		RateLimit: RateLimitConfig{
			Backend:       getEnv("RATE_LIMIT_BACKEND", "memory"),
			RedisAddr:     getEnv("REDIS_ADDR", ""),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvAsInt("REDIS_DB", 0),
			FilePath:      getEnv("RATE_LIMIT_FILE", ""),
			MaxKeys:       getEnvAsInt("RATE_LIMIT_MAX_KEYS", 4096),
		},
		Security: SecurityConfig{
			SnapshotKey:     getEnv("SNAPSHOT_KEY", ""),
			WebAuthnRPID:    getEnv("WEBAUTHN_RP_ID", "localhost"),
			WebAuthnRPName:  getEnv("WEBAUTHN_RP_NAME", "PunchDeck"),
			WebAuthnOrigins: parseOrigins(getEnv("WEBAUTHN_ORIGINS", "")),
			ChallengeTTL:    getEnvAsDuration("WEBAUTHN_CHALLENGE_TTL", 2*time.Minute),
		},
		Email: EmailConfig{
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM", "no-reply@punchdeck.example"),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}
	if cfg.IsProduction() && cfg.Security.SnapshotKey == "" {
		return nil, fmt.Errorf("SNAPSHOT_KEY is required in production")
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

// clampInt pins out-of-range values instead of failing startup
func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func parseOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
