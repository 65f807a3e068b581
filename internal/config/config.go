// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	JWTSecret      string `mapstructure:"JWT_SECRET"`
	Port           string `mapstructure:"PORT"`
	PublicURL      string `mapstructure:"PUBLIC_URL"`
	DBHost         string `mapstructure:"DB_HOST"`
	DBPort         string `mapstructure:"DB_PORT"`
	DBUser         string `mapstructure:"DB_USER"`
	DBPassword     string `mapstructure:"DB_PASSWORD"`
	DBName         string `mapstructure:"DB_NAME"`
	DBSSLMode      string `mapstructure:"DB_SSLMODE"`
	RedisURL       string `mapstructure:"REDIS_URL"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	FeatureFlags   string `mapstructure:"FEATURE_FLAGS"`
	Env            string `mapstructure:"APP_ENV"`

	// SeedDemoMembers fills an empty development directory on startup.
	SeedDemoMembers int `mapstructure:"SEED_DEMO_MEMBERS"`

	// Passwordless sign-in
	CommunityPassword string `mapstructure:"COMMUNITY_PASSWORD"`
	OTPTTLMinutes     int    `mapstructure:"OTP_TTL_MINUTES"`
	OTPMaxAttempts    int    `mapstructure:"OTP_MAX_ATTEMPTS"`
	SessionTTLHours   int    `mapstructure:"SESSION_TTL_HOURS"`
	RememberTTLDays   int    `mapstructure:"REMEMBER_TTL_DAYS"`

	// Post-mutation reconciliation
	ReconcileMode        string `mapstructure:"RECONCILE_MODE"`
	ReconcileDelayMS     int    `mapstructure:"RECONCILE_DELAY_MS"`
	ReconcileMaxAttempts int    `mapstructure:"RECONCILE_MAX_ATTEMPTS"`

	TracingEnabled     bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter    string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint       string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSampleRatio float64 `mapstructure:"TRACING_SAMPLE_RATIO"`
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The base file is optional; env vars alone are enough to run.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "test" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.DBSSLMode = strings.ToLower(strings.TrimSpace(config.DBSSLMode))
	config.ReconcileMode = strings.ToLower(strings.TrimSpace(config.ReconcileMode))

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("PORT", "8375")
	viper.SetDefault("PUBLIC_URL", "http://localhost:5173")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "memberdir")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("REDIS_URL", "localhost:6379")
	viper.SetDefault("JWT_SECRET", defaultJWTSecret)
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173")
	viper.SetDefault("FEATURE_FLAGS", "")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("SEED_DEMO_MEMBERS", 0)

	viper.SetDefault("COMMUNITY_PASSWORD", "")
	viper.SetDefault("OTP_TTL_MINUTES", 10)
	viper.SetDefault("OTP_MAX_ATTEMPTS", 5)
	viper.SetDefault("SESSION_TTL_HOURS", 12)
	viper.SetDefault("REMEMBER_TTL_DAYS", 30)

	viper.SetDefault("RECONCILE_MODE", "delay")
	viper.SetDefault("RECONCILE_DELAY_MS", 100)
	viper.SetDefault("RECONCILE_MAX_ATTEMPTS", 5)

	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	viper.SetDefault("TRACING_SAMPLE_RATIO", 1.0)
}

// IsProduction reports whether the configured environment is production.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// OTPTTL returns how long a sign-in code stays valid.
func (c *Config) OTPTTL() time.Duration {
	if c.OTPTTLMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.OTPTTLMinutes) * time.Minute
}

// SessionTTL returns the lifetime of a session-scoped token.
func (c *Config) SessionTTL() time.Duration {
	if c.SessionTTLHours <= 0 {
		return 12 * time.Hour
	}
	return time.Duration(c.SessionTTLHours) * time.Hour
}

// RememberTTL returns the lifetime of a durable ("remember me") token.
func (c *Config) RememberTTL() time.Duration {
	if c.RememberTTLDays <= 0 {
		return 30 * 24 * time.Hour
	}
	return time.Duration(c.RememberTTLDays) * 24 * time.Hour
}

// ReconcileDelay returns the wait between a successful mutation and the reload.
func (c *Config) ReconcileDelay() time.Duration {
	if c.ReconcileDelayMS < 0 {
		return 0
	}
	return time.Duration(c.ReconcileDelayMS) * time.Millisecond
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch c.ReconcileMode {
	case "", "delay", "poll":
	default:
		return fmt.Errorf("RECONCILE_MODE must be 'delay' or 'poll', got %q", c.ReconcileMode)
	}
	if c.TracingSampleRatio < 0 || c.TracingSampleRatio > 1 {
		return errors.New("TRACING_SAMPLE_RATIO must be between 0 and 1")
	}

	if c.IsProduction() {
		if c.JWTSecret == defaultJWTSecret {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.DBPassword == "password" || c.DBPassword == "" {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.CommunityPassword == "" {
			return errors.New("COMMUNITY_PASSWORD is required in production")
		}
		if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
			log.Println("WARNING: DB_SSLMODE is 'disable' in production. It is highly recommended to use SSL for database connections.")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	} else {
		if len(c.JWTSecret) < 32 {
			log.Println("WARNING: JWT_SECRET is shorter than 32 characters. Consider using a stronger secret for production.")
		}
		if c.CommunityPassword == "" {
			log.Println("WARNING: COMMUNITY_PASSWORD is empty; sign-up is open to anyone.")
		}
	}

	return nil
}
