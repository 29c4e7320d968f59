package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Email providers.
const (
	EmailProviderLog = "log"
	EmailProviderSES = "ses"
)

// Event backends.
const (
	EventsBackendNone     = "none"
	EventsBackendRabbitMQ = "rabbitmq"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	Email     EmailConfig
	Events    EventsConfig
	Bootstrap BootstrapConfig
}

type ServerConfig struct {
	Port                   string
	Env                    string
	LogLevel               string
	ReadTimeout            time.Duration
	WriteTimeout           time.Duration
	IdleTimeout            time.Duration
	LoginRateLimitPerMin   int
	AccountRateLimitPerMin int
	TrustedProxies         []string
	AllowedOrigins         []string
}

type StorageConfig struct {
	Driver     string
	SQLitePath string
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type AuthConfig struct {
	JWTSecret               string
	JWTAlgorithm            string
	AccessTokenExpiry       time.Duration
	VerificationTokenExpiry time.Duration
	MaxLoginAttempts        int
	TimingDelayBase         time.Duration
	TimingDelayRandom       time.Duration
}

type EmailConfig struct {
	Provider            string
	AWSRegion           string
	FromAddress         string
	VerificationURLBase string
}

type EventsConfig struct {
	Backend     string
	RabbitMQURL string
	Queue       string
}

// BootstrapConfig describes the administrator created at startup when the
// account store is empty.
type BootstrapConfig struct {
	AdminEmail    string
	AdminPassword string
}

// Load reads the environment (and .env when present) into a Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	cfg := &Config{
		Server: ServerConfig{
			Port:                   getEnv("PORT", "8080"),
			Env:                    env,
			LogLevel:               getEnv("LOG_LEVEL", "info"),
			ReadTimeout:            getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:           getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:            getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			LoginRateLimitPerMin:   getEnvAsInt("LOGIN_RATE_LIMIT_PER_MINUTE", 20),
			AccountRateLimitPerMin: getEnvAsInt("ACCOUNT_RATE_LIMIT_PER_MINUTE", 120),
			TrustedProxies:         getEnvAsList("TRUSTED_PROXIES"),
			AllowedOrigins:         getEnvAsList("CORS_ALLOWED_ORIGINS"),
		},
		Storage: StorageConfig{
			Driver:     strings.ToLower(getEnv("STORAGE_DRIVER", DriverPostgres)),
			SQLitePath: getEnv("SQLITE_PATH", "usermgmt.db"),
		},
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "usermgmt"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Auth: AuthConfig{
			JWTSecret:               getEnv("JWT_SECRET", ""),
			JWTAlgorithm:            strings.ToUpper(getEnv("JWT_ALGORITHM", "HS256")),
			AccessTokenExpiry:       getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 30*time.Minute),
			VerificationTokenExpiry: getEnvAsDuration("VERIFICATION_TOKEN_EXPIRY", 24*time.Hour),
			MaxLoginAttempts:        getEnvAsInt("MAX_LOGIN_ATTEMPTS", 5),
			TimingDelayBase:         time.Duration(getEnvAsInt("TIMING_DELAY_BASE_MS", 0)) * time.Millisecond,
			TimingDelayRandom:       time.Duration(getEnvAsInt("TIMING_DELAY_RANDOM_MS", 0)) * time.Millisecond,
		},
		Email: EmailConfig{
			Provider:            strings.ToLower(getEnv("EMAIL_PROVIDER", EmailProviderLog)),
			AWSRegion:           getEnv("AWS_REGION", ""),
			FromAddress:         getEnv("EMAIL_FROM_ADDRESS", "no-reply@localhost"),
			VerificationURLBase: getEnv("EMAIL_VERIFICATION_URL_BASE", "http://localhost:8080/api/users/verify-email"),
		},
		Events: EventsConfig{
			Backend:     strings.ToLower(getEnv("EVENTS_BACKEND", EventsBackendNone)),
			RabbitMQURL: getEnv("RABBITMQ_URL", ""),
			Queue:       getEnv("EVENTS_QUEUE", "account.events"),
		},
		Bootstrap: BootstrapConfig{
			AdminEmail:    getEnv("ADMIN_EMAIL", ""),
			AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints. Load calls it; tests building a
// Config by hand may too.
func (c *Config) Validate() error {
	var errs []error

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	} else if err := validateJWTSecret(c.Auth.JWTSecret, c.Server.Env); err != nil {
		errs = append(errs, err)
	}

	switch c.Auth.JWTAlgorithm {
	case "HS256", "HS384", "HS512":
	default:
		errs = append(errs, fmt.Errorf("JWT_ALGORITHM must be one of HS256, HS384, HS512 (got %q)", c.Auth.JWTAlgorithm))
	}

	if c.Auth.MaxLoginAttempts <= 0 {
		errs = append(errs, fmt.Errorf("MAX_LOGIN_ATTEMPTS must be positive (got %d)", c.Auth.MaxLoginAttempts))
	}
	if c.Auth.AccessTokenExpiry <= 0 {
		errs = append(errs, errors.New("ACCESS_TOKEN_EXPIRY must be positive"))
	}
	if c.Auth.TimingDelayBase < 0 || c.Auth.TimingDelayRandom < 0 {
		errs = append(errs, errors.New("timing delays cannot be negative"))
	}
	if c.Server.AccountRateLimitPerMin < 0 {
		errs = append(errs, errors.New("ACCOUNT_RATE_LIMIT_PER_MINUTE must not be negative"))
	}
	if c.Server.LoginRateLimitPerMin <= 0 {
		errs = append(errs, errors.New("LOGIN_RATE_LIMIT_PER_MINUTE must be positive"))
	}

	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Database.Password == "" {
			errs = append(errs, errors.New("DB_PASSWORD is required for the postgres driver"))
		}
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite driver"))
		}
	case DriverMemory:
		if c.Server.Env == "production" {
			errs = append(errs, errors.New("the memory driver is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE_DRIVER must be one of postgres, sqlite, memory (got %q)", c.Storage.Driver))
	}

	switch c.Email.Provider {
	case EmailProviderLog:
	case EmailProviderSES:
		if c.Email.AWSRegion == "" {
			errs = append(errs, errors.New("AWS_REGION is required for the ses email provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("EMAIL_PROVIDER must be log or ses (got %q)", c.Email.Provider))
	}

	switch c.Events.Backend {
	case EventsBackendNone:
	case EventsBackendRabbitMQ:
		if c.Events.RabbitMQURL == "" {
			errs = append(errs, errors.New("RABBITMQ_URL is required for the rabbitmq events backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("EVENTS_BACKEND must be none or rabbitmq (got %q)", c.Events.Backend))
	}

	if (c.Bootstrap.AdminEmail == "") != (c.Bootstrap.AdminPassword == "") {
		errs = append(errs, errors.New("ADMIN_EMAIL and ADMIN_PASSWORD must be set together"))
	}

	return errors.Join(errs...)
}

// validateJWTSecret enforces minimum security standards for the signing secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}
	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if strings.Repeat(weak, len(secretLower)/len(weak)) == secretLower {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// URL is the DSN in URL form, accepted by lib/pq and pgx alike.
func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
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

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
