package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Backend names accepted by STORAGE_BACKEND.
const (
	StorageLocal = "local"
	StorageMinIO = "minio"
	StorageS3    = "s3"
)

// Driver names accepted by DATABASE_DRIVER.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const defaultMaxUploadBytes = 10 * 1024 * 1024

// Config aggregates runtime configuration for the ClientDrop API.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Postgres PostgresConfig
	Storage  StorageConfig
	MinIO    MinIOConfig
	S3       S3Config
	Auth     AuthConfig
	Events   EventsConfig
	Log      LogConfig
	Metrics  MetricsConfig
}

// ServerConfig parameterizes the HTTP server.
type ServerConfig struct {
	Host string
	Port int
	// ReadTimeout bounds reading the whole request, upload body included.
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	// PublicURL is the externally visible base URL used for share links.
	// When empty the request's scheme and host are used.
	PublicURL      string
	Env            string
	AllowedOrigins []string
}

// Address returns the listen address in host:port form.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// IsRelease reports whether the server runs in production mode.
func (s ServerConfig) IsRelease() bool {
	switch strings.ToLower(s.Env) {
	case "release", "prod", "production":
		return true
	}
	return false
}

// DatabaseConfig selects the metadata store.
type DatabaseConfig struct {
	Driver     string
	SQLitePath string
}

// PostgresConfig contains PostgreSQL connection details.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// DSN returns the PostgreSQL DSN string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

// StorageConfig selects and tunes the blob backend.
type StorageConfig struct {
	Backend          string
	UploadDir        string
	PublicPrefix     string
	MaxUploadBytes   int64
	OperationTimeout time.Duration
	URLTTL           time.Duration
}

// MinIOConfig carries MinIO connection and bucket information.
type MinIOConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool
	Region          string
}

// S3Config carries AWS S3 (or S3-compatible) connection details.
type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Bucket          string
	// Endpoint overrides the AWS endpoint; path-style addressing is used when set.
	Endpoint string
}

// AuthConfig groups authentication-related settings.
type AuthConfig struct {
	JWTSecret        string
	SessionTTL       time.Duration
	ShareTTL         time.Duration
	BcryptCost       int
	SeedDemoAccounts bool
}

// EventsConfig configures the optional RabbitMQ publisher.
type EventsConfig struct {
	URL      string
	Exchange string
}

// Enabled reports whether events should be published.
func (e EventsConfig) Enabled() bool {
	return strings.TrimSpace(e.URL) != ""
}

// LogConfig configures zap.
type LogConfig struct {
	Level string
}

// MetricsConfig groups observability settings.
type MetricsConfig struct {
	PrometheusPath string
}

// Load reads configuration values from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host:              getString("CLIENTDROP_API_HOST", "0.0.0.0"),
			Port:              getInt("CLIENTDROP_API_PORT", 3000),
			ReadTimeout:       getDuration("CLIENTDROP_API_READ_TIMEOUT", 5*time.Minute),
			ReadHeaderTimeout: getDuration("CLIENTDROP_API_READ_HEADER_TIMEOUT", 15*time.Second),
			WriteTimeout:      getDuration("CLIENTDROP_API_WRITE_TIMEOUT", 5*time.Minute),
			IdleTimeout:       getDuration("CLIENTDROP_API_IDLE_TIMEOUT", 60*time.Second),
			PublicURL:         strings.TrimRight(getString("CLIENTDROP_PUBLIC_URL", ""), "/"),
			Env:               getString("CLIENTDROP_ENV", "development"),
			AllowedOrigins:    getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Driver:     strings.ToLower(getString("DATABASE_DRIVER", DriverSQLite)),
			SQLitePath: getString("SQLITE_PATH", "data.db"),
		},
		Postgres: PostgresConfig{
			Host:     getString("POSTGRES_HOST", "localhost"),
			Port:     getInt("POSTGRES_PORT", 5432),
			User:     getString("POSTGRES_USER", "clientdrop"),
			Password: getString("POSTGRES_PASSWORD", "change-me"),
			Database: getString("POSTGRES_DB", "clientdrop"),
			SSLMode:  strings.ToLower(getString("POSTGRES_SSL_MODE", "disable")),
		},
		Storage: StorageConfig{
			Backend:          strings.ToLower(getString("STORAGE_BACKEND", StorageLocal)),
			UploadDir:        getString("UPLOAD_DIR", "uploads"),
			PublicPrefix:     getString("UPLOAD_PUBLIC_PREFIX", "/uploads"),
			MaxUploadBytes:   getInt64("UPLOAD_MAX_BYTES", defaultMaxUploadBytes),
			OperationTimeout: getDuration("STORAGE_OP_TIMEOUT", 30*time.Second),
			URLTTL:           getDuration("STORAGE_URL_TTL", time.Hour),
		},
		MinIO: MinIOConfig{
			Endpoint:        getString("MINIO_ENDPOINT", "localhost:9000"),
			AccessKeyID:     getString("MINIO_ROOT_USER", "clientdrop"),
			SecretAccessKey: getString("MINIO_ROOT_PASSWORD", "change-me-strong-password"),
			Bucket:          getString("MINIO_BUCKET", "clientdrop"),
			UseSSL:          getBool("MINIO_USE_SSL", false),
			Region:          getString("MINIO_REGION", "us-east-1"),
		},
		S3: S3Config{
			AccessKeyID:     getString("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getString("AWS_SECRET_ACCESS_KEY", ""),
			Region:          getString("AWS_REGION", "us-east-1"),
			Bucket:          getString("S3_BUCKET", "clientdrop"),
			Endpoint:        getString("S3_ENDPOINT", ""),
		},
		Auth: loadAuthConfig(),
		Events: EventsConfig{
			URL:      getString("RABBITMQ_URL", ""),
			Exchange: getString("RABBITMQ_EXCHANGE", "clientdrop.files"),
		},
		Log: LogConfig{
			Level: getString("LOG_LEVEL", "info"),
		},
		Metrics: MetricsConfig{
			PrometheusPath: getString("CLIENTDROP_METRICS_PATH", "/metrics"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the process cannot start with.
func (c Config) Validate() error {
	switch c.Storage.Backend {
	case StorageLocal, StorageMinIO, StorageS3:
	default:
		return fmt.Errorf("unsupported storage backend %q", c.Storage.Backend)
	}

	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.Storage.MaxUploadBytes <= 0 {
		return errors.New("upload size ceiling must be positive")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("jwt secret must not be empty")
	}
	if c.Server.IsRelease() && c.Auth.JWTSecret == defaultJWTSecret {
		return errors.New("jwt secret must be set in release mode")
	}
	return nil
}

const defaultJWTSecret = "dev-secret"

func getString(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getInt64(key string, fallback int64) int64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.ToLower(strings.TrimSpace(val))
		switch val {
		case "1", "true", "t", "yes", "y":
			return true
		case "0", "false", "f", "no", "n":
			return false
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getList(key string, fallback []string) []string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func loadAuthConfig() AuthConfig {
	cost := getInt("BCRYPT_COST", 12)
	if cost < 4 || cost > 31 {
		cost = 12
	}

	return AuthConfig{
		JWTSecret:        getString("JWT_SECRET", defaultJWTSecret),
		SessionTTL:       getDuration("SESSION_TTL", 8*time.Hour),
		ShareTTL:         getDuration("SHARE_TTL", time.Hour),
		BcryptCost:       cost,
		SeedDemoAccounts: getBool("SEED_DEMO_ACCOUNTS", false),
	}
}
