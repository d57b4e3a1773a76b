package common

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/receipts-ocr-worker/constants"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Queue    QueueConfig
	Storage  StorageConfig
	OCR      OCRConfig
	Server   ServerConfig
	Secrets  SecretsConfig
	LogLevel string
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string // "postgres" | "sqlite"
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
	AutoMigrate      bool
}

// QueueConfig controls leasing and retries.
type QueueConfig struct {
	BatchSize        int
	MaxAttempts      int
	JobTimeout       time.Duration
	LeaseTTL         time.Duration
	ProcessorVersion string
}

// StorageConfig locates artifacts and source images. A bucket wins over a local dir.
type StorageConfig struct {
	ArtifactBucket  string
	ArtifactDir     string
	ArtifactPrefix  string
	ImageBucket     string
	ImageDir        string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	HTTPTimeout     time.Duration
}

// OCRConfig selects the text detection provider.
type OCRConfig struct {
	Provider              string // "textract" | "vision" | "tesseract"
	Region                string
	Timeout               time.Duration
	VisionCredentialsJSON string
	VisionCredentialsFile string
	TesseractBinary       string
	TesseractLang         string
	TesseractPSM          int
	BreakerMaxRequests    uint32
	BreakerInterval       time.Duration
	BreakerTimeout        time.Duration
	BreakerMinRequests    uint32
	BreakerFailureRatio   float64
}

// ServerConfig holds serve-mode configuration
type ServerConfig struct {
	GRPCAddr     string
	PollInterval time.Duration
	Workers      int
}

// SecretsConfig names where credentials come from.
type SecretsConfig struct {
	Provider   string // "env" | "aws"
	DBSecretID string
	S3SecretID string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:           getEnv("DB_DRIVER", "postgres"),
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 10),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 1),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
			AutoMigrate:      getEnvAsBool("DB_AUTO_MIGRATE", false),
		},
		Queue: QueueConfig{
			BatchSize:        getEnvAsInt("BATCH_SIZE", 10),
			MaxAttempts:      getEnvAsInt("MAX_ATTEMPTS", 3),
			JobTimeout:       getEnvAsDuration("JOB_TIMEOUT", 2*time.Minute),
			LeaseTTL:         getEnvAsDuration("LEASE_TTL", 15*time.Minute),
			ProcessorVersion: getEnv("PROCESSOR_VERSION", constants.DefaultProcessorVersion),
		},
		Storage: StorageConfig{
			ArtifactBucket:  getEnv("ARTIFACT_BUCKET", ""),
			ArtifactDir:     getEnv("ARTIFACT_DIR", ""),
			ArtifactPrefix:  getEnv("ARTIFACT_PREFIX", "ocr/"),
			ImageBucket:     getEnv("IMAGE_BUCKET", ""),
			ImageDir:        getEnv("IMAGE_DIR", ""),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			HTTPTimeout:     getEnvAsDuration("HTTP_FETCH_TIMEOUT", 30*time.Second),
		},
		OCR: OCRConfig{
			Provider:              getEnv("OCR_PROVIDER", "textract"),
			Region:                getEnv("OCR_REGION", getEnv("S3_REGION", "us-east-1")),
			Timeout:               getEnvAsDuration("OCR_TIMEOUT", 45*time.Second),
			VisionCredentialsJSON: getEnv("GOOGLE_CREDENTIALS", ""),
			VisionCredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
			TesseractBinary:       getEnv("TESSERACT_BIN", "tesseract"),
			TesseractLang:         getEnv("TESSERACT_LANG", "eng"),
			TesseractPSM:          getEnvAsInt("TESSERACT_PSM", 6),
			BreakerMaxRequests:    uint32(getEnvAsInt("OCR_BREAKER_MAX_REQUESTS", 1)),
			BreakerInterval:       getEnvAsDuration("OCR_BREAKER_INTERVAL", time.Minute),
			BreakerTimeout:        getEnvAsDuration("OCR_BREAKER_TIMEOUT", 30*time.Second),
			BreakerMinRequests:    uint32(getEnvAsInt("OCR_BREAKER_MIN_REQUESTS", 5)),
			BreakerFailureRatio:   getEnvAsFloat64("OCR_BREAKER_FAILURE_RATIO", 0.6),
		},
		Server: ServerConfig{
			GRPCAddr:     getEnv("GRPC_ADDR", ":8080"),
			PollInterval: getEnvAsDuration("POLL_INTERVAL", time.Minute),
			Workers:      getEnvAsInt("WORKERS", 1),
		},
		Secrets: SecretsConfig{
			Provider:   getEnv("SECRETS_PROVIDER", "env"),
			DBSecretID: getEnv("DB_SECRET_ID", ""),
			S3SecretID: getEnv("S3_SECRET_ID", ""),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration. Call it after secrets are resolved.
func (c *Config) Validate() error {
	v := NewValidator().
		Field("DB_DRIVER", c.Database.Driver, OneOf("postgres", "sqlite")).
		Field("DB_URL", c.Database.DSN, Required).
		Field("BATCH_SIZE", c.Queue.BatchSize, Positive).
		Field("MAX_ATTEMPTS", c.Queue.MaxAttempts, Positive).
		Field("OCR_PROVIDER", c.OCR.Provider, OneOf("textract", "vision", "tesseract")).
		Field("SECRETS_PROVIDER", c.Secrets.Provider, OneOf("env", "aws"))
	if c.Storage.ArtifactBucket == "" && c.Storage.ArtifactDir == "" {
		v.Field("ARTIFACT_BUCKET", c.Storage.ArtifactBucket, Required)
	}
	if err := v.Error(); err != nil {
		return NewAppError("CONFIG_ERROR", "invalid configuration", err)
	}
	return nil
}

// ValidateDatabase checks only the database section, for commands that
// never touch storage or OCR.
func (c *Config) ValidateDatabase() error {
	err := NewValidator().
		Field("DB_DRIVER", c.Database.Driver, OneOf("postgres", "sqlite")).
		Field("DB_URL", c.Database.DSN, Required).
		Error()
	if err != nil {
		return NewAppError("CONFIG_ERROR", "invalid database configuration", err)
	}
	return nil
}

// SlogLevel maps LogLevel to a slog.Level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
