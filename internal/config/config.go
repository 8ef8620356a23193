package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"invoicer/internal/logger"
	"invoicer/internal/store"
)

type Config struct {
	// Record store
	StoreDriver string // file, sqlite, postgres, memory
	DataDir     string
	DatabaseDSN string

	// Google Sheets export
	GoogleSheetURL               string
	GoogleSheetWorksheet         string
	GoogleSheetPaymentsWorksheet string

	// Off-site backups (S3 or MinIO)
	BackupS3Bucket    string
	BackupS3Prefix    string
	BackupS3Region    string
	BackupS3Endpoint  string
	BackupS3AccessKey string
	BackupS3SecretKey string
	BackupS3PathStyle bool

	// Recurring billing runner
	ScheduleCron string

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

func Load() (*Config, error) {
	config := &Config{
		StoreDriver:                  getEnv("STORE_DRIVER", "file"),
		DataDir:                      getEnv("DATA_DIR", "./data"),
		DatabaseDSN:                  getEnv("DATABASE_DSN", ""),
		GoogleSheetURL:               getEnv("GOOGLE_SHEET_URL", ""),
		GoogleSheetWorksheet:         getEnv("GOOGLE_SHEET_WORKSHEET", "Invoices"),
		GoogleSheetPaymentsWorksheet: getEnv("GOOGLE_SHEET_PAYMENTS_WORKSHEET", "Payments"),
		BackupS3Bucket:               getEnv("BACKUP_S3_BUCKET", ""),
		BackupS3Prefix:               getEnv("BACKUP_S3_PREFIX", "invoicer"),
		BackupS3Region:               getEnv("BACKUP_S3_REGION", "us-east-1"),
		BackupS3Endpoint:             getEnv("BACKUP_S3_ENDPOINT", ""),
		BackupS3AccessKey:            getEnv("BACKUP_S3_ACCESS_KEY", ""),
		BackupS3SecretKey:            getEnv("BACKUP_S3_SECRET_KEY", ""),
		BackupS3PathStyle:            getEnvBool("BACKUP_S3_PATH_STYLE", false),
		ScheduleCron:                 getEnv("SCHEDULE_CRON", "0 7 * * *"),
		LogLevel:                     getEnv("LOG_LEVEL", "info"),
		LogFormat:                    getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:                getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:                    getEnv("LOG_OUTPUT", "stderr"),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	switch strings.ToLower(c.StoreDriver) {
	case "file", "sqlite", "memory":
	case "postgres", "postgresql":
		if c.DatabaseDSN == "" {
			return fmt.Errorf("DATABASE_DSN is required when STORE_DRIVER=%s", c.StoreDriver)
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be one of file, sqlite, postgres, memory (got %q)", c.StoreDriver)
	}
	if c.DataDir == "" && c.StoreDriver == "file" {
		return fmt.Errorf("DATA_DIR is required when STORE_DRIVER=file")
	}
	if (c.BackupS3AccessKey == "") != (c.BackupS3SecretKey == "") {
		return fmt.Errorf("BACKUP_S3_ACCESS_KEY and BACKUP_S3_SECRET_KEY must be set together")
	}
	return nil
}

// StoreOptions returns the record store selection from the main config
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Driver:  c.StoreDriver,
		DataDir: c.DataDir,
		DSN:     c.DatabaseDSN,
	}
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}
