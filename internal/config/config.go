package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	DatabaseURL    string
	HTTPListenAddr string
	LogLevel       string
	ServiceName    string

	// DocumentsDir is the directory holding the shared document store that
	// gets archived into each backup.
	DocumentsDir string

	// Remote object store (S3-compatible) settings.
	S3Endpoint       string
	S3Region         string
	S3Bucket         string
	S3AccessKey      string
	S3SecretKey      string
	BackupParentName string

	// AutoBackupInterval is the minimum time between successful automatic
	// backups. SchedulerTick is how often the gating conditions are checked.
	AutoBackupInterval time.Duration
	SchedulerTick      time.Duration

	// ConnectivityProbeURL is probed with a HEAD request before an automatic
	// backup is considered.
	ConnectivityProbeURL string
}

func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		HTTPListenAddr:       getEnv("HTTP_LISTEN_ADDR", ":8085"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		ServiceName:          getEnv("SERVICE_NAME", "hub-api"),
		DocumentsDir:         getEnv("DOCUMENTS_DIR", "shared_documents"),
		S3Endpoint:           getEnv("S3_ENDPOINT", ""),
		S3Region:             getEnv("S3_REGION", "us-east-1"),
		S3Bucket:             getEnv("S3_BUCKET", ""),
		S3AccessKey:          getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:          getEnv("S3_SECRET_KEY", ""),
		BackupParentName:     getEnv("BACKUP_PARENT_FOLDER", "DocumentHub_Backups"),
		ConnectivityProbeURL: getEnv("CONNECTIVITY_PROBE_URL", "https://www.google.com"),
	}

	var err error
	if cfg.AutoBackupInterval, err = getDuration("AUTO_BACKUP_INTERVAL", 4*time.Hour); err != nil {
		return nil, err
	}
	if cfg.SchedulerTick, err = getDuration("SCHEDULER_TICK", 30*time.Second); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.S3Bucket == "" {
		missing = append(missing, "S3_BUCKET")
	}
	if c.S3AccessKey == "" {
		missing = append(missing, "S3_ACCESS_KEY")
	}
	if c.S3SecretKey == "" {
		missing = append(missing, "S3_SECRET_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
