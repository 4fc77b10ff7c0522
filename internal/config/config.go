// Package config loads the server's environment configuration, the branch
// seed file, and the CLI's saved server profiles.
package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	DatabaseURL string         // RP_DATABASE_URL (optional, empty = in-memory store)
	HTTPAddr    string         // RP_HTTP_ADDR (default ":8080")
	NATSURL     string         // RP_NATS_URL (optional, empty = no events)
	AuthToken   string         // RP_AUTH_TOKEN (optional, empty = auth disabled)
	Location    *time.Location // RP_TIMEZONE (default "Local")
	SeedFile    string         // RP_SEED_FILE (optional TOML branches and attendees)

	// Sync settings
	SyncInterval   time.Duration // RP_SYNC_INTERVAL (default 3m; 0 = disabled)
	SyncS3Bucket   string        // RP_SYNC_S3_BUCKET (enables S3 when set)
	SyncS3Endpoint string        // RP_SYNC_S3_ENDPOINT (custom endpoint for MinIO)
	SyncS3Region   string        // RP_SYNC_S3_REGION (default "us-east-1")
	SyncS3Key      string        // RP_SYNC_S3_KEY (default "reg2progress/snapshot.jsonl")
	SyncGitRepo    string        // RP_SYNC_GIT_REPO (enables git when set; path to clone)
	SyncGitFile    string        // RP_SYNC_GIT_FILE (default "clinic.jsonl")
	SyncGitBranch  string        // RP_SYNC_GIT_BRANCH (default "main")
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:    os.Getenv("RP_DATABASE_URL"),
		HTTPAddr:       envOrDefault("RP_HTTP_ADDR", ":8080"),
		NATSURL:        os.Getenv("RP_NATS_URL"),
		AuthToken:      os.Getenv("RP_AUTH_TOKEN"),
		SeedFile:       os.Getenv("RP_SEED_FILE"),
		SyncS3Bucket:   os.Getenv("RP_SYNC_S3_BUCKET"),
		SyncS3Endpoint: os.Getenv("RP_SYNC_S3_ENDPOINT"),
		SyncS3Region:   envOrDefault("RP_SYNC_S3_REGION", "us-east-1"),
		SyncS3Key:      envOrDefault("RP_SYNC_S3_KEY", "reg2progress/snapshot.jsonl"),
		SyncGitRepo:    os.Getenv("RP_SYNC_GIT_REPO"),
		SyncGitFile:    envOrDefault("RP_SYNC_GIT_FILE", "clinic.jsonl"),
		SyncGitBranch:  envOrDefault("RP_SYNC_GIT_BRANCH", "main"),
	}

	loc, err := time.LoadLocation(envOrDefault("RP_TIMEZONE", "Local"))
	if err != nil {
		return nil, fmt.Errorf("RP_TIMEZONE: %w", err)
	}
	c.Location = loc

	d, err := time.ParseDuration(envOrDefault("RP_SYNC_INTERVAL", "3m"))
	if err != nil {
		return nil, fmt.Errorf("RP_SYNC_INTERVAL: %w", err)
	}
	if d < 0 {
		return nil, fmt.Errorf("RP_SYNC_INTERVAL: must not be negative")
	}
	c.SyncInterval = d

	return c, nil
}

// SyncEnabled reports whether snapshots should be scheduled.
func (c *Config) SyncEnabled() bool {
	return c.SyncInterval > 0 && (c.SyncS3Bucket != "" || c.SyncGitRepo != "")
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
