// Package config handles server configuration: defaults, an optional YAML
// file, environment variables and command-line flags, applied in that order.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"newsdesk/internal/sweep"

	"go.uber.org/zap/zapcore"
)

const (
	StoreHybrid = "hybrid"
	StoreMongo  = "mongo"

	BlobDisk = "disk"
	BlobS3   = "s3"
)

// Config holds runtime settings for the newsdesk server.
type Config struct {
	Addr            string        `yaml:"addr" env:"ADDR"`
	APIPrefix       string        `yaml:"api_prefix" env:"API_PREFIX"`
	CORSOrigins     []string      `yaml:"cors_origins" env:"CORS_ORIGINS"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	// Store selects the article store backend: hybrid or mongo.
	Store            string        `yaml:"store" env:"STORE"`
	RedisAddr        string        `yaml:"redis_addr" env:"REDIS_ADDR"`
	BadgerPath       string        `yaml:"badger_path" env:"BADGER_PATH"`
	BadgerGCInterval time.Duration `yaml:"badger_gc_interval" env:"BADGER_GC_INTERVAL"`
	MongoURI         string        `yaml:"mongo_uri" env:"MONGO_URI"`
	MongoDatabase    string        `yaml:"mongo_database" env:"MONGO_DATABASE"`

	SecretKey          string        `yaml:"secret_key" env:"SECRET_KEY"`
	TokenValidity      time.Duration `yaml:"token_validity" env:"TOKEN_VALIDITY"`
	BcryptCost         int           `yaml:"bcrypt_cost" env:"BCRYPT_COST"`
	EmailNormalization string        `yaml:"email_normalization" env:"EMAIL_NORMALIZATION"`

	// Blob selects attachment storage: disk or s3.
	Blob            string `yaml:"blob" env:"BLOB"`
	UploadDir       string `yaml:"upload_dir" env:"UPLOAD_DIR"`
	UploadURLPrefix string `yaml:"upload_url_prefix" env:"UPLOAD_URL_PREFIX"`
	S3Region        string `yaml:"s3_region" env:"S3_REGION"`
	S3AccessKey     string `yaml:"s3_access_key" env:"S3_ACCESS_KEY"`
	S3SecretKey     string `yaml:"s3_secret_key" env:"S3_SECRET_KEY"`
	S3BaseEndpoint  string `yaml:"s3_base_endpoint" env:"S3_BASE_ENDPOINT"`
	S3Bucket        string `yaml:"s3_bucket" env:"S3_BUCKET"`
	S3PublicURL     string `yaml:"s3_public_url" env:"S3_PUBLIC_URL"`

	SweepSchedule string `yaml:"sweep_schedule" env:"SWEEP_SCHEDULE"`
	// Timezone is used for sweep schedule alignment and for publish dates
	// given without an offset.
	Timezone string `yaml:"timezone" env:"TIMEZONE"`

	LogLevel       string `yaml:"log_level" env:"LOG_LEVEL"`
	LogDevelopment bool   `yaml:"log_development" env:"LOG_DEVELOPMENT"`
}

// DevSecretKey signs tokens when running with LogDevelopment and no
// secret configured. It must never reach production.
const DevSecretKey = "secretKey"

// LoadDefaults populates Config with development defaults. SecretKey is
// left empty: it has to come from the file, the environment or dev mode.
func (c *Config) LoadDefaults() {
	c.Addr = ":3000"
	c.APIPrefix = "/api"
	c.CORSOrigins = []string{
		"http://localhost:3000",
		"http://127.0.0.1:3000",
		"http://localhost:5173",
		"http://127.0.0.1:5173",
	}
	c.ShutdownTimeout = 10 * time.Second

	c.Store = StoreHybrid
	c.RedisAddr = "localhost:6379"
	c.BadgerPath = "./badger-data"
	c.BadgerGCInterval = 10 * time.Minute
	c.MongoURI = "mongodb://localhost:27017"
	c.MongoDatabase = "newsdesk"

	c.TokenValidity = 24 * time.Hour
	c.BcryptCost = 8
	c.EmailNormalization = "lower"

	c.Blob = BlobDisk
	c.UploadDir = "uploads"
	c.UploadURLPrefix = "/uploads"
	c.S3Region = "us-east-1"

	c.SweepSchedule = "* * * * *"
	c.Timezone = "Asia/Krasnoyarsk"

	c.LogLevel = "info"
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store {
	case StoreHybrid:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redis_addr is required for the hybrid store"))
		}
	case StoreMongo:
		if c.MongoURI == "" || c.MongoDatabase == "" {
			errs = append(errs, errors.New("mongo_uri and mongo_database are required for the mongo store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store %q", c.Store))
	}

	switch c.Blob {
	case BlobDisk:
		if c.UploadDir == "" {
			errs = append(errs, errors.New("upload_dir is required for disk blobs"))
		}
	case BlobS3:
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("s3_bucket is required for s3 blobs"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown blob storage %q", c.Blob))
	}

	switch {
	case c.SecretKey == "":
		errs = append(errs, errors.New("secret_key is required (set SECRET_KEY or run with --dev)"))
	case c.SecretKey == DevSecretKey && !c.LogDevelopment:
		errs = append(errs, errors.New("secret_key must not be the development key outside dev mode"))
	}
	if c.TokenValidity <= 0 {
		errs = append(errs, errors.New("token_validity must be positive"))
	}
	if c.EmailNormalization != "lower" && c.EmailNormalization != "exact" {
		errs = append(errs, fmt.Errorf("email_normalization must be lower or exact, got %q", c.EmailNormalization))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	if _, err := sweep.ParseSchedule(c.SweepSchedule); err != nil {
		errs = append(errs, fmt.Errorf("sweep_schedule: %w", err))
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.APIPrefix != "" && !strings.HasPrefix(c.APIPrefix, "/") {
		errs = append(errs, fmt.Errorf("api_prefix must start with /, got %q", c.APIPrefix))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Location returns the configured timezone, or UTC if it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
