// Package config loads service configuration from an optional config.yaml
// with environment variable overrides. Secrets only come from the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	StoreMemory    = "memory"
	StoreFirestore = "firestore"
	StorePostgres  = "postgres"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Model      ModelConfig      `yaml:"model"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Auth       AuthConfig       `yaml:"auth"`
	Store      StoreConfig      `yaml:"store"`
	ImageStore ImageStoreConfig `yaml:"image_store"`
	Redis      RedisConfig      `yaml:"redis"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Port            string        `yaml:"port" env:"PORT" env-default:"8000"`
	Env             string        `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes" env:"MAX_UPLOAD_BYTES" env-default:"10485760"`
	AllowedOrigins  []string      `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" env-separator:"," env-default:"*"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"15s"`
	// AdmissionTimeout bounds how long an upload waits for a free worker.
	AdmissionTimeout time.Duration `yaml:"admission_timeout" env:"ADMISSION_TIMEOUT" env-default:"30s"`
}

type ModelConfig struct {
	Path              string `yaml:"path" env:"MODEL_PATH" env-default:"models/plant_disease.onnx"`
	MetadataPath      string `yaml:"metadata_path" env:"MODEL_METADATA_PATH" env-default:"models/model_metadata.json"`
	SharedLibraryPath string `yaml:"shared_library_path" env:"ONNXRUNTIME_LIB" env-default:""`
	Workers           int    `yaml:"workers" env:"MODEL_WORKERS" env-default:"2"`
	// WarmOnStart loads the model in the background at startup instead of
	// on the first prediction.
	WarmOnStart bool `yaml:"warm_on_start" env:"MODEL_WARM_ON_START" env-default:"true"`
}

type CatalogConfig struct {
	// Path overrides the built-in disease catalog when set.
	Path string `yaml:"path" env:"CATALOG_PATH" env-default:""`
}

type AuthConfig struct {
	ProjectID          string `yaml:"project_id" env:"FIREBASE_PROJECT_ID" env-default:""`
	JWKSURL            string `yaml:"jwks_url" env:"FIREBASE_JWKS_URL" env-default:"https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"`
	EnableVerification bool   `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`
}

type StoreConfig struct {
	Backend   string          `yaml:"backend" env:"STORE_BACKEND" env-default:"memory"`
	Firestore FirestoreConfig `yaml:"firestore"`
	Postgres  PostgresConfig  `yaml:"postgres"`
}

type FirestoreConfig struct {
	ProjectID       string `yaml:"project_id" env:"FIRESTORE_PROJECT_ID" env-default:""`
	CredentialsFile string `yaml:"credentials_file" env:"GOOGLE_APPLICATION_CREDENTIALS" env-default:""`
	CredentialsJSON string `yaml:"-" env:"GOOGLE_APPLICATION_CREDENTIALS_JSON"`
}

type PostgresConfig struct {
	URL            string `yaml:"-" env:"DATABASE_URL"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`
}

type ImageStoreConfig struct {
	Backend       string `yaml:"backend" env:"IMAGE_STORE_BACKEND" env-default:"none"`
	Bucket        string `yaml:"bucket" env:"IMAGE_STORE_BUCKET" env-default:""`
	PublicBaseURL string `yaml:"public_base_url" env:"IMAGE_STORE_PUBLIC_BASE_URL" env-default:""`
	Region        string `yaml:"region" env:"AWS_REGION" env-default:""`
	Endpoint      string `yaml:"endpoint" env:"IMAGE_STORE_ENDPOINT" env-default:""`
	UsePathStyle  bool   `yaml:"use_path_style" env:"IMAGE_STORE_USE_PATH_STYLE" env-default:"false"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr" env:"REDIS_ADDR" env-default:""`
	Password string        `yaml:"-" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	StatsTTL time.Duration `yaml:"stats_ttl" env:"REDIS_STATS_TTL" env-default:"5m"`
}

func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

type LoggingConfig struct {
	Level    string `yaml:"level" env:"LOG_LEVEL" env-default:""`
	HashSalt string `yaml:"-" env:"LOG_HASH_SALT"`
}

// Load reads path if it exists and applies environment overrides. A missing
// file is not an error; the environment and defaults are used alone.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	c.ImageStore.Backend = strings.ToLower(strings.TrimSpace(c.ImageStore.Backend))
	if c.Store.Firestore.ProjectID == "" {
		c.Store.Firestore.ProjectID = c.Auth.ProjectID
	}
}

// Validate checks enum values and the fields each backend requires.
func (c *Config) Validate() error {
	if c.Server.MaxUploadBytes <= 0 {
		return errors.New("server.max_upload_bytes must be positive")
	}
	if c.Model.Workers < 1 {
		return errors.New("model.workers must be at least 1")
	}
	if c.Auth.EnableVerification && c.Auth.ProjectID == "" {
		return errors.New("FIREBASE_PROJECT_ID is required when auth verification is enabled")
	}

	switch c.Store.Backend {
	case StoreMemory:
	case StoreFirestore:
		if c.Store.Firestore.ProjectID == "" {
			return errors.New("firestore backend requires FIRESTORE_PROJECT_ID or FIREBASE_PROJECT_ID")
		}
	case StorePostgres:
		if c.Store.Postgres.URL == "" {
			return errors.New("postgres backend requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	switch c.ImageStore.Backend {
	case "none":
	case "gcs", "s3":
		if c.ImageStore.Bucket == "" {
			return fmt.Errorf("%s image store requires IMAGE_STORE_BUCKET", c.ImageStore.Backend)
		}
	default:
		return fmt.Errorf("unknown image store backend %q", c.ImageStore.Backend)
	}

	return nil
}

func (c *Config) IsProduction() bool {
	switch strings.ToLower(c.Server.Env) {
	case "prod", "production":
		return true
	}
	return false
}
