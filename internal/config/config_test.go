package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("AUTH_ENABLE_VERIFICATION", "false")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, int64(10<<20), cfg.Server.MaxUploadBytes)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 2, cfg.Model.Workers)
	assert.Equal(t, StoreMemory, cfg.Store.Backend)
	assert.Equal(t, "none", cfg.ImageStore.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Redis.StatsTTL)
	assert.False(t, cfg.Redis.Enabled())
	assert.False(t, cfg.IsProduction())
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9000"
  env: staging
model:
  workers: 4
auth:
  project_id: leafscan-yaml
store:
  backend: firestore
`)
	t.Setenv("PORT", "9100")
	t.Setenv("MODEL_WORKERS", "8")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Server.Port)
	assert.Equal(t, "staging", cfg.Server.Env)
	assert.Equal(t, 8, cfg.Model.Workers)
	assert.Equal(t, StoreFirestore, cfg.Store.Backend)
	assert.Equal(t, "leafscan-yaml", cfg.Store.Firestore.ProjectID, "firestore project falls back to the firebase project")
}

func TestLoad_SecretsOnlyFromEnv(t *testing.T) {
	path := writeConfig(t, `
auth:
  enable_verification: false
store:
  backend: postgres
`)
	t.Setenv("DATABASE_URL", "")
	_, err := Load(path)
	require.Error(t, err)

	t.Setenv("DATABASE_URL", "postgres://leafscan@localhost/leafscan")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://leafscan@localhost/leafscan", cfg.Store.Postgres.URL)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server:     ServerConfig{MaxUploadBytes: 1},
			Model:      ModelConfig{Workers: 1},
			Store:      StoreConfig{Backend: StoreMemory},
			ImageStore: ImageStoreConfig{Backend: "none"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "zero workers", mutate: func(c *Config) { c.Model.Workers = 0 }, wantErr: true},
		{name: "no upload limit", mutate: func(c *Config) { c.Server.MaxUploadBytes = 0 }, wantErr: true},
		{name: "verification without project", mutate: func(c *Config) { c.Auth.EnableVerification = true }, wantErr: true},
		{name: "unknown store", mutate: func(c *Config) { c.Store.Backend = "mongo" }, wantErr: true},
		{name: "firestore without project", mutate: func(c *Config) { c.Store.Backend = StoreFirestore }, wantErr: true},
		{name: "gcs without bucket", mutate: func(c *Config) { c.ImageStore.Backend = "gcs" }, wantErr: true},
		{name: "s3 with bucket", mutate: func(c *Config) {
			c.ImageStore.Backend = "s3"
			c.ImageStore.Bucket = "leaves"
		}},
		{name: "unknown image store", mutate: func(c *Config) { c.ImageStore.Backend = "ftp" }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
