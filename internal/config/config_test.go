package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 10000, cfg.Generation.MaxChunkSize)
	assert.Equal(t, 1000, cfg.Generation.DefaultRows)
	assert.Equal(t, 0, cfg.Generation.Workers)
	assert.False(t, cfg.Storage.Enabled)
	assert.Equal(t, "csvgen:progress", cfg.Redis.Channel)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
generation:
  max_chunk_size: 500
  temp_dir: /tmp/csvgen
`), 0644))
	t.Setenv("WORKER_POOL_SIZE", "3")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 500, cfg.Generation.MaxChunkSize)
	assert.Equal(t, "/tmp/csvgen", cfg.Generation.TempDir)
	assert.Equal(t, 3, cfg.Generation.Workers)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: 5000},
			Database: DatabaseConfig{Driver: "sqlite", Path: "x.db"},
			Generation: GenerationConfig{
				MaxChunkSize: 10000, MaxRows: 100, DefaultRows: 10,
				TempDir: "t", OutputDir: "o",
			},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = "postgres" }},
		{"negative workers", func(c *Config) { c.Generation.Workers = -1 }},
		{"zero chunk size", func(c *Config) { c.Generation.MaxChunkSize = 0 }},
		{"default above max", func(c *Config) { c.Generation.DefaultRows = 1000 }},
		{"storage without bucket", func(c *Config) { c.Storage.Enabled = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
