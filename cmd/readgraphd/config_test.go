package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig([]string{})
	require.NoError(t, err)

	cwd, _ := os.Getwd()
	assert.Equal(t, filepath.Join(cwd, "readgraph.db"), cfg.DBPath)
	assert.Equal(t, filepath.Join(cwd, "blobs"), cfg.BlobDir)
	assert.Equal(t, defaultAddr, cfg.Addr)
	assert.Equal(t, 500*time.Millisecond, cfg.SampleInterval)
	assert.Equal(t, 30*time.Second, cfg.SnapshotInterval)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Zero(t, cfg.ExportRetention)
}

func TestLoadConfig_SampleIntervalValidation(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		envVars     map[string]string
		errorSubstr string
	}{
		{name: "valid from flag", args: []string{"-sample-interval", "250ms"}},
		{name: "valid from env", envVars: map[string]string{"READGRAPH_SAMPLE_INTERVAL": "1s"}},
		{name: "zero from flag", args: []string{"-sample-interval", "0s"}, errorSubstr: "SampleInterval"},
		{name: "negative from flag", args: []string{"-sample-interval", "-1s"}, errorSubstr: "SampleInterval"},
		{name: "bad format from flag", args: []string{"-sample-interval", "soon"}, errorSubstr: "invalid sample interval"},
		{name: "zero from env", envVars: map[string]string{"READGRAPH_SAMPLE_INTERVAL": "0s"}, errorSubstr: "READGRAPH_SAMPLE_INTERVAL must be positive"},
		{name: "bad format from env", envVars: map[string]string{"READGRAPH_SAMPLE_INTERVAL": "soon"}, errorSubstr: "invalid READGRAPH_SAMPLE_INTERVAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			cfg, err := LoadConfig(tt.args)
			if tt.errorSubstr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorSubstr)
				return
			}
			require.NoError(t, err)
			assert.Positive(t, cfg.SampleInterval)
		})
	}
}

func TestLoadConfig_Validation(t *testing.T) {
	_, err := LoadConfig([]string{"-addr", ""})
	assert.Error(t, err)

	_, err = LoadConfig([]string{"-log-level", "loud"})
	assert.Error(t, err)

	_, err = LoadConfig([]string{"-export-retention", "-1h"})
	assert.Error(t, err)

	_, err = LoadConfig([]string{"-redis-addr", "not a host"})
	assert.Error(t, err)

	t.Setenv("READGRAPH_OPENAI_BASE_URL", "::nope")
	_, err = LoadConfig(nil)
	assert.Error(t, err)
}

func TestLoadConfig_Precedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "readgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db_path: data/rg.db
addr: 127.0.0.1:9000
redis_addr: 127.0.0.1:6379
sample_interval: 2s
export_retention: 720h
log_level: debug
openai:
  model: file-model
`), 0o644))

	cfg, err := LoadConfig([]string{"-config", path})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "data", "rg.db"), cfg.DBPath)
	assert.Equal(t, "127.0.0.1:9000", cfg.Addr)
	assert.Equal(t, "127.0.0.1:6379", cfg.RedisAddr)
	assert.Equal(t, 2*time.Second, cfg.SampleInterval)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "file-model", cfg.OpenAIModel)
	assert.Equal(t, 720*time.Hour, cfg.ExportRetention)

	t.Setenv("READGRAPH_ADDR", "127.0.0.1:9100")
	t.Setenv("READGRAPH_OPENAI_MODEL", "env-model")
	cfg, err = LoadConfig([]string{"-config=" + path, "-addr", "127.0.0.1:9200"})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9200", cfg.Addr)
	assert.Equal(t, "env-model", cfg.OpenAIModel)

	t.Setenv("READGRAPH_CONFIG", path)
	cfg, err = LoadConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:6379", cfg.RedisAddr)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig([]string{"-config", filepath.Join(t.TempDir(), "absent.yaml")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestConfigPathFromArgs(t *testing.T) {
	assert.Equal(t, "a.yaml", configPathFromArgs([]string{"-config", "a.yaml"}, "env.yaml"))
	assert.Equal(t, "b.yaml", configPathFromArgs([]string{"--config=b.yaml"}, ""))
	assert.Equal(t, "env.yaml", configPathFromArgs([]string{"-addr", "x"}, "env.yaml"))
}
