package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	l, err := Load("")
	require.NoError(t, err)

	cfg := l.Config()
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, "links", cfg.Policy.Mode)
	assert.True(t, cfg.Policy.RequireApprovedAgents)
	assert.Equal(t, 3000, cfg.Poll.DefaultTimeoutMs)
	assert.Equal(t, 30000, cfg.Poll.MaxTimeoutMs)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "govern.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: ":9090"
database:
  type: postgres
  dsn: "host=localhost dbname=govern"
policy:
  mode: domains
  requireApprovedAgents: false
poll:
  defaultTimeoutMs: 5000
  maxTimeoutMs: 2000
`), 0o644))

	l, err := Load(path)
	require.NoError(t, err)

	cfg := l.Config()
	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, "domains", cfg.Policy.Mode)
	assert.False(t, cfg.Policy.RequireApprovedAgents)
	assert.Equal(t, 5000, cfg.Poll.MaxTimeoutMs, "max timeout clamps up to default")
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("GOVERN_DATABASE_DSN", "env.db")
	t.Setenv("GOVERN_POLICY_MODE", "domains")

	l, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "env.db", l.Config().Database.DSN)
	assert.Equal(t, "domains", l.Config().Policy.Mode)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
