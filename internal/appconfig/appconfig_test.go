package appconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "emergence.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadExpandsEnvAndParses(t *testing.T) {
	t.Setenv("EMERGENCE_DB_DSN", "postgres://u:p@localhost/emergence")
	path := writeConfig(t, `
database:
  dsn: "${EMERGENCE_DB_DSN}"
  max_conns: 10
admin:
  enabled: true
  write_enabled: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@localhost/emergence", cfg.Database.DSN)
	assert.Equal(t, int32(10), cfg.Database.MaxConns)
	assert.True(t, cfg.Admin.Enabled)
	assert.False(t, cfg.Admin.WriteEnabled)
}

func TestLoadFailsValidationWithoutDSN(t *testing.T) {
	path := writeConfig(t, `
database:
  max_conns: 5
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadFailsOnMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestDurationDefaults(t *testing.T) {
	var db DatabaseConfig
	d, err := db.ConnMaxLifetimeDuration()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, d)

	var sched SchedulerConfig
	ti, err := sched.TickIntervalDuration()
	require.NoError(t, err)
	assert.Equal(t, time.Minute, ti)

	var g GuardrailConfig
	pi, err := g.PollIntervalDuration()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, pi)
}
