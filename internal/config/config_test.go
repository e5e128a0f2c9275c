package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnvFile(t *testing.T) string {
	return "--env-file=" + filepath.Join(t.TempDir(), "missing.env")
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("knolsched", []string{noEnvFile(t), "counts"})
	require.NoError(t, err)

	assert.Equal(t, "knolsched.db", cfg.DB)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 50, cfg.Sched.QueueLimit)
	assert.False(t, cfg.Sched.BuryOnFetch)
	assert.Equal(t, []string{"counts"}, cfg.Args)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "knolsched.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db: /data/col.db
log:
  level: debug
  format: json
sched:
  deck: 4
  queue_limit: 10
`), 0o600))

	t.Setenv("KNOLSCHED_SCHED__QUEUE_LIMIT", "25")
	t.Setenv("KNOLSCHED_SCHED__TIMEZONE", "Europe/Dublin")

	cfg, err := Load("knolsched", []string{noEnvFile(t), "--config", path, "--log.level=warn", "next"})
	require.NoError(t, err)

	assert.Equal(t, "/data/col.db", cfg.DB, "file beats flag default")
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "warn", cfg.Log.Level, "explicit flag beats file")
	assert.Equal(t, 25, cfg.Sched.QueueLimit, "environment beats file")
	assert.Equal(t, int64(4), cfg.Sched.Deck)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Dublin", loc.String())
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("KNOLSCHED_METRICS__TEXTFILE=/tmp/knolsched.prom\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("KNOLSCHED_METRICS__TEXTFILE") })

	cfg, err := Load("knolsched", []string{"--env-file", path})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/knolsched.prom", cfg.Metrics.Textfile)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown log level", []string{"--log.level=loud"}},
		{"queue limit too small", []string{"--sched.queue_limit=0"}},
		{"empty db path", []string{"--db="}},
		{"unknown flag", []string{"--nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load("knolsched", append([]string{noEnvFile(t)}, tt.args...))
			assert.Error(t, err)
		})
	}
}

func TestInvalidTimezone(t *testing.T) {
	cfg := &Config{Sched: SchedConfig{Timezone: "Mars/Olympus"}}
	_, err := cfg.Location()
	assert.Error(t, err)
}
