package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5.0, cfg.Processing.GapMultiplier)
	assert.Equal(t, 0.95, cfg.Processing.MaxMissingRatio)
	assert.Equal(t, "intersection", cfg.Processing.SyncGridPolicy)
	assert.Contains(t, cfg.Processing.TimestampCandidates, "timestamp")
	require.NoError(t, cfg.validate())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SCADALAB_SERVER_PORT", "9191")
	t.Setenv("SCADALAB_PROCESSING_GAP_MULTIPLIER", "3.5")
	t.Setenv("SCADALAB_PROCESSING_DISABLED_METHODS", "gpr,mls")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, 3.5, cfg.Processing.GapMultiplier)
	assert.Equal(t, []string{"gpr", "mls"}, cfg.Processing.DisabledMethods)
	assert.Equal(t, 0.95, cfg.Processing.MaxMissingRatio)
}

func TestLoad_FileMergedUnderEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "custom.yaml")
	content := `
server:
  port: 7070
  read_timeout: 30s
processing:
  gap_multiplier: 8
  sync_grid_policy: union
  timestamp_candidates: [zeit, stamp]
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("SCADALAB_SERVER_PORT", "6060")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 6060, cfg.Server.Port, "env wins over file")
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 8.0, cfg.Processing.GapMultiplier)
	assert.Equal(t, "union", cfg.Processing.SyncGridPolicy)
	assert.Equal(t, []string{"zeit", "stamp"}, cfg.Processing.TimestampCandidates)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "invalid server port",
		},
		{
			name:    "non-positive gap multiplier",
			mutate:  func(c *Config) { c.Processing.GapMultiplier = 0 },
			wantErr: "gap multiplier",
		},
		{
			name:    "missing ratio above one",
			mutate:  func(c *Config) { c.Processing.MaxMissingRatio = 1.5 },
			wantErr: "max missing ratio",
		},
		{
			name:    "unknown grid policy",
			mutate:  func(c *Config) { c.Processing.SyncGridPolicy = "outer" },
			wantErr: "sync grid policy",
		},
		{
			name:    "unknown log output",
			mutate:  func(c *Config) { c.Logging.Output = "syslog" },
			wantErr: "logging output",
		},
		{
			name:   "grid policy normalised",
			mutate: func(c *Config) { c.Processing.SyncGridPolicy = "UNION" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMergeConfigs_EnvPrecedence(t *testing.T) {
	env := *Default()
	file := Config{}
	file.Processing.MaxMissingRatio = 0.5
	file.Paths.DataDir = "/srv/data"

	set := map[string]bool{"PROCESSING_MAX_MISSING_RATIO": true}
	out := mergeConfigs(file, env, func(k string) bool { return set[k] })

	assert.Equal(t, 0.95, out.Processing.MaxMissingRatio)
	assert.Equal(t, "/srv/data", out.Paths.DataDir)
	assert.Equal(t, env.Server.Port, out.Server.Port)
}

func TestLogFilePath(t *testing.T) {
	cfg := Default()
	cfg.Logging.FilePath = "app.log"
	cfg.Paths.LogsDir = "var/logs"
	assert.Equal(t, filepath.Join("var/logs", "app.log"), cfg.LogFilePath())

	cfg.Logging.FilePath = "other/app.log"
	assert.Equal(t, "other/app.log", cfg.LogFilePath())
}
