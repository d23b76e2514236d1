package services

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scadalab/internal/config"
)

func TestHealthService(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	loadLineOne(t, svc)

	paths := config.PathsConfig{DataDir: t.TempDir(), OutputDir: t.TempDir()}
	hs := NewHealthService("0.4.0", "2024-03-01", "abc123", paths, svc, nil)

	t.Run("health", func(t *testing.T) {
		status := hs.HealthCheck(ctx)
		assert.Equal(t, "ok", status.Status)
		assert.Equal(t, "0.4.0", status.Version)
	})

	t.Run("readiness", func(t *testing.T) {
		status := hs.ReadinessCheck(ctx)
		assert.Equal(t, "ready", status.Status)
		require.Contains(t, status.Services, "processing")
		assert.Equal(t, "1 datasets stored", status.Services["processing"].(ServiceHealth).Message)
	})

	t.Run("missing output directory", func(t *testing.T) {
		broken := NewHealthService("0.4.0", "", "", config.PathsConfig{
			OutputDir: filepath.Join(t.TempDir(), "gone"),
		}, svc, nil)
		assert.Equal(t, "not_ready", broken.ReadinessCheck(ctx).Status)
	})

	t.Run("no processing service", func(t *testing.T) {
		bare := NewHealthService("0.4.0", "", "", config.PathsConfig{}, nil, nil)
		assert.Equal(t, "not_ready", bare.ReadinessCheck(ctx).Status)
		assert.Zero(t, bare.SystemStats(ctx).Datasets)
	})

	t.Run("liveness", func(t *testing.T) {
		status := hs.LivenessCheck(ctx)
		assert.Equal(t, "alive", status.Status)
		assert.Contains(t, status.Runtime, "goroutines")
	})

	t.Run("version", func(t *testing.T) {
		v := hs.Version()
		assert.Equal(t, "0.4.0", v["version"])
		assert.Equal(t, "abc123", v["build_id"])
		assert.Equal(t, "2024-03-01", v["build_time"])
	})

	t.Run("stats", func(t *testing.T) {
		stats := hs.SystemStats(ctx)
		assert.Equal(t, 1, stats.Datasets)
		assert.Zero(t, stats.Plugins)
		assert.Zero(t, stats.InputFiles)
		assert.Contains(t, stats.AvailableMethods, "linear")
	})
}
