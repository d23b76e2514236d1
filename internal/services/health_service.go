package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"scadalab/internal/config"
)

// HealthService provides health check functionality
type HealthService struct {
	version    string
	buildTime  string
	buildID    string
	paths      config.PathsConfig
	processing *ProcessingService
	startTime  time.Time
	logger     *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Runtime   map[string]interface{} `json:"runtime,omitempty"`
	Services  map[string]interface{} `json:"services,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Uptime  string `json:"uptime,omitempty"`
}

// SystemStats represents system statistics
type SystemStats struct {
	UptimeSeconds    float64  `json:"uptime_seconds"`
	Datasets         int      `json:"datasets"`
	Plugins          int      `json:"plugins"`
	InputFiles       int      `json:"input_files"`
	InputBytes       int64    `json:"input_bytes"`
	AvailableMethods []string `json:"available_methods"`
	GoVersion        string   `json:"go_version"`
	OS               string   `json:"os"`
	Arch             string   `json:"arch"`
}

// NewHealthService creates a health service over a processing service
func NewHealthService(version, buildTime, buildID string, paths config.PathsConfig, processing *ProcessingService, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("HealthService initialized",
		slog.String("version", version),
		slog.String("build_time", buildTime),
		slog.String("build_id", buildID))

	return &HealthService{
		version:    version,
		buildTime:  buildTime,
		buildID:    buildID,
		paths:      paths,
		processing: processing,
		startTime:  time.Now(),
		logger:     logger.With(slog.String("component", "health_service")),
	}
}

// HealthCheck returns overall health status
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	hs.logger.DebugContext(ctx, "health check",
		slog.String("uptime", time.Since(hs.startTime).String()))
	return HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   hs.version,
	}
}

// ReadinessCheck returns readiness status
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "ready",
		Timestamp: time.Now(),
		Version:   hs.version,
		Services:  make(map[string]interface{}),
	}

	status.Services["processing"] = hs.checkProcessingHealth()
	status.Services["interpolation"] = hs.checkInterpolationHealth()
	status.Services["output"] = hs.checkDirectory(hs.paths.OutputDir)

	for _, service := range status.Services {
		if sh, ok := service.(ServiceHealth); ok && sh.Status != "ready" {
			status.Status = "not_ready"
			break
		}
	}
	return status
}

// LivenessCheck returns liveness status
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "alive",
		Timestamp: time.Now(),
		Version:   hs.version,
		Runtime: map[string]interface{}{
			"uptime":     time.Since(hs.startTime).Seconds(),
			"go_version": runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
		},
	}
}

// Version returns version information
func (hs *HealthService) Version() map[string]interface{} {
	result := map[string]interface{}{
		"version":      hs.version,
		"go_version":   runtime.Version(),
		"os":           runtime.GOOS,
		"arch":         runtime.GOARCH,
		"uptime":       time.Since(hs.startTime).Seconds(),
		"start_time":   hs.startTime.Format(time.RFC3339),
		"current_time": time.Now().Format(time.RFC3339),
	}
	if hs.buildTime != "" {
		result["build_time"] = hs.buildTime
	}
	if hs.buildID != "" {
		result["build_id"] = hs.buildID
	}
	return result
}

// SystemStats returns system statistics
func (hs *HealthService) SystemStats(ctx context.Context) SystemStats {
	stats := SystemStats{
		UptimeSeconds: time.Since(hs.startTime).Seconds(),
		GoVersion:     runtime.Version(),
		OS:            runtime.GOOS,
		Arch:          runtime.GOARCH,
	}
	if hs.processing != nil {
		stats.Datasets = hs.processing.Store().Len()
		stats.Plugins = hs.processing.Plugins().Count()
		stats.AvailableMethods = hs.processing.Methods().InterpolationAvailable
	}

	if hs.paths.DataDir != "" {
		filepath.Walk(hs.paths.DataDir, func(path string, info os.FileInfo, err error) error {
			if err == nil && !info.IsDir() {
				stats.InputFiles++
				stats.InputBytes += info.Size()
			}
			return nil
		})
	}
	return stats
}

func (hs *HealthService) checkProcessingHealth() ServiceHealth {
	if hs.processing == nil {
		return ServiceHealth{
			Status:  "not_ready",
			Message: "processing service not initialized",
		}
	}
	return ServiceHealth{
		Status:  "ready",
		Message: fmt.Sprintf("%d datasets stored", hs.processing.Store().Len()),
		Uptime:  time.Since(hs.startTime).String(),
	}
}

// checkInterpolationHealth reports degraded backends without failing
// readiness; unavailable methods only fail when requested
func (hs *HealthService) checkInterpolationHealth() ServiceHealth {
	if hs.processing == nil {
		return ServiceHealth{Status: "not_ready", Message: "interpolation engine not initialized"}
	}
	m := hs.processing.Methods()
	if len(m.InterpolationAvailable) < len(m.Interpolation) {
		return ServiceHealth{
			Status:  "ready",
			Message: fmt.Sprintf("%d of %d methods available", len(m.InterpolationAvailable), len(m.Interpolation)),
		}
	}
	return ServiceHealth{Status: "ready", Message: "all methods available"}
}

func (hs *HealthService) checkDirectory(dir string) ServiceHealth {
	if dir == "" {
		return ServiceHealth{Status: "ready", Message: "no directory configured"}
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return ServiceHealth{
			Status:  "not_ready",
			Message: fmt.Sprintf("directory not found: %s", dir),
		}
	}
	return ServiceHealth{Status: "ready"}
}

// GetDetailedHealth returns comprehensive health information
func (hs *HealthService) GetDetailedHealth(ctx context.Context) map[string]interface{} {
	return map[string]interface{}{
		"health":    hs.HealthCheck(ctx),
		"readiness": hs.ReadinessCheck(ctx),
		"liveness":  hs.LivenessCheck(ctx),
		"stats":     hs.SystemStats(ctx),
	}
}
