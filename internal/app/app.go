package app

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"scadalab/internal/config"
	apperrors "scadalab/internal/errors"
	"scadalab/internal/exporter"
	"scadalab/internal/infrastructure"
	customMiddleware "scadalab/internal/middleware"
	"scadalab/internal/plugins"
	"scadalab/internal/services"
	handlers "scadalab/internal/transport/http"
	"scadalab/internal/validation"
	"scadalab/pkg/contracts"
)

const AppName = "scadalab"

// BuildID identifies this build; stable for one version on one day
var BuildID = generateBuildID()

func generateBuildID() string {
	h := sha256.New()
	h.Write([]byte(contracts.Version))
	h.Write([]byte(contracts.GitCommit))
	h.Write([]byte(time.Now().Format("2006-01-02")))
	return fmt.Sprintf("%x", h.Sum(nil))[:12]
}

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	Processing    *services.ProcessingService
	Health        *services.HealthService
	Plugins       *plugins.Registry
	ErrorHandler  *apperrors.ErrorHandler
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Metrics       *infrastructure.ProcessingMetrics
}

// NewApplication initializes the global logger from cfg and builds the
// application
func NewApplication(cfg *config.Config) (*Application, error) {
	cfg.Logging.FilePath = cfg.LogFilePath()
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return New(cfg, logger)
}

// New builds the application from an already loaded configuration
func New(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	logger.Info("Application starting",
		slog.String("name", AppName),
		slog.String("version", contracts.Version),
		slog.String("build_id", BuildID))

	if err := ensureDirectories(cfg.Paths); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFrom(cfg.Observability), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: otelProviders,
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeServices builds the processing stack
func (a *Application) initializeServices() error {
	metrics, err := infrastructure.CreateProcessingMetrics(a.OTelProviders.Meter)
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}
	a.Metrics = metrics

	a.Plugins = plugins.NewRegistry()
	a.ErrorHandler = apperrors.NewErrorHandler(a.Logger, a.Config.Logging.Development)

	a.Processing = services.NewProcessingService(services.Dependencies{
		Config:   a.Config.Processing,
		Plugins:  a.Plugins,
		Exporter: exporter.NewCSVWriter("", a.Logger),
		Tracer:   a.OTelProviders.Tracer,
		Metrics:  metrics,
		Logger:   a.Logger,
	})

	a.Health = services.NewHealthService(
		contracts.Version,
		contracts.BuildTime,
		BuildID,
		a.Config.Paths,
		a.Processing,
		a.Logger,
	)
	return nil
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	// RequestID → RealIP → OTel → Logger → Recoverer → Timeout
	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)
	r.Use(customMiddleware.NewOTelMiddleware(a.OTelProviders, a.Metrics).Handler)
	r.Use(customMiddleware.StructuredLogger(a.Logger))
	r.Use(customMiddleware.Recoverer(a.ErrorHandler))
	r.Use(customMiddleware.SecurityHeaders)
	r.Use(customMiddleware.StripSlashes)

	if a.Config.Security.RateLimit.Enabled {
		r.Use(customMiddleware.NewRateLimiter(
			a.Config.Security.RateLimit.RPS,
			a.Config.Security.RateLimit.Burst,
			a.Logger,
		).Handler)
	}

	r.NotFound(a.ErrorHandler.NotFound)
	r.MethodNotAllowed(a.ErrorHandler.MethodNotAllowed)

	a.setupAPIRoutes(r)

	// Prometheus metrics endpoint
	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	a.Router = r
}

// setupAPIRoutes configures API endpoints
func (a *Application) setupAPIRoutes(r chi.Router) {
	validator := customMiddleware.NewValidationMiddleware(a.Logger, a.ErrorHandler, a.Config.Security.MaxBodyBytes)
	healthHandler := handlers.NewHealthHandler(a.Health, a.Logger)
	datasetHandler := handlers.NewDatasetHandler(
		a.Processing,
		handlers.Directories{DataDir: a.Config.Paths.DataDir, OutputDir: a.Config.Paths.OutputDir},
		validator,
		a.ErrorHandler,
		a.Logger,
	)

	r.Route("/api/"+contracts.APIVersion, func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(middleware.Compress(5, "application/json", "application/problem+json"))

		// Quick endpoints
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.Timeout(a.Config.Server.ReadTimeout))
			healthHandler.Routes(r)
		})

		// Processing endpoints can run for minutes on large files
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.Timeout(a.Config.Server.OperationTimeout))
			r.Use(customMiddleware.MaxBodySize(a.Config.Security.MaxBodyBytes))
			r.Use(customMiddleware.ContentTypeValidator("application/json", "multipart/form-data"))
			r.Use(validator.ValidateRequest)
			datasetHandler.Routes(r)
		})
	})
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Start starts serving in the background. A listener failure cancels ctx
// through cancel.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "Starting application",
		slog.String("name", AppName),
		slog.String("version", contracts.Version),
		slog.Int("port", a.Config.Server.Port),
		slog.String("level", a.Config.Logging.Level),
		slog.String("data_dir", a.Config.Paths.DataDir),
		slog.String("output_dir", a.Config.Paths.OutputDir))

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	if err := a.performStartupHealthCheck(ctx); err != nil {
		a.Logger.WarnContext(ctx, "Startup health check warnings", slog.String("warnings", err.Error()))
	}

	a.Logger.InfoContext(ctx, "Application started successfully",
		slog.String("address", fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)))
	return nil
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete",
		slog.Int("datasets", a.Processing.Store().Len()))
	return nil
}

// Run runs the application until interrupted
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case <-sigChan:
		a.Logger.InfoContext(ctx, "Received interrupt signal")
	case <-ctx.Done():
		a.Logger.InfoContext(ctx, "Server stopped unexpectedly")
	}

	return a.Stop(context.Background())
}

// performStartupHealthCheck verifies the output and log directories are
// writable and reports how many loadable inputs the data directory holds
func (a *Application) performStartupHealthCheck(ctx context.Context) error {
	v := validation.NewFileValidator(a.Logger)
	var warnings []string

	for name, dir := range map[string]string{
		"Output": a.Config.Paths.OutputDir,
		"Logs":   a.Config.Paths.LogsDir,
	} {
		if dir == "" {
			continue
		}
		if err := v.ValidateOutputDirectory(dir); err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", name, err))
		}
	}

	if dir := a.Config.Paths.DataDir; dir != "" {
		inputs, err := v.ValidateInputDirectory(dir)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("Data: %v", err))
		} else {
			a.Logger.InfoContext(ctx, "Data directory scanned",
				slog.String("directory", dir),
				slog.Int("inputs", len(inputs)))
		}
	}

	if len(warnings) > 0 {
		sort.Strings(warnings)
		return fmt.Errorf("startup health check warnings: %s", strings.Join(warnings, "; "))
	}

	a.Logger.InfoContext(ctx, "Startup health check passed")
	return nil
}

func ensureDirectories(paths config.PathsConfig) error {
	for _, dir := range []string{paths.DataDir, paths.OutputDir, paths.LogsDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
