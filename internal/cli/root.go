// Package cli implements the scadalab command line: an HTTP server command
// and offline commands that run the processing service directly on files.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"scadalab/internal/config"
	"scadalab/internal/infrastructure"
	"scadalab/internal/services"
)

type rootOptions struct {
	configFile string
	logLevel   string
}

// NewRootCommand builds the command tree
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "scadalab",
		Short:         "Industrial time-series processing",
		Long:          "Load SCADA and historian exports, fill gaps, align sensors and derive rates and totals.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default: ./config.yaml or ./configs/config.yaml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(
		newServeCommand(opts),
		newInspectCommand(opts),
		newProcessCommand(opts),
		newSyncCommand(opts),
		newMethodsCommand(opts),
		newVersionCommand(),
	)
	return root
}

// Execute runs the root command; SIGINT and SIGTERM cancel the command
// context
func Execute() error {
	ctx, cancel := signalContext()
	defer cancel()
	// one trace id per invocation ties the command's log lines together
	return NewRootCommand().ExecuteContext(infrastructure.EnsureTraceID(ctx))
}

// load reads the configuration, applying command line overrides
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	return cfg, nil
}

// service builds a processing service for offline commands. Logs go to
// stderr so stdout stays machine readable.
func (o *rootOptions) service(cmd *cobra.Command) (*services.ProcessingService, *config.Config, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, nil, err
	}
	logCfg := cfg.Logging
	logCfg.Output = "console"
	logger, err := infrastructure.NewLogger(logCfg, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	svc := services.NewProcessingService(services.Dependencies{
		Config: cfg.Processing,
		Logger: logger.With(slog.String("command", cmd.Name())),
	})
	return svc, cfg, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
