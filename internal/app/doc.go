// Package app wires scadalab together and manages its lifecycle.
//
// # Initialization Flow
//
//	1. Load configuration from the environment and an optional YAML file
//	2. Initialize the global slog logger
//	3. Create the data, output and logs directories
//	4. Initialize OpenTelemetry (Prometheus metrics, optional stdout traces)
//	5. Build the processing and health services
//	6. Mount middleware and the /api/v1 handlers on a chi router
//	7. Create the HTTP server
//
// # Usage
//
//	cfg, err := config.Load(configPath)
//	if err != nil {
//	    return err
//	}
//	a, err := app.NewApplication(cfg)
//	if err != nil {
//	    return err
//	}
//	return a.Run()
//
// Run blocks until SIGINT or SIGTERM, then drains in-flight requests and
// flushes telemetry. Initialization errors are returned, never os.Exit'ed.
package app
