// Package services implements the application layer between the transports
// (HTTP, CLI) and the processing core.
//
// # Architecture
//
// ProcessingService owns the dataset store and the engines. Every call:
//
//	1. resolves datasets and series from the store
//	2. runs the core function on plain float64 slices
//	3. wraps the output in a new Dataset version whose ParentID names the input
//	4. records an OpenTelemetry span and the processing metrics
//
// Core packages never see the store, the tracer or the request context; the
// service is the only place where those meet.
//
// # Usage
//
//	svc := services.NewProcessingService(services.Dependencies{
//	    Config: cfg.Processing,
//	    Logger: logger,
//	})
//	ds, err := svc.Load(ctx, "line1.csv")
//	filled, err := svc.Interpolate(ctx, ds.ID, services.SeriesRequest{Method: "linear"})
package services
