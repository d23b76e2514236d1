package services

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"scadalab/internal/config"
	"scadalab/internal/dataset"
	apperrors "scadalab/internal/errors"
	"scadalab/internal/exporter"
	"scadalab/internal/infrastructure"
	"scadalab/internal/interpolation"
	"scadalab/internal/loader"
	"scadalab/internal/plugins"
	"scadalab/internal/schema"
	"scadalab/internal/smoothing"
	"scadalab/internal/synchronization"
	"scadalab/internal/units"
	"scadalab/internal/validation"
	"scadalab/pkg/contracts/domain"
)

// TracerName names the service spans
const TracerName = "scadalab.processing"

// Dependencies are the collaborators of ProcessingService. Nil members get
// defaults built from Config.
type Dependencies struct {
	Config   config.ProcessingConfig
	Store    *dataset.Store
	Interp   *interpolation.Engine
	Sync     *synchronization.Engine
	Units    *units.Registry
	Plugins  *plugins.Registry
	Exporter *exporter.CSVWriter
	Tracer   trace.Tracer
	Metrics  *infrastructure.ProcessingMetrics
	Logger   *slog.Logger
}

// ProcessingService loads files into datasets and runs processing
// operations on them. It is safe for concurrent use.
type ProcessingService struct {
	cfg       config.ProcessingConfig
	store     *dataset.Store
	interp    *interpolation.Engine
	sync      *synchronization.Engine
	units     *units.Registry
	plugins   *plugins.Registry
	exporter  *exporter.CSVWriter
	files     *validation.FileValidator
	validator *validation.Validator
	rules     schema.Rules
	tracer    trace.Tracer
	metrics   *infrastructure.ProcessingMetrics
	logger    *slog.Logger
}

// NewProcessingService wires the service
func NewProcessingService(deps Dependencies) *ProcessingService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config
	if cfg.MaxGridPoints <= 0 {
		cfg.MaxGridPoints = interpolation.DefaultMaxGridPoints
	}
	if cfg.MaxConcurrentLoads <= 0 {
		cfg.MaxConcurrentLoads = 1
	}

	s := &ProcessingService{
		cfg:      cfg,
		store:    deps.Store,
		interp:   deps.Interp,
		sync:     deps.Sync,
		units:    deps.Units,
		plugins:  deps.Plugins,
		exporter: deps.Exporter,
		tracer:   deps.Tracer,
		metrics:  deps.Metrics,
		logger:   logger.With(slog.String("component", "processing_service")),
	}
	if s.store == nil {
		s.store = dataset.NewStore(logger)
	}
	if s.interp == nil {
		s.interp = interpolation.NewEngine(interpolation.ResolveCapabilities(cfg.DisabledMethods), logger)
	}
	if s.sync == nil {
		s.sync = synchronization.NewEngine(s.interp, synchronization.Options{
			GridPolicy:    cfg.SyncGridPolicy,
			MaxGridPoints: cfg.MaxGridPoints,
		}, logger)
	}
	if s.units == nil {
		s.units = units.Default()
	}
	if s.plugins == nil {
		s.plugins = plugins.NewRegistry()
	}
	if s.exporter == nil {
		s.exporter = exporter.NewCSVWriter("", logger)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(TracerName)
	}

	s.files = validation.NewFileValidator(logger)
	if cfg.MaxInputBytes > 0 {
		s.files.WithMaxSize(cfg.MaxInputBytes)
	}
	s.validator = validation.NewValidator(validation.Options{
		GapMultiplier:   cfg.GapMultiplier,
		MaxMissingRatio: cfg.MaxMissingRatio,
	}, logger)
	s.rules = schema.DefaultRules()
	if len(cfg.TimestampCandidates) > 0 {
		s.rules.TimestampCandidates = cfg.TimestampCandidates
	}
	if cfg.MinSeriesColumns > 0 {
		s.rules.MinSeriesColumns = cfg.MinSeriesColumns
	}
	return s
}

// Store exposes the dataset store
func (s *ProcessingService) Store() *dataset.Store {
	return s.store
}

// Plugins exposes the plugin registry
func (s *ProcessingService) Plugins() *plugins.Registry {
	return s.plugins
}

// begin opens a span and returns the closure that ends it and records the
// operation metrics
func (s *ProcessingService) begin(ctx context.Context, operation, method string, attrs ...attribute.KeyValue) (context.Context, func(points int, err error)) {
	start := time.Now()
	attrs = append(attrs,
		attribute.String("processing.operation", operation),
		attribute.String("processing.method", method))
	ctx, span := s.tracer.Start(ctx, "processing."+operation,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...))

	if s.metrics != nil {
		s.metrics.ActiveOperations.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
	}

	return ctx, func(points int, err error) {
		defer span.End()
		if s.metrics != nil {
			s.metrics.ActiveOperations.Add(ctx, -1, metric.WithAttributes(attribute.String("operation", operation)))
		}
		infrastructure.RecordOperation(ctx, s.metrics, operation, method, time.Since(start), points, err)

		logger := infrastructure.LoggerFromContext(ctx).With(slog.String("component", "processing_service"))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			kind, _ := apperrors.TypeOf(err)
			logger.WarnContext(ctx, "operation failed",
				slog.String("operation", operation),
				slog.String("method", method),
				slog.String("error_kind", string(kind)),
				slog.String("error", err.Error()))
			return
		}
		span.SetStatus(codes.Ok, "")
		span.SetAttributes(attribute.Int("processing.points", points))
		logger.InfoContext(ctx, "operation complete",
			slog.String("operation", operation),
			slog.String("method", method),
			slog.Int("points", points),
			slog.Duration("duration", time.Since(start)))
	}
}

// Inspection is the read-only view of a file before it becomes a dataset
type Inspection struct {
	Source     dataset.SourceDescriptor `json:"source"`
	Rows       int                      `json:"rows"`
	Columns    []loader.ColumnInfo      `json:"columns"`
	Schema     domain.SchemaMap         `json:"schema"`
	Validation *domain.ValidationReport `json:"validation"`
}

// Inspect loads path, detects its schema and validates it without storing
// anything
func (s *ProcessingService) Inspect(ctx context.Context, path string) (_ *Inspection, err error) {
	ctx, done := s.begin(ctx, "inspect", "", attribute.String("file.path", path))
	defer func() { done(0, err) }()

	frame, source, err := s.readFile(ctx, path)
	if err != nil {
		return nil, err
	}
	detected, err := schema.DetectSchema(frame, s.rules)
	if err != nil {
		return nil, err
	}
	return &Inspection{
		Source:     source,
		Rows:       frame.Len(),
		Columns:    loader.Describe(frame),
		Schema:     detected,
		Validation: s.validator.Validate(frame, detected),
	}, nil
}

// Load reads, validates and stores path as a version 1 dataset. Validation
// warnings are kept in the dataset metadata; validation errors fail the load.
func (s *ProcessingService) Load(ctx context.Context, path string) (_ *dataset.Dataset, err error) {
	ctx, done := s.begin(ctx, "load", "", attribute.String("file.path", path))
	points := 0
	defer func() { done(points, err) }()

	frame, source, err := s.readFile(ctx, path)
	if err != nil {
		return nil, err
	}
	detected, err := schema.DetectSchema(frame, s.rules)
	if err != nil {
		return nil, err
	}

	report := s.validator.Validate(frame, detected)
	if !report.IsValid {
		failed := make([]string, 0, len(report.Errors))
		for _, issue := range report.Errors {
			failed = append(failed, issue.Code)
		}
		return nil, apperrors.NewAppValidationError("validation_failed", "file failed validation").
			WithContext("path", path).
			WithContext("errors", failed)
	}

	opts := dataset.DefaultBuildOptions()
	d, err := dataset.Build(frame, detected, source, opts)
	if err != nil {
		return nil, err
	}
	d.Metadata["validation"] = report
	if err := s.store.Put(d); err != nil {
		return nil, err
	}

	points = d.Len() * len(d.SeriesOrder)
	if s.metrics != nil {
		s.metrics.DatasetsLoaded.Add(ctx, 1, metric.WithAttributes(attribute.String("format", source.Format)))
	}
	infrastructure.AddSpanEvent(ctx, "dataset.stored", map[string]interface{}{
		"dataset.id": d.ID,
		"series":     len(d.SeriesOrder),
		"samples":    d.Len(),
	})
	return d, nil
}

// LoadBatch loads independent files in parallel, bounded by
// MaxConcurrentLoads. The result order matches paths. The first failure
// cancels the remaining loads.
func (s *ProcessingService) LoadBatch(ctx context.Context, paths []string) ([]*dataset.Dataset, error) {
	out := make([]*dataset.Dataset, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrentLoads)

	for i, path := range paths {
		g.Go(func() error {
			d, err := s.Load(gctx, path)
			if err != nil {
				return err
			}
			out[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ProcessingService) readFile(ctx context.Context, path string) (*domain.Frame, dataset.SourceDescriptor, error) {
	if err := s.files.ValidateInputFile(path); err != nil {
		return nil, dataset.SourceDescriptor{}, err
	}
	source, err := dataset.DescribeFile(path)
	if err != nil {
		return nil, dataset.SourceDescriptor{}, err
	}
	frame, err := loader.Load(ctx, path, loader.Options{
		ParseDates: s.cfg.ParseDates,
		Logger:     s.logger,
	})
	if err != nil {
		return nil, dataset.SourceDescriptor{}, err
	}
	return frame, source, nil
}

// Get returns a stored dataset
func (s *ProcessingService) Get(ctx context.Context, id string) (*dataset.Dataset, error) {
	return s.store.Get(id)
}

// List returns the summaries of every stored dataset
func (s *ProcessingService) List(ctx context.Context) []dataset.Summary {
	all := s.store.List()
	out := make([]dataset.Summary, len(all))
	for i, d := range all {
		out[i] = d.Summarize()
	}
	return out
}

// Lineage returns the version chain of id, newest first
func (s *ProcessingService) Lineage(ctx context.Context, id string) ([]dataset.Summary, error) {
	chain, err := s.store.Lineage(id)
	if err != nil {
		return nil, err
	}
	out := make([]dataset.Summary, len(chain))
	for i, d := range chain {
		out[i] = d.Summarize()
	}
	return out, nil
}

// Delete removes one dataset version
func (s *ProcessingService) Delete(ctx context.Context, id string) error {
	return s.store.Delete(id)
}

// Prune removes the superseded ancestors of id
func (s *ProcessingService) Prune(ctx context.Context, id string) (int, error) {
	return s.store.Prune(id)
}

// Export writes a stored dataset to path; .xlsx writes a workbook and any
// other extension CSV
func (s *ProcessingService) Export(ctx context.Context, id, path string, opts exporter.DatasetOptions) (_ string, err error) {
	ctx, done := s.begin(ctx, "export", "", attribute.String("dataset.id", id))
	var d *dataset.Dataset
	defer func() {
		points := 0
		if d != nil {
			points = d.Len()
		}
		done(points, err)
	}()

	d, err = s.store.Get(id)
	if err != nil {
		return "", err
	}
	if err := s.files.ValidateOutputDirectory(filepath.Dir(path)); err != nil {
		return "", apperrors.NewConfigError("export destination is not writable", err).
			WithContext("path", path)
	}

	format := "csv"
	var written string
	if strings.EqualFold(fileExt(path), config.ExtXLSX) {
		format = "xlsx"
		written, err = s.exporter.WriteWorkbook(d, path, opts)
	} else {
		written, err = s.exporter.WriteDataset(d, path, opts)
	}
	if err != nil {
		return "", err
	}
	infrastructure.SetSpanAttributes(ctx, map[string]interface{}{
		"export.format": format,
		"export.series": len(d.SeriesOrder),
	})
	return written, nil
}

// MethodCatalog lists every method name the service accepts
type MethodCatalog struct {
	Interpolation          []string               `json:"interpolation"`
	InterpolationAvailable []string               `json:"interpolation_available"`
	Synchronization        []string               `json:"synchronization"`
	Smoothing              []string               `json:"smoothing"`
	Derivative             []string               `json:"derivative"`
	Plugins                []plugins.Capabilities `json:"plugins"`
}

// Methods returns the method catalog
func (s *ProcessingService) Methods() MethodCatalog {
	return MethodCatalog{
		Interpolation:          interpolation.SupportedMethods(),
		InterpolationAvailable: s.interp.Capabilities().AvailableMethods(),
		Synchronization:        synchronization.SupportedMethods(),
		Smoothing:              smoothing.SupportedMethods(),
		Derivative:             calculusMethods(),
		Plugins:                s.plugins.List(),
	}
}

// selectSeries resolves refs (ids or names) in order; no refs means every
// series of d
func selectSeries(d *dataset.Dataset, refs []string) ([]*dataset.Series, error) {
	if len(refs) == 0 {
		all := d.Ordered()
		if len(all) == 0 {
			return nil, noSeries(d.ID)
		}
		return all, nil
	}
	out := make([]*dataset.Series, 0, len(refs))
	seen := make(map[string]bool, len(refs))
	for _, ref := range refs {
		ser, ok := d.Lookup(ref)
		if !ok {
			return nil, seriesNotFound(d.ID, ref)
		}
		if seen[ser.ID] {
			continue
		}
		seen[ser.ID] = true
		out = append(out, ser)
	}
	return out, nil
}

// carry copies a series unchanged into child
func carry(child *dataset.Dataset, ser *dataset.Series) error {
	c, err := dataset.NewSeries(ser.Name, ser.Unit, ser.Values, &ser.Info, ser.Lineage, child.Len())
	if err != nil {
		return err
	}
	for k, v := range ser.Metadata {
		c.Metadata[k] = v
	}
	return child.AddSeries(c)
}

// carryOthers copies every series of parent not in done into child, in
// parent order
func carryOthers(child, parent *dataset.Dataset, done map[string]bool) error {
	for _, ser := range parent.Ordered() {
		if done[ser.ID] {
			continue
		}
		if err := carry(child, ser); err != nil {
			return err
		}
	}
	return nil
}
