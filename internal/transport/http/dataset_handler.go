package http

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"scadalab/internal/dataset"
	apperrors "scadalab/internal/errors"
	"scadalab/internal/exporter"
	"scadalab/internal/files"
	"scadalab/internal/middleware"
	"scadalab/internal/services"
	"scadalab/pkg/contracts/domain"
)

const maxListLimit = 10000

// ProcessingService is the service surface the handlers need
type ProcessingService interface {
	Inspect(ctx context.Context, path string) (*services.Inspection, error)
	Load(ctx context.Context, path string) (*dataset.Dataset, error)
	LoadBatch(ctx context.Context, paths []string) ([]*dataset.Dataset, error)
	Get(ctx context.Context, id string) (*dataset.Dataset, error)
	List(ctx context.Context) []dataset.Summary
	Lineage(ctx context.Context, id string) ([]dataset.Summary, error)
	Delete(ctx context.Context, id string) error
	Prune(ctx context.Context, id string) (int, error)
	Interpolate(ctx context.Context, id string, req services.SeriesRequest) (*dataset.Dataset, error)
	Resample(ctx context.Context, id string, req services.SeriesRequest) (*dataset.Dataset, error)
	Synchronize(ctx context.Context, req services.SyncRequest) (*dataset.Dataset, error)
	Derivative(ctx context.Context, id string, req services.DerivativeRequest) (*dataset.Dataset, error)
	Integral(ctx context.Context, id string, req services.SeriesRequest) (*dataset.Dataset, error)
	AreaBetween(ctx context.Context, id string, req services.AreaRequest) (*dataset.Dataset, error)
	Smooth(ctx context.Context, id string, req services.SeriesRequest) (*dataset.Dataset, error)
	ConvertUnits(ctx context.Context, id string, req services.ConvertRequest) (*dataset.Dataset, error)
	Export(ctx context.Context, id, path string, opts exporter.DatasetOptions) (string, error)
	Methods() services.MethodCatalog
}

// Directories confines file access to the configured data and output
// directories
type Directories struct {
	DataDir   string
	OutputDir string
}

// DatasetHandler serves the dataset and processing routes
type DatasetHandler struct {
	service      ProcessingService
	dirs         Directories
	validator    *middleware.ValidationMiddleware
	queries      *middleware.QueryParamValidator
	errorHandler *apperrors.ErrorHandler
	inputs       *files.Manager
	discovery    *files.Discovery
	logger       *slog.Logger
}

// NewDatasetHandler creates the handler
func NewDatasetHandler(service ProcessingService, dirs Directories, validator *middleware.ValidationMiddleware, errorHandler *apperrors.ErrorHandler, logger *slog.Logger) *DatasetHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DatasetHandler{
		service:      service,
		dirs:         dirs,
		validator:    validator,
		queries:      middleware.NewQueryParamValidator(logger, errorHandler),
		errorHandler: errorHandler,
		inputs:       files.NewManager(dirs.DataDir, logger),
		discovery:    files.NewDiscovery(dirs.DataDir),
		logger:       logger.With(slog.String("handler", "datasets")),
	}
}

// Routes mounts the handler's routes on r
func (h *DatasetHandler) Routes(r chi.Router) {
	r.Get("/methods", h.Methods)
	r.Get("/files", h.Files)
	r.Delete("/files/*", h.DeleteFile)
	r.Post("/inspect", h.Inspect)
	r.Post("/synchronize", h.Synchronize)

	r.Route("/datasets", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Load)
		r.Post("/upload", h.Upload)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Delete("/", h.Delete)
			r.Get("/lineage", h.Lineage)
			r.Post("/prune", h.Prune)
			r.Post("/interpolate", h.Interpolate)
			r.Post("/resample", h.Resample)
			r.Post("/derivative", h.Derivative)
			r.Post("/integral", h.Integral)
			r.Post("/area", h.AreaBetween)
			r.Post("/smooth", h.Smooth)
			r.Post("/convert", h.ConvertUnits)
			r.Post("/export", h.Export)
		})
	})
}

// Request bodies

// PathRequest names one file or several files under the data directory
type PathRequest struct {
	Path  string   `json:"path" validate:"required_without=Paths"`
	Paths []string `json:"paths" validate:"omitempty,max=64,dive,required"`
}

// SeriesOpRequest drives interpolate, resample, integral and smooth
type SeriesOpRequest struct {
	Series []string      `json:"series" validate:"omitempty,dive,required"`
	Method string        `json:"method" validate:"omitempty,method"`
	Params domain.Params `json:"params"`
	Plugin string        `json:"plugin" validate:"omitempty,max=64"`
}

// DerivativeBody drives the derivative route
type DerivativeBody struct {
	Series []string      `json:"series" validate:"omitempty,dive,required"`
	Order  int           `json:"order" validate:"omitempty,min=1,max=3"`
	Method string        `json:"method" validate:"omitempty,oneof=finite_diff spline"`
	Params domain.Params `json:"params"`
}

// AreaBody drives the area route
type AreaBody struct {
	Upper  string        `json:"upper" validate:"required"`
	Lower  string        `json:"lower" validate:"required,nefield=Upper"`
	Name   string        `json:"name"`
	Params domain.Params `json:"params"`
}

// ConvertBody drives the unit conversion route
type ConvertBody struct {
	Series []string `json:"series" validate:"omitempty,dive,required"`
	From   string   `json:"from"`
	To     string   `json:"to" validate:"required"`
}

// SyncSourceBody names series of one dataset
type SyncSourceBody struct {
	DatasetID string   `json:"dataset_id" validate:"required"`
	Series    []string `json:"series" validate:"omitempty,dive,required"`
}

// SyncBody drives the synchronize route
type SyncBody struct {
	Sources []SyncSourceBody `json:"sources" validate:"required,min=1,dive"`
	Method  string           `json:"method" validate:"omitempty,method"`
	Params  domain.Params    `json:"params"`
	Plugin  string           `json:"plugin" validate:"omitempty,max=64"`
}

// ExportBody drives the export route
type ExportBody struct {
	File        string   `json:"file" validate:"required,filename"`
	Series      []string `json:"series" validate:"omitempty,dive,required"`
	IncludeMask *bool    `json:"include_mask"`
	BOM         bool     `json:"bom"`
}

// Methods handles GET /methods
func (h *DatasetHandler) Methods(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.Methods())
}

// Files handles GET /files, listing loadable inputs in the data directory.
// The optional pattern query parameter is a glob relative to it.
func (h *DatasetHandler) Files(w http.ResponseWriter, r *http.Request) {
	var (
		found []files.FileInfo
		err   error
	)
	if pattern := r.URL.Query().Get("pattern"); pattern != "" {
		if strings.Contains(pattern, "..") || filepath.IsAbs(pattern) {
			h.errorHandler.HandleError(w, r, apperrors.ErrValidation("pattern", "pattern must stay inside the data directory"))
			return
		}
		found, err = h.discovery.FindFilesByPattern("", pattern)
	} else {
		found, err = h.discovery.FindInputs("")
	}
	if err != nil {
		h.errorHandler.HandleError(w, r, apperrors.NewDataLoadError("cannot list data directory", err))
		return
	}
	if found == nil {
		found = []files.FileInfo{}
	}
	resp := map[string]interface{}{
		"files": found,
		"count": len(found),
	}
	if latest, ok := files.GetLatestFile(found); ok {
		resp["latest"] = latest
	}
	render.JSON(w, r, resp)
}

// DeleteFile handles DELETE /files/{name}, removing an input from the data
// directory. Loaded datasets keep their values.
func (h *DatasetHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")
	if err := h.inputs.DeleteFile(name); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "input file deleted", slog.String("file", name))
	render.NoContent(w, r)
}

// Inspect handles POST /inspect
func (h *DatasetHandler) Inspect(w http.ResponseWriter, r *http.Request) {
	var body PathRequest
	if !h.decode(w, r, &body) {
		return
	}
	path, err := h.inputs.Resolve(body.Path)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	ins, err := h.service.Inspect(r.Context(), path)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, ins)
}

// List handles GET /datasets. limit caps the number of summaries returned;
// 0 returns all of them.
func (h *DatasetHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.queries.ValidateInt(w, r, "limit", 0, maxListLimit, 0)
	if !ok {
		return
	}
	all := h.service.List(r.Context())
	total := len(all)
	if limit > 0 && limit < total {
		all = all[:limit]
	}
	render.JSON(w, r, map[string]interface{}{
		"datasets": all,
		"count":    len(all),
		"total":    total,
	})
}

// Load handles POST /datasets
func (h *DatasetHandler) Load(w http.ResponseWriter, r *http.Request) {
	var body PathRequest
	if !h.decode(w, r, &body) {
		return
	}

	if len(body.Paths) == 0 {
		path, err := h.inputs.Resolve(body.Path)
		if err != nil {
			h.errorHandler.HandleError(w, r, err)
			return
		}
		d, err := h.service.Load(r.Context(), path)
		if err != nil {
			h.errorHandler.HandleError(w, r, err)
			return
		}
		h.created(w, r, d)
		return
	}

	paths := make([]string, 0, len(body.Paths))
	for _, p := range body.Paths {
		path, err := h.inputs.Resolve(p)
		if err != nil {
			h.errorHandler.HandleError(w, r, err)
			return
		}
		paths = append(paths, path)
	}
	loaded, err := h.service.LoadBatch(r.Context(), paths)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	views := make([]DatasetView, len(loaded))
	for i, d := range loaded {
		views[i] = newDatasetView(d, false)
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, map[string]interface{}{
		"datasets": views,
		"count":    len(views),
	})
}

// Upload handles POST /datasets/upload. The file is stored in the data
// directory under its base name, then loaded.
func (h *DatasetHandler) Upload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		h.errorHandler.HandleError(w, r, apperrors.ErrValidation("file", "multipart field file is required"))
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if !files.IsSupported(filepath.Ext(name)) {
		h.errorHandler.HandleError(w, r, apperrors.ErrValidation("file", "unsupported file extension"))
		return
	}
	path, err := h.inputs.Store(name, file)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "upload stored",
		slog.String("file", name),
		slog.Int64("size", header.Size))

	d, err := h.service.Load(r.Context(), path)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	h.created(w, r, d)
}

// Get handles GET /datasets/{id}
func (h *DatasetHandler) Get(w http.ResponseWriter, r *http.Request) {
	values, ok := h.queries.ValidateEnum(w, r, "values", []string{"true", "false"}, "false")
	if !ok {
		return
	}
	d, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, newDatasetView(d, values == "true"))
}

// Delete handles DELETE /datasets/{id}
func (h *DatasetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.NoContent(w, r)
}

// Lineage handles GET /datasets/{id}/lineage
func (h *DatasetHandler) Lineage(w http.ResponseWriter, r *http.Request) {
	chain, err := h.service.Lineage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"lineage": chain,
		"depth":   len(chain),
	})
}

// Prune handles POST /datasets/{id}/prune
func (h *DatasetHandler) Prune(w http.ResponseWriter, r *http.Request) {
	removed, err := h.service.Prune(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{"removed": removed})
}

// Interpolate handles POST /datasets/{id}/interpolate
func (h *DatasetHandler) Interpolate(w http.ResponseWriter, r *http.Request) {
	req, ok := h.seriesRequest(w, r, true)
	if !ok {
		return
	}
	h.respond(w, r)(h.service.Interpolate(r.Context(), chi.URLParam(r, "id"), req))
}

// Resample handles POST /datasets/{id}/resample
func (h *DatasetHandler) Resample(w http.ResponseWriter, r *http.Request) {
	req, ok := h.seriesRequest(w, r, false)
	if !ok {
		return
	}
	h.respond(w, r)(h.service.Resample(r.Context(), chi.URLParam(r, "id"), req))
}

// Integral handles POST /datasets/{id}/integral
func (h *DatasetHandler) Integral(w http.ResponseWriter, r *http.Request) {
	req, ok := h.seriesRequest(w, r, false)
	if !ok {
		return
	}
	h.respond(w, r)(h.service.Integral(r.Context(), chi.URLParam(r, "id"), req))
}

// Smooth handles POST /datasets/{id}/smooth
func (h *DatasetHandler) Smooth(w http.ResponseWriter, r *http.Request) {
	req, ok := h.seriesRequest(w, r, true)
	if !ok {
		return
	}
	h.respond(w, r)(h.service.Smooth(r.Context(), chi.URLParam(r, "id"), req))
}

// Derivative handles POST /datasets/{id}/derivative
func (h *DatasetHandler) Derivative(w http.ResponseWriter, r *http.Request) {
	var body DerivativeBody
	if !h.decode(w, r, &body) {
		return
	}
	h.respond(w, r)(h.service.Derivative(r.Context(), chi.URLParam(r, "id"), services.DerivativeRequest{
		Series: body.Series,
		Order:  body.Order,
		Method: body.Method,
		Params: body.Params,
	}))
}

// AreaBetween handles POST /datasets/{id}/area
func (h *DatasetHandler) AreaBetween(w http.ResponseWriter, r *http.Request) {
	var body AreaBody
	if !h.decode(w, r, &body) {
		return
	}
	h.respond(w, r)(h.service.AreaBetween(r.Context(), chi.URLParam(r, "id"), services.AreaRequest{
		Upper:  body.Upper,
		Lower:  body.Lower,
		Name:   body.Name,
		Params: body.Params,
	}))
}

// ConvertUnits handles POST /datasets/{id}/convert
func (h *DatasetHandler) ConvertUnits(w http.ResponseWriter, r *http.Request) {
	var body ConvertBody
	if !h.decode(w, r, &body) {
		return
	}
	h.respond(w, r)(h.service.ConvertUnits(r.Context(), chi.URLParam(r, "id"), services.ConvertRequest{
		Series: body.Series,
		From:   body.From,
		To:     body.To,
	}))
}

// Synchronize handles POST /synchronize
func (h *DatasetHandler) Synchronize(w http.ResponseWriter, r *http.Request) {
	var body SyncBody
	if !h.decode(w, r, &body) {
		return
	}
	if body.Method == "" && body.Plugin == "" {
		h.errorHandler.HandleError(w, r, apperrors.ErrValidation("method", "method or plugin is required"))
		return
	}
	req := services.SyncRequest{Method: body.Method, Params: body.Params, Plugin: body.Plugin}
	for _, src := range body.Sources {
		req.Sources = append(req.Sources, services.SyncSource{DatasetID: src.DatasetID, Series: src.Series})
	}
	h.respond(w, r)(h.service.Synchronize(r.Context(), req))
}

// Export handles POST /datasets/{id}/export. Files land in the output
// directory.
func (h *DatasetHandler) Export(w http.ResponseWriter, r *http.Request) {
	var body ExportBody
	if !h.decode(w, r, &body) {
		return
	}
	opts := exporter.DefaultDatasetOptions()
	if body.IncludeMask != nil {
		opts.IncludeMask = *body.IncludeMask
	}
	opts.BOMPrefix = body.BOM
	opts.Series = body.Series

	target := filepath.Join(h.dirs.OutputDir, body.File)
	path, err := h.service.Export(r.Context(), chi.URLParam(r, "id"), target, opts)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"dataset_id": chi.URLParam(r, "id"),
		"path":       path,
	})
}

// seriesRequest decodes a SeriesOpRequest; needMethod requires a method or
// a plugin
func (h *DatasetHandler) seriesRequest(w http.ResponseWriter, r *http.Request, needMethod bool) (services.SeriesRequest, bool) {
	var body SeriesOpRequest
	if !h.decode(w, r, &body) {
		return services.SeriesRequest{}, false
	}
	if needMethod && body.Method == "" && body.Plugin == "" {
		h.errorHandler.HandleError(w, r, apperrors.ErrValidation("method", "method or plugin is required"))
		return services.SeriesRequest{}, false
	}
	return services.SeriesRequest{
		Series: body.Series,
		Method: body.Method,
		Params: body.Params,
		Plugin: body.Plugin,
	}, true
}

// decode reads a JSON body into v and validates it. An empty body decodes
// to the zero value.
func (h *DatasetHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := render.DecodeJSON(r.Body, v); err != nil && err != io.EOF {
		h.errorHandler.HandleError(w, r, apperrors.InvalidRequestWithError(err))
		return false
	}
	if err := h.validator.ValidateStruct(v); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return false
	}
	return true
}

// respond returns a closure writing a new dataset version as 201
func (h *DatasetHandler) respond(w http.ResponseWriter, r *http.Request) func(*dataset.Dataset, error) {
	return func(d *dataset.Dataset, err error) {
		if err != nil {
			h.errorHandler.HandleError(w, r, err)
			return
		}
		h.created(w, r, d)
	}
}

func (h *DatasetHandler) created(w http.ResponseWriter, r *http.Request, d *dataset.Dataset) {
	w.Header().Set("Location", fmt.Sprintf("%s/%s", strings.TrimSuffix(datasetsPrefix(r), "/"), d.ID))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, newDatasetView(d, false))
}

func datasetsPrefix(r *http.Request) string {
	path := r.URL.Path
	if i := strings.Index(path, "/datasets"); i >= 0 {
		return path[:i] + "/datasets"
	}
	return "/datasets"
}
