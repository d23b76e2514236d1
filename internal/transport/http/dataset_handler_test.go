package http

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scadalab/internal/config"
	apperrors "scadalab/internal/errors"
	"scadalab/internal/middleware"
	"scadalab/internal/services"
	"scadalab/internal/shared/testutil"
)

type testServer struct {
	router http.Handler
	svc    *services.ProcessingService
	dirs   Directories
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	dirs := Directories{DataDir: t.TempDir(), OutputDir: t.TempDir()}

	svc := services.NewProcessingService(services.Dependencies{
		Config: config.Default().Processing,
		Logger: logger,
	})
	eh := apperrors.NewErrorHandler(logger, false)
	vm := middleware.NewValidationMiddleware(logger, eh, 0)
	h := NewDatasetHandler(svc, dirs, vm, eh, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.NotFound(eh.NotFound)
	r.Route("/api/v1", h.Routes)

	testutil.WriteFixture(t, dirs.DataDir, "line1.csv", testutil.LineOneCSV)
	testutil.WriteFixture(t, dirs.DataDir, "line2.csv", testutil.LineTwoCSV)
	return &testServer{router: r, svc: svc, dirs: dirs}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) load(t *testing.T, file string) DatasetView {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/datasets", map[string]string{"path": file})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeView(t, rec)
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) DatasetView {
	t.Helper()
	var v DatasetView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func decodeMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

func TestLoadDataset(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/datasets", map[string]string{"path": "line1.csv"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	v := decodeView(t, rec)
	assert.Equal(t, 1, v.Version)
	assert.Equal(t, 5, v.Samples)
	assert.Equal(t, "csv", v.Format)
	assert.Equal(t, []string{testutil.SeriesTemp, testutil.SeriesFlow}, v.Summary.Series)
	assert.Equal(t, "/api/v1/datasets/"+v.ID, rec.Header().Get("Location"))
	assert.Empty(t, v.Time, "arrays are omitted unless asked for")
}

func TestLoadBatchDatasets(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/datasets", map[string][]string{"paths": {"line1.csv", "line2.csv"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.EqualValues(t, 2, decodeMap(t, rec)["count"])
	assert.Equal(t, 2, s.svc.Store().Len())
}

func TestLoadDatasetErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		body   interface{}
		status int
	}{
		{"empty body", nil, http.StatusBadRequest},
		{"traversal", map[string]string{"path": "../line1.csv"}, http.StatusBadRequest},
		{"absolute", map[string]string{"path": "/etc/passwd"}, http.StatusBadRequest},
		{"missing file", map[string]string{"path": "nope.csv"}, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/v1/datasets", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.EqualValues(t, tt.status, decodeMap(t, rec)["status"])
		})
	}
}

func TestGetDataset(t *testing.T) {
	s := newTestServer(t)
	loaded := s.load(t, "line1.csv")

	rec := s.do(t, http.MethodGet, "/api/v1/datasets/"+loaded.ID+"?values=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	m := decodeMap(t, rec)
	assert.Equal(t, []interface{}{0.0, 1.0, 2.0, 3.0, 4.0}, m["time"])
	detail := m["series_detail"].([]interface{})
	require.Len(t, detail, 2)
	values := detail[0].(map[string]interface{})["values"].([]interface{})
	assert.Nil(t, values[1], "missing samples encode as null")
	assert.Equal(t, 20.0, values[0])

	rec = s.do(t, http.MethodGet, "/api/v1/datasets/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAndDeleteDatasets(t *testing.T) {
	s := newTestServer(t)
	loaded := s.load(t, "line1.csv")

	rec := s.do(t, http.MethodGet, "/api/v1/datasets", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decodeMap(t, rec)["count"])

	rec = s.do(t, http.MethodDelete, "/api/v1/datasets/"+loaded.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/v1/datasets/"+loaded.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInterpolateLineageAndPrune(t *testing.T) {
	s := newTestServer(t)
	loaded := s.load(t, "line1.csv")

	rec := s.do(t, http.MethodPost, "/api/v1/datasets/"+loaded.ID+"/interpolate", map[string]interface{}{
		"series": []string{testutil.SeriesTemp},
		"method": "linear",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	child := decodeView(t, rec)
	assert.Equal(t, 2, child.Version)
	assert.Equal(t, loaded.ID, child.ParentID)
	require.Len(t, child.Series, 2)
	assert.Equal(t, 1, child.Series[0].Interpolated)

	rec = s.do(t, http.MethodGet, "/api/v1/datasets/"+child.ID+"/lineage", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decodeMap(t, rec)["depth"])

	rec = s.do(t, http.MethodPost, "/api/v1/datasets/"+child.ID+"/prune", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decodeMap(t, rec)["removed"])
}

func TestOperationValidation(t *testing.T) {
	s := newTestServer(t)
	loaded := s.load(t, "line1.csv")
	base := "/api/v1/datasets/" + loaded.ID

	tests := []struct {
		name   string
		path   string
		body   interface{}
		status int
	}{
		{"interpolate without method", base + "/interpolate", map[string]interface{}{}, http.StatusBadRequest},
		{"malformed method name", base + "/interpolate", map[string]string{"method": "Linear!"}, http.StatusBadRequest},
		{"unknown method", base + "/interpolate", map[string]string{"method": "magic"}, http.StatusBadRequest},
		{"unknown series", base + "/interpolate", map[string]interface{}{"method": "linear", "series": []string{"XX"}}, http.StatusNotFound},
		{"unknown plugin", base + "/interpolate", map[string]string{"plugin": "absent"}, http.StatusNotFound},
		{"derivative order", base + "/derivative", map[string]int{"order": 5}, http.StatusBadRequest},
		{"derivative method", base + "/derivative", map[string]string{"method": "euler"}, http.StatusBadRequest},
		{"area same series", base + "/area", map[string]string{"upper": "a", "lower": "a"}, http.StatusBadRequest},
		{"convert without target", base + "/convert", map[string]string{}, http.StatusBadRequest},
		{"convert incompatible", base + "/convert", map[string]interface{}{"series": []string{testutil.SeriesTemp}, "to": "kg"}, http.StatusBadRequest},
		{"export traversal", base + "/export", map[string]string{"file": "../out.csv"}, http.StatusBadRequest},
		{"sync without sources", "/api/v1/synchronize", map[string]string{"method": "common_grid_interpolate"}, http.StatusBadRequest},
		{"sync without method", "/api/v1/synchronize", map[string]interface{}{"sources": []map[string]string{{"dataset_id": loaded.ID}}}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestCalculusRoutes(t *testing.T) {
	s := newTestServer(t)
	loaded := s.load(t, "line1.csv")

	rec := s.do(t, http.MethodPost, "/api/v1/datasets/"+loaded.ID+"/interpolate", map[string]string{"method": "linear"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	base := "/api/v1/datasets/" + decodeView(t, rec).ID

	rec = s.do(t, http.MethodPost, base+"/derivative", map[string]interface{}{"series": []string{testutil.SeriesTemp}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, decodeView(t, rec).Summary.Series, "TT101_d1")

	rec = s.do(t, http.MethodPost, base+"/integral", map[string]interface{}{"series": []string{testutil.SeriesFlow}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	totals := decodeView(t, rec).Metadata["totals"].(map[string]interface{})
	assert.InDelta(t, 12.0, totals[testutil.SeriesFlow+"_integral"], 1e-9)

	rec = s.do(t, http.MethodPost, base+"/area", map[string]string{"upper": testutil.SeriesTemp, "lower": testutil.SeriesFlow})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.InDelta(t, 76.0, decodeView(t, rec).Metadata["area_total"], 1e-9)
}

func TestSmoothResampleAndConvert(t *testing.T) {
	s := newTestServer(t)
	loaded := s.load(t, "line1.csv")
	base := "/api/v1/datasets/" + loaded.ID

	rec := s.do(t, http.MethodPost, base+"/interpolate", map[string]interface{}{"method": "linear"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	filled := decodeView(t, rec)

	rec = s.do(t, http.MethodPost, "/api/v1/datasets/"+filled.ID+"/smooth", map[string]interface{}{
		"series": []string{testutil.SeriesTemp},
		"method": "median",
		"params": map[string]int{"kernel_size": 3},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, filled.ID, decodeView(t, rec).ParentID)

	rec = s.do(t, http.MethodPost, base+"/smooth", map[string]string{"method": "boxcar"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, base+"/resample", map[string]interface{}{"series": []string{testutil.SeriesTemp}, "params": map[string]int{"n_points": 9}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 9, decodeView(t, rec).Samples)

	rec = s.do(t, http.MethodPost, base+"/convert", map[string]interface{}{"series": []string{testutil.SeriesTemp}, "to": "degF"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	v := decodeView(t, rec)
	assert.Equal(t, "degC", v.Series[0].Metadata["converted_from"])
}

func TestSynchronizeRoute(t *testing.T) {
	s := newTestServer(t)
	a := s.load(t, "line1.csv")
	b := s.load(t, "line2.csv")

	rec := s.do(t, http.MethodPost, "/api/v1/synchronize", map[string]interface{}{
		"method": "common_grid_interpolate",
		"sources": []map[string]interface{}{
			{"dataset_id": a.ID, "series": []string{testutil.SeriesTemp}},
			{"dataset_id": b.ID},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	v := decodeView(t, rec)
	assert.Equal(t, 3, v.Samples)
	assert.Equal(t, a.ID, v.ParentID)
	assert.Len(t, v.Series, 2)
}

func TestExportRoute(t *testing.T) {
	s := newTestServer(t)
	loaded := s.load(t, "line1.csv")

	rec := s.do(t, http.MethodPost, "/api/v1/datasets/"+loaded.ID+"/export", map[string]interface{}{
		"file":         "line1_out.csv",
		"include_mask": false,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	path := decodeMap(t, rec)["path"].(string)
	assert.Equal(t, filepath.Join(s.dirs.OutputDir, "line1_out.csv"), path)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "__interpolated")
}

func TestUploadAndInspect(t *testing.T) {
	s := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "uploaded.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(testutil.LineTwoCSV))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/datasets/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.FileExists(t, filepath.Join(s.dirs.DataDir, "uploaded.csv"))

	rec = s.do(t, http.MethodPost, "/api/v1/inspect", map[string]string{"path": "uploaded.csv"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 5, decodeMap(t, rec)["rows"])
	assert.Equal(t, 1, s.svc.Store().Len(), "inspect does not store")
}

func TestUploadWithoutFile(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/v1/datasets/upload", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMethodsRoute(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/v1/methods", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var catalog services.MethodCatalog
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &catalog))
	assert.Contains(t, catalog.Interpolation, "linear")
	assert.Contains(t, catalog.Synchronization, "common_grid_interpolate")
}

func TestFilesRoute(t *testing.T) {
	s := newTestServer(t)
	testutil.WriteFixture(t, s.dirs.DataDir, "notes.txt", "not a table")

	tests := []struct {
		name   string
		query  string
		status int
		count  int
	}{
		{"all inputs", "", http.StatusOK, 2},
		{"pattern", "?pattern=line1*", http.StatusOK, 1},
		{"no match", "?pattern=*.xlsx", http.StatusOK, 0},
		{"escape", "?pattern=../*", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, "/api/v1/files"+tt.query, nil)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.status != http.StatusOK {
				return
			}
			body := decodeMap(t, rec)
			assert.EqualValues(t, tt.count, body["count"])
			assert.Len(t, body["files"], tt.count)
		})
	}
}

func TestUploadRejectsUnsupportedExtension(t *testing.T) {
	s := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "payload.sh")
	require.NoError(t, err)
	_, err = part.Write([]byte("echo hi"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/datasets/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NoFileExists(t, filepath.Join(s.dirs.DataDir, "payload.sh"))
}

func TestFilesRouteReportsLatest(t *testing.T) {
	s := newTestServer(t)
	base := time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(filepath.Join(s.dirs.DataDir, "line1.csv"), base, base))
	require.NoError(t, os.Chtimes(filepath.Join(s.dirs.DataDir, "line2.csv"), base.Add(time.Hour), base.Add(time.Hour)))

	rec := s.do(t, http.MethodGet, "/api/v1/files", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	latest, ok := decodeMap(t, rec)["latest"].(map[string]interface{})
	require.True(t, ok, rec.Body.String())
	assert.Equal(t, "line2.csv", latest["name"])

	rec = s.do(t, http.MethodGet, "/api/v1/files?pattern=*.xlsx", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, decodeMap(t, rec), "latest")
}

func TestDeleteFileRoute(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodDelete, "/api/v1/files/line2.csv", nil)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	assert.NoFileExists(t, filepath.Join(s.dirs.DataDir, "line2.csv"))
	assert.FileExists(t, filepath.Join(s.dirs.DataDir, "line1.csv"))

	rec = s.do(t, http.MethodDelete, "/api/v1/files/line2.csv", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListLimit(t *testing.T) {
	s := newTestServer(t)
	s.load(t, "line1.csv")
	s.load(t, "line2.csv")

	tests := []struct {
		name   string
		query  string
		status int
		count  int
	}{
		{"no limit", "", http.StatusOK, 2},
		{"limit", "?limit=1", http.StatusOK, 1},
		{"limit above total", "?limit=50", http.StatusOK, 2},
		{"not a number", "?limit=abc", http.StatusBadRequest, 0},
		{"negative", "?limit=-1", http.StatusBadRequest, 0},
		{"too large", "?limit=10001", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, "/api/v1/datasets"+tt.query, nil)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.status != http.StatusOK {
				return
			}
			body := decodeMap(t, rec)
			assert.EqualValues(t, tt.count, body["count"])
			assert.EqualValues(t, 2, body["total"])
		})
	}
}

func TestGetDatasetRejectsBadValuesFlag(t *testing.T) {
	s := newTestServer(t)
	loaded := s.load(t, "line1.csv")

	rec := s.do(t, http.MethodGet, "/api/v1/datasets/"+loaded.ID+"?values=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/datasets/"+loaded.ID+"?values=false", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeView(t, rec).Time)
}
