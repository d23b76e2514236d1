package services

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"scadalab/internal/calculus"
	"scadalab/internal/dataset"
	apperrors "scadalab/internal/errors"
	"scadalab/internal/interpolation"
	"scadalab/internal/schema"
	"scadalab/internal/smoothing"
	"scadalab/internal/timebase"
	"scadalab/pkg/contracts/domain"
)

// SeriesRequest selects series of one dataset and a method to run on them.
// An empty Series list selects every series. Plugin, when set, routes the
// call to a registered plugin instead of a built-in method.
type SeriesRequest struct {
	Series []string      `json:"series,omitempty"`
	Method string        `json:"method"`
	Params domain.Params `json:"params,omitempty"`
	Plugin string        `json:"plugin,omitempty"`
}

// DerivativeRequest differentiates the selected series
type DerivativeRequest struct {
	Series []string      `json:"series,omitempty"`
	Order  int           `json:"order"`
	Method string        `json:"method"`
	Params domain.Params `json:"params,omitempty"`
}

// AreaRequest integrates Upper minus Lower
type AreaRequest struct {
	Upper  string        `json:"upper"`
	Lower  string        `json:"lower"`
	Name   string        `json:"name,omitempty"`
	Params domain.Params `json:"params,omitempty"`
}

// ConvertRequest converts the selected series to To. From overrides the
// series' own unit tag.
type ConvertRequest struct {
	Series []string `json:"series,omitempty"`
	From   string   `json:"from,omitempty"`
	To     string   `json:"to"`
}

// SyncSource names series of one dataset taking part in a synchronization
type SyncSource struct {
	DatasetID string   `json:"dataset_id"`
	Series    []string `json:"series,omitempty"`
}

// SyncRequest aligns series from one or more datasets onto a common axis
type SyncRequest struct {
	Sources []SyncSource  `json:"sources"`
	Method  string        `json:"method"`
	Params  domain.Params `json:"params,omitempty"`
	Plugin  string        `json:"plugin,omitempty"`
}

// Interpolate fills gaps in the selected series and stores the result as a
// new version on the same time axis. Points already marked as computed stay
// marked. resample_grid changes the axis and is handled by Resample.
func (s *ProcessingService) Interpolate(ctx context.Context, id string, req SeriesRequest) (_ *dataset.Dataset, err error) {
	method := strings.ToLower(strings.TrimSpace(req.Method))
	if req.Plugin == "" && method == interpolation.MethodResampleGrid.String() {
		return s.Resample(ctx, id, req)
	}
	label := method
	if req.Plugin != "" {
		label = "plugin:" + req.Plugin
	}

	ctx, done := s.begin(ctx, "interpolate", label, attribute.String("dataset.id", id))
	points := 0
	defer func() { done(points, err) }()

	parent, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	selected, err := selectSeries(parent, req.Series)
	if err != nil {
		return nil, err
	}
	params := req.Params.Clone()

	child, err := parent.DeriveSameAxis("interpolate", params)
	if err != nil {
		return nil, err
	}
	child.Metadata["method"] = label

	replaced := make(map[string]bool, len(selected))
	filled := 0
	for _, ser := range selected {
		values, info, extra, err := s.interpolateOne(ser, parent.Time, method, req.Plugin, params)
		if err != nil {
			return nil, withDatasetSeries(err, id, ser.Name)
		}
		merged := mergeInfo(ser.Info, info)
		filled += merged.Count() - ser.Info.Count()

		out, err := dataset.NewSeries(ser.Name, ser.Unit, values, &merged,
			dataset.NewLineage("interpolate:"+label, params, ser.ID), child.Len())
		if err != nil {
			return nil, err
		}
		for k, v := range extra {
			out.Metadata[k] = v
		}
		if err := child.AddSeries(out); err != nil {
			return nil, err
		}
		replaced[ser.ID] = true
		points += len(values)
	}
	if err := carryOthers(child, parent, replaced); err != nil {
		return nil, err
	}
	if err := s.store.Put(child); err != nil {
		return nil, err
	}
	s.countInterpolated(ctx, label, filled)
	return child, nil
}

func (s *ProcessingService) interpolateOne(ser *dataset.Series, t []float64, method, plugin string, params domain.Params) ([]float64, domain.InterpolationInfo, map[string]any, error) {
	if plugin != "" {
		values, info, err := s.plugins.Interpolate(plugin, ser.Values, t, params)
		if err != nil {
			return nil, domain.InterpolationInfo{}, nil, err
		}
		if len(values) != len(t) || len(info.Mask) != len(t) {
			return nil, domain.InterpolationInfo{}, nil, apperrors.LengthMismatch(apperrors.ErrTypePlugin,
				fmt.Sprintf("plugin %q output", plugin),
				map[string]int{"values": len(values), "mask": len(info.Mask), "time": len(t)})
		}
		return values, info, map[string]any{"plugin": plugin}, nil
	}

	res, err := s.interp.Interpolate(ser.Values, t, method, params)
	if err != nil {
		return nil, domain.InterpolationInfo{}, nil, err
	}
	extra := map[string]any{"result": res.Metadata}
	if res.Uncertainty != nil {
		extra["uncertainty"] = res.Uncertainty
	}
	return res.Values, res.Info, extra, nil
}

// Resample evaluates the selected series on one uniform grid spanning the
// dataset's valid times. The new version holds only the selected series.
func (s *ProcessingService) Resample(ctx context.Context, id string, req SeriesRequest) (_ *dataset.Dataset, err error) {
	method := interpolation.MethodResampleGrid.String()
	ctx, done := s.begin(ctx, "resample", method, attribute.String("dataset.id", id))
	points := 0
	defer func() { done(points, err) }()

	parent, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	selected, err := selectSeries(parent, req.Series)
	if err != nil {
		return nil, err
	}
	params := req.Params.Clone()
	if !params.Has("max_points") {
		params["max_points"] = s.cfg.MaxGridPoints
	}

	axis := finiteSorted(parent.Time)
	if len(axis) < 2 {
		return nil, apperrors.InsufficientData(apperrors.ErrTypeInterpolation, method, len(axis), 2).
			WithContext("dataset_id", id)
	}
	grid, err := interpolation.ResampleGrid(axis[0], axis[len(axis)-1], interpolation.MedianSpacing(axis), params)
	if err != nil {
		return nil, err
	}

	child, err := parent.Derive("resample", params, grid, timebase.ToDatetimePrecise(grid, parent.Origin))
	if err != nil {
		return nil, err
	}
	child.Metadata["method"] = method

	filled := 0
	for _, ser := range selected {
		res, err := s.interp.ResampleOnto(ser.Values, parent.Time, grid, params)
		if err != nil {
			return nil, withDatasetSeries(err, id, ser.Name)
		}
		out, err := dataset.NewSeries(ser.Name, ser.Unit, res.Values, &res.Info,
			dataset.NewLineage("interpolate:"+method, params, ser.ID), child.Len())
		if err != nil {
			return nil, err
		}
		out.Metadata["result"] = res.Metadata
		if err := child.AddSeries(out); err != nil {
			return nil, err
		}
		filled += res.Info.Count()
		points += len(res.Values)
	}
	if err := s.store.Put(child); err != nil {
		return nil, err
	}
	s.countInterpolated(ctx, method, filled)
	return child, nil
}

// Synchronize aligns the requested series onto one common axis. Sources
// from different datasets are first shifted onto the earliest origin among
// them. The result is a new dataset whose parent is the first source.
func (s *ProcessingService) Synchronize(ctx context.Context, req SyncRequest) (_ *dataset.Dataset, err error) {
	label := strings.ToLower(strings.TrimSpace(req.Method))
	if req.Plugin != "" {
		label = "plugin:" + req.Plugin
	}
	ctx, done := s.begin(ctx, "synchronize", label, attribute.Int("sync.sources", len(req.Sources)))
	points := 0
	defer func() { done(points, err) }()

	if len(req.Sources) == 0 {
		return nil, apperrors.NewAppValidationError("no_sources", "synchronization needs at least one source")
	}

	type member struct {
		key    string
		ser    *dataset.Series
		origin string
	}
	var (
		parents []*dataset.Dataset
		members []member
	)
	for _, src := range req.Sources {
		d, err := s.store.Get(src.DatasetID)
		if err != nil {
			return nil, err
		}
		selected, err := selectSeries(d, src.Series)
		if err != nil {
			return nil, err
		}
		parents = append(parents, d)
		for _, ser := range selected {
			members = append(members, member{ser: ser, origin: d.ID})
		}
	}

	common := commonOrigin(parents)
	series := make(map[string][]float64, len(members))
	times := make(map[string][]float64, len(members))
	used := make(map[string]int, len(members))
	parentOf := make(map[string]*dataset.Dataset, len(parents))
	for _, d := range parents {
		parentOf[d.ID] = d
	}
	for i := range members {
		m := &members[i]
		key := m.ser.Name
		if n := used[key]; n > 0 {
			key = fmt.Sprintf("%s#%d", m.ser.Name, n)
		}
		used[m.ser.Name]++
		m.key = key

		d := parentOf[m.origin]
		series[key] = m.ser.Values
		times[key] = shiftAxis(d.Time, d.Origin, common)
	}

	params := req.Params.Clone()
	var (
		grid   []float64
		synced map[string][]float64
		info   map[string]domain.InterpolationInfo
		extra  = map[string]any{}
	)
	if req.Plugin != "" {
		grid, synced, err = s.plugins.Synchronize(req.Plugin, series, times, params)
		if err != nil {
			return nil, err
		}
		info = make(map[string]domain.InterpolationInfo, len(synced))
		for _, m := range members {
			vals, ok := synced[m.key]
			if !ok || len(vals) != len(grid) {
				return nil, apperrors.NewPluginError("plugin output misses a series", nil).
					WithContext("plugin", req.Plugin).
					WithContext("series", m.key)
			}
			info[m.key] = gridMarks(times[m.key], grid, label)
		}
	} else {
		res, err := s.sync.Synchronize(series, times, req.Method, params)
		if err != nil {
			return nil, err
		}
		grid, synced, info = res.TCommon, res.Synced, res.Info
		extra["result"] = res.Metadata
		for k, u := range res.Uncertainty {
			extra["uncertainty:"+k] = u
		}
	}

	first := parents[0]
	child, err := dataset.New(first.Source, common, grid, timebase.ToDatetimePrecise(grid, common))
	if err != nil {
		return nil, err
	}
	version := 0
	sources := make([]string, 0, len(parents))
	for _, d := range parents {
		if d.Version > version {
			version = d.Version
		}
		sources = append(sources, d.ID)
	}
	child.Version = version + 1
	child.ParentID = first.ID
	child.Metadata["operation"] = "synchronize"
	child.Metadata["method"] = label
	child.Metadata["parameters"] = params
	child.Metadata["sources"] = sources

	for _, m := range members {
		ii := info[m.key]
		out, err := dataset.NewSeries(m.key, m.ser.Unit, synced[m.key], &ii,
			dataset.NewLineage("synchronize:"+label, params, m.ser.ID), child.Len())
		if err != nil {
			return nil, err
		}
		out.Metadata["source_dataset"] = m.origin
		if r, ok := extra["result"]; ok {
			out.Metadata["result"] = r
		}
		if u, ok := extra["uncertainty:"+m.key]; ok {
			out.Metadata["uncertainty"] = u
		}
		if err := child.AddSeries(out); err != nil {
			return nil, err
		}
		points += len(grid)
	}
	if err := s.store.Put(child); err != nil {
		return nil, err
	}
	return child, nil
}

// Derivative adds d^order/dt^order of each selected series as a new series
// named <name>_d<order>
func (s *ProcessingService) Derivative(ctx context.Context, id string, req DerivativeRequest) (_ *dataset.Dataset, err error) {
	method := req.Method
	if method == "" {
		method = calculus.MethodFiniteDiff
	}
	order := req.Order
	if order == 0 {
		order = 1
	}
	ctx, done := s.begin(ctx, "derivative", method, attribute.String("dataset.id", id), attribute.Int("derivative.order", order))
	points := 0
	defer func() { done(points, err) }()

	parent, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	selected, err := selectSeries(parent, req.Series)
	if err != nil {
		return nil, err
	}
	params := req.Params.Clone()
	params["order"] = order
	params["method"] = method

	child, err := parent.DeriveSameAxis("derivative", params)
	if err != nil {
		return nil, err
	}
	suffix := fmt.Sprintf("_d%d", order)
	if err := carryOthers(child, parent, superseded(parent, selected, suffix)); err != nil {
		return nil, err
	}
	for _, ser := range selected {
		res, err := calculus.Derivative(ser.Values, parent.Time, order, method, params)
		if err != nil {
			return nil, withDatasetSeries(err, id, ser.Name)
		}
		out, err := dataset.NewSeries(derivedName(ser.Name, suffix), rateUnit(ser.Unit, order), res.Values, nil,
			dataset.NewLineage("derivative:"+method, params, ser.ID), child.Len())
		if err != nil {
			return nil, err
		}
		out.Metadata["result"] = res.Metadata
		if err := child.AddSeries(out); err != nil {
			return nil, err
		}
		points += len(res.Values)
	}
	if err := s.store.Put(child); err != nil {
		return nil, err
	}
	return child, nil
}

// Integral adds the cumulative trapezoidal integral of each selected series
// as <name>_integral; the final value is kept as the series' total
func (s *ProcessingService) Integral(ctx context.Context, id string, req SeriesRequest) (_ *dataset.Dataset, err error) {
	ctx, done := s.begin(ctx, "integral", "trapezoid", attribute.String("dataset.id", id))
	points := 0
	defer func() { done(points, err) }()

	parent, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	selected, err := selectSeries(parent, req.Series)
	if err != nil {
		return nil, err
	}
	params := req.Params.Clone()

	child, err := parent.DeriveSameAxis("integral", params)
	if err != nil {
		return nil, err
	}
	if err := carryOthers(child, parent, superseded(parent, selected, "_integral")); err != nil {
		return nil, err
	}
	totals := make(map[string]float64, len(selected))
	for _, ser := range selected {
		res, err := calculus.Integral(ser.Values, parent.Time, params)
		if err != nil {
			return nil, withDatasetSeries(err, id, ser.Name)
		}
		name := derivedName(ser.Name, "_integral")
		out, err := dataset.NewSeries(name, integralUnit(ser.Unit), res.Values, nil,
			dataset.NewLineage("integral", params, ser.ID), child.Len())
		if err != nil {
			return nil, err
		}
		out.Metadata["total"] = res.Total
		out.Metadata["result"] = res.Metadata
		if err := child.AddSeries(out); err != nil {
			return nil, err
		}
		totals[name] = res.Total
		points += len(res.Values)
	}
	child.Metadata["totals"] = totals
	if err := s.store.Put(child); err != nil {
		return nil, err
	}
	return child, nil
}

// AreaBetween adds the cumulative area between two series of one dataset
func (s *ProcessingService) AreaBetween(ctx context.Context, id string, req AreaRequest) (_ *dataset.Dataset, err error) {
	ctx, done := s.begin(ctx, "area_between", "trapezoid", attribute.String("dataset.id", id))
	points := 0
	defer func() { done(points, err) }()

	parent, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	upper, ok := parent.Lookup(req.Upper)
	if !ok {
		return nil, seriesNotFound(id, req.Upper)
	}
	lower, ok := parent.Lookup(req.Lower)
	if !ok {
		return nil, seriesNotFound(id, req.Lower)
	}
	params := req.Params.Clone()

	res, err := calculus.AreaBetween(upper.Values, lower.Values, parent.Time, params)
	if err != nil {
		return nil, err
	}

	child, err := parent.DeriveSameAxis("area_between", params)
	if err != nil {
		return nil, err
	}
	name := req.Name
	if name == "" {
		name = derivedName(upper.Name, "_minus_"+schema.BaseName(lower.Name)+"_area")
	}
	replaced := map[string]bool{}
	if prev, ok := parent.Lookup(name); ok {
		replaced[prev.ID] = true
	}
	if err := carryOthers(child, parent, replaced); err != nil {
		return nil, err
	}
	unit := ""
	if upper.Unit == lower.Unit {
		unit = integralUnit(upper.Unit)
	}
	out, err := dataset.NewSeries(name, unit, res.Values, nil,
		dataset.NewLineage("area_between", params, upper.ID, lower.ID), child.Len())
	if err != nil {
		return nil, err
	}
	out.Metadata["total"] = res.Total
	out.Metadata["result"] = res.Metadata
	if err := child.AddSeries(out); err != nil {
		return nil, err
	}
	child.Metadata["area_total"] = res.Total
	points = len(res.Values)

	if err := s.store.Put(child); err != nil {
		return nil, err
	}
	return child, nil
}

// Smooth filters the selected series in place in a new version. The
// interpolation marks of the input carry over.
func (s *ProcessingService) Smooth(ctx context.Context, id string, req SeriesRequest) (_ *dataset.Dataset, err error) {
	method := strings.ToLower(strings.TrimSpace(req.Method))
	ctx, done := s.begin(ctx, "smooth", method, attribute.String("dataset.id", id))
	points := 0
	defer func() { done(points, err) }()

	if _, err := smoothing.ParseMethod(method); err != nil {
		return nil, err
	}
	parent, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	selected, err := selectSeries(parent, req.Series)
	if err != nil {
		return nil, err
	}
	params := req.Params.Clone()

	child, err := parent.DeriveSameAxis("smooth", params)
	if err != nil {
		return nil, err
	}
	child.Metadata["method"] = method

	replaced := make(map[string]bool, len(selected))
	for _, ser := range selected {
		values, err := smoothing.Smooth(ser.Values, method, params)
		if err != nil {
			return nil, withDatasetSeries(err, id, ser.Name)
		}
		out, err := dataset.NewSeries(ser.Name, ser.Unit, values, &ser.Info,
			dataset.NewLineage("smooth:"+method, params, ser.ID), child.Len())
		if err != nil {
			return nil, err
		}
		if err := child.AddSeries(out); err != nil {
			return nil, err
		}
		replaced[ser.ID] = true
		points += len(values)
	}
	if err := carryOthers(child, parent, replaced); err != nil {
		return nil, err
	}
	if err := s.store.Put(child); err != nil {
		return nil, err
	}
	return child, nil
}

// ConvertUnits rescales the selected series to req.To
func (s *ProcessingService) ConvertUnits(ctx context.Context, id string, req ConvertRequest) (_ *dataset.Dataset, err error) {
	ctx, done := s.begin(ctx, "convert_units", req.To, attribute.String("dataset.id", id))
	points := 0
	defer func() { done(points, err) }()

	parent, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	selected, err := selectSeries(parent, req.Series)
	if err != nil {
		return nil, err
	}
	params := domain.Params{"to": req.To}
	if req.From != "" {
		params["from"] = req.From
	}

	child, err := parent.DeriveSameAxis("convert_units", params)
	if err != nil {
		return nil, err
	}
	replaced := make(map[string]bool, len(selected))
	for _, ser := range selected {
		from := req.From
		if from == "" {
			from = ser.Unit
		}
		if from == "" {
			return nil, apperrors.NewAppValidationError("unit_unknown", "series has no unit tag").
				WithContext("dataset_id", id).
				WithContext("series", ser.Name)
		}
		values, err := s.units.Convert(ser.Values, from, req.To)
		if err != nil {
			return nil, withDatasetSeries(err, id, ser.Name)
		}
		out, err := dataset.NewSeries(ser.Name, s.units.Symbol(req.To), values, &ser.Info,
			dataset.NewLineage("convert_units", params, ser.ID), child.Len())
		if err != nil {
			return nil, err
		}
		out.Metadata["converted_from"] = from
		if err := child.AddSeries(out); err != nil {
			return nil, err
		}
		replaced[ser.ID] = true
		points += len(values)
	}
	if err := carryOthers(child, parent, replaced); err != nil {
		return nil, err
	}
	if err := s.store.Put(child); err != nil {
		return nil, err
	}
	return child, nil
}

func (s *ProcessingService) countInterpolated(ctx context.Context, method string, n int) {
	if s.metrics == nil || n <= 0 {
		return
	}
	s.metrics.InterpolatedPoints.Add(ctx, int64(n), metric.WithAttributes(attribute.String("method", method)))
}

// mergeInfo keeps earlier marks and adds the new ones
func mergeInfo(prev, next domain.InterpolationInfo) domain.InterpolationInfo {
	out := prev.Clone()
	for i, m := range next.Mask {
		if m && !out.Mask[i] {
			out.Mark(i, next.Method[i])
		}
	}
	return out
}

// gridMarks marks every grid point that is not a sample time of t
func gridMarks(t, grid []float64, tag string) domain.InterpolationInfo {
	measured := make(map[float64]bool, len(t))
	for _, v := range t {
		measured[v] = true
	}
	info := domain.NewInterpolationInfo(len(grid))
	for i, g := range grid {
		if !measured[g] {
			info.Mark(i, tag)
		}
	}
	return info
}

// commonOrigin is the earliest non-zero origin among ds
func commonOrigin(ds []*dataset.Dataset) time.Time {
	var out time.Time
	for _, d := range ds {
		if d.Origin.IsZero() {
			continue
		}
		if out.IsZero() || d.Origin.Before(out) {
			out = d.Origin
		}
	}
	return out
}

// shiftAxis re-expresses t, relative to origin, as seconds since common
func shiftAxis(t []float64, origin, common time.Time) []float64 {
	offset := 0.0
	if !origin.IsZero() && !common.IsZero() {
		offset = origin.Sub(common).Seconds()
	}
	out := make([]float64, len(t))
	for i, v := range t {
		out[i] = v + offset
	}
	return out
}

func finiteSorted(t []float64) []float64 {
	out := make([]float64, 0, len(t))
	for _, v := range t {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}

// derivedName names a calculus output after its input, dropping the unit
// annotation; the unit lives on the output series
func derivedName(name, suffix string) string {
	return schema.BaseName(name) + suffix
}

// superseded returns the ids of parent series that the outputs for selected
// will replace, so a repeated operation overwrites instead of colliding
func superseded(parent *dataset.Dataset, selected []*dataset.Series, suffix string) map[string]bool {
	out := make(map[string]bool)
	for _, ser := range selected {
		if prev, ok := parent.Lookup(derivedName(ser.Name, suffix)); ok {
			out[prev.ID] = true
		}
	}
	return out
}

func rateUnit(unit string, order int) string {
	if unit == "" {
		return ""
	}
	if order == 1 {
		return unit + "/s"
	}
	return fmt.Sprintf("%s/s^%d", unit, order)
}

func integralUnit(unit string) string {
	if unit == "" {
		return ""
	}
	return unit + "*s"
}

func calculusMethods() []string {
	return calculus.SupportedMethods()
}

func fileExt(path string) string {
	return strings.ToLower(filepath.Ext(path))
}
