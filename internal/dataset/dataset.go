// Package dataset holds versioned, immutable bundles of a time axis and
// its series, and the store that keeps every version by id.
package dataset

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "scadalab/internal/errors"
	"scadalab/pkg/contracts"
	"scadalab/pkg/contracts/domain"
)

// Lineage records where a series came from
type Lineage struct {
	Origins         []string      `json:"origins,omitempty"`
	Operation       string        `json:"operation"`
	Parameters      domain.Params `json:"parameters,omitempty"`
	Timestamp       time.Time     `json:"timestamp"`
	PlatformVersion string        `json:"platform_version"`
}

// NewLineage stamps an operation applied to origin series
func NewLineage(operation string, params domain.Params, origins ...string) Lineage {
	return Lineage{
		Origins:         origins,
		Operation:       operation,
		Parameters:      params.Clone(),
		Timestamp:       time.Now().UTC(),
		PlatformVersion: contracts.Version,
	}
}

// Series is one unit-tagged channel. Values and Info always have the
// length of the owning dataset's time axis.
type Series struct {
	ID       string                   `json:"id"`
	Name     string                   `json:"name"`
	Unit     string                   `json:"unit,omitempty"`
	Values   []float64                `json:"values"`
	Info     domain.InterpolationInfo `json:"interpolation_info"`
	Lineage  Lineage                  `json:"lineage"`
	Metadata map[string]any           `json:"metadata,omitempty"`
}

// NewSeries builds a series for a time axis of timeLen samples. A nil info
// means every value is measured.
func NewSeries(name, unit string, values []float64, info *domain.InterpolationInfo, lineage Lineage, timeLen int) (*Series, error) {
	if len(values) != timeLen {
		return nil, apperrors.LengthMismatch(apperrors.ErrTypeValidation, fmt.Sprintf("series %q", name),
			map[string]int{"values": len(values), "time": timeLen}).
			WithContext("series", name)
	}
	ii := domain.NewInterpolationInfo(timeLen)
	if info != nil {
		if len(info.Mask) != timeLen || len(info.Method) != timeLen {
			return nil, apperrors.LengthMismatch(apperrors.ErrTypeValidation, fmt.Sprintf("series %q interpolation info", name),
				map[string]int{"mask": len(info.Mask), "time": timeLen}).
				WithContext("series", name)
		}
		ii = info.Clone()
	}
	vals := make([]float64, len(values))
	copy(vals, values)
	return &Series{
		ID:       uuid.NewString(),
		Name:     name,
		Unit:     unit,
		Values:   vals,
		Info:     ii,
		Lineage:  lineage,
		Metadata: map[string]any{},
	}, nil
}

// SourceDescriptor identifies the file a dataset was loaded from
type SourceDescriptor struct {
	Path     string    `json:"path"`
	Format   string    `json:"format"`
	Size     int64     `json:"size"`
	Checksum string    `json:"checksum"`
	ModTime  time.Time `json:"mod_time"`
}

// DescribeFile stats and hashes path (SHA-256)
func DescribeFile(path string) (SourceDescriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return SourceDescriptor{}, apperrors.NewDataLoadError("cannot open source file", err).
			WithContext("path", path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return SourceDescriptor{}, apperrors.NewDataLoadError("cannot stat source file", err).
			WithContext("path", path)
	}
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return SourceDescriptor{}, apperrors.NewDataLoadError("cannot read source file", err).
			WithContext("path", path)
	}
	return SourceDescriptor{
		Path:     path,
		Format:   strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
		Size:     info.Size(),
		Checksum: hex.EncodeToString(h.Sum(nil)),
		ModTime:  info.ModTime().UTC(),
	}, nil
}

// Dataset is an immutable time axis with its series. Operations that
// change sampling produce a new Dataset whose ParentID names this one.
type Dataset struct {
	ID          string             `json:"id"`
	Version     int                `json:"version"`
	ParentID    string             `json:"parent_id,omitempty"`
	Source      SourceDescriptor   `json:"source"`
	Origin      time.Time          `json:"origin"`
	Time        []float64          `json:"time"`
	Datetimes   []time.Time        `json:"datetimes"`
	Series      map[string]*Series `json:"series"`
	SeriesOrder []string           `json:"series_order"`
	Metadata    map[string]any     `json:"metadata,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

// New creates a version 1 dataset over the given axis
func New(source SourceDescriptor, origin time.Time, t []float64, datetimes []time.Time) (*Dataset, error) {
	if datetimes != nil && len(datetimes) != len(t) {
		return nil, apperrors.LengthMismatch(apperrors.ErrTypeValidation, "dataset time axis",
			map[string]int{"time": len(t), "datetimes": len(datetimes)})
	}
	tt := make([]float64, len(t))
	copy(tt, t)
	var dts []time.Time
	if datetimes != nil {
		dts = make([]time.Time, len(datetimes))
		copy(dts, datetimes)
	}
	return &Dataset{
		ID:        uuid.NewString(),
		Version:   1,
		Source:    source,
		Origin:    origin,
		Time:      tt,
		Datetimes: dts,
		Series:    map[string]*Series{},
		Metadata:  map[string]any{},
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Len is the number of samples on the time axis
func (d *Dataset) Len() int {
	return len(d.Time)
}

// AddSeries attaches s while the dataset is being assembled. Names must be
// unique within a dataset.
func (d *Dataset) AddSeries(s *Series) error {
	if len(s.Values) != d.Len() || len(s.Info.Mask) != d.Len() {
		return apperrors.LengthMismatch(apperrors.ErrTypeValidation, fmt.Sprintf("series %q", s.Name),
			map[string]int{"values": len(s.Values), "time": d.Len()}).
			WithContext("series", s.Name)
	}
	for _, id := range d.SeriesOrder {
		if d.Series[id].Name == s.Name {
			return apperrors.NewAppValidationError("duplicate_series", "series name already present").
				WithContext("series", s.Name)
		}
	}
	d.Series[s.ID] = s
	d.SeriesOrder = append(d.SeriesOrder, s.ID)
	return nil
}

// Lookup finds a series by id or by name
func (d *Dataset) Lookup(ref string) (*Series, bool) {
	if s, ok := d.Series[ref]; ok {
		return s, true
	}
	for _, id := range d.SeriesOrder {
		if s := d.Series[id]; s.Name == ref {
			return s, true
		}
	}
	return nil, false
}

// Ordered returns the series in insertion order
func (d *Dataset) Ordered() []*Series {
	out := make([]*Series, 0, len(d.SeriesOrder))
	for _, id := range d.SeriesOrder {
		out = append(out, d.Series[id])
	}
	return out
}

// Derive starts a child dataset over a new time axis. The child shares
// the source descriptor, gets Version+1 and points at d through ParentID.
func (d *Dataset) Derive(operation string, params domain.Params, t []float64, datetimes []time.Time) (*Dataset, error) {
	child, err := New(d.Source, d.Origin, t, datetimes)
	if err != nil {
		return nil, err
	}
	child.Version = d.Version + 1
	child.ParentID = d.ID
	child.Metadata["operation"] = operation
	child.Metadata["parameters"] = params.Clone()
	return child, nil
}

// DeriveSameAxis starts a child dataset on a copy of d's time axis
func (d *Dataset) DeriveSameAxis(operation string, params domain.Params) (*Dataset, error) {
	return d.Derive(operation, params, d.Time, d.Datetimes)
}

// Summary is the listing view of a dataset
type Summary struct {
	ID        string    `json:"id"`
	Version   int       `json:"version"`
	ParentID  string    `json:"parent_id,omitempty"`
	Source    string    `json:"source"`
	Samples   int       `json:"samples"`
	Series    []string  `json:"series"`
	CreatedAt time.Time `json:"created_at"`
}

// Summarize returns the listing view
func (d *Dataset) Summarize() Summary {
	names := make([]string, 0, len(d.SeriesOrder))
	for _, s := range d.Ordered() {
		names = append(names, s.Name)
	}
	return Summary{
		ID:        d.ID,
		Version:   d.Version,
		ParentID:  d.ParentID,
		Source:    d.Source.Path,
		Samples:   d.Len(),
		Series:    names,
		CreatedAt: d.CreatedAt,
	}
}
