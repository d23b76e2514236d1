package domain

// IndexAsTimestamp is the SchemaMap.TimestampColumn sentinel meaning
// "use the frame's datetime index".
const IndexAsTimestamp = "__index__"

// SeriesCandidate is a column proposed as a value series
type SeriesCandidate struct {
	Name     string `json:"name"`
	DType    DType  `json:"dtype"`
	UnitHint string `json:"unit_hint,omitempty"`
}

// SchemaMap is the immutable result of schema detection
type SchemaMap struct {
	TimestampColumn string            `json:"timestamp_column"`
	Series          []SeriesCandidate `json:"series"`
	Confidence      float64           `json:"confidence"`
	// BelowMinSeries is informational; detection never fails on it.
	BelowMinSeries bool `json:"below_min_series,omitempty"`
}

// UsesIndex reports whether timestamps come from the frame index
func (s SchemaMap) UsesIndex() bool {
	return s.TimestampColumn == IndexAsTimestamp
}

// SeriesNames returns candidate names in order
func (s SchemaMap) SeriesNames() []string {
	names := make([]string, len(s.Series))
	for i, c := range s.Series {
		names[i] = c.Name
	}
	return names
}
