package domain

// Issue is one validation warning or error
type Issue struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}

// Gap is a sampling interval longer than the gap threshold. Index is the
// position of the sample that ends the gap.
type Gap struct {
	Index        int     `json:"index"`
	DeltaSeconds float64 `json:"delta_seconds"`
}

// GapReport lists detected sampling gaps
type GapReport struct {
	Count          int     `json:"count"`
	Gaps           []Gap   `json:"gaps"`
	MedianInterval float64 `json:"median_interval"`
	Threshold      float64 `json:"threshold"`
}

// ValidationReport collects non-fatal findings about a frame
type ValidationReport struct {
	IsValid  bool      `json:"is_valid"`
	Warnings []Issue   `json:"warnings"`
	Errors   []Issue   `json:"errors"`
	Gaps     GapReport `json:"gaps"`
}

// NewValidationReport returns an empty, valid report
func NewValidationReport() *ValidationReport {
	return &ValidationReport{
		IsValid:  true,
		Warnings: []Issue{},
		Errors:   []Issue{},
		Gaps:     GapReport{Gaps: []Gap{}},
	}
}

// Warn appends a warning
func (r *ValidationReport) Warn(code, message string, ctx map[string]any) {
	r.Warnings = append(r.Warnings, Issue{Code: code, Message: message, Context: ctx})
}

// Fail appends an error and marks the report invalid
func (r *ValidationReport) Fail(code, message string, ctx map[string]any) {
	r.Errors = append(r.Errors, Issue{Code: code, Message: message, Context: ctx})
	r.IsValid = false
}

// HasWarning reports whether a warning with code is present
func (r *ValidationReport) HasWarning(code string) bool {
	for _, w := range r.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}

// Merge folds other into r
func (r *ValidationReport) Merge(other *ValidationReport) {
	if other == nil {
		return
	}
	r.Warnings = append(r.Warnings, other.Warnings...)
	r.Errors = append(r.Errors, other.Errors...)
	if !other.IsValid {
		r.IsValid = false
	}
	if other.Gaps.Count > 0 || other.Gaps.MedianInterval > 0 {
		r.Gaps = other.Gaps
	}
}
