package domain

import "sort"

// Severity is the level of a validation issue.
// Values include SeverityError, SeverityWarning, and SeverityInfo.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
	SeverityInfo    Severity = "INFO"
)

// Issue is one finding of the quality validator.
type Issue struct {
	SlideIndex int      `json:"slide_index"`
	Severity   Severity `json:"severity"`
	Code       string   `json:"code"`
	Message    string   `json:"message"`
}

// ValidationResult is the outcome of validating a full slide set.
type ValidationResult struct {
	Slides      map[int][]Issue `json:"slides"`
	Naturalness float64         `json:"naturalness"`
	Structural  float64         `json:"structural"`
}

// Accepted reports whether the carousel may be rendered:
// true iff no slide carries an ERROR issue.
func (r *ValidationResult) Accepted() bool {
	return r.CountBySeverity(SeverityError) == 0
}

// CountBySeverity counts issues of one severity across all slides.
func (r *ValidationResult) CountBySeverity(sev Severity) int {
	n := 0
	for _, issues := range r.Slides {
		for _, is := range issues {
			if is.Severity == sev {
				n++
			}
		}
	}
	return n
}

// Errors returns every ERROR issue ordered by slide index.
func (r *ValidationResult) Errors() []Issue {
	var out []Issue
	for _, idx := range r.SlideIndexes() {
		for _, is := range r.Slides[idx] {
			if is.Severity == SeverityError {
				out = append(out, is)
			}
		}
	}
	return out
}

// SlideIndexes returns the validated slide indexes in ascending order.
func (r *ValidationResult) SlideIndexes() []int {
	idx := make([]int, 0, len(r.Slides))
	for i := range r.Slides {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}
