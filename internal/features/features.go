package features

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Columns is the feature order the model is trained and served with.
var Columns = []string{
	"work_frequency",
	"task_success_rate",
	"verified_hours_worked",
	"profile_age",
	"platform_activity_score",
	"task_variety",
	"repayment_history",
	"default_history",
	"company_rating",
}

var (
	// ErrNotNumeric is returned when an input value cannot be coerced to float64
	ErrNotNumeric = errors.New("value is not numeric")
	// ErrMissing marks a required column that is absent or null
	ErrMissing = errors.New("field is required")
)

// Record holds the nine raw karma inputs
type Record struct {
	WorkFrequency         float64 `json:"work_frequency"`
	TaskSuccessRate       float64 `json:"task_success_rate"`
	VerifiedHoursWorked   float64 `json:"verified_hours_worked"`
	ProfileAge            float64 `json:"profile_age"`
	PlatformActivityScore float64 `json:"platform_activity_score"`
	TaskVariety           float64 `json:"task_variety"`
	RepaymentHistory      float64 `json:"repayment_history"`
	DefaultHistory        float64 `json:"default_history"`
	CompanyRating         float64 `json:"company_rating"`
}

// Vector returns the record as a slice ordered like Columns
func (r Record) Vector() []float64 {
	return []float64{
		r.WorkFrequency,
		r.TaskSuccessRate,
		r.VerifiedHoursWorked,
		r.ProfileAge,
		r.PlatformActivityScore,
		r.TaskVariety,
		r.RepaymentHistory,
		r.DefaultHistory,
		r.CompanyRating,
	}
}

// Map returns the record keyed by column name
func (r Record) Map() map[string]float64 {
	vec := r.Vector()
	m := make(map[string]float64, len(Columns))
	for i, col := range Columns {
		m[col] = vec[i]
	}
	return m
}

// FromVector builds a record from a vector ordered like Columns
func FromVector(vec []float64) (Record, error) {
	if len(vec) != len(Columns) {
		return Record{}, fmt.Errorf("expected %d features, got %d", len(Columns), len(vec))
	}
	return Record{
		WorkFrequency:         vec[0],
		TaskSuccessRate:       vec[1],
		VerifiedHoursWorked:   vec[2],
		ProfileAge:            vec[3],
		PlatformActivityScore: vec[4],
		TaskVariety:           vec[5],
		RepaymentHistory:      vec[6],
		DefaultHistory:        vec[7],
		CompanyRating:         vec[8],
	}, nil
}

// Check reports every column that is absent, null or not numeric
func Check(values map[string]any) map[string]error {
	problems := make(map[string]error)
	for _, col := range Columns {
		raw, ok := values[col]
		if !ok || raw == nil {
			problems[col] = ErrMissing
			continue
		}
		if _, err := Coerce(raw); err != nil {
			problems[col] = err
		}
	}
	return problems
}

// FromMap builds a record from arbitrary input. Absent fields default to zero
// and unknown keys are ignored.
func FromMap(values map[string]any) (Record, error) {
	vec := make([]float64, len(Columns))
	for i, col := range Columns {
		raw, ok := values[col]
		if !ok {
			continue
		}
		v, err := Coerce(raw)
		if err != nil {
			return Record{}, fmt.Errorf("%s: %w", col, err)
		}
		vec[i] = v
	}
	return FromVector(vec)
}

// Coerce converts a decoded JSON value to float64. Numbers, numeric strings,
// json.Number and bools are accepted. NaN and infinities are rejected.
func Coerce(v any) (float64, error) {
	f, err := coerce(v)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %v is not finite", ErrNotNumeric, f)
	}
	return f, nil
}

func coerce(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int8:
		return float64(n), nil
	case int16:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint8:
		return float64(n), nil
	case uint16:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNotNumeric, n.String())
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNotNumeric, n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: %T", ErrNotNumeric, v)
	}
}
