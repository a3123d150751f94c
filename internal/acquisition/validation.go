package acquisition

import (
	"fmt"
	"math"
	"strings"

	"github.com/monorkin/greenhouse-monitor/internal/storage"
)

type Range struct {
	Min float64
	Max float64
}

func (r Range) Contains(value float64) bool {
	return !math.IsNaN(value) && value >= r.Min && value <= r.Max
}

func (r Range) Clamp(value float64) float64 {
	return math.Min(r.Max, math.Max(r.Min, value))
}

func (r Range) String() string {
	return fmt.Sprintf("%g to %g", r.Min, r.Max)
}

var (
	HumidityRange    = Range{Min: 0, Max: 100}
	TemperatureRange = Range{Min: -40, Max: 80}
	SoilRange        = Range{Min: 0, Max: 100}
	LightRange       = Range{Min: 0, Max: 4095}
)

type Violation struct {
	Field   string  `json:"field"`
	Value   float64 `json:"value"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Message string  `json:"message"`
}

// ValidationError lists every out-of-range field of a submitted reading.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Violations))
	for _, violation := range e.Violations {
		fields = append(fields, fmt.Sprintf("%s=%g (expected %g to %g)", violation.Field, violation.Value, violation.Min, violation.Max))
	}

	return "validation failed: " + strings.Join(fields, ", ")
}

// Validate checks each value against its domain and reports all violations
// at once.
func Validate(input storage.ReadingInput) error {
	checks := []struct {
		field   string
		value   float64
		valid   Range
		message string
	}{
		{"humidity", input.Humidity, HumidityRange, "Humidity must be between 0-100%"},
		{"temperature", input.Temperature, TemperatureRange, "Temperature must be between -40°C to 80°C"},
		{"soil", float64(input.Soil), SoilRange, "Soil moisture must be between 0-100%"},
		{"light", float64(input.Light), LightRange, "Light intensity must be between 0-4095"},
	}

	var violations []Violation
	for _, check := range checks {
		if check.valid.Contains(check.value) {
			continue
		}

		violations = append(violations, Violation{
			Field:   check.field,
			Value:   check.value,
			Min:     check.valid.Min,
			Max:     check.valid.Max,
			Message: check.message,
		})
	}

	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}

	return nil
}
