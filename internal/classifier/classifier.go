// Package classifier maps raw sensor values onto agronomic status bands.
package classifier

type Severity string

const (
	SeverityGood     Severity = "good"
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

type Result struct {
	Status         string   `json:"status"`
	Severity       Severity `json:"level"`
	Message        string   `json:"message"`
	Recommendation string   `json:"recommendation"`
}

// Analysis holds the classification of every dimension of one reading.
type Analysis struct {
	Humidity    Result `json:"humidity"`
	Temperature Result `json:"temperature"`
	Soil        Result `json:"soil"`
	Light       Result `json:"light"`
}

func Analyze(humidity, temperature float64, soil, light int) Analysis {
	return Analysis{
		Humidity:    Humidity(humidity),
		Temperature: Temperature(temperature),
		Soil:        Soil(soil),
		Light:       Light(light),
	}
}

func Humidity(humidity float64) Result {
	switch {
	case humidity < 30:
		return Result{"low", SeverityWarning, "Humidity too low", "Increase humidity"}
	case humidity > 80:
		return Result{"high", SeverityWarning, "Humidity too high", "Improve ventilation"}
	case humidity >= 40 && humidity <= 70:
		return Result{"optimal", SeverityGood, "Humidity optimal", "Maintain current conditions"}
	default:
		return Result{"moderate", SeverityInfo, "Humidity acceptable", "Monitor closely"}
	}
}

func Temperature(temperature float64) Result {
	switch {
	case temperature < 15:
		return Result{"cold", SeverityWarning, "Temperature too cold", "Increase heating"}
	case temperature > 35:
		return Result{"hot", SeverityWarning, "Temperature too hot", "Improve cooling/ventilation"}
	case temperature >= 20 && temperature <= 30:
		return Result{"optimal", SeverityGood, "Temperature optimal", "Maintain current conditions"}
	default:
		return Result{"moderate", SeverityInfo, "Temperature acceptable", "Monitor closely"}
	}
}

func Soil(soil int) Result {
	switch {
	case soil < 20:
		return Result{"very_dry", SeverityCritical, "Soil very dry", "Water immediately"}
	case soil < 40:
		return Result{"dry", SeverityWarning, "Soil dry", "Water soon"}
	case soil <= 70:
		return Result{"optimal", SeverityGood, "Soil moisture optimal", "Maintain current watering"}
	default:
		return Result{"wet", SeverityInfo, "Soil wet", "Reduce watering"}
	}
}

// Light classifies a raw light sensor value. The scale is inverted: lower
// values mean more light.
func Light(light int) Result {
	switch {
	case light > 3000:
		return Result{"dark", SeverityWarning, "Very dark", "Increase lighting"}
	case light > 2000:
		return Result{"dim", SeverityInfo, "Dim lighting", "Consider additional lighting"}
	case light > 1000:
		return Result{"moderate", SeverityGood, "Moderate lighting", "Good for most plants"}
	case light > 500:
		return Result{"bright", SeverityGood, "Bright lighting", "Excellent for growth"}
	default:
		return Result{"very_bright", SeverityWarning, "Very bright", "May need shading"}
	}
}

// SoilLabel is the display label for a soil moisture value, independent of
// its severity.
func SoilLabel(soil int) string {
	switch {
	case soil < 20:
		return "Very Dry"
	case soil < 40:
		return "Dry"
	case soil <= 70:
		return "Optimal"
	default:
		return "Wet"
	}
}

func LightLabel(light int) string {
	switch {
	case light > 3000:
		return "Dark"
	case light > 2000:
		return "Dim"
	case light > 1000:
		return "Moderate"
	case light > 500:
		return "Bright"
	default:
		return "Very Bright"
	}
}
