package timeseries

import (
	"fmt"
	"time"
)

// Kind identifies a telemetry series.
type Kind string

// Supported series kinds.
const (
	// KindBrewing holds brewer telemetry, bucketed per minute.
	KindBrewing Kind = "brewing"

	// KindFermenting holds fermentation telemetry, bucketed per day.
	KindFermenting Kind = "fermenting"
)

// ParseKind validates and converts a string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindBrewing, KindFermenting:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
}

// BucketKey returns the bucket grouping key for a sample timestamp.
// Brewing samples group per minute, fermentation samples per day, always
// in UTC so the same instant lands in the same bucket regardless of the
// reporter's zone.
func BucketKey(kind Kind, t time.Time) string {
	u := t.UTC()
	if kind == KindFermenting {
		return u.Truncate(24 * time.Hour).Format(time.RFC3339)
	}
	return u.Truncate(time.Minute).Format(time.RFC3339)
}

// Sample is a single datapoint in a telemetry series. The timestamp is
// embedded in the marshalled form, so a bucket's sample list is
// self-describing.
type Sample interface {
	SampleTime() time.Time
}

// BrewingSample is one brewer telemetry datapoint. Temperatures are in
// Celsius; devices report Fahrenheit and callers convert before
// appending.
type BrewingSample struct {
	WortTemperature        float64 `json:"wt"`
	ThermoblockTemperature float64 `json:"tt"`
	Step                   string  `json:"s"`
	Event                  string  `json:"e"`
	ErrorCode              int     `json:"err"`
	TimeLeft               int64   `json:"t"`
	ShutScale              float64 `json:"ss"`
	Timestamp              int64   `json:"_ts"`
}

// SampleTime returns the sample's timestamp.
func (s BrewingSample) SampleTime() time.Time {
	return time.Unix(s.Timestamp, 0).UTC()
}

// FermentationSample is one fermentation datapoint. Temperature is in
// Celsius, pressure in millibar. Voltage is measured once per reporting
// window and repeated on each datapoint of that window.
type FermentationSample struct {
	Temperature float64 `json:"t"`
	Pressure    float64 `json:"p"`
	Voltage     float64 `json:"v"`
	Timestamp   int64   `json:"_ts"`
}

// SampleTime returns the sample's timestamp.
func (s FermentationSample) SampleTime() time.Time {
	return time.Unix(s.Timestamp, 0).UTC()
}
