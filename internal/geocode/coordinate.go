// Package geocode resolves a coordinate in the UK to the Wikidata item and
// Wikimedia Commons category of the place containing it.
package geocode

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Coordinate is a WGS84 point.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ValidationError reports an unusable coordinate. No lookup is attempted.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// Validate checks that the point lies within the WGS84 ranges.
func (c Coordinate) Validate() error {
	if c.Lat < -90 || c.Lat > 90 || math.IsNaN(c.Lat) {
		return &ValidationError{Field: "lat", Value: formatFloat(c.Lat), Reason: "must be between -90 and 90"}
	}
	if c.Lon < -180 || c.Lon > 180 || math.IsNaN(c.Lon) {
		return &ValidationError{Field: "lon", Value: formatFloat(c.Lon), Reason: "must be between -180 and 180"}
	}
	return nil
}

// ParseCoordinate parses and validates query string values.
func ParseCoordinate(lat, lon string) (Coordinate, error) {
	la, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return Coordinate{}, &ValidationError{Field: "lat", Value: lat, Reason: "not a number"}
	}
	lo, err := strconv.ParseFloat(strings.TrimSpace(lon), 64)
	if err != nil {
		return Coordinate{}, &ValidationError{Field: "lon", Value: lon, Reason: "not a number"}
	}
	c := Coordinate{Lat: la, Lon: lo}
	if err := c.Validate(); err != nil {
		return Coordinate{}, err
	}
	return c, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
