// Package units converts between the metre-per-second speeds the engine
// uses internally and the display units accepted on the HTTP surface.
package units

import (
	"fmt"
	"strings"
)

// Unit identifies a supported display unit for speeds.
type Unit string

const (
	MetersPerSecond   Unit = "mps"
	MilesPerHour      Unit = "mph"
	KilometersPerHour Unit = "kph"
)

// perMPS holds how many of each unit make up one metre per second.
var perMPS = map[Unit]float64{
	MetersPerSecond:   1,
	MilesPerHour:      2.2369362920544,
	KilometersPerHour: 3.6,
}

// Parse maps a user-supplied unit string onto a Unit, accepting the common
// spelling variants seen in query parameters.
func Parse(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "mps", "m/s":
		return MetersPerSecond, nil
	case "mph", "mi/h":
		return MilesPerHour, nil
	case "kph", "kmph", "km/h":
		return KilometersPerHour, nil
	}
	return "", fmt.Errorf("units: unknown unit %q (want mps, mph, or kph)", s)
}

// FromMPS converts a metre-per-second speed into u.
func (u Unit) FromMPS(speedMPS float64) float64 {
	return speedMPS * perMPS[u]
}

// ToMPS converts a speed expressed in u back to metres per second.
func (u Unit) ToMPS(speed float64) float64 {
	return speed / perMPS[u]
}
