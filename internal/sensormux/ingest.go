package sensormux

import (
	"encoding/json"
	"fmt"

	"github.com/redline-data/sfe/internal/sfe"
)

// line is the wire format emitted by the bridge device: one JSON object per
// line, tagged by "type". Unknown types and malformed lines are logged and
// skipped rather than treated as fatal, so one corrupt record never stalls
// the stream.
type line struct {
	Type string `json:"type"`

	AX      *float64 `json:"ax"`
	AY      *float64 `json:"ay"`
	AZ      *float64 `json:"az"`
	Linear  *bool    `json:"linear"`
	TMillis int64    `json:"t_ms"`

	Lat       *float64 `json:"lat"`
	Lon       *float64 `json:"lon"`
	SpeedMS   *float64 `json:"speed_m_s"`
	AccuracyM *float64 `json:"accuracy_m"`
}

// EngineSink is the subset of *sfe.Engine that ingest needs, so tests can
// substitute a recording stub.
type EngineSink interface {
	PushAccel(ax, ay, az float64, tMillis int64, linear bool)
	PushGPS(lat, lon float64, speedMS *float64, accuracyM float64, tMillis int64)
}

// Decode parses one wire line and dispatches it onto engine. It returns a
// non-nil error for malformed JSON, an unrecognised "type", an accel line
// missing an axis, or a gps line missing lat/lon; callers should log and
// continue rather than abort the stream.
func Decode(raw string, engine EngineSink) error {
	var l line
	if err := json.Unmarshal([]byte(raw), &l); err != nil {
		return fmt.Errorf("sensormux: malformed line: %w", err)
	}

	switch l.Type {
	case "accel":
		if l.AX == nil || l.AY == nil || l.AZ == nil {
			return fmt.Errorf("sensormux: accel line missing an axis")
		}
		linear := l.Linear != nil && *l.Linear
		engine.PushAccel(*l.AX, *l.AY, *l.AZ, l.TMillis, linear)
	case "gps":
		if l.Lat == nil || l.Lon == nil {
			return fmt.Errorf("sensormux: gps line missing lat/lon")
		}
		accuracy := 0.0
		if l.AccuracyM != nil {
			accuracy = *l.AccuracyM
		}
		var speed *float64
		if l.SpeedMS != nil && *l.SpeedMS >= 0 {
			speed = l.SpeedMS
		}
		engine.PushGPS(*l.Lat, *l.Lon, speed, accuracy, l.TMillis)
	default:
		return fmt.Errorf("sensormux: unrecognised line type %q", l.Type)
	}
	return nil
}

var _ EngineSink = (*sfe.Engine)(nil)
