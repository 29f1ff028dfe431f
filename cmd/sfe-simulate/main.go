// Command sfe-simulate generates canonical scenario traces (static phone,
// clean 0-60, GPS outage, moving start, screen-lock gap, quarter-mile
// sprint) as line-delimited JSON fixture files, in the same wire format the
// sensor bridge emits, so -dev mode sfe-server (and, through the trace store
// it records, sfe-replay) can exercise a fixed, deterministic run.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"log"
	"math"
	"os"
	"path/filepath"
)

type wireLine struct {
	Type string `json:"type"`

	AX *float64 `json:"ax,omitempty"`
	AY *float64 `json:"ay,omitempty"`
	AZ *float64 `json:"az,omitempty"`

	Linear  *bool `json:"linear,omitempty"`
	TMillis int64 `json:"t_ms"`

	Lat       *float64 `json:"lat,omitempty"`
	Lon       *float64 `json:"lon,omitempty"`
	SpeedMS   *float64 `json:"speed_m_s,omitempty"`
	AccuracyM *float64 `json:"accuracy_m,omitempty"`
}

func f(v float64) *float64 { return &v }
func b(v bool) *bool       { return &v }

func accelLine(ax, ay, az float64, tMillis int64, linear bool) wireLine {
	return wireLine{Type: "accel", AX: f(ax), AY: f(ay), AZ: f(az), TMillis: tMillis, Linear: b(linear)}
}

func gpsLine(lat, lon float64, speedMS *float64, accuracyM float64, tMillis int64) wireLine {
	return wireLine{Type: "gps", Lat: f(lat), Lon: f(lon), SpeedMS: speedMS, AccuracyM: f(accuracyM), TMillis: tMillis}
}

// metersPerDegreeLat approximates degrees-of-latitude displacement for a
// given northward distance, used to synthesize a GPS track around a fixed
// origin without modelling true geodesy.
const metersPerDegreeLat = 111320.0

func northOffsetDeg(originLat float64, distanceM float64) float64 {
	return originLat + distanceM/metersPerDegreeLat
}

const sampleHz = 20.0 // 50ms between accelerometer ticks, matching a typical phone sensor rate
const gpsHz = 1.0      // 1s between GPS fixes

// scenarioStaticPhone: 5s of near-zero accelerometer noise, no GPS.
func scenarioStaticPhone() []wireLine {
	var lines []wireLine
	dt := 1000.0 / sampleHz
	for t := 0.0; t < 5000; t += dt {
		lines = append(lines, accelLine(0.03, -0.02, 9.84, int64(t), false))
	}
	return lines
}

// scenarioClean060: constant accel-derived filtered magnitude of 3.0 m/s^2,
// GPS reliable and rising linearly from 0 to 27 m/s over 9s.
func scenarioClean060() []wireLine {
	var lines []wireLine
	dtA := 1000.0 / sampleHz
	for t := 0.0; t < 9000; t += dtA {
		lines = append(lines, accelLine(3.0, 0, 9.81, int64(t), false))
	}
	dtG := 1000.0 / gpsHz
	lat := 37.0
	lon := -122.0
	dist := 0.0
	for t := 0.0; t <= 9000; t += dtG {
		speed := 27.0 * (t / 9000.0)
		dist += speed * (dtG / 1000.0)
		lines = append(lines, gpsLine(northOffsetDeg(lat, dist), lon, f(speed), 5, int64(t)))
	}
	return lines
}

// scenarioGPSOutage: steady GPS at 20 m/s for 5s, then an 8s outage during
// which the residual magnitude sits below the motion threshold but above
// the demotion band, so the engine coasts instead of zero-anchoring. GPS
// resumes at 20 m/s.
func scenarioGPSOutage() []wireLine {
	var lines []wireLine
	dtA := 1000.0 / sampleHz
	for t := 0.0; t < 13000; t += dtA {
		ax := 2.0
		if t >= 5000 {
			ax = 0.3
		}
		lines = append(lines, accelLine(ax, 0, 9.81, int64(t), false))
	}
	dtG := 1000.0 / gpsHz
	lat, lon := 37.0, -122.0
	dist := 0.0
	for t := 0.0; t <= 5000; t += dtG {
		dist += 20.0 * (dtG / 1000.0)
		lines = append(lines, gpsLine(northOffsetDeg(lat, dist), lon, f(20.0), 5, int64(t)))
	}
	dist += 20.0 * (dtG / 1000.0)
	lines = append(lines, gpsLine(northOffsetDeg(lat, dist), lon, f(20.0), 5, 13000))
	return lines
}

// scenarioMovingStart: three GPS fixes at 15 m/s within 2s before the
// accelerometer stream begins.
func scenarioMovingStart() []wireLine {
	var lines []wireLine
	lat, lon := 37.0, -122.0
	dist := 0.0
	for _, t := range []float64{0, 800, 1600} {
		dist += 15.0 * 0.8
		lines = append(lines, gpsLine(northOffsetDeg(lat, dist), lon, f(15.0), 8, int64(t)))
	}
	dtA := 1000.0 / sampleHz
	for t := 1600.0; t < 6600; t += dtA {
		lines = append(lines, accelLine(0.1, 0, 9.81, int64(t), false))
	}
	return lines
}

// scenarioScreenLockGap: normal cruising at 20 m/s, then a 3s gap with no
// accelerometer ticks while GPS stays reliable at 20 m/s.
func scenarioScreenLockGap() []wireLine {
	var lines []wireLine
	dtA := 1000.0 / sampleHz
	for t := 0.0; t < 4000; t += dtA {
		lines = append(lines, accelLine(2.0, 0, 9.81, int64(t), false))
	}
	for t := 7000.0; t < 9000; t += dtA {
		lines = append(lines, accelLine(2.0, 0, 9.81, int64(t), false))
	}
	dtG := 1000.0 / gpsHz
	lat, lon := 37.0, -122.0
	dist := 0.0
	for t := 0.0; t <= 9000; t += dtG {
		dist += 20.0 * (dtG / 1000.0)
		lines = append(lines, gpsLine(northOffsetDeg(lat, dist), lon, f(20.0), 5, int64(t)))
	}
	return lines
}

// scenarioQuarterMileSprint: a quiet hold, then a 5.2 m/s^2 residual from
// 1.5s to 10.5s and 0.3 m/s^2 after, over 13s. GPS speed follows the same
// 5.2 m/s^2 ramp from 1.5s (33.8 m/s at 8.0s) to a 42 m/s cap reached near
// 9.6s; the GPS track covers about 313m by 13s, short of the quarter mile.
func scenarioQuarterMileSprint() []wireLine {
	var lines []wireLine
	dtA := 1000.0 / sampleHz
	const launchS = 1.5
	const peakAccelMS2 = 5.2

	for t := 0.0; t < 13000; t += dtA {
		ts := t / 1000.0
		var ax float64
		switch {
		case ts < launchS:
			ax = 0.05
		case ts < 10.5:
			ax = peakAccelMS2
		default:
			ax = 0.3
		}
		lines = append(lines, accelLine(ax, 0, 9.81, int64(t), false))
	}

	dtG := 1000.0 / gpsHz
	lat, lon := 37.0, -122.0
	dist := 0.0
	prevSpeed := 0.0
	for t := 0.0; t <= 13000; t += dtG {
		ts := t / 1000.0
		speed := speedAtSprintTime(ts, launchS)
		dist += (speed + prevSpeed) / 2 * (dtG / 1000.0)
		prevSpeed = speed
		lines = append(lines, gpsLine(northOffsetDeg(lat, dist), lon, f(speed), 5, int64(t)))
	}
	return lines
}

func speedAtSprintTime(ts, launchS float64) float64 {
	if ts < launchS {
		return 0
	}
	const peakAccelMS2 = 5.2
	v := peakAccelMS2 * (ts - launchS)
	if v > 42 {
		v = 42
	}
	return math.Max(v, 0)
}

func writeLines(path string, lines []wireLine) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, l := range lines {
		if err := enc.Encode(l); err != nil {
			return err
		}
	}
	return w.Flush()
}

func main() {
	outDir := flag.String("out", "fixtures", "output directory for generated fixture files")
	flag.Parse()

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}

	scenarios := map[string][]wireLine{
		"static_phone.jsonl":        scenarioStaticPhone(),
		"clean_0_60.jsonl":          scenarioClean060(),
		"gps_outage.jsonl":          scenarioGPSOutage(),
		"moving_start.jsonl":        scenarioMovingStart(),
		"screen_lock_gap.jsonl":     scenarioScreenLockGap(),
		"quarter_mile_sprint.jsonl": scenarioQuarterMileSprint(),
	}

	for name, lines := range scenarios {
		path := filepath.Join(*outDir, name)
		if err := writeLines(path, lines); err != nil {
			log.Fatalf("failed to write %s: %v", path, err)
		}
		log.Printf("wrote %d lines to %s", len(lines), path)
	}
}
