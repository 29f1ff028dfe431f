package sfe

import "github.com/redline-data/sfe/internal/config"

const (
	launchBufferWindowS   = 2.0
	launchRecentCount     = 10
	launchRecentThreshold = 1.5
	launchFusedThreshold  = 2.0
	launchRatioWindowS    = 0.5
	launchRatioMinSamples = 25
	launchRatioMinFrac    = 0.8
	launchRatioThreshold  = 1.0
)

type motionSample struct {
	filtered float64
	moving   bool
	tSec     float64
}

type checkpointState struct {
	target        config.CheckpointTarget
	seenBelowFrom bool
	achieved      bool
}

type milestoneState struct {
	target   config.MilestoneTarget
	achieved bool
}

// eventDetector is C5: it watches the fused signal for a one-time launch,
// speed-checkpoint crossings, and distance-milestone crossings.
type eventDetector struct {
	buffer []motionSample // trailing launchBufferWindowS window

	launched    bool
	launchTimeS float64

	checkpoints []checkpointState
	milestones  []milestoneState
}

func newEventDetector(cfg resolvedConfig) *eventDetector {
	d := &eventDetector{}
	for _, cp := range cfg.speedCheckpoints {
		// A zero lower bound needs no prior observation below it.
		d.checkpoints = append(d.checkpoints, checkpointState{target: cp, seenBelowFrom: cp.FromMS <= 0})
	}
	for _, m := range cfg.distanceMilestones {
		d.milestones = append(d.milestones, milestoneState{target: m})
	}
	return d
}

func (d *eventDetector) reset() {
	checkpoints := make([]checkpointState, len(d.checkpoints))
	for i, cp := range d.checkpoints {
		checkpoints[i] = checkpointState{target: cp.target, seenBelowFrom: cp.target.FromMS <= 0}
	}
	milestones := make([]milestoneState, len(d.milestones))
	for i, m := range d.milestones {
		milestones[i] = milestoneState{target: m.target}
	}
	d.buffer = nil
	d.launched = false
	d.launchTimeS = 0
	d.checkpoints = checkpoints
	d.milestones = milestones
}

// eventBasis returns the "now" reference for computing elapsed event time:
// since launch if launch has fired, otherwise since run start.
func (d *eventDetector) eventBasis(tSec float64) float64 {
	if d.launched {
		return tSec - d.launchTimeS
	}
	return tSec
}

// onAccelTick updates the launch-detection buffer and checkpoint/milestone
// state for one accelerometer tick, returning any events that fired.
func (d *eventDetector) onAccelTick(filtered float64, moving bool, vFused, distanceAccel, tSec float64) []Event {
	var events []Event

	d.buffer = append(d.buffer, motionSample{filtered: filtered, moving: moving, tSec: tSec})
	cutoff := tSec - launchBufferWindowS
	i := 0
	for i < len(d.buffer) && d.buffer[i].tSec < cutoff {
		i++
	}
	d.buffer = d.buffer[i:]

	if !d.launched && d.checkLaunch(vFused) {
		d.launched = true
		d.launchTimeS = tSec
		events = append(events, Event{Kind: EventLaunchDetected, TSinceEventBasis: tSec})
	}

	events = append(events, d.checkSpeedCheckpoints(vFused, tSec)...)
	events = append(events, d.checkDistanceMilestones(distanceAccel, vFused, tSec)...)

	return events
}

func (d *eventDetector) checkLaunch(vFused float64) bool {
	if vFused <= launchFusedThreshold {
		return false
	}

	n := len(d.buffer)
	if n < launchRecentCount {
		return false
	}
	for _, s := range d.buffer[n-launchRecentCount:] {
		if !(s.filtered > launchRecentThreshold && s.moving) {
			return false
		}
	}

	nowS := d.buffer[n-1].tSec
	ratioCutoff := nowS - launchRatioWindowS
	total, satisfying := 0, 0
	for _, s := range d.buffer {
		if s.tSec < ratioCutoff {
			continue
		}
		total++
		if s.filtered > launchRatioThreshold && s.moving {
			satisfying++
		}
	}
	if total < launchRatioMinSamples {
		return false
	}
	return float64(satisfying)/float64(total) >= launchRatioMinFrac
}

func (d *eventDetector) checkSpeedCheckpoints(vFused, tSec float64) []Event {
	var events []Event
	for i := range d.checkpoints {
		cp := &d.checkpoints[i]
		if cp.achieved {
			continue
		}
		if vFused < cp.target.FromMS {
			cp.seenBelowFrom = true
		}
		if cp.seenBelowFrom && vFused >= cp.target.ToMS {
			cp.achieved = true
			events = append(events, Event{
				Kind:             EventSpeedCheckpoint,
				ID:               cp.target.ID,
				TSinceEventBasis: d.eventBasis(tSec),
			})
		}
	}
	return events
}

func (d *eventDetector) checkDistanceMilestones(distanceAccel, vFused, tSec float64) []Event {
	var events []Event
	for i := range d.milestones {
		m := &d.milestones[i]
		if m.achieved {
			continue
		}
		if distanceAccel >= m.target.DistanceM {
			m.achieved = true
			events = append(events, Event{
				Kind:              EventDistanceMilestone,
				ID:                m.target.ID,
				TSinceEventBasis:  d.eventBasis(tSec),
				SpeedAtCrossingMS: vFused,
			})
		}
	}
	return events
}
