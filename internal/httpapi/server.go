// Package httpapi exposes the sensor fusion engine's snapshot and event
// streams over plain HTTP, so display and persistence clients can poll the
// fused state and subscribe to detection events without linking the engine
// directly.
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/redline-data/sfe/internal/httputil"
	"github.com/redline-data/sfe/internal/monitoring"
	"github.com/redline-data/sfe/internal/sfe"
	"github.com/redline-data/sfe/internal/units"
)

// Recorder is the subset of tracestore's Recorder the server needs, kept as
// an interface so the server can run with or without persistence wired in.
type Recorder interface {
	RecordAccel(s sfe.AccelSample) error
	RecordGPS(f sfe.GpsFix) error
	RecordSnapshot(tMillis int64, snap sfe.Snapshot) error
	RecordEvent(tMillis int64, ev sfe.Event) error
	Stop(stoppedAtMillis int64) error
}

// RecorderFactory opens a new trace recorder for a freshly started run,
// keyed by the engine-assigned run ID.
type RecorderFactory func(runID string, startedAtMillis int64) (Recorder, error)

// Server wires a single Engine to an HTTP surface. The engine itself is not
// safe for concurrent use; the server's mutex is the serialization point
// that turns concurrent HTTP requests into the engine's expected single
// event loop.
type Server struct {
	mu              sync.Mutex
	engine          *sfe.Engine
	recorder        Recorder
	recorderFactory RecorderFactory

	subscriberMu sync.Mutex
	subscribers  map[chan sfe.Event]struct{}
}

// NewServer constructs a Server around engine. recorder may be nil to run
// without trace persistence for the initial (pre-start) state.
func NewServer(engine *sfe.Engine, recorder Recorder) *Server {
	return &Server{
		engine:      engine,
		recorder:    recorder,
		subscribers: make(map[chan sfe.Event]struct{}),
	}
}

// WithRecorderFactory installs a factory that opens a fresh persistence
// recorder each time a run starts, keyed by the engine's generated run ID.
// When set, it supersedes any static recorder passed to NewServer once the
// first run starts.
func (s *Server) WithRecorderFactory(factory RecorderFactory) *Server {
	s.recorderFactory = factory
	return s
}

// ServeMux returns the handler tree for this server, mountable under any
// prefix via http.StripPrefix.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHome)
	mux.HandleFunc("/push/accel", s.handlePushAccel)
	mux.HandleFunc("/push/gps", s.handlePushGPS)
	mux.HandleFunc("/run/start", s.handleStart)
	mux.HandleFunc("/run/stop", s.handleStop)
	mux.HandleFunc("/run/reset", s.handleReset)
	mux.HandleFunc("/snapshot", s.handleSnapshot)
	mux.HandleFunc("/events", s.handleEventsSSE)
	return mux
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	fmt.Fprint(w, "Sensor Fusion Engine API\n")
}

type accelRequest struct {
	AX      float64 `json:"ax"`
	AY      float64 `json:"ay"`
	AZ      float64 `json:"az"`
	TMillis int64   `json:"t_ms"`
	Linear  bool    `json:"linear"`
}

func (s *Server) handlePushAccel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req accelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid body: %v", err))
		return
	}

	snap := s.PushAccel(req.AX, req.AY, req.AZ, req.TMillis, req.Linear)
	httputil.WriteJSONOK(w, snap)
}

// PushAccel feeds one accelerometer sample to the engine under the server's
// lock, then persists and publishes the resulting tick. cmd/sfe-server
// adapts it to sensormux.EngineSink so the same path serves both HTTP
// pushes and serial-ingested lines.
func (s *Server) PushAccel(ax, ay, az float64, tMillis int64, linear bool) sfe.Snapshot {
	s.mu.Lock()
	s.engine.PushAccel(ax, ay, az, tMillis, linear)
	events := s.engine.DrainEvents()
	snap := s.engine.Snapshot()
	rec := s.recorder
	s.mu.Unlock()

	if rec != nil {
		if err := rec.RecordAccel(sfe.AccelSample{AX: ax, AY: ay, AZ: az, TMillis: tMillis, Linear: linear}); err != nil {
			monitoring.Logf("httpapi: record accel: %v", err)
		}
		if err := rec.RecordSnapshot(tMillis, snap); err != nil {
			monitoring.Logf("httpapi: record snapshot: %v", err)
		}
	}
	s.publish(tMillis, events)
	return snap
}

type gpsRequest struct {
	Lat       float64  `json:"lat"`
	Lon       float64  `json:"lon"`
	SpeedMS   *float64 `json:"speed_m_s"`
	AccuracyM float64  `json:"accuracy_m"`
	TMillis   int64    `json:"t_ms"`
}

func (s *Server) handlePushGPS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req gpsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid body: %v", err))
		return
	}

	snap := s.PushGPS(req.Lat, req.Lon, req.SpeedMS, req.AccuracyM, req.TMillis)
	httputil.WriteJSONOK(w, snap)
}

// PushGPS feeds one GPS fix to the engine under the server's lock, then
// persists the fix and publishes any resulting events. cmd/sfe-server
// adapts it to sensormux.EngineSink so the same path serves both HTTP
// pushes and serial-ingested lines.
func (s *Server) PushGPS(lat, lon float64, speedMS *float64, accuracyM float64, tMillis int64) sfe.Snapshot {
	s.mu.Lock()
	s.engine.PushGPS(lat, lon, speedMS, accuracyM, tMillis)
	events := s.engine.DrainEvents()
	snap := s.engine.Snapshot()
	rec := s.recorder
	s.mu.Unlock()

	if rec != nil {
		if err := rec.RecordGPS(sfe.GpsFix{Lat: lat, Lon: lon, SpeedMS: speedMS, AccuracyM: accuracyM, TMillis: tMillis}); err != nil {
			monitoring.Logf("httpapi: record gps: %v", err)
		}
	}
	s.publish(tMillis, events)
	return snap
}

type runRequest struct {
	TMillis int64 `json:"t_ms"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req runRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	s.mu.Lock()
	s.engine.StartRun(req.TMillis)
	snap := s.engine.Snapshot()
	if s.recorderFactory != nil {
		rec, err := s.recorderFactory(snap.RunID, req.TMillis)
		if err != nil {
			monitoring.Logf("httpapi: open recorder for run %s: %v", snap.RunID, err)
		} else {
			s.recorder = rec
		}
	}
	s.mu.Unlock()

	httputil.WriteJSONOK(w, snap)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req runRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	s.mu.Lock()
	snap := s.engine.StopRun(req.TMillis)
	rec := s.recorder
	if s.recorderFactory != nil {
		s.recorder = nil
	}
	s.mu.Unlock()

	if rec != nil && s.recorderFactory != nil {
		if err := rec.Stop(req.TMillis); err != nil {
			monitoring.Logf("httpapi: stop recorder: %v", err)
		}
	}

	httputil.WriteJSONOK(w, snap)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	s.mu.Lock()
	s.engine.Reset()
	snap := s.engine.Snapshot()
	s.mu.Unlock()

	httputil.WriteJSONOK(w, snap)
}

// snapshotResponse augments the raw snapshot with the speed converted to
// the caller's requested display unit.
type snapshotResponse struct {
	sfe.Snapshot
	Units string  `json:"units"`
	Speed float64 `json:"speed"`
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	unit, err := units.Parse(r.URL.Query().Get("units"))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	s.mu.Lock()
	snap := s.engine.Snapshot()
	s.mu.Unlock()

	httputil.WriteJSONOK(w, snapshotResponse{
		Snapshot: snap,
		Units:    string(unit),
		Speed:    unit.FromMPS(snap.SpeedMS),
	})
}

// eventEnvelope adds a stable kind name to sfe.Event for SSE consumers.
type eventEnvelope struct {
	Kind string `json:"kind"`
	sfe.Event
}

func kindName(k sfe.EventKind) string {
	switch k {
	case sfe.EventLaunchDetected:
		return "launch_detected"
	case sfe.EventSpeedCheckpoint:
		return "speed_checkpoint"
	case sfe.EventDistanceMilestone:
		return "distance_milestone"
	default:
		return "unknown"
	}
}

// handleEventsSSE streams every event emitted after the client connects,
// draining the engine's event queue as pushes occur elsewhere on the
// server.
func (s *Server) handleEventsSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.InternalServerError(w, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.subscribe()
	defer s.unsubscribe(ch)

	fmt.Fprint(w, ": ping\n\n")
	flusher.Flush()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(eventEnvelope{Kind: kindName(ev.Kind), Event: ev})
			if err != nil {
				monitoring.Logf("httpapi: marshal event: %v", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) subscribe() chan sfe.Event {
	ch := make(chan sfe.Event, 16)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[ch] = struct{}{}
	return ch
}

func (s *Server) unsubscribe(ch chan sfe.Event) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if _, ok := s.subscribers[ch]; ok {
		delete(s.subscribers, ch)
		close(ch)
	}
}

func (s *Server) publish(tMillis int64, events []sfe.Event) {
	s.mu.Lock()
	rec := s.recorder
	s.mu.Unlock()

	if len(events) == 0 {
		return
	}
	if rec != nil {
		for _, ev := range events {
			if err := rec.RecordEvent(tMillis, ev); err != nil {
				monitoring.Logf("httpapi: record event: %v", err)
			}
		}
	}

	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for ch := range s.subscribers {
		for _, ev := range events {
			select {
			case ch <- ev:
			default:
				monitoring.Logf("httpapi: event subscriber channel full, dropping event")
			}
		}
	}
}
