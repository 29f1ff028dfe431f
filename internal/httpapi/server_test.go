package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/redline-data/sfe/internal/sfe"
	"github.com/redline-data/sfe/internal/testutil"
)

func newTestServer() (*Server, *sfe.Engine) {
	eng := sfe.NewEngine(nil)
	return NewServer(eng, nil), eng
}

func TestHandleSnapshotReturnsCurrentState(t *testing.T) {
	srv, _ := newTestServer()
	mux := srv.ServeMux()

	rec := testutil.DoJSON(t, mux, http.MethodGet, "/snapshot", "")
	testutil.AssertStatus(t, rec, http.StatusOK)

	var resp struct {
		sfe.Snapshot
		Units string `json:"units"`
	}
	testutil.DecodeJSON(t, rec.Body, &resp)
	if resp.Units != "mps" {
		t.Errorf("units = %q, want mps by default", resp.Units)
	}
}

func TestHandleSnapshotConvertsUnits(t *testing.T) {
	srv, _ := newTestServer()
	mux := srv.ServeMux()

	rec := testutil.DoJSON(t, mux, http.MethodGet, "/snapshot?units=mph", "")
	testutil.AssertStatus(t, rec, http.StatusOK)

	var resp struct {
		Units string `json:"units"`
	}
	testutil.DecodeJSON(t, rec.Body, &resp)
	if resp.Units != "mph" {
		t.Errorf("units = %q, want mph", resp.Units)
	}

	rec = testutil.DoJSON(t, mux, http.MethodGet, "/snapshot?units=parsecs", "")
	testutil.AssertStatus(t, rec, http.StatusBadRequest)
}

func TestHandlePushAccelAdvancesEngine(t *testing.T) {
	srv, _ := newTestServer()
	mux := srv.ServeMux()

	rec := testutil.DoJSON(t, mux, http.MethodPost, "/run/start", `{"t_ms":0}`)
	testutil.AssertStatus(t, rec, http.StatusOK)

	rec = testutil.DoJSON(t, mux, http.MethodPost, "/push/accel", `{"ax":0.1,"ay":0,"az":9.81,"t_ms":10,"linear":false}`)
	testutil.AssertStatus(t, rec, http.StatusOK)
}

func TestHandlePushGPSAcceptsFix(t *testing.T) {
	srv, _ := newTestServer()
	mux := srv.ServeMux()

	testutil.DoJSON(t, mux, http.MethodPost, "/run/start", `{"t_ms":0}`)

	rec := testutil.DoJSON(t, mux, http.MethodPost, "/push/gps",
		`{"lat":37.0,"lon":-122.0,"speed_m_s":15.0,"accuracy_m":8,"t_ms":100}`)
	testutil.AssertStatus(t, rec, http.StatusOK)

	var snap sfe.Snapshot
	testutil.DecodeJSON(t, rec.Body, &snap)
	if snap.GPSReliabilityScore == 0 {
		t.Error("expected a nonzero reliability score after a fix was ingested")
	}
}

func TestHandlePushAccelRejectsMalformedBody(t *testing.T) {
	srv, _ := newTestServer()
	mux := srv.ServeMux()

	rec := testutil.DoJSON(t, mux, http.MethodPost, "/push/accel", `not json`)
	testutil.AssertStatus(t, rec, http.StatusBadRequest)
}

func TestHandlePushAccelRejectsWrongMethod(t *testing.T) {
	srv, _ := newTestServer()
	mux := srv.ServeMux()

	req := httptest.NewRequest(http.MethodGet, "/push/accel", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	testutil.AssertStatus(t, rec, http.StatusMethodNotAllowed)
}

func TestRunLifecycleHandlers(t *testing.T) {
	srv, _ := newTestServer()
	mux := srv.ServeMux()

	for _, path := range []string{"/run/start", "/run/stop", "/run/reset"} {
		rec := testutil.DoJSON(t, mux, http.MethodPost, path, `{"t_ms":0}`)
		testutil.AssertStatus(t, rec, http.StatusOK)
	}
}

func TestHandleEventsSSEStreamsPublishedEvents(t *testing.T) {
	srv, _ := newTestServer()

	ch := srv.subscribe()
	defer srv.unsubscribe(ch)

	srv.publish(100, []sfe.Event{{Kind: sfe.EventLaunchDetected}})

	select {
	case ev := <-ch:
		if ev.Kind != sfe.EventLaunchDetected {
			t.Errorf("kind = %v, want EventLaunchDetected", ev.Kind)
		}
	default:
		t.Fatal("expected event to be queued for subscriber")
	}
}

func TestKindNameCoversAllEventKinds(t *testing.T) {
	cases := map[sfe.EventKind]string{
		sfe.EventLaunchDetected:    "launch_detected",
		sfe.EventSpeedCheckpoint:   "speed_checkpoint",
		sfe.EventDistanceMilestone: "distance_milestone",
	}
	for kind, want := range cases {
		if got := kindName(kind); got != want {
			t.Errorf("kindName(%v) = %q, want %q", kind, got, want)
		}
	}
}
