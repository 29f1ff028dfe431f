package tracestore

import (
	"fmt"
	"net/http"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/redline-data/sfe/internal/httputil"
)

// AttachAdminRoutes mounts /debug/* introspection routes for the trace
// store: a live SQL browser over the run/sample/fix/snapshot/event tables,
// and a JSON summary of recorded run counts.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{RoutePrefix: "/debug/tailsql/"})
	if err != nil {
		panic(fmt.Sprintf("tracestore: create tailsql server: %v", err))
	}
	tsql.SetDB("sqlite://tracestore", db.DB, &tailsql.DBOptions{Label: "SFE trace store"})
	debug.Handle("tailsql/", "SQL live debugging over recorded runs", tsql.NewMux())

	debug.Handle("runs", "Recorded run summary (JSON)", http.HandlerFunc(db.handleRunsSummary))
}

type runSummary struct {
	RunID        string `json:"run_id"`
	StartedAtMs  int64  `json:"started_at_ms"`
	StoppedAtMs  *int64 `json:"stopped_at_ms"`
	Label        string `json:"label"`
	AccelSamples int    `json:"accel_samples"`
	GPSFixes     int    `json:"gps_fixes"`
	Events       int    `json:"events"`
}

func (db *DB) handleRunsSummary(w http.ResponseWriter, r *http.Request) {
	rows, err := db.Query(`
		SELECT r.run_id, r.started_at_ms, r.stopped_at_ms, r.label,
		       (SELECT COUNT(*) FROM accel_samples a WHERE a.run_id = r.run_id),
		       (SELECT COUNT(*) FROM gps_fixes g WHERE g.run_id = r.run_id),
		       (SELECT COUNT(*) FROM events e WHERE e.run_id = r.run_id)
		FROM runs r ORDER BY r.started_at_ms DESC`)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to query runs: %v", err))
		return
	}
	defer rows.Close()

	var summaries []runSummary
	for rows.Next() {
		var s runSummary
		if err := rows.Scan(&s.RunID, &s.StartedAtMs, &s.StoppedAtMs, &s.Label, &s.AccelSamples, &s.GPSFixes, &s.Events); err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to scan run: %v", err))
			return
		}
		summaries = append(summaries, s)
	}
	httputil.WriteJSONOK(w, summaries)
}
