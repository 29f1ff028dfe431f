package sensormux

import (
	"fmt"
	"net/http"

	"tailscale.com/tsweb"

	"github.com/redline-data/sfe/internal/httputil"
)

// AttachAdminRoutes mounts /debug/* introspection endpoints for the sensor
// bridge connection: a live SSE tail of raw lines and an API to push a
// command string back to the device.
func (s *SensorMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleSilentFunc("sensor-tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		id, ch := s.Subscribe()
		defer s.Unsubscribe(id)

		flusher, ok := w.(http.Flusher)
		if !ok {
			httputil.InternalServerError(w, "streaming unsupported")
			return
		}
		fmt.Fprint(w, ": ping\n\n")
		flusher.Flush()

		for {
			select {
			case payload, ok := <-ch:
				if !ok {
					return
				}
				fmt.Fprintf(w, "data: %s\n\n", payload)
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})

	debug.HandleSilentFunc("sensor-command", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}
		command := r.FormValue("command")
		if command == "" {
			httputil.BadRequest(w, "missing command")
			return
		}
		if err := s.SendCommand(command); err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to send command: %v", err))
			return
		}
		httputil.WriteJSONOK(w, map[string]string{"status": "sent"})
	})
}
