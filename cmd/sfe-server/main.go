// Command sfe-server runs the sensor fusion engine as a long-lived HTTP
// service: it reads line-delimited JSON sensor records from a serial bridge
// (or, in dev mode, a fixtures file), feeds them to the engine, persists
// every tick to a trace store, and exposes snapshot/event/admin HTTP
// routes.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redline-data/sfe/internal/config"
	"github.com/redline-data/sfe/internal/httpapi"
	"github.com/redline-data/sfe/internal/monitoring"
	"github.com/redline-data/sfe/internal/sensormux"
	"github.com/redline-data/sfe/internal/sfe"
	"github.com/redline-data/sfe/internal/timeutil"
	"github.com/redline-data/sfe/internal/tracestore"
)

var (
	devMode    = flag.Bool("dev", false, "run against a fixtures file instead of a real serial port")
	realtime   = flag.Bool("realtime", false, "in -dev mode, replay fixtures at their recorded cadence instead of all at once")
	listen     = flag.String("listen", ":8080", "HTTP listen address")
	serialPath = flag.String("serial", "/dev/ttyACM0", "serial device path for the sensor bridge")
	fixtures   = flag.String("fixtures", "fixtures.txt", "line-delimited JSON fixtures file used in -dev mode")
	dbPath     = flag.String("db", "sfe_trace.db", "trace store database path")
	configPath = flag.String("config", config.DefaultConfigPath, "tuning config JSON path")
)

// bridge is the subset of *sensormux.SensorMux[T] the server depends on,
// satisfied identically by the real and mock instantiations so main can
// pick one at startup without duplicating the wiring below.
type bridge interface {
	Subscribe() (int, chan string)
	Unsubscribe(id int)
	Monitor(ctx context.Context) error
	Close() error
	AttachAdminRoutes(mux *http.ServeMux)
}

// ingestSink adapts httpapi.Server's Push{Accel,GPS} (which return a
// snapshot for HTTP handlers) to sensormux.EngineSink's void signature, so
// serial-ingested lines flow through the same lock/record/publish path as
// HTTP pushes.
type ingestSink struct{ server *httpapi.Server }

func (s ingestSink) PushAccel(ax, ay, az float64, tMillis int64, linear bool) {
	s.server.PushAccel(ax, ay, az, tMillis, linear)
}

func (s ingestSink) PushGPS(lat, lon float64, speedMS *float64, accuracyM float64, tMillis int64) {
	s.server.PushGPS(lat, lon, speedMS, accuracyM, tMillis)
}

func main() {
	flag.Parse()

	tuning, err := config.LoadTuningConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load tuning config: %v", err)
	}

	var m bridge
	if *devMode {
		data, err := os.ReadFile(*fixtures)
		if err != nil {
			log.Fatalf("failed to read fixtures file: %v", err)
		}
		if *realtime {
			m = sensormux.NewPacedSensorMux(data, timeutil.RealClock{})
		} else {
			m = sensormux.NewMockSensorMux(data)
		}
	} else {
		m, err = sensormux.NewRealSensorMux(*serialPath)
		if err != nil {
			log.Fatalf("failed to open sensor bridge serial port: %v", err)
		}
	}
	defer m.Close()

	store, err := tracestore.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open trace store: %v", err)
	}
	defer store.Close()

	engine := sfe.NewEngine(tuning)
	server := httpapi.NewServer(engine, nil)
	server.WithRecorderFactory(func(runID string, startedAtMillis int64) (httpapi.Recorder, error) {
		return tracestore.NewRecorder(store, runID, startedAtMillis, "")
	})
	sink := ingestSink{server: server}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := m.Monitor(ctx); err != nil && err != context.Canceled {
			monitoring.Logf("sensor bridge monitor terminated: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		id, lines := m.Subscribe()
		defer m.Unsubscribe(id)
		for {
			select {
			case raw := <-lines:
				if err := sensormux.Decode(raw, sink); err != nil {
					monitoring.Logf("sensor bridge: discarding line: %v", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()
		store.AttachAdminRoutes(mux)
		m.AttachAdminRoutes(mux)
		mux.Handle("/api/", http.StripPrefix("/api", server.ServeMux()))

		httpServer := &http.Server{
			Addr:    *listen,
			Handler: mux,
		}

		go func() {
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start HTTP server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			monitoring.Logf("HTTP server shutdown error: %v", err)
		}
	}()

	wg.Wait()
	log.Println("graceful shutdown complete")
}
