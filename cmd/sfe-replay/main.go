// Command sfe-replay re-runs a recorded trace through a fresh engine and
// renders the resulting speed/distance/sigma curves as an HTML chart for
// offline analysis of a run.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/redline-data/sfe/internal/config"
	"github.com/redline-data/sfe/internal/tracestore"
)

func main() {
	var (
		dbPath     = flag.String("db", "sfe_trace.db", "trace store database path")
		runID      = flag.String("run", "", "run ID to replay (required)")
		configPath = flag.String("config", config.DefaultConfigPath, "tuning config JSON path used for the replay engine")
		outPath    = flag.String("out", "replay.html", "output HTML file path")
	)
	flag.Parse()

	if *runID == "" {
		log.Fatal("-run is required")
	}

	tuning, err := config.LoadTuningConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load tuning config: %v", err)
	}

	store, err := tracestore.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open trace store: %v", err)
	}
	defer store.Close()

	points, err := tracestore.Replay(store, *runID, tuning)
	if err != nil {
		log.Fatalf("failed to replay run %s: %v", *runID, err)
	}

	page, err := renderPage(*runID, points)
	if err != nil {
		log.Fatalf("failed to render chart: %v", err)
	}

	f, err := os.Create(*outPath)
	if err != nil {
		log.Fatalf("failed to create output file: %v", err)
	}
	defer f.Close()

	if err := page.Render(f); err != nil {
		log.Fatalf("failed to write chart: %v", err)
	}

	log.Printf("wrote %d ticks to %s", len(points), *outPath)
}

func renderPage(runID string, points []tracestore.ReplayPoint) (*charts.Line, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("no replay points for run %s", runID)
	}

	xAxis := make([]string, 0, len(points))
	speedSeries := make([]opts.LineData, 0, len(points))
	distanceSeries := make([]opts.LineData, 0, len(points))
	sigmaSeries := make([]opts.LineData, 0, len(points))

	t0 := points[0].TMillis
	for _, p := range points {
		xAxis = append(xAxis, fmt.Sprintf("%.2fs", float64(p.TMillis-t0)/1000))
		speedSeries = append(speedSeries, opts.LineData{Value: p.Snapshot.SpeedMS})
		distanceSeries = append(distanceSeries, opts.LineData{Value: p.Snapshot.DistanceM})
		sigmaSeries = append(sigmaSeries, opts.LineData{Value: p.Snapshot.Sigma})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Sensor Fusion Replay", Theme: "dark", Width: "1200px", Height: "700px"}),
		charts.WithTitleOpts(opts.Title{Title: "Sensor Fusion Replay", Subtitle: fmt.Sprintf("run=%s ticks=%d", runID, len(points))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "elapsed"}),
	)
	line.SetXAxis(xAxis).
		AddSeries("speed (m/s)", speedSeries).
		AddSeries("distance (m)", distanceSeries).
		AddSeries("sigma (m/s)", sigmaSeries).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(false)}))

	return line, nil
}
