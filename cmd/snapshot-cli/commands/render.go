package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"perfsnapshot-backend/internal/components/telemetry"
	"perfsnapshot-backend/internal/scrapers/dashboard"
	"perfsnapshot-backend/internal/service"
	"perfsnapshot-backend/internal/snapshotcache"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

func newParser(tel telemetry.API) dashboard.Parser {
	return dashboard.NewParser(
		dashboard.NewExtractor(tel),
		dashboard.NewSeriesExtractor(dashboard.SeriesOptions{
			Variable: *seriesVariable,
		}, tel),
	)
}

func valueOrDash(value *string) string {
	if value == nil {
		return "-"
	}
	return *value
}

func renderMetrics(out io.Writer, title string, names []string, values map[string]*string) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetTitle(title)
	t.AppendHeader(table.Row{"Metric", "Value"})
	for _, name := range names {
		t.AppendRow(table.Row{name, valueOrDash(values[name])})
	}
	t.Render()
}

func renderSeries(out io.Writer, points []dashboard.Point) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetTitle("Growth")
	t.AppendHeader(table.Row{"Date", "Value"})
	for _, p := range points {
		t.AppendRow(table.Row{p.Date, p.Value})
	}
	t.AppendFooter(table.Row{"Points", len(points)})
	t.Render()
}

func renderSnapshot(out io.Writer, snapshot *dashboard.Snapshot, asJson bool) error {
	if asJson {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(service.NewLivePerformanceResponse(snapshotcache.Result{
			Snapshot: snapshot,
		}))
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendRows([]table.Row{
		{"Source", snapshot.Source},
		{"Fetched At", snapshot.FetchedAt.Format(time.RFC3339)},
		{"Updated", valueOrDash(snapshot.UpdatedAt)},
	})
	t.Render()

	renderMetrics(out, "Account Details", dashboard.AccountDetailNames, snapshot.AccountDetails)
	renderMetrics(out, "Trading Stats", dashboard.TradingStatNames, snapshot.TradingStats)
	renderMetrics(out, "Account Info", dashboard.AccountInfoNames, snapshot.AccountInfo)
	renderSeries(out, snapshot.GrowthSeries)

	missing := 0
	for _, set := range []map[string]*string{snapshot.AccountDetails, snapshot.TradingStats, snapshot.AccountInfo} {
		for _, value := range set {
			if value == nil {
				missing++
			}
		}
	}
	if missing > 0 {
		fmt.Fprintf(out, "%d metric(s) could not be resolved\n", missing)
	}
	return nil
}
