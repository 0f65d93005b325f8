package commands

import (
	"bytes"
	"os"
	"perfsnapshot-backend/internal/components/telemetry"
	"perfsnapshot-backend/internal/scrapers/dashboard"

	"github.com/PuerkitoBio/goquery"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(explainCmd)
}

var explainCmd = &cobra.Command{
	Use:   "explain <path/to/page.html> [label...]",
	Short: "Shows which extraction strategy resolved each label in a saved copy of the dashboard.",
	Long: "Shows which extraction strategy resolved each label in a saved copy of the dashboard. " +
		"Without labels, every known metric name is explained.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		markup, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
		if err != nil {
			return err
		}
		page := dashboard.NewPage(doc)
		extractor := dashboard.NewExtractor(telemetry.SlogAPI{})

		labels := args[1:]
		if len(labels) == 0 {
			labels = append(labels, dashboard.AccountDetailNames...)
			labels = append(labels, dashboard.TradingStatNames...)
			labels = append(labels, dashboard.AccountInfoNames...)
			labels = append(labels, dashboard.UpdatedAtLabels...)
		}

		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Label", "Value", "Strategy"})
		for _, label := range labels {
			value, strategy, ok := extractor.Extract(page, label)
			if !ok {
				t.AppendRow(table.Row{label, "-", "-"})
				continue
			}
			t.AppendRow(table.Row{label, value, strategy})
		}
		t.Render()
		return nil
	},
}
