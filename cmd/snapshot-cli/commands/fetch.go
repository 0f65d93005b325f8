package commands

import (
	"perfsnapshot-backend/internal/components/chrono"
	"perfsnapshot-backend/internal/components/telemetry"
	"perfsnapshot-backend/internal/scrapers/dashboard"
	"perfsnapshot-backend/lib/restyutil"
	"time"

	"github.com/spf13/cobra"
)

var (
	fetchTimeout *time.Duration
	fetchDump    *string
)

func init() {
	fetchTimeout = fetchCmd.Flags().Duration("timeout", 15*time.Second, "Timeout for the upstream request.")
	fetchDump = fetchCmd.Flags().String("dump", "", "Write the raw http exchange into this directory.")
	rootCmd.AddCommand(fetchCmd)
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Fetches the dashboard at <url> once and prints the snapshot scraped from it.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tel := telemetry.SlogAPI{}

		opts := dashboard.FetcherOptions{
			Url:     args[0],
			Timeout: *fetchTimeout,
		}
		if *fetchDump != "" {
			output, err := restyutil.NewFilesystemOutput(*fetchDump)
			if err != nil {
				return err
			}
			opts.Dump = output
		}

		fetcher, err := dashboard.NewFetcher(opts, tel)
		if err != nil {
			return err
		}
		scraper := dashboard.NewScraper(fetcher, newParser(tel), chrono.NewStandardTime(), tel)

		snapshot, err := scraper.Scrape(cmd.Context())
		if err != nil {
			return err
		}
		return renderSnapshot(cmd.OutOrStdout(), snapshot, *jsonOutput)
	},
}
