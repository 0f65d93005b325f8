package commands

import (
	"os"
	"perfsnapshot-backend/internal/components/telemetry"
	"time"

	"github.com/spf13/cobra"
)

var parseSource *string

func init() {
	parseSource = parseCmd.Flags().String("source", "", "The source url to report, defaults to the file path.")
	rootCmd.AddCommand(parseCmd)
}

var parseCmd = &cobra.Command{
	Use:   "parse <path/to/page.html>",
	Short: "Parses a saved copy of the dashboard and prints the snapshot scraped from it.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		markup, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		source := *parseSource
		if source == "" {
			source = args[0]
		}
		info, err := os.Stat(args[0])
		if err != nil {
			return err
		}

		snapshot, err := newParser(telemetry.SlogAPI{}).Parse(
			cmd.Context(),
			source,
			info.ModTime().UTC().Truncate(time.Second),
			string(markup),
		)
		if err != nil {
			return err
		}
		return renderSnapshot(cmd.OutOrStdout(), snapshot, *jsonOutput)
	},
}
