package commands

import (
	"context"
	"fmt"
	"os"
	"perfsnapshot-backend/internal/components/telemetry"

	"github.com/spf13/cobra"
)

var (
	jsonOutput     *bool
	verbose        *bool
	seriesVariable *string
)

var rootCmd = &cobra.Command{
	Use:   "snapshot-cli",
	Short: "snapshot-cli is a CLI for inspecting what gets scraped off the performance dashboard.",

	// errors are printed once by ExecuteContext
	SilenceUsage:  true,
	SilenceErrors: true,

	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(*verbose)
	},
}

func init() {
	jsonOutput = rootCmd.PersistentFlags().Bool("json", false, "Print the snapshot as the api would serve it.")
	verbose = rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging.")
	seriesVariable = rootCmd.PersistentFlags().String("series-variable", "growthData", "The script variable holding the growth series.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
