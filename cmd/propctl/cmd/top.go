package cmd

import (
	"log"
	"time"

	"github.com/spf13/cobra"

	"propsync/cmd/propctl/internal/ui"
)

var topInterval time.Duration

func init() {
	rootCmd.AddCommand(topCmd)

	topCmd.Flags().DurationVar(&topInterval, "interval", time.Second, "refresh interval")
}

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "Live view of coordinator metrics",
	Long: `Show a live, auto-refreshing table of every scope's coordinator
metrics: pending updates, flush counts and flush latency. Press q to quit.`,
	Run: func(cmd *cobra.Command, args []string) {
		c := newClient()
		if err := ui.Run(ui.Options{Client: c, PollTick: topInterval}); err != nil {
			log.Fatal("Failed to run metrics view: ", err)
		}
	},
}
