package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"propsync/pkg/models"
)

func init() {
	rootCmd.AddCommand(metricsCmd)
}

var metricsCmd = &cobra.Command{
	Use:   "metrics [scope]",
	Short: "Show coordinator flush metrics",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c := newClient()

		if len(args) == 1 {
			m, err := c.Metrics(args[0])
			if err != nil {
				log.Fatal("Failed to get metrics: ", err)
			}
			printMetrics(m)
			return
		}

		all, err := c.AllMetrics()
		if err != nil {
			log.Fatal("Failed to get metrics: ", err)
		}
		if len(all) == 0 {
			fmt.Println("No live scopes.")
			return
		}

		fmt.Printf("%-20s %10s %12s %10s %s\n", "SCOPE", "FLUSHES", "AVG FLUSH", "PENDING", "LAST FLUSH")
		for _, m := range all {
			fmt.Printf("%-20s %10d %10.2fms %10d %s\n",
				m.Scope, m.FlushCount, m.AvgFlushMs, m.PendingUpdates, lastFlush(m.LastFlushTS))
		}
	},
}

func printMetrics(m models.CoordinatorMetrics) {
	fmt.Printf("Scope:       %s\n", m.Scope)
	fmt.Printf("Flushes:     %d\n", m.FlushCount)
	fmt.Printf("Avg flush:   %.2fms\n", m.AvgFlushMs)
	fmt.Printf("Pending:     %d\n", m.PendingUpdates)
	fmt.Printf("Last flush:  %s\n", lastFlush(m.LastFlushTS))
}

func lastFlush(ts int64) string {
	if ts == 0 {
		return "never"
	}
	return time.Unix(0, ts).Format(time.RFC3339)
}
