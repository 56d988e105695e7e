package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check daemon liveness",
	Run: func(cmd *cobra.Command, args []string) {
		c := newClient()
		if err := c.Healthz(); err != nil {
			fmt.Printf("❌ %s is not responding: %v\n", c.Base(), err)
			os.Exit(1)
		}

		scopes, err := c.Scopes()
		if err != nil {
			fmt.Printf("✅ %s is up (scope listing failed: %v)\n", c.Base(), err)
			return
		}
		fmt.Printf("✅ %s is up, %d live scope(s)\n", c.Base(), len(scopes))
	},
}
