package cmd

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(flushCmd)
}

var flushCmd = &cobra.Command{
	Use:   "flush [scope]",
	Short: "Force pending updates onto the surface",
	Long: `Force a flush of pending property updates.

With a scope argument only that scope is flushed; without one every
live scope is flushed.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		scope := ""
		if len(args) == 1 {
			scope = args[0]
		}

		c := newClient()
		res, err := c.Flush(scope)
		if err != nil {
			log.Fatal("Flush failed: ", err)
		}
		fmt.Printf("Flushed %d scope(s): %s\n", len(res.Scopes), strings.Join(res.Scopes, ", "))
	},
}
