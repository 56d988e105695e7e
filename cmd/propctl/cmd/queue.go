package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

var queueScope string

func init() {
	rootCmd.AddCommand(queueCmd)

	queueCmd.Flags().StringVar(&queueScope, "scope", "", "target scope (default scope when empty)")
}

var queueCmd = &cobra.Command{
	Use:   "queue <name> <value>",
	Short: "Queue a property update for the next flush",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		c := newClient()
		res, err := c.QueueUpdate(args[0], args[1], queueScope)
		if err != nil {
			log.Fatal("Failed to queue update: ", err)
		}
		fmt.Printf("Queued %s on scope %q (%d pending)\n", args[0], res.Scope, res.Pending)
	},
}
