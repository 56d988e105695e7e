package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"propsync/cmd/propctl/internal/client"
)

var batchScope string

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringVar(&batchScope, "scope", "", "target scope (default scope when empty)")
}

var batchCmd = &cobra.Command{
	Use:   "batch [file]",
	Short: "Queue a batch of property updates from a JSON file or stdin",
	Long: `Queue an ordered batch of property updates in one request.

The input is a JSON array of {"name": ..., "value": ...} objects, read
from the given file or from stdin when no file is given:

  propctl batch updates.json
  echo '[{"name":"hud.fps","value":"60"}]' | propctl batch`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var data []byte
		var err error
		if len(args) == 1 && args[0] != "-" {
			data, err = os.ReadFile(args[0])
			if err != nil {
				log.Fatal("Failed to read batch file: ", err)
			}
		} else {
			data, err = io.ReadAll(os.Stdin)
			if err != nil {
				log.Fatal("Failed to read stdin: ", err)
			}
		}

		var entries []client.BatchEntry
		if err := json.Unmarshal(data, &entries); err != nil {
			log.Fatal("Failed to parse batch: ", err)
		}
		if len(entries) == 0 {
			log.Fatal("Batch is empty")
		}

		c := newClient()
		res, err := c.QueueBatch(entries, batchScope)
		if err != nil {
			log.Fatal("Failed to queue batch: ", err)
		}
		fmt.Printf("Queued %d updates on scope %q (%d pending)\n", res.Queued, res.Scope, res.Pending)
	},
}
