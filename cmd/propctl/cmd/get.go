package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(getCmd)
}

var getCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Show the stored record for one property",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c := newClient()
		prop, err := c.GetProperty(args[0])
		if err != nil {
			log.Fatal("Failed to get property: ", err)
		}
		fmt.Printf("Name:    %s\n", prop.Name)
		fmt.Printf("Value:   %s\n", prop.Value)
		if prop.UpdatedTS > 0 {
			fmt.Printf("Updated: %s\n", time.Unix(0, prop.UpdatedTS).Format(time.RFC3339))
		}
	},
}
