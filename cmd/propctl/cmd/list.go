package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"
)

var (
	listPrefix string
	listLimit  int
)

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVar(&listPrefix, "prefix", "", "only list properties with this name prefix")
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "maximum number of properties to list (0 = server default)")
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored properties",
	Run: func(cmd *cobra.Command, args []string) {
		c := newClient()
		props, err := c.ListProperties(listPrefix, listLimit)
		if err != nil {
			log.Fatal("Failed to list properties: ", err)
		}
		if len(props) == 0 {
			fmt.Println("No properties found.")
			return
		}

		fmt.Printf("%-40s %-24s %s\n", "NAME", "UPDATED", "VALUE")
		for _, p := range props {
			updated := "-"
			if p.UpdatedTS > 0 {
				updated = time.Unix(0, p.UpdatedTS).Format(time.RFC3339)
			}
			val := p.Value
			if len(val) > 60 {
				val = val[:57] + "..."
			}
			fmt.Printf("%-40s %-24s %s\n", p.Name, updated, val)
		}
		fmt.Printf("\nTotal: %d\n", len(props))
	},
}
