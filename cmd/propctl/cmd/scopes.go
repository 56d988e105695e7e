package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"propsync/cmd/propctl/internal/prompt"
)

var destroyYes bool

func init() {
	rootCmd.AddCommand(scopesCmd)
	scopesCmd.AddCommand(scopesListCmd)
	scopesCmd.AddCommand(scopesCreateCmd)
	scopesCmd.AddCommand(scopesDestroyCmd)

	scopesDestroyCmd.Flags().BoolVarP(&destroyYes, "yes", "y", false, "skip the confirmation prompt")
}

var scopesCmd = &cobra.Command{
	Use:   "scopes",
	Short: "Manage coordinator scopes",
}

var scopesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List live scopes",
	Run: func(cmd *cobra.Command, args []string) {
		c := newClient()
		scopes, err := c.Scopes()
		if err != nil {
			log.Fatal("Failed to list scopes: ", err)
		}
		if len(scopes) == 0 {
			fmt.Println("No live scopes.")
			return
		}
		for _, s := range scopes {
			fmt.Println(s)
		}
	},
}

var scopesCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a scope",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c := newClient()
		res, err := c.CreateScope(args[0])
		if err != nil {
			log.Fatal("Failed to create scope: ", err)
		}
		fmt.Printf("Created scope %q\n", res.Scope)
	},
}

var scopesDestroyCmd = &cobra.Command{
	Use:   "destroy <name>",
	Short: "Destroy a scope, discarding its pending updates",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if !destroyYes {
			if !prompt.Confirm(fmt.Sprintf("Destroy scope %q? Pending updates will be discarded", args[0])) {
				fmt.Println("Aborted.")
				return
			}
		}

		c := newClient()
		res, err := c.DestroyScope(args[0])
		if err != nil {
			log.Fatal("Failed to destroy scope: ", err)
		}
		fmt.Printf("Destroyed scope %q\n", res.Scope)
	},
}
