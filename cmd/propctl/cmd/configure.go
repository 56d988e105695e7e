package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	cliconfig "propsync/cmd/propctl/internal/config"
	"propsync/cmd/propctl/internal/prompt"
)

func init() {
	rootCmd.AddCommand(configureCmd)
}

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Interactively write the propctl config file",
	Long: `Prompt for the daemon address and API key and save them to the
config file, so later invocations need no flags. The key is stored
with 0600 permissions.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := flagConfig
		if path == "" {
			path = cliconfig.DefaultPath()
		}

		cfg, err := cliconfig.Load(path)
		if err != nil {
			return err
		}

		// re-prompt for everything, seeded from flags
		cfg.Addr = flagAddr
		cfg.APIKey = flagKey
		if err := prompt.FillMissing(cfg); err != nil {
			return err
		}

		if err := cliconfig.SaveToFile(cfg, path); err != nil {
			return err
		}

		fmt.Printf("Saved %s\n", path)
		fmt.Printf("  Address: %s\n", cfg.Addr)
		if cfg.APIKey != "" {
			fmt.Printf("  API key: %s\n", prompt.MaskKey(cfg.APIKey))
		}
		return nil
	},
}
