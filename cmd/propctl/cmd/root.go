package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"propsync/cmd/propctl/internal/client"
	cliconfig "propsync/cmd/propctl/internal/config"
)

var (
	version = "dev"
	commit  = "unknown"
)

var (
	flagAddr   string
	flagKey    string
	flagConfig string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "propctl",
	Short: "propctl controls and inspects a propsync daemon",
	Long: `propctl talks to a running propsync daemon: queue property updates,
force flushes, inspect coordinator metrics and manage scopes.`,
	Version: fmt.Sprintf("%s (commit: %s)", version, commit),
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	// Disable completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// Global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&flagAddr, "addr", "", "daemon address (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&flagKey, "key", "", "API key")
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "config file path (default is $HOME/.propctl.yaml)")
}

// newClient resolves addr and key from flags, environment and the config
// file, in that order, and returns a daemon client.
func newClient() *client.Client {
	cfg, err := cliconfig.Load(flagConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	addr := flagAddr
	if addr == "" {
		addr = os.Getenv("PROPSYNC_ADDR")
	}
	if addr == "" {
		addr = cfg.Addr
	}
	if addr == "" {
		addr = "http://localhost:8080"
	}

	key := flagKey
	if key == "" {
		key = os.Getenv("PROPSYNC_API_KEY")
	}
	if key == "" {
		key = cfg.APIKey
	}

	return client.New(addr, key)
}
