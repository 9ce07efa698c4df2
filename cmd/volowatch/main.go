// Command volowatch watches the Volo Sports activity feed and announces
// newly listed pickups and drop-ins.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"volowatch/internal/config"
)

var (
	cfgPath string
	envFile string
)

var rootCmd = &cobra.Command{
	Use:   "volowatch",
	Short: "Watch Volo Sports for new activities",
	Long: `volowatch polls the Volo Sports discover feed, records every activity it
sees in a local ledger and sends newly listed ones to Discord and/or Telegram.

Run without a subcommand to start the watcher.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.LoadDotEnv(envFile)
	},
	RunE: runWatcher,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "volowatch.yaml", "config file (JSON or YAML); missing means defaults + env")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(ledgerCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

// loadConfig reads and validates the config for one-shot commands.
func loadConfig() (*config.Config, error) {
	return config.NewManager(cfgPath).Load()
}
