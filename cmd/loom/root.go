// Root command for the loom CLI.
package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is the CLI version string.
const version = "v0.1.0"

// Global flag values.
var (
	flagConfigDir string
	flagDatabase  string
)

// config holds the loaded configuration, set by PersistentPreRunE so all
// subcommands can use it.
var config *viper.Viper

var rootCmd = &cobra.Command{
	Use:     "loom",
	Short:   "Loom turns entity changes into ordered database writes",
	Version: version,
	Long: `Loom is the persistence core of an object-relational mapper. The CLI
reads change records, queues them through per-table mappers, and executes
the resulting commands against a SQLite database in dependency order.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(flagConfigDir)
		if err != nil {
			return err
		}
		config = cfg
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigDir, "config-dir", "", "configuration directory (default: $(CWD)/.loom)")
	rootCmd.PersistentFlags().StringVar(&flagDatabase, "database", "", "SQLite database path (overrides config)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(applyCmd)
}

// databasePath returns the SQLite database path, flag over config.
func databasePath() string {
	if flagDatabase != "" {
		return flagDatabase
	}
	return config.GetString(cfgKeyDatabase)
}
