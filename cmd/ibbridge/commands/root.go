package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	env        string
	verbose    bool
	simulate   bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ibbridge",
	Short: "Interactive Brokers order bridge",
	Long: `ibbridge - order bridge for the Interactive Brokers Client Portal gateway.

Places market, limit, stop, trailing and bracket orders on stocks, indices
and options, finds at-the-money options and reads account values.
Serves an HTTP API, an interactive desk and one-shot commands.

Usage:
  ibbridge [command]

Examples:
  ibbridge serve
  ibbridge desk
  ibbridge order --symbol NVDA --qty 1 --type Limit --limit 120
  ibbridge atm --symbol SPX --right P
  ibbridge orders --sim`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config overlay (default: CONFIG_FILE)")
	rootCmd.PersistentFlags().StringVar(&env, "env", "", "environment (development|staging|production)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&simulate, "sim", false, "use the in-process simulated broker instead of the gateway")
}
