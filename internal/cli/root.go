// Package cli implements the arbmon command surface.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/relab/arbmon/config"
)

var (
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "arbmon",
		Short: "Real-time arbitrage monitor for EVM chains",
		Long: `arbmon watches BSC and Polygon for executed arbitrage transactions and
imbalanced liquidity pools, persists what it finds, and streams detections
to WebSocket subscribers.`,
	}
)

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.arbmon.yaml)")
	rootCmd.PersistentFlags().String("database-url", "", "postgres connection URL")
	rootCmd.PersistentFlags().String("data-dir", "~/.arbmon", "directory for the sync checkpoint store")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("listen", ":8080", "address for the websocket/metrics listener")
	rootCmd.PersistentFlags().Int("max-subscribers", 100, "maximum concurrent websocket subscribers")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		panic(err)
	}
}

func initConfig() {
	config.Defaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigName(".arbmon")
		}
	}

	viper.SetEnvPrefix("arbmon")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "using config file:", viper.ConfigFileUsed())
	}
}
