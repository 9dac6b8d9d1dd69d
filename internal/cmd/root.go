package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cmdconfig "github.com/Iron-Ham/teamwork/internal/cmd/config"
	"github.com/Iron-Ham/teamwork/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "teamwork",
	Short: "Multi-agent team control plane",
	Long: `Teamwork runs teams of agents: a lead that coordinates and teammates that
work through their inboxes, assigned work items and a shared task board.

Team state lives on disk, so every command can be run from any shell.
Work is executed by a long-running 'teamwork serve'.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/teamwork/config.yaml)")
	rootCmd.PersistentFlags().Bool("json", false, "print JSON instead of text")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	cmdconfig.Register(rootCmd)
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("TEAMWORK")
	// TEAMWORK_WORKER_IDLE_TIMEOUT_MS for worker.idle_timeout_ms
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
