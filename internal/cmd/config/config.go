// Package config provides CLI commands for managing teamwork configuration.
package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	appconfig "github.com/Iron-Ham/teamwork/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify teamwork configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  teamwork config set worker.idle_timeout_ms 120000
  teamwork config set execution.command "claude -p"
  teamwork config set presentation.tmux true

Run 'teamwork config show' for every key.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd, configInitCmd, configPathCmd)
}

// Register adds all config-related commands to the given parent command.
func Register(parent *cobra.Command) {
	parent.AddCommand(configCmd)
}

// keyKinds maps every settable key to the type its value is parsed as.
var keyKinds = map[string]string{
	"storage.teams_root":        "string",
	"storage.tasks_root":        "string",
	"lock.timeout_ms":           "int",
	"lock.stale_after_ms":       "int",
	"lock.retry_interval_ms":    "int",
	"worker.poll_interval_ms":   "int",
	"worker.idle_timeout_ms":    "int",
	"worker.join_timeout_ms":    "int",
	"execution.max_concurrency": "int",
	"execution.max_attempts":    "int",
	"execution.backoff_base_ms": "int",
	"execution.max_steps":       "int",
	"execution.command":         "string",
	"events.max_queue":          "int",
	"logging.level":             "level",
	"logging.dir":               "string",
	"logging.max_size_mb":       "int",
	"logging.max_backups":       "int",
	"presentation.tmux":         "bool",
	"metrics.addr":              "string",
}

// SettableKeys returns every key 'config set' accepts, sorted.
func SettableKeys() []string {
	keys := make([]string, 0, len(keyKinds))
	for k := range keyKinds {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// parseValue converts value to the type key holds.
func parseValue(key, value string) (any, error) {
	kind, ok := keyKinds[key]
	if !ok {
		return nil, fmt.Errorf("unknown configuration key: %s\nValid keys: %s", key, strings.Join(SettableKeys(), ", "))
	}
	switch kind {
	case "bool":
		if value != "true" && value != "false" {
			return nil, fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		return value == "true", nil
	case "int":
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected integer", key)
		}
		if n < 0 {
			return nil, fmt.Errorf("invalid value for %s: must be non-negative", key)
		}
		return n, nil
	case "level":
		if !slices.Contains(appconfig.ValidLogLevels(), value) {
			return nil, fmt.Errorf("invalid value for %s: %s\nValid options: %s",
				key, value, strings.Join(appconfig.ValidLogLevels(), ", "))
		}
		return value, nil
	}
	return value, nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Fprintf(out, "# Config file: %s\n", used)
	} else {
		fmt.Fprintln(out, "# Config file: (none - using defaults)")
	}
	data, err := yaml.Marshal(viper.AllSettings())
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]
	typed, err := parseValue(key, value)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(appconfig.ConfigDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	viper.Set(key, typed)

	// Refuse to persist a combination Load would reject.
	if _, err := appconfig.Load(); err != nil {
		return err
	}

	configFile := appconfig.ConfigFile()
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %v\nConfig saved to %s\n", key, typed, configFile)
	return nil
}

// defaultConfigTemplate is written by 'config init'.
const defaultConfigTemplate = `# teamwork configuration

storage:
  # Team configs, inboxes and work items (default <config dir>/teams)
  teams_root: ""
  # Task boards (default <config dir>/tasks)
  tasks_root: ""

lock:
  timeout_ms: 3000
  # Locks older than this are presumed abandoned and reclaimed
  stale_after_ms: 30000
  retry_interval_ms: 10

worker:
  poll_interval_ms: 50
  # Idle workers retire after this long (0 = never)
  idle_timeout_ms: 60000
  # How long team deletion waits for workers to exit
  join_timeout_ms: 5000

execution:
  # Simultaneous work items across every team
  max_concurrency: 4
  # Tries for rate limits and timeouts
  max_attempts: 3
  backoff_base_ms: 500
  max_steps: 8
  # Shell command run per work item: instruction on stdin, result on stdout
  command: ""

events:
  max_queue: 1000

logging:
  # debug, info, warn or error
  level: info
  # Directory for teamwork.log (empty = stderr)
  dir: ""
  # Rotate teamwork.log at this size, keeping max_backups old files
  max_size_mb: 10
  max_backups: 3

presentation:
  # Mirror teams into tmux: one session per team, one window per teammate
  tmux: false

metrics:
  # Listen address for /metrics under 'teamwork serve' (empty = disabled)
  addr: ""
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configFile := appconfig.ConfigFile()
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'teamwork config set' to modify values", configFile)
	}
	if err := os.MkdirAll(appconfig.ConfigDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(configFile, []byte(defaultConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created config file at %s\n", configFile)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Fprintf(out, "Active config: %s\n", used)
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", appconfig.ConfigFile())
	}
	fmt.Fprintln(out, "\nEnvironment variables: TEAMWORK_* (e.g., TEAMWORK_WORKER_IDLE_TIMEOUT_MS)")
	return nil
}
