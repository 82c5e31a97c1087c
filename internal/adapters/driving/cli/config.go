package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sitesync/internal/adapters/driven/config/file"
	"github.com/custodia-labs/sitesync/internal/core/ports/driven"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Read and change settings in config.toml",
	Long: `Reads and changes settings in config.toml using dotted keys, e.g.

  sitesync config get engine.max_attempts
  sitesync config set policy.conflict newest_wins
  sitesync config set engine.workers 8

A running "sitesync run" picks up policy changes without a restart.
Other settings apply the next time it starts.`,
}

var configGetCmd = &cobra.Command{
	Use:         "get [key]",
	Short:       "Print a setting, or every setting",
	Args:        cobra.MaximumNArgs(1),
	Annotations: map[string]string{skipServices: "true"},
	RunE:        runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:         "set <key> <value>",
	Short:       "Change a setting",
	Args:        cobra.ExactArgs(2),
	Annotations: map[string]string{skipServices: "true"},
	RunE:        runConfigSet,
}

var configPathCmd = &cobra.Command{
	Use:         "path",
	Short:       "Print the configuration file path",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{skipServices: "true"},
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := settingsStore()
		if err != nil {
			return err
		}
		cmd.Println(store.Path())
		return nil
	},
}

func init() {
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// settingsStore returns the injected config store, or opens the file in
// the configuration directory. Config commands work even when the rest of
// the configuration is broken.
func settingsStore() (driven.ConfigStore, error) {
	if configStore != nil {
		return configStore, nil
	}
	dir := configDir
	if dir == "" {
		var err error
		if dir, err = file.DefaultDir(); err != nil {
			return nil, err
		}
	}
	store, err := file.NewConfigStore(dir)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	configStore = store
	return store, nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	store, err := settingsStore()
	if err != nil {
		return err
	}

	if len(args) == 1 {
		v, ok := store.Get(args[0])
		if !ok {
			return fmt.Errorf("setting %s is not set", args[0])
		}
		if outputFormat != formatText {
			return render(cmd, map[string]any{args[0]: v}, nil)
		}
		cmd.Println(formatValue(v))
		return nil
	}

	keys := store.Keys()
	if outputFormat != formatText {
		all := make(map[string]any, len(keys))
		for _, k := range keys {
			all[k], _ = store.Get(k)
		}
		return render(cmd, all, nil)
	}
	if len(keys) == 0 {
		cmd.Printf("No settings in %s\n", store.Path())
		return nil
	}
	for _, k := range keys {
		v, _ := store.Get(k)
		cmd.Printf("%s = %s\n", k, formatValue(v))
	}
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	store, err := settingsStore()
	if err != nil {
		return err
	}

	key, value := args[0], parseValue(args[1])
	if err := store.Set(key, value); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}

	// Report settings the engine cannot load without undoing the change.
	if _, err := file.LoadSettings(store.Path()); err != nil {
		cmd.Printf("Warning: %v\n", err)
	}
	cmd.Printf("Set %s = %s\n", key, formatValue(value))
	return nil
}

// parseValue keeps numbers and booleans typed in the TOML file.
func parseValue(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return strconv.Quote(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
