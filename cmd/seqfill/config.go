package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// setting is a configuration key that may be persisted to the config file.
type setting struct {
	key   string
	help  string
	parse func(string) (any, error)
}

var settings = []setting{
	{keyCacheDir, "reference cache directory", parseDir},
	{keyManifest, "record cached references in manifest.duckdb (true/false)", parseBool},
	{keyWorkers, "parallel workers for build (>= 1)", parseWorkers},
	{keyOutputFormat, "build output format (csv, duckdb)", parseFormat},
	{keyLogLevel, "log level (debug, info, warn, error)", parseLevel},
}

func lookupSetting(key string) (setting, bool) {
	for _, s := range settings {
		if s.key == key {
			return s, true
		}
	}
	return setting{}, false
}

func settingsHelp() string {
	var b strings.Builder
	for _, s := range settings {
		fmt.Fprintf(&b, "  %-15s %s\n", s.key, s.help)
	}
	return b.String()
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage seqfill configuration",
		Long: `Show, get, or set configuration values. Config is stored in ~/.seqfill.yaml
and may be overridden with SEQFILL_* environment variables (e.g. SEQFILL_CACHE_DIR).

Keys:
` + settingsHelp(),
		Example: `  seqfill config                             # show effective settings
  seqfill config set cache.dir /data/refs    # move the reference cache
  seqfill config set workers 4               # build with 4 workers
  seqfill config get output.format           # get a value`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow()
		},
	}

	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigGetCmd())

	return cmd
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			return runConfigSet(path, args[0], args[1])
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigGet(args[0])
		},
	}
}

func configPath() (string, error) {
	if used := viper.ConfigFileUsed(); used != "" {
		return used, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, configFileName), nil
}

// runConfigShow prints the effective value of every known setting, whether it
// comes from the file, the environment or a default.
func runConfigShow() error {
	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Printf("# Config file: %s\n", used)
	}

	effective := viper.New()
	for _, s := range settings {
		effective.Set(s.key, viper.Get(s.key))
	}

	out, err := yaml.Marshal(effective.AllSettings())
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	fmt.Print(string(out))
	return nil
}

// runConfigSet validates value and stores it in the config file at path. Only
// known settings already in the file are carried over; defaults, flags and
// unknown keys are never written.
func runConfigSet(path, key, value string) error {
	s, ok := lookupSetting(key)
	if !ok {
		return &usageError{err: fmt.Errorf("unknown config key %q; known keys:\n%s", key, settingsHelp())}
	}
	v, err := s.parse(value)
	if err != nil {
		return &usageError{err: fmt.Errorf("invalid value for %s: %w", key, err)}
	}

	current := viper.New()
	current.SetConfigFile(path)
	if err := current.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config: %w", err)
	}

	next := viper.New()
	for _, known := range settings {
		if current.IsSet(known.key) {
			next.Set(known.key, current.Get(known.key))
		}
	}
	next.Set(key, v)

	if err := next.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("Set %s = %v in %s\n", key, v, path)
	return nil
}

func runConfigGet(key string) error {
	if _, ok := lookupSetting(key); !ok {
		return &usageError{err: fmt.Errorf("unknown config key %q", key)}
	}
	fmt.Println(viper.Get(key))
	return nil
}

func parseDir(value string) (any, error) {
	if strings.TrimSpace(value) == "" {
		return nil, fmt.Errorf("directory must not be empty")
	}
	return filepath.Clean(value), nil
}

func parseBool(value string) (any, error) {
	switch strings.ToLower(value) {
	case "true", "yes", "on", "1":
		return true, nil
	case "false", "no", "off", "0":
		return false, nil
	}
	return nil, fmt.Errorf("%q is not a boolean", value)
}

func parseWorkers(value string) (any, error) {
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return nil, fmt.Errorf("%q is not a positive integer", value)
	}
	return n, nil
}

func parseFormat(value string) (any, error) {
	switch value {
	case formatCSV, formatDuckDB:
		return value, nil
	}
	return nil, fmt.Errorf("%q is not one of %s, %s", value, formatCSV, formatDuckDB)
}

func parseLevel(value string) (any, error) {
	l, err := zapcore.ParseLevel(value)
	if err != nil {
		return nil, err
	}
	return l.String(), nil
}
