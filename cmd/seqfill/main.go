// Package main provides the seqfill command-line tool.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Exit codes
const (
	ExitSuccess = 0
	ExitError   = 1
	ExitUsage   = 2
)

// Version information (set at build time)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Configuration keys.
const (
	keyCacheDir     = "cache.dir"
	keyManifest     = "cache.manifest"
	keyWorkers      = "workers"
	keyOutputFormat = "output.format"
	keyLogLevel     = "log.level"
	keyVerbose      = "verbose"
)

const configFileName = ".seqfill.yaml"

// usageError marks errors caused by bad invocation rather than bad data.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var ue *usageError
		if errors.As(err, &ue) {
			return ExitUsage
		}
		return ExitError
	}
	return ExitSuccess
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "seqfill",
		Short: "Fill interval datasets with reference sequences",
		Long: `seqfill turns an interval dataset (a metadata.yaml plus one <class>.csv.gz
table per class) into a sequence dataset by fetching each declared reference,
indexing it and extracting the oriented sequence of every interval.`,
		Example: `  seqfill build data/eclip -o eclip.csv
  seqfill build --format duckdb -o eclip.duckdb data/eclip
  seqfill fetch data/eclip
  seqfill cache list`,
		Version:       fmt.Sprintf("%s (%s) built %s", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cfgFile)
		},
	}

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	pf := cmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default: ~/"+configFileName+")")
	pf.String("cache-dir", "", "Reference cache directory (default: ~/.seqfill/references)")
	pf.BoolP("verbose", "v", false, "Enable debug logging")
	viper.BindPFlag(keyCacheDir, pf.Lookup("cache-dir"))
	viper.BindPFlag(keyVerbose, pf.Lookup("verbose"))

	cmd.AddCommand(newBuildCmd())
	cmd.AddCommand(newFetchCmd())
	cmd.AddCommand(newCacheCmd())
	cmd.AddCommand(newPoliciesCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// initConfig loads ~/.seqfill.yaml (or the file given with --config) and
// SEQFILL_* environment variables.
func initConfig(cfgFile string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("cannot determine home directory: %w", err)
	}

	viper.SetDefault(keyCacheDir, filepath.Join(home, ".seqfill", "references"))
	viper.SetDefault(keyManifest, true)
	viper.SetDefault(keyWorkers, 1)
	viper.SetDefault(keyOutputFormat, formatCSV)
	viper.SetDefault(keyLogLevel, "info")

	viper.SetEnvPrefix("SEQFILL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config %s: %w", cfgFile, err)
		}
		return nil
	}

	viper.SetConfigFile(filepath.Join(home, configFileName))
	// A missing default config file is fine.
	if err := viper.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}

// newLogger builds the CLI logger. --verbose forces debug level; otherwise
// log.level applies.
func newLogger() (*zap.Logger, error) {
	level := zapcore.DebugLevel
	if !viper.GetBool(keyVerbose) {
		l, err := zapcore.ParseLevel(viper.GetString(keyLogLevel))
		if err != nil {
			return nil, &usageError{err: fmt.Errorf("invalid log level: %w", err)}
		}
		level = l
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.DisableStacktrace = true
	cfg.Sampling = nil
	return cfg.Build()
}

// exactArgs is cobra.ExactArgs reporting failures as usage errors.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return &usageError{err: err}
		}
		return nil
	}
}
