package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/inodb/seqfill/internal/dataset"
	"github.com/inodb/seqfill/internal/duckdb"
	"github.com/inodb/seqfill/internal/output"
	"github.com/inodb/seqfill/internal/policy"
	"github.com/inodb/seqfill/internal/reference"
)

// Output formats.
const (
	formatCSV    = "csv"
	formatDuckDB = "duckdb"
)

func newBuildCmd() *cobra.Command {
	var (
		outputPath string
		table      string
		force      bool
		noManifest bool
	)

	cmd := &cobra.Command{
		Use:   "build <dataset-dir>",
		Short: "Build a sequence dataset from an interval dataset",
		Long: `Fetch every reference declared in <dataset-dir>/metadata.yaml, index it and
write each class table with an added seq column. Classes are written in
metadata order; the header is written once.`,
		Example: `  seqfill build data/eclip -o eclip.csv
  seqfill build --workers 4 --force data/eclip -o eclip.csv
  seqfill build --format duckdb --table eclip -o datasets.duckdb data/eclip`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if outputPath == "" {
				return &usageError{err: fmt.Errorf("--output is required")}
			}
			if noManifest {
				viper.Set(keyManifest, false)
			}
			return runBuild(cmd.Context(), args[0], outputPath, table, force)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&outputPath, "output", "o", "", "Output file (CSV file or DuckDB database)")
	f.StringVar(&table, "table", duckdb.DefaultDatasetTable, "Table name for DuckDB output")
	f.BoolVar(&force, "force", false, "Re-fetch references even when cached")
	f.IntP("workers", "w", 1, "Number of parallel workers")
	f.StringP("format", "f", formatCSV, "Output format: csv, duckdb")
	f.BoolVar(&noManifest, "no-manifest", false, "Do not record fetched references in the cache manifest")
	viper.BindPFlag(keyWorkers, f.Lookup("workers"))
	viper.BindPFlag(keyOutputFormat, f.Lookup("format"))

	return cmd
}

func runBuild(ctx context.Context, dir, outputPath, table string, force bool) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	c, manifest, err := openCache(logger)
	if err != nil {
		return err
	}
	if manifest != nil {
		defer manifest.Close()
	}

	sink, closeOutput, err := openSink(viper.GetString(keyOutputFormat), outputPath, table)
	if err != nil {
		return err
	}
	defer closeOutput()

	a := dataset.NewAssembler(c, policy.Default())
	a.SetLogger(logger)

	workers := viper.GetInt(keyWorkers)
	logger.Info("building dataset",
		zap.String("dataset", dir),
		zap.String("output", outputPath),
		zap.Int("workers", workers))

	sum, err := a.Assemble(ctx, dir, sink, dataset.Options{Force: force, Workers: workers})
	if err != nil {
		return err
	}
	if err := sink.Close(); err != nil {
		return fmt.Errorf("closing output: %w", err)
	}

	logger.Info("dataset written",
		zap.String("output", outputPath),
		zap.Int("classes", sum.Classes),
		zap.Int("rows", sum.Rows),
		zap.Int("references", sum.References))
	return nil
}

// openCache builds the reference cache from configuration. The returned
// manifest store is nil when the manifest is disabled.
func openCache(logger *zap.Logger) (*reference.Cache, *duckdb.Store, error) {
	dir := viper.GetString(keyCacheDir)

	fetcher := reference.NewHTTPFetcher()
	fetcher.SetLogger(logger)

	c := reference.NewCache(dir, fetcher)
	c.SetLogger(logger)

	if !viper.GetBool(keyManifest) {
		return c, nil, nil
	}
	store, err := duckdb.Open(filepath.Join(dir, duckdb.ManifestFileName))
	if err != nil {
		return nil, nil, fmt.Errorf("opening cache manifest: %w", err)
	}
	c.SetRecorder(store)
	return c, store, nil
}

// openSink creates the output sink for format. The returned cleanup func
// releases resources whether or not the sink was closed.
func openSink(format, path, table string) (output.Sink, func(), error) {
	switch format {
	case formatCSV:
		s := output.NewCSVSink(path)
		return s, func() { s.Close() }, nil
	case formatDuckDB:
		store, err := duckdb.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("opening output database: %w", err)
		}
		return duckdb.NewTableSink(store, table), func() { store.Close() }, nil
	default:
		return nil, nil, &usageError{err: fmt.Errorf("unknown output format %q (expected %s or %s)", format, formatCSV, formatDuckDB)}
	}
}
