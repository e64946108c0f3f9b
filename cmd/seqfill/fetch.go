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
	"github.com/inodb/seqfill/internal/reference"
)

func newFetchCmd() *cobra.Command {
	var (
		force      bool
		noManifest bool
	)

	cmd := &cobra.Command{
		Use:   "fetch <dataset-dir>",
		Short: "Download the references a dataset needs without building it",
		Example: `  seqfill fetch data/eclip
  seqfill fetch --force --cache-dir /data/refs data/eclip`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if noManifest {
				viper.Set(keyManifest, false)
			}
			return runFetch(cmd.Context(), args[0], force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Re-fetch references even when cached")
	cmd.Flags().BoolVar(&noManifest, "no-manifest", false, "Do not record fetched references in the cache manifest")

	return cmd
}

func runFetch(ctx context.Context, dir string, force bool) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	md, err := dataset.LoadMetadata(filepath.Join(dir, dataset.MetadataFileName))
	if err != nil {
		return err
	}

	c, manifest, err := openCache(logger)
	if err != nil {
		return err
	}
	if manifest != nil {
		defer manifest.Close()
	}

	entries, err := c.EnsureAll(ctx, md.Descriptors(), force)
	if err != nil {
		return err
	}

	seen := make(map[string]bool)
	for _, e := range entries {
		if seen[e.Path] {
			continue
		}
		seen[e.Path] = true
		state := "fetched"
		if e.Reused {
			state = "cached"
		}
		fmt.Printf("%-8s %10s  %s\n", state, reference.FormatSize(e.Size), e.Path)
	}
	logger.Debug("fetch complete", zap.Int("references", len(seen)))
	return nil
}
