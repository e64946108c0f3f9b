package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/inodb/seqfill/internal/duckdb"
	"github.com/inodb/seqfill/internal/reference"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the local reference cache",
		Long:  "List or remove cached references. Entries are tracked in manifest.duckdb inside the cache directory.",
		Example: `  seqfill cache list
  seqfill cache remove Homo_sapiens.GRCh38.dna.toplevel.fa.gz`,
		Args: cobra.NoArgs,
	}

	cmd.AddCommand(newCacheListCmd())
	cmd.AddCommand(newCacheRemoveCmd())

	return cmd
}

func newCacheListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached references and whether they changed on disk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheList()
		},
	}
}

func newCacheRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Delete a cached reference and forget it",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheRemove(args[0])
		},
	}
}

func openManifest() (*duckdb.Store, error) {
	path := filepath.Join(viper.GetString(keyCacheDir), duckdb.ManifestFileName)
	store, err := duckdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening cache manifest: %w", err)
	}
	return store, nil
}

func runCacheList() error {
	store, err := openManifest()
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.Entries()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Printf("# No cached references in %s\n", viper.GetString(keyCacheDir))
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSIZE\tSTATUS\tRECORDED\tLOCATOR")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.Name,
			reference.FormatSize(e.Size),
			duckdb.Verify(e),
			e.RecordedAt.Local().Format("2006-01-02 15:04"),
			e.Locator)
	}
	return tw.Flush()
}

func runCacheRemove(name string) error {
	// Names are single path segments; refuse anything that could escape the cache.
	if name != filepath.Base(name) || name == "." || name == ".." {
		return &usageError{err: fmt.Errorf("invalid cache entry name %q", name)}
	}

	store, err := openManifest()
	if err != nil {
		return err
	}
	defer store.Close()

	path := filepath.Join(viper.GetString(keyCacheDir), name)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	if err := store.ForgetEntry(name); err != nil {
		return err
	}

	fmt.Printf("Removed %s\n", path)
	return nil
}
