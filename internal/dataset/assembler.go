package dataset

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/inodb/seqfill/internal/fasta"
	"github.com/inodb/seqfill/internal/join"
	"github.com/inodb/seqfill/internal/output"
	"github.com/inodb/seqfill/internal/policy"
	"github.com/inodb/seqfill/internal/reference"
)

// TableSuffix is appended to a class name to form its interval table file name.
const TableSuffix = ".csv.gz"

// Options controls a single assembly run.
type Options struct {
	Force   bool // re-fetch every reference even when cached
	Workers int  // parallel index builds and table resolutions; <= 1 is sequential
}

// Summary describes a finished assembly run.
type Summary struct {
	Classes    int
	Rows       int
	References int
}

// Assembler turns an interval-list dataset into a full-sequence dataset.
type Assembler struct {
	cache    *reference.Cache
	registry *policy.Registry
	builder  *fasta.Builder
	logger   *zap.Logger
}

// NewAssembler creates an assembler that fetches references through c and
// resolves preprocessing policies from r.
func NewAssembler(c *reference.Cache, r *policy.Registry) *Assembler {
	return &Assembler{
		cache:    c,
		registry: r,
		builder:  fasta.NewBuilder(),
		logger:   zap.NewNop(),
	}
}

// SetLogger sets the logger for the assembler and its index builder.
func (a *Assembler) SetLogger(l *zap.Logger) {
	a.logger = l
	a.builder.SetLogger(l)
}

// indexKey identifies one built index: the same file parsed under a
// different policy yields a different index.
type indexKey struct {
	locator string
	policy  string
}

func keyOf(d reference.Descriptor) indexKey {
	return indexKey{locator: d.Locator, policy: d.Policy}
}

// Assemble reads the dataset in dir, fills in sequences and writes each class
// as one block to sink, in metadata order.
func (a *Assembler) Assemble(ctx context.Context, dir string, sink output.Sink, opts Options) (Summary, error) {
	md, err := LoadMetadata(filepath.Join(dir, MetadataFileName))
	if err != nil {
		return Summary{}, err
	}

	// Configuration errors surface before anything is fetched or parsed.
	descs := md.Descriptors()
	policies := make(map[indexKey]policy.Policy)
	for _, d := range descs {
		if err := d.Validate(); err != nil {
			return Summary{}, err
		}
		p, err := a.registry.Lookup(d.Policy)
		if err != nil {
			return Summary{}, err
		}
		policies[keyOf(d)] = p
	}

	entries, err := a.cache.EnsureAll(ctx, descs, opts.Force)
	if err != nil {
		return Summary{}, err
	}
	paths := make(map[string]string, len(entries))
	for _, e := range entries {
		paths[e.Locator] = e.Path
	}

	indices, err := a.buildIndices(ctx, reference.Unique(descs), paths, policies, opts.Workers)
	if err != nil {
		return Summary{}, err
	}

	rows, err := a.resolveClasses(ctx, dir, md.Classes, indices, sink, opts.Workers)
	if err != nil {
		return Summary{}, err
	}

	return Summary{Classes: len(md.Classes), Rows: rows, References: len(indices)}, nil
}

func (a *Assembler) buildIndices(ctx context.Context, descs []reference.Descriptor, paths map[string]string,
	policies map[indexKey]policy.Policy, workers int) (map[indexKey]*fasta.Index, error) {
	built := make([]*fasta.Index, len(descs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i, d := range descs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			a.logger.Info("loading reference into memory",
				zap.String("path", paths[d.Locator]),
				zap.String("policy", d.Policy))
			idx, err := a.builder.Build(paths[d.Locator], policies[keyOf(d)])
			if err != nil {
				return err
			}
			built[i] = idx
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	indices := make(map[indexKey]*fasta.Index, len(descs))
	for i, d := range descs {
		indices[keyOf(d)] = built[i]
	}
	return indices, nil
}

func (a *Assembler) resolveClasses(ctx context.Context, dir string, classes []Class,
	indices map[indexKey]*fasta.Index, sink output.Sink, workers int) (int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	items := make(chan join.WorkItem)
	var readErr error
	go func() {
		defer close(items)
		for i, c := range classes {
			t, err := ReadTable(filepath.Join(dir, c.Name+TableSuffix))
			if err != nil {
				readErr = fmt.Errorf("class %s: %w", c.Name, err)
				return
			}
			item := join.WorkItem{
				Seq:       i,
				Source:    indices[keyOf(c.Descriptor())],
				Intervals: t.Intervals,
				Extra:     t,
			}
			select {
			case items <- item:
			case <-ctx.Done():
				return
			}
		}
	}()

	var rows int
	err := join.OrderedCollect(join.ParallelResolve(items, max(workers, 1)), func(r join.WorkResult) error {
		c := classes[r.Seq]
		if r.Err != nil {
			cancel()
			return fmt.Errorf("class %s: %w", c.Name, r.Err)
		}
		header, out := r.Extra.(*Table).WithSequences(r.Sequences)
		if err := sink.WriteBlock(header, out); err != nil {
			cancel()
			return fmt.Errorf("class %s: %w", c.Name, err)
		}
		rows += len(out)
		a.logger.Info("wrote class",
			zap.String("class", c.Name),
			zap.Int("rows", len(out)))
		return nil
	})
	if err != nil {
		return rows, err
	}
	// The producer has exited once the items channel is closed, which
	// OrderedCollect waits for.
	if readErr != nil {
		return rows, readErr
	}
	return rows, nil
}
