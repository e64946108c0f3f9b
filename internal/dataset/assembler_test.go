package dataset

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/seqfill/internal/fasta"
	"github.com/inodb/seqfill/internal/join"
	"github.com/inodb/seqfill/internal/output"
	"github.com/inodb/seqfill/internal/policy"
	"github.com/inodb/seqfill/internal/reference"
)

// countingFetcher copies local files and counts fetches per locator.
type countingFetcher struct {
	mu    sync.Mutex
	calls map[string]int
	inner *reference.HTTPFetcher
}

func newCountingFetcher() *countingFetcher {
	return &countingFetcher{calls: make(map[string]int), inner: reference.NewHTTPFetcher()}
}

func (f *countingFetcher) Fetch(ctx context.Context, locator string, w io.Writer) (int64, error) {
	f.mu.Lock()
	f.calls[locator]++
	f.mu.Unlock()
	return f.inner.Fetch(ctx, locator, w)
}

// memorySink collects blocks in memory.
type memorySink struct {
	headers [][]string
	rows    [][][]string
}

func (s *memorySink) WriteBlock(header []string, rows [][]string) error {
	s.headers = append(s.headers, header)
	s.rows = append(s.rows, rows)
	return nil
}

func (s *memorySink) Close() error { return nil }

type fixture struct {
	dir      string
	genome   string
	cacheDir string
	fetcher  *countingFetcher
}

// newFixture creates a dataset directory with an Ensembl-style genome. Every
// GENOME_PATH in metadata is replaced by the genome's location.
func newFixture(t *testing.T, metadata string) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		dir:      filepath.Join(root, "dataset"),
		genome:   filepath.Join(root, "remote", "Homo_sapiens.GRCh38.dna.toplevel.fa.gz"),
		cacheDir: filepath.Join(root, "cache"),
		fetcher:  newCountingFetcher(),
	}
	require.NoError(t, os.MkdirAll(f.dir, 0755))
	require.NoError(t, os.MkdirAll(filepath.Dir(f.genome), 0755))

	writeGzipFile(t, f.genome, ">1 dna:chromosome\nACGTACGT\n>2 dna:chromosome\nAAAACCCC\n>MT dna:chromosome\nGGGG\n>GL000009.2 dna:scaffold\nTTTT\n")

	md := strings.ReplaceAll(metadata, "GENOME_PATH", f.genome)
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, MetadataFileName), []byte(md), 0644))
	return f
}

func (f *fixture) writeClass(t *testing.T, name, content string) {
	t.Helper()
	writeGzipFile(t, filepath.Join(f.dir, name+TableSuffix), content)
}

func (f *fixture) assembler(r *policy.Registry) *Assembler {
	return NewAssembler(reference.NewCache(f.cacheDir, f.fetcher), r)
}

// genomeRegistry holds an Ensembl-style genome policy without a record count.
var genomeRegistry = policy.New(map[string]policy.Policy{
	"GENOME": {StopMarker: "MT", Rename: policy.AddPrefix("chr")},
})

const twoClassMetadata = `classes:
  positive:
    type: fa.gz
    url: GENOME_PATH
    extra_processing: GENOME
  negative:
    type: fa.gz
    url: GENOME_PATH
    extra_processing: GENOME
`

func TestAssemble_EndToEnd(t *testing.T) {
	f := newFixture(t, twoClassMetadata)
	f.writeClass(t, "positive", "id,chr,start,end,strand\np0,chr1,2,6,+\np1,chr1,2,6,-\n")
	f.writeClass(t, "negative", "id,chr,start,end,strand\nn0,chr2,0,4,-\nn1,chr2,4,4,+\n")

	sink := &memorySink{}
	sum, err := f.assembler(genomeRegistry).Assemble(context.Background(), f.dir, sink, Options{})
	require.NoError(t, err)

	assert.Equal(t, Summary{Classes: 2, Rows: 4, References: 1}, sum)
	assert.Equal(t, 1, f.fetcher.calls[f.genome])

	require.Len(t, sink.headers, 2)
	assert.Equal(t, []string{"id", "chr", "start", "end", "strand", "seq"}, sink.headers[0])
	assert.Equal(t, [][]string{
		{"p0", "chr1", "2", "6", "+", "GTAC"},
		{"p1", "chr1", "2", "6", "-", "GTAC"},
	}, sink.rows[0])
	assert.Equal(t, [][]string{
		{"n0", "chr2", "0", "4", "-", "TTTT"},
		{"n1", "chr2", "4", "4", "+", ""},
	}, sink.rows[1])
}

func TestAssemble_CSVOutputAndCacheReuse(t *testing.T) {
	f := newFixture(t, twoClassMetadata)
	f.writeClass(t, "positive", "chr,start,end,strand\nchr1,0,8,+\n")
	f.writeClass(t, "negative", "chr,start,end,strand\nchr2,0,8,+\n")

	out := filepath.Join(t.TempDir(), "dataset.csv")
	for range 2 {
		sink := output.NewCSVSink(out)
		_, err := f.assembler(genomeRegistry).Assemble(context.Background(), f.dir, sink, Options{})
		require.NoError(t, err)
		require.NoError(t, sink.Close())
	}

	assert.Equal(t, 1, f.fetcher.calls[f.genome], "second run must reuse the cached reference")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "chr,start,end,strand,seq\nchr1,0,8,+,ACGTACGT\nchr2,0,8,+,AAAACCCC\n", string(data))
}

func TestAssemble_ForceRefetches(t *testing.T) {
	f := newFixture(t, twoClassMetadata)
	f.writeClass(t, "positive", "chr,start,end,strand\nchr1,0,1,+\n")
	f.writeClass(t, "negative", "chr,start,end,strand\nchr1,0,1,+\n")

	a := f.assembler(genomeRegistry)
	_, err := a.Assemble(context.Background(), f.dir, &memorySink{}, Options{})
	require.NoError(t, err)
	_, err = a.Assemble(context.Background(), f.dir, &memorySink{}, Options{Force: true})
	require.NoError(t, err)

	assert.Equal(t, 2, f.fetcher.calls[f.genome])
}

func TestAssemble_ParallelKeepsClassOrder(t *testing.T) {
	var md strings.Builder
	md.WriteString("classes:\n")
	names := []string{"c0", "c1", "c2", "c3", "c4", "c5", "c6", "c7"}
	f := newFixture(t, "")
	for _, n := range names {
		md.WriteString("  " + n + ":\n    type: fa.gz\n    url: " + f.genome + "\n    extra_processing: GENOME\n")
		f.writeClass(t, n, "name,chr,start,end,strand\n"+n+",chr1,0,4,+\n")
	}
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, MetadataFileName), []byte(md.String()), 0644))

	sink := &memorySink{}
	sum, err := f.assembler(genomeRegistry).Assemble(context.Background(), f.dir, sink, Options{Workers: 4})
	require.NoError(t, err)
	assert.Equal(t, 8, sum.Rows)

	require.Len(t, sink.rows, len(names))
	for i, n := range names {
		assert.Equal(t, n, sink.rows[i][0][0])
	}
}

func TestAssemble_UnknownPolicyFailsBeforeFetch(t *testing.T) {
	f := newFixture(t, `classes:
  a:
    type: fa.gz
    url: GENOME_PATH
    extra_processing: ENSEMBL_ZEBRAFISH_GENOME
`)

	_, err := f.assembler(policy.Default()).Assemble(context.Background(), f.dir, &memorySink{}, Options{})
	var upe *policy.UnknownPolicyError
	require.True(t, errors.As(err, &upe))
	assert.Equal(t, "ENSEMBL_ZEBRAFISH_GENOME", upe.Name)
	assert.Empty(t, f.fetcher.calls)
}

func TestAssemble_UnsupportedTypeFailsBeforeFetch(t *testing.T) {
	f := newFixture(t, `classes:
  a:
    type: fa.gz
    url: GENOME_PATH
  b:
    type: 2bit
    url: https://example.org/hg38.2bit
`)

	_, err := f.assembler(policy.Default()).Assemble(context.Background(), f.dir, &memorySink{}, Options{})
	var ute *reference.UnsupportedReferenceTypeError
	require.True(t, errors.As(err, &ute))
	assert.Empty(t, f.fetcher.calls)
}

func TestAssemble_MissingRegion(t *testing.T) {
	f := newFixture(t, twoClassMetadata)
	f.writeClass(t, "positive", "chr,start,end,strand\nchr1,0,1,+\n")
	// chrMT is behind the stop marker, so it is not in the index.
	f.writeClass(t, "negative", "chr,start,end,strand\nchrMT,0,1,+\nchrGL000009.2,0,1,+\n")

	sink := &memorySink{}
	_, err := f.assembler(genomeRegistry).Assemble(context.Background(), f.dir, sink, Options{})

	var mre *join.MissingReferenceRegionError
	require.True(t, errors.As(err, &mre))
	assert.Equal(t, []string{"chrMT", "chrGL000009.2"}, mre.Missing)
	assert.Contains(t, err.Error(), "class negative")

	// Blocks before the failing class were already written.
	assert.Len(t, sink.rows, 1)
}

func TestAssemble_IntegrityError(t *testing.T) {
	f := newFixture(t, `classes:
  a:
    type: fa.gz
    url: GENOME_PATH
    extra_processing: ENSEMBL_HUMAN_GENOME
`)
	f.writeClass(t, "a", "chr,start,end,strand\nchr1,0,1,+\n")

	_, err := f.assembler(policy.Default()).Assemble(context.Background(), f.dir, &memorySink{}, Options{})
	var rie *fasta.ReferenceIntegrityError
	require.True(t, errors.As(err, &rie))
	assert.Equal(t, 24, rie.Expected)
	assert.Equal(t, 2, rie.Actual)
}

func TestAssemble_MissingTable(t *testing.T) {
	f := newFixture(t, twoClassMetadata)
	f.writeClass(t, "positive", "chr,start,end,strand\nchr1,0,1,+\n")

	_, err := f.assembler(genomeRegistry).Assemble(context.Background(), f.dir, &memorySink{}, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "class negative")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestAssemble_DownloadError(t *testing.T) {
	f := newFixture(t, `classes:
  a:
    type: fa.gz
    url: /does/not/exist/ref.fa.gz
`)

	_, err := f.assembler(policy.Default()).Assemble(context.Background(), f.dir, &memorySink{}, Options{})
	var de *reference.DownloadError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "/does/not/exist/ref.fa.gz", de.Locator)
}

func TestAssemble_SamePathDifferentPolicies(t *testing.T) {
	f := newFixture(t, `classes:
  raw:
    type: fa.gz
    url: GENOME_PATH
  prefixed:
    type: fa.gz
    url: GENOME_PATH
    extra_processing: GENOME
`)
	f.writeClass(t, "raw", "chr,start,end,strand\n1,0,2,+\n")
	f.writeClass(t, "prefixed", "chr,start,end,strand\nchr1,0,2,+\n")

	sink := &memorySink{}
	sum, err := f.assembler(genomeRegistry).Assemble(context.Background(), f.dir, sink, Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, sum.References)
	assert.Equal(t, 1, f.fetcher.calls[f.genome])
	assert.Equal(t, "AC", sink.rows[0][0][4])
	assert.Equal(t, "AC", sink.rows[1][0][4])
}
