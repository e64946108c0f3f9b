package fasta

import (
	"fmt"
	"io"
	"sort"

	"go.uber.org/zap"

	"github.com/inodb/seqfill/internal/policy"
)

// Index maps canonical record names to their full sequences. It is read-only
// once built and safe for concurrent use.
type Index struct {
	sequences map[string]string
}

// NewIndex creates an index from an existing name -> sequence map. The map is
// copied.
func NewIndex(sequences map[string]string) *Index {
	m := make(map[string]string, len(sequences))
	for k, v := range sequences {
		m[k] = v
	}
	return &Index{sequences: m}
}

// Len returns the number of records in the index.
func (x *Index) Len() int {
	return len(x.sequences)
}

// Has reports whether a record with the given canonical name exists.
func (x *Index) Has(name string) bool {
	_, ok := x.sequences[name]
	return ok
}

// Sequence returns the sequence for a canonical record name.
func (x *Index) Sequence(name string) (string, bool) {
	s, ok := x.sequences[name]
	return s, ok
}

// Names returns all canonical record names, sorted.
func (x *Index) Names() []string {
	names := make([]string, 0, len(x.sequences))
	for name := range x.sequences {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ReferenceIntegrityError is returned when a parsed reference does not hold the
// number of records its policy expects.
type ReferenceIntegrityError struct {
	Path     string
	Expected int
	Actual   int
}

func (e *ReferenceIntegrityError) Error() string {
	return fmt.Sprintf("reference %s: expected %d records, found %d", e.Path, e.Expected, e.Actual)
}

// Builder parses reference FASTA files into indices.
type Builder struct {
	logger *zap.Logger
}

// NewBuilder creates a new index builder.
func NewBuilder() *Builder {
	return &Builder{logger: zap.NewNop()}
}

// SetLogger sets the logger for warning and info messages.
func (b *Builder) SetLogger(l *zap.Logger) {
	b.logger = l
}

// Build reads the FASTA file at path and indexes it under the given policy.
func (b *Builder) Build(path string, p policy.Policy) (*Index, error) {
	rr, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer rr.Close()

	idx, err := b.build(rr, p)
	if err != nil {
		return nil, fmt.Errorf("build index from %s: %w", path, err)
	}

	if p.ExpectedCount != nil && idx.Len() != *p.ExpectedCount {
		return nil, &ReferenceIntegrityError{Path: path, Expected: *p.ExpectedCount, Actual: idx.Len()}
	}

	b.logger.Info("built sequence index",
		zap.String("path", path),
		zap.Int("records", idx.Len()))
	return idx, nil
}

func (b *Builder) build(rr *RecordReader, p policy.Policy) (*Index, error) {
	idx := &Index{sequences: make(map[string]string)}

	for {
		rec, err := rr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		key := p.CanonicalName(rec.Name)

		// The marker record is a sentinel: nothing from it onwards is indexed.
		if p.StopMarker != "" && (rec.Name == p.StopMarker || key == p.StopMarker) {
			b.logger.Debug("stop marker reached",
				zap.String("marker", p.StopMarker),
				zap.Int("records", idx.Len()))
			break
		}

		if _, dup := idx.sequences[key]; dup {
			b.logger.Warn("duplicate record name, keeping the later sequence",
				zap.String("name", key))
		}
		idx.sequences[key] = rec.Seq
	}

	return idx, nil
}

// Build indexes the FASTA file at path using a builder without logging.
func Build(path string, p policy.Policy) (*Index, error) {
	return NewBuilder().Build(path, p)
}
