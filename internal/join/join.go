// Package join extracts oriented subsequences for interval records from a
// sequence index.
package join

import (
	"fmt"
	"strings"

	"github.com/inodb/seqfill/internal/fasta"
)

// Strand values accepted in interval tables.
const (
	StrandForward = "+"
	StrandReverse = "-"
)

// maxReportedMissing caps how many missing names are listed in an error.
const maxReportedMissing = 6

// Interval is one row of an interval table. Coordinates are 0-based, half-open.
type Interval struct {
	Chrom  string
	Start  int64
	End    int64
	Strand string
}

// SequenceSource is the read-only view of an index needed for joining.
type SequenceSource interface {
	Sequence(name string) (string, bool)
	Has(name string) bool
}

var _ SequenceSource = (*fasta.Index)(nil)

// MissingReferenceRegionError is returned when intervals name records that are
// absent from the index.
type MissingReferenceRegionError struct {
	Missing []string // first missing names, in order of first occurrence
	Total   int      // number of distinct missing names
}

func (e *MissingReferenceRegionError) Error() string {
	msg := "some chromosomes not found in the reference, e.g. " + strings.Join(e.Missing, " ")
	if e.Total > len(e.Missing) {
		msg += fmt.Sprintf(" (and %d more)", e.Total-len(e.Missing))
	}
	return msg
}

// InvalidStrandError is returned for a strand other than "+" or "-".
type InvalidStrandError struct {
	Row    int
	Strand string
}

func (e *InvalidStrandError) Error() string {
	return fmt.Sprintf("row %d: invalid strand %q (expected %q or %q)", e.Row, e.Strand, StrandForward, StrandReverse)
}

// CoordinateOutOfRangeError is returned when an interval does not fit inside
// its record.
type CoordinateOutOfRangeError struct {
	Row    int
	Chrom  string
	Start  int64
	End    int64
	Length int
}

func (e *CoordinateOutOfRangeError) Error() string {
	return fmt.Sprintf("row %d: interval %s:%d-%d out of range for record of length %d",
		e.Row, e.Chrom, e.Start, e.End, e.Length)
}

// CheckNames returns a MissingReferenceRegionError if any interval names a
// record that is not in the index.
func CheckNames(idx SequenceSource, intervals []Interval) error {
	seen := make(map[string]bool)
	var missing []string
	for _, iv := range intervals {
		if seen[iv.Chrom] {
			continue
		}
		seen[iv.Chrom] = true
		if !idx.Has(iv.Chrom) {
			missing = append(missing, iv.Chrom)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	shown := missing
	if len(shown) > maxReportedMissing {
		shown = shown[:maxReportedMissing]
	}
	return &MissingReferenceRegionError{Missing: shown, Total: len(missing)}
}

// Resolve returns the oriented subsequence for every interval, in input order.
// Record names are validated once up front; the first malformed row aborts.
func Resolve(idx SequenceSource, intervals []Interval) ([]string, error) {
	if err := CheckNames(idx, intervals); err != nil {
		return nil, err
	}

	out := make([]string, len(intervals))
	for i, iv := range intervals {
		s, err := extract(idx, i, iv)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func extract(idx SequenceSource, row int, iv Interval) (string, error) {
	if iv.Strand != StrandForward && iv.Strand != StrandReverse {
		return "", &InvalidStrandError{Row: row, Strand: iv.Strand}
	}

	seq, _ := idx.Sequence(iv.Chrom)
	if iv.Start < 0 || iv.End < iv.Start || iv.End > int64(len(seq)) {
		return "", &CoordinateOutOfRangeError{
			Row: row, Chrom: iv.Chrom, Start: iv.Start, End: iv.End, Length: len(seq),
		}
	}

	sub := seq[iv.Start:iv.End]
	if iv.Strand == StrandReverse {
		return ReverseComplement(sub), nil
	}
	return sub, nil
}
