package dataset

import (
	"bufio"
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"

	"github.com/inodb/seqfill/internal/join"
)

// Interval table column names.
const (
	ColChrom  = "chr"
	ColStart  = "start"
	ColEnd    = "end"
	ColStrand = "strand"
	ColSeq    = "seq"
)

// TableError reports a malformed interval table.
type TableError struct {
	Path    string
	Line    int
	Message string
}

func (e *TableError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s line %d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Table is an interval table with every original column kept as text.
type Table struct {
	Header    []string
	Rows      [][]string
	Intervals []join.Interval
}

// ReadTable reads a CSV interval table. Gzip-compressed files are detected by
// their magic bytes.
func ReadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open interval table: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	var r io.Reader = br
	if magic, _ := br.Peek(2); len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	return parseTable(path, r)
}

func parseTable(path string, r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, &TableError{Path: path, Message: "no header line found"}
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := map[string]int{ColChrom: -1, ColStart: -1, ColEnd: -1, ColStrand: -1}
	for i, name := range header {
		if _, ok := cols[name]; ok {
			cols[name] = i
		}
	}
	for _, name := range []string{ColChrom, ColStart, ColEnd, ColStrand} {
		if cols[name] == -1 {
			return nil, &TableError{Path: path, Line: 1, Message: fmt.Sprintf("required column %q not found in header", name)}
		}
	}

	t := &Table{Header: header}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &TableError{Path: path, Message: err.Error()}
		}
		line, _ := cr.FieldPos(0)

		start, err := strconv.ParseInt(rec[cols[ColStart]], 10, 64)
		if err != nil {
			return nil, &TableError{Path: path, Line: line, Message: fmt.Sprintf("invalid start: %q", rec[cols[ColStart]])}
		}
		end, err := strconv.ParseInt(rec[cols[ColEnd]], 10, 64)
		if err != nil {
			return nil, &TableError{Path: path, Line: line, Message: fmt.Sprintf("invalid end: %q", rec[cols[ColEnd]])}
		}

		t.Rows = append(t.Rows, rec)
		t.Intervals = append(t.Intervals, join.Interval{
			Chrom:  rec[cols[ColChrom]],
			Start:  start,
			End:    end,
			Strand: rec[cols[ColStrand]],
		})
	}

	return t, nil
}

// WithSequences returns the table's header and rows with a seq column holding
// seqs. An existing seq column is overwritten in place; otherwise the column
// is appended.
func (t *Table) WithSequences(seqs []string) ([]string, [][]string) {
	if len(seqs) != len(t.Rows) {
		panic(fmt.Sprintf("dataset: %d sequences for %d rows", len(seqs), len(t.Rows)))
	}

	header := slices.Clone(t.Header)
	col := slices.Index(header, ColSeq)
	if col == -1 {
		header = append(header, ColSeq)
	}

	rows := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		out := slices.Clone(row)
		if col == -1 {
			out = append(out, seqs[i])
		} else {
			out[col] = seqs[i]
		}
		rows[i] = out
	}
	return header, rows
}
