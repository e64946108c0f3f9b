// Package fasta builds in-memory sequence indices from reference FASTA files.
package fasta

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"

	"github.com/biogo/biogo/alphabet"
	biofasta "github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/seq/linear"
)

// Record is a single named FASTA entry.
type Record struct {
	Name        string // header token before the first whitespace
	Description string
	Seq         string
}

// RecordReader yields FASTA records one at a time. It is single-pass: once a
// record has been returned it cannot be read again without reopening the source.
type RecordReader struct {
	r       *biofasta.Reader
	file    *os.File
	gz      *gzip.Reader
	records int
}

// Open opens a FASTA file for reading. Gzip-compressed files are detected by
// their magic bytes, so both .fa and .fa.gz are accepted.
func Open(path string) (*RecordReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fasta file: %w", err)
	}

	rr, err := newRecordReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	rr.file = f
	return rr, nil
}

// NewRecordReader creates a reader over r, decompressing it if it is gzipped.
func NewRecordReader(r io.Reader) (*RecordReader, error) {
	return newRecordReader(r)
}

func newRecordReader(r io.Reader) (*RecordReader, error) {
	br := bufio.NewReaderSize(r, 1<<20)
	rr := &RecordReader{}

	var src io.Reader = br
	if magic, _ := br.Peek(2); len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open gzip reader: %w", err)
		}
		rr.gz = gz
		src = gz
	}

	rr.r = biofasta.NewReader(src, linear.NewSeq("", nil, alphabet.DNA))
	return rr, nil
}

// Next returns the next record, or io.EOF when the source is exhausted.
func (rr *RecordReader) Next() (Record, error) {
	s, err := rr.r.Read()
	if err != nil {
		if err == io.EOF {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("read fasta record %d: %w", rr.records+1, err)
	}
	rr.records++

	ls, ok := s.(*linear.Seq)
	if !ok {
		return Record{}, fmt.Errorf("read fasta record %d: unexpected sequence type %T", rr.records, s)
	}

	// Letters are bytes; copy them out so the record owns its sequence.
	b := make([]byte, len(ls.Seq))
	for i, l := range ls.Seq {
		b[i] = byte(l)
	}

	return Record{
		Name:        ls.Name(),
		Description: ls.Description(),
		Seq:         string(b),
	}, nil
}

// Close releases the underlying file and decompressor.
func (rr *RecordReader) Close() error {
	var err error
	if rr.gz != nil {
		err = rr.gz.Close()
	}
	if rr.file != nil {
		if cerr := rr.file.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
