// Package output writes assembled datasets block by block.
package output

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"slices"
	"strings"
)

// Sink receives a dataset one block (class) at a time. The first block
// defines the header; later blocks must carry the same columns.
type Sink interface {
	WriteBlock(header []string, rows [][]string) error
	Close() error
}

// HeaderMismatchError is returned when a block's columns differ from the
// columns of the first block.
type HeaderMismatchError struct {
	Want []string
	Got  []string
}

func (e *HeaderMismatchError) Error() string {
	return fmt.Sprintf("block columns [%s] do not match output columns [%s]",
		strings.Join(e.Got, ","), strings.Join(e.Want, ","))
}

// CheckHeader returns a HeaderMismatchError when got differs from want.
func CheckHeader(want, got []string) error {
	if !slices.Equal(want, got) {
		return &HeaderMismatchError{Want: want, Got: got}
	}
	return nil
}

// CSVSink writes a cumulative CSV file. The first block creates (or
// truncates) the file and writes the header; later blocks append rows only.
type CSVSink struct {
	path   string
	file   *os.File
	bw     *bufio.Writer
	w      *csv.Writer
	header []string
	rows   int
}

// NewCSVSink creates a sink for path. Nothing is written until the first block.
func NewCSVSink(path string) *CSVSink {
	return &CSVSink{path: path}
}

// WriteBlock writes one block of rows.
func (s *CSVSink) WriteBlock(header []string, rows [][]string) error {
	if s.file == nil {
		f, err := os.Create(s.path)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		s.file = f
		s.bw = bufio.NewWriter(f)
		s.w = csv.NewWriter(s.bw)
		s.header = slices.Clone(header)
		if err := s.w.Write(header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	} else if err := CheckHeader(s.header, header); err != nil {
		return err
	}

	if err := s.w.WriteAll(rows); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	s.rows += len(rows)
	return nil
}

// Rows returns the number of data rows written so far.
func (s *CSVSink) Rows() int {
	return s.rows
}

// Close flushes buffered rows and closes the file.
func (s *CSVSink) Close() error {
	if s.file == nil {
		return nil
	}
	s.w.Flush()
	err := s.w.Error()
	if ferr := s.bw.Flush(); err == nil {
		err = ferr
	}
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	s.file = nil
	if err != nil {
		return fmt.Errorf("close output file: %w", err)
	}
	return nil
}
