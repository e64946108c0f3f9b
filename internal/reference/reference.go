// Package reference manages the local cache of reference genome and
// transcriptome files.
package reference

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// Kind identifies the on-disk format of a reference.
type Kind string

// KindFASTAGz is a gzip-compressed FASTA file.
const KindFASTAGz Kind = "fa.gz"

// Descriptor declares one reference used by a dataset.
type Descriptor struct {
	Locator string // URL or local path of the reference
	Kind    Kind
	Policy  string // preprocessing policy name; empty means default
}

// UnsupportedReferenceTypeError is returned for reference kinds other than fa.gz.
type UnsupportedReferenceTypeError struct {
	Locator string
	Kind    Kind
}

func (e *UnsupportedReferenceTypeError) Error() string {
	return fmt.Sprintf("unknown reference type %q for %s", string(e.Kind), e.Locator)
}

// Validate checks that the descriptor's kind is supported.
func (d Descriptor) Validate() error {
	if d.Kind != KindFASTAGz {
		return &UnsupportedReferenceTypeError{Locator: d.Locator, Kind: d.Kind}
	}
	return nil
}

// Name derives the cache file name for a locator: its final path segment.
// For URLs the query string and fragment are ignored; local paths are taken
// verbatim, so '#' and '?' stay part of the file name. It returns "" when the
// locator has no usable final segment (e.g. it ends in a slash).
func Name(locator string) string {
	if u, err := url.Parse(locator); err == nil && u.Scheme != "" {
		return lastSegment(u.Path, "/", path.Base)
	}
	return lastSegment(locator, string(filepath.Separator), filepath.Base)
}

func lastSegment(p, sep string, base func(string) string) string {
	if p == "" || strings.HasSuffix(p, "/") || strings.HasSuffix(p, sep) {
		return ""
	}
	switch b := base(p); b {
	case ".", "..", "/", sep:
		return ""
	default:
		return b
	}
}

// Unique returns the distinct descriptors in order of first declaration.
func Unique(ds []Descriptor) []Descriptor {
	seen := make(map[Descriptor]bool, len(ds))
	out := make([]Descriptor, 0, len(ds))
	for _, d := range ds {
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}
