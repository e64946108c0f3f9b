package duckdb

import (
	"os"
	"time"
)

// FileFingerprint holds stat-based identity for a file.
type FileFingerprint struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// StatFile creates a FileFingerprint from an on-disk file.
func StatFile(path string) (FileFingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileFingerprint{}, err
	}
	return FileFingerprint{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// Matches reports whether two fingerprints describe the same file contents.
// Modification times are compared at microsecond precision, the resolution
// DuckDB stores timestamps with.
func (f FileFingerprint) Matches(other FileFingerprint) bool {
	return f.Size == other.Size &&
		f.ModTime.UTC().Truncate(time.Microsecond).Equal(other.ModTime.UTC().Truncate(time.Microsecond))
}
