package duckdb

import (
	"fmt"
	"os"
	"time"

	"github.com/inodb/seqfill/internal/reference"
)

// Manifest entry states reported by Verify.
const (
	StatusOK      = "ok"
	StatusMissing = "missing"
	StatusChanged = "changed"
)

// ManifestEntry is one recorded reference cache file.
type ManifestEntry struct {
	reference.Entry
	ModTime    time.Time
	RecordedAt time.Time
}

var _ reference.Recorder = (*Store)(nil)

// RecordEntry implements reference.Recorder. The file's current size and
// modification time are stored so later runs can detect external changes.
func (s *Store) RecordEntry(e reference.Entry) error {
	fp, err := StatFile(e.Path)
	if err != nil {
		return fmt.Errorf("stat cached reference: %w", err)
	}

	_, err = s.db.Exec(`INSERT OR REPLACE INTO reference_cache
		(name, locator, path, size, mod_time, reused, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Name, e.Locator, e.Path, fp.Size, fp.ModTime.UTC(), e.Reused, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert manifest entry: %w", err)
	}
	return nil
}

// Entries returns all recorded cache entries ordered by name.
func (s *Store) Entries() ([]ManifestEntry, error) {
	rows, err := s.db.Query(`SELECT name, locator, path, size, mod_time, reused, recorded_at
		FROM reference_cache ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query manifest: %w", err)
	}
	defer rows.Close()

	var entries []ManifestEntry
	for rows.Next() {
		var m ManifestEntry
		if err := rows.Scan(&m.Name, &m.Locator, &m.Path, &m.Size, &m.ModTime, &m.Reused, &m.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan manifest entry: %w", err)
		}
		entries = append(entries, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate manifest: %w", err)
	}
	return entries, nil
}

// Verify compares a recorded entry with the file currently on disk.
func Verify(m ManifestEntry) string {
	fp, err := StatFile(m.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return StatusMissing
		}
		return StatusChanged
	}
	recorded := FileFingerprint{Path: m.Path, Size: m.Size, ModTime: m.ModTime}
	if !fp.Matches(recorded) {
		return StatusChanged
	}
	return StatusOK
}

// ForgetEntry removes a cache entry from the manifest.
func (s *Store) ForgetEntry(name string) error {
	if _, err := s.db.Exec(`DELETE FROM reference_cache WHERE name = ?`, name); err != nil {
		return fmt.Errorf("delete manifest entry: %w", err)
	}
	return nil
}
