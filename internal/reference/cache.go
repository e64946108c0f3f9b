package reference

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Entry is a reference present in the local cache.
type Entry struct {
	Locator string
	Name    string
	Path    string
	Size    int64
	Reused  bool // true when the cached copy was kept instead of fetched
}

// Recorder is notified of every ensured cache entry (e.g. a manifest table).
type Recorder interface {
	RecordEntry(e Entry) error
}

// Cache keeps one file per distinct reference under a root directory.
type Cache struct {
	root     string
	fetcher  Fetcher
	recorder Recorder
	logger   *zap.Logger
}

// NewCache creates a cache rooted at dir that fetches missing references with f.
func NewCache(dir string, f Fetcher) *Cache {
	return &Cache{
		root:    dir,
		fetcher: f,
		logger:  zap.NewNop(),
	}
}

// SetLogger sets the logger for info messages.
func (c *Cache) SetLogger(l *zap.Logger) {
	c.logger = l
}

// SetRecorder attaches a recorder that is told about every ensured entry.
func (c *Cache) SetRecorder(r Recorder) {
	c.recorder = r
}

// Root returns the cache directory.
func (c *Cache) Root() string {
	return c.root
}

// Path returns the cache location for a locator, or "" if the locator has no
// usable name.
func (c *Cache) Path(locator string) string {
	name := Name(locator)
	if name == "" {
		return ""
	}
	return filepath.Join(c.root, name)
}

// Ensure makes sure the reference is present in the cache. It fetches when
// force is set or no non-empty file exists at the cache path. Fetched data is
// written to a temporary file and renamed into place, so the cache path never
// holds a partial download.
func (c *Cache) Ensure(ctx context.Context, d Descriptor, force bool) (Entry, error) {
	if err := d.Validate(); err != nil {
		return Entry{}, err
	}

	name := Name(d.Locator)
	if name == "" {
		return Entry{}, fmt.Errorf("reference %s: cannot derive a cache name", d.Locator)
	}

	if err := os.MkdirAll(c.root, 0755); err != nil {
		return Entry{}, fmt.Errorf("create cache directory: %w", err)
	}

	dest := filepath.Join(c.root, name)
	entry := Entry{Locator: d.Locator, Name: name, Path: dest}

	if !force {
		if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
			c.logger.Info("reference already exists, skipping",
				zap.String("path", dest),
				zap.String("size", FormatSize(info.Size())))
			entry.Size = info.Size()
			entry.Reused = true
			return entry, c.record(entry)
		}
	}

	c.logger.Info("fetching reference",
		zap.String("locator", d.Locator),
		zap.String("path", dest))

	size, err := c.fetchAtomic(ctx, d.Locator, dest)
	if err != nil {
		return Entry{}, &DownloadError{Locator: d.Locator, Err: err}
	}
	entry.Size = size

	c.logger.Info("fetched reference",
		zap.String("path", dest),
		zap.String("size", FormatSize(size)))
	return entry, c.record(entry)
}

// EnsureAll ensures every distinct descriptor once, in order of first declaration.
func (c *Cache) EnsureAll(ctx context.Context, ds []Descriptor, force bool) ([]Entry, error) {
	unique := Unique(ds)
	for _, d := range unique {
		if err := d.Validate(); err != nil {
			return nil, err
		}
	}

	entries := make([]Entry, 0, len(unique))
	fetched := make(map[string]Entry)
	for _, d := range unique {
		// The same file may be declared with different policies; fetch it once.
		if e, ok := fetched[d.Locator]; ok {
			entries = append(entries, e)
			continue
		}
		e, err := c.Ensure(ctx, d, force)
		if err != nil {
			return nil, err
		}
		fetched[d.Locator] = e
		entries = append(entries, e)
	}
	return entries, nil
}

func (c *Cache) fetchAtomic(ctx context.Context, locator, dest string) (int64, error) {
	tmpPath := filepath.Join(c.root, "."+filepath.Base(dest)+"."+uuid.NewString()+".tmp")
	f, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("create file: %w", err)
	}

	n, err := c.fetcher.Fetch(ctx, locator, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n == 0 {
		err = fmt.Errorf("empty response")
	}
	if err != nil {
		os.Remove(tmpPath)
		return 0, err
	}

	// Rename temp file to final destination
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("rename file: %w", err)
	}
	return n, nil
}

func (c *Cache) record(e Entry) error {
	if c.recorder == nil {
		return nil
	}
	if err := c.recorder.RecordEntry(e); err != nil {
		return fmt.Errorf("record cache entry %s: %w", e.Name, err)
	}
	return nil
}
