package reference

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"go.uber.org/zap"
)

// Fetcher copies the resource named by a locator into w.
type Fetcher interface {
	Fetch(ctx context.Context, locator string, w io.Writer) (int64, error)
}

// DownloadError is returned when a reference cannot be transferred.
type DownloadError struct {
	Locator string
	Err     error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s: %v", e.Locator, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// HTTPFetcher fetches http(s) URLs, file:// URLs and plain local paths.
type HTTPFetcher struct {
	client *http.Client
	logger *zap.Logger
}

// NewHTTPFetcher creates a fetcher with a long timeout suited to genome-sized files.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: 30 * time.Minute, // Long timeout for large files
		},
		logger: zap.NewNop(),
	}
}

// SetLogger sets the logger used for progress messages.
func (f *HTTPFetcher) SetLogger(l *zap.Logger) {
	f.logger = l
}

// SetClient replaces the HTTP client.
func (f *HTTPFetcher) SetClient(c *http.Client) {
	f.client = c
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, locator string, w io.Writer) (int64, error) {
	u, err := url.Parse(locator)
	if err != nil || u.Scheme == "" {
		// Plain local path; not URL-decoded.
		return f.copyFile(locator, w)
	}

	switch u.Scheme {
	case "http", "https":
		return f.fetchHTTP(ctx, locator, w)
	case "file":
		return f.copyFile(u.Path, w)
	default:
		return 0, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}

func (f *HTTPFetcher) fetchHTTP(ctx context.Context, locator string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("HTTP error: %s", resp.Status)
	}

	pw := &progressWriter{
		name:      Name(locator),
		total:     resp.ContentLength,
		lastPrint: time.Now(),
		logger:    f.logger,
	}

	n, err := io.Copy(w, io.TeeReader(resp.Body, pw))
	if err != nil {
		return n, fmt.Errorf("download failed: %w", err)
	}
	if resp.ContentLength > 0 && n != resp.ContentLength {
		return n, fmt.Errorf("download truncated: got %s of %s", FormatSize(n), FormatSize(resp.ContentLength))
	}
	return n, nil
}

func (f *HTTPFetcher) copyFile(path string, w io.Writer) (int64, error) {
	src, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open source file: %w", err)
	}
	defer src.Close()

	n, err := io.Copy(w, src)
	if err != nil {
		return n, fmt.Errorf("copy failed: %w", err)
	}
	return n, nil
}

// progressWriter logs download progress at most once per second.
type progressWriter struct {
	name       string
	total      int64
	downloaded int64
	lastPrint  time.Time
	logger     *zap.Logger
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n := len(p)
	pw.downloaded += int64(n)

	if time.Since(pw.lastPrint) > time.Second {
		fields := []zap.Field{
			zap.String("file", pw.name),
			zap.String("downloaded", FormatSize(pw.downloaded)),
		}
		if pw.total > 0 {
			pct := float64(pw.downloaded) / float64(pw.total) * 100
			fields = append(fields,
				zap.String("total", FormatSize(pw.total)),
				zap.String("percent", fmt.Sprintf("%.1f", pct)))
		}
		pw.logger.Info("download progress", fields...)
		pw.lastPrint = time.Now()
	}

	return n, nil
}

// FormatSize formats bytes as human-readable size.
func FormatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
