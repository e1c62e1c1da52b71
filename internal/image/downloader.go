package image

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Downloader fetches a record's image URL to local disk. Generated image URLs
// expire after a while on the provider side, so downloading is how a result
// is kept.
type Downloader struct {
	httpClient *http.Client
	strict     bool
}

func NewDownloader(strict bool) *Downloader {
	return &Downloader{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		strict: strict,
	}
}

// Download validates the URL, fetches it, and writes the bytes to path.
// It returns the number of bytes written.
func (d *Downloader) Download(ctx context.Context, rawURL, path string) (int64, error) {
	if err := ValidateImageURL(rawURL, d.strict); err != nil {
		return 0, fmt.Errorf("refusing to download: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return 0, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	n, err := io.Copy(file, resp.Body)
	if err != nil {
		return n, fmt.Errorf("failed to write file: %w", err)
	}
	return n, nil
}

// DefaultFilename names a downloaded image after its record.
func DefaultFilename(recordID string, t time.Time) string {
	return fmt.Sprintf("image-%s-%s.png", t.Format("20060102-150405"), shortID(recordID))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
