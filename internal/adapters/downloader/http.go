package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"videocorpus/internal/core/ports"
	"videocorpus/internal/logger"
)

var _ ports.Downloader = (*HTTPDownloader)(nil)

// HTTPDownloader implements ports.Downloader using standard HTTP.
type HTTPDownloader struct {
	client *http.Client
	logger *logger.Logger
}

// NewHTTPDownloader creates a new HTTPDownloader.
func NewHTTPDownloader(log *logger.Logger) *HTTPDownloader {
	if log == nil {
		log = logger.Nop()
	}
	return &HTTPDownloader{
		client: &http.Client{
			Timeout: 30 * time.Minute, // model weights can be large
		},
		logger: log,
	}
}

// Download fetches the resource at the given URL.
func (d *HTTPDownloader) Download(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", url, err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return resp.Body, nil
}

// EnsureFile downloads url to dest unless dest already exists. It reports
// whether a download happened. The body goes to dest.part and is renamed into place.
func (d *HTTPDownloader) EnsureFile(ctx context.Context, url, dest string) (bool, error) {
	if _, err := os.Stat(dest); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("failed to stat %s: %w", dest, err)
	}
	if url == "" {
		return false, fmt.Errorf("%s does not exist and no download url is configured", dest)
	}

	if dir := filepath.Dir(dest); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return false, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	d.logger.LogInfof("Fetching %s", url)
	body, err := d.Download(ctx, url)
	if err != nil {
		return false, err
	}
	defer body.Close()

	tmp := dest + ".part"
	file, err := os.Create(tmp)
	if err != nil {
		return false, fmt.Errorf("failed to create file %s: %w", tmp, err)
	}

	n, err := io.Copy(file, body)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return false, fmt.Errorf("failed to write %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return false, fmt.Errorf("failed to move %s into place: %w", dest, err)
	}

	d.logger.LogSuccessf("Saved %d bytes to %s", n, dest)
	return true, nil
}
