package audio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Downloader fetches episode audio into a scratch directory. Downloaded
// files are transient and removed once transcription completes.
type Downloader struct {
	dir    string
	client *http.Client
}

func NewDownloader(dir string) *Downloader {
	return &Downloader{
		dir:    dir,
		client: &http.Client{Timeout: 10 * time.Minute},
	}
}

// Download writes the audio at url to <dir>/<name>.mp3 and returns the path
// and size in bytes. An existing file with the same name is reused.
func (d *Downloader) Download(ctx context.Context, name, url string) (string, int64, error) {
	if err := os.MkdirAll(d.dir, 0o750); err != nil {
		return "", 0, err
	}

	path := filepath.Join(d.dir, name+".mp3")
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		return path, info.Size(), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("audio download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("audio download failed: status %d", resp.StatusCode)
	}

	f, err := os.Create(path) // #nosec G304 -- path is built from the configured scratch dir
	if err != nil {
		return "", 0, err
	}

	written, err := io.Copy(f, resp.Body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("audio download failed: %w", err)
	}

	return path, written, nil
}
