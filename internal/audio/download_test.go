package audio_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"podrag/internal/audio"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fake mp3 bytes"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	d := audio.NewDownloader(dir)

	path, size, err := d.Download(context.Background(), "2025-07-08", srv.URL)

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "2025-07-08.mp3"), path)
	assert.Equal(t, int64(len("fake mp3 bytes")), size)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "fake mp3 bytes", string(content))
}

func TestDownload_ReusesExistingFile(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	d := audio.NewDownloader(t.TempDir())
	ctx := context.Background()

	_, _, err := d.Download(ctx, "ep", srv.URL)
	require.NoError(t, err)
	_, size, err := d.Download(ctx, "ep", srv.URL)
	require.NoError(t, err)

	assert.Equal(t, 1, hits)
	assert.Equal(t, int64(len("payload")), size)
}

func TestDownload_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	d := audio.NewDownloader(t.TempDir())
	_, _, err := d.Download(context.Background(), "ep", srv.URL)

	assert.ErrorContains(t, err, "status 404")
}
