package downloader

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("weights"))
	}))
	defer srv.Close()

	d := NewHTTPDownloader(nil)

	body, err := d.Download(context.Background(), srv.URL+"/model.onnx")
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, body.Close())
	assert.Equal(t, "weights", string(data))

	_, err = d.Download(context.Background(), srv.URL+"/missing")
	assert.ErrorContains(t, err, "404")
}

func TestEnsureFile(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("onnx-bytes"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "models", "yolov8n.onnx")
	d := NewHTTPDownloader(nil)

	fetched, err := d.EnsureFile(context.Background(), srv.URL+"/yolov8n.onnx", dest)
	require.NoError(t, err)
	assert.True(t, fetched)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "onnx-bytes", string(data))
	assert.NoFileExists(t, dest+".part")

	fetched, err = d.EnsureFile(context.Background(), srv.URL+"/yolov8n.onnx", dest)
	require.NoError(t, err)
	assert.False(t, fetched)
	assert.Equal(t, int32(1), hits.Load())
}

func TestEnsureFileWithoutURL(t *testing.T) {
	_, err := NewHTTPDownloader(nil).EnsureFile(context.Background(), "", filepath.Join(t.TempDir(), "x.onnx"))
	assert.Error(t, err)
}

func TestEnsureFileServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "x.onnx")
	_, err := NewHTTPDownloader(nil).EnsureFile(context.Background(), srv.URL, dest)
	assert.Error(t, err)
	assert.NoFileExists(t, dest)
}
