package imagestore

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuongbtq/market-bridge/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStore_Materialize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.jpg" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("image-bytes:" + r.URL.Path))
	}))
	defer srv.Close()

	dir := filepath.Join(t.TempDir(), "images")
	store := New(&Config{Dir: dir, Logger: testLogger()})

	product := &domain.Product{
		Title:   "Phone",
		Article: "12345",
		ImageURLs: []string{
			srv.URL + "/a.jpg?size=large",
			srv.URL + "/missing.jpg",
			srv.URL + "/c.png",
		},
	}

	require.NoError(t, store.Materialize(context.Background(), "10.0.0.5", "Ozon", product))

	assert.Nil(t, product.ImageURLs)
	assert.Equal(t, []string{
		"10.0.0.5-12345-Ozon-0.webp",
		"10.0.0.5-12345-Ozon-2.webp",
	}, product.Images)

	data, err := os.ReadFile(filepath.Join(dir, "10.0.0.5-12345-Ozon-0.webp"))
	require.NoError(t, err)
	assert.Equal(t, "image-bytes:/a.jpg", string(data))

	_, err = os.Stat(filepath.Join(dir, "10.0.0.5-12345-Ozon-1.webp"))
	assert.True(t, os.IsNotExist(err))
}

func TestStore_MaterializeWithoutImages(t *testing.T) {
	store := New(&Config{Dir: t.TempDir(), Logger: testLogger()})
	product := &domain.Product{Title: "No pictures"}

	require.NoError(t, store.Materialize(context.Background(), "c", "DNS", product))
	assert.NotNil(t, product.Images)
	assert.Empty(t, product.Images)
}

func TestStore_MaterializeFailsWhenDirectoryUnavailable(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	store := New(&Config{Dir: filepath.Join(file, "images"), Logger: testLogger()})
	err := store.Materialize(context.Background(), "c", "DNS", &domain.Product{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create image directory")
}

func TestStore_Cleanup(t *testing.T) {
	dir := t.TempDir()
	store := New(&Config{Dir: dir, Logger: testLogger()})

	oldFile := filepath.Join(dir, "old.webp")
	newFile := filepath.Join(dir, "new.webp")
	require.NoError(t, os.WriteFile(oldFile, []byte("old"), 0o644))
	require.NoError(t, os.WriteFile(newFile, []byte("new"), 0o644))

	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(oldFile, past, past))

	deleted, err := store.Cleanup(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = os.Stat(oldFile)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(newFile)
	assert.NoError(t, err)
}

func TestStore_CleanupMissingDirectory(t *testing.T) {
	store := New(&Config{Dir: filepath.Join(t.TempDir(), "absent"), Logger: testLogger()})

	deleted, err := store.Cleanup(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
}

func TestFileName(t *testing.T) {
	tests := []struct {
		name        string
		clientKey   string
		article     string
		marketplace string
		index       int
		expected    string
	}{
		{
			name:        "ipv4 client",
			clientKey:   "10.0.0.5",
			article:     "A1",
			marketplace: "Ozon",
			index:       0,
			expected:    "10.0.0.5-A1-Ozon-0.webp",
		},
		{
			name:        "ipv6 client",
			clientKey:   "::1",
			article:     "A1",
			marketplace: "M_Video",
			index:       3,
			expected:    "_1-A1-M_Video-3.webp",
		},
		{
			name:        "path traversal in article",
			clientKey:   "c",
			article:     "../../etc/passwd",
			marketplace: "DNS",
			index:       1,
			expected:    "c-.._.._etc_passwd-DNS-1.webp",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FileName(tt.clientKey, tt.article, tt.marketplace, tt.index))
		})
	}
}

func TestStore_MaterializeKeepsOrderUnderConcurrency(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// earlier images answer last
		if r.URL.Path == "/0.jpg" {
			time.Sleep(50 * time.Millisecond)
		}
		_, _ = w.Write([]byte(r.URL.Path))
	}))
	defer srv.Close()

	store := New(&Config{Dir: t.TempDir(), Concurrency: 3, Logger: testLogger()})
	product := &domain.Product{
		Article:   "A1",
		ImageURLs: []string{srv.URL + "/0.jpg", srv.URL + "/1.jpg", srv.URL + "/2.jpg"},
	}

	require.NoError(t, store.Materialize(context.Background(), "c", "Ozon", product))
	assert.Equal(t, []string{"c-A1-Ozon-0.webp", "c-A1-Ozon-1.webp", "c-A1-Ozon-2.webp"}, product.Images)
}
