package imagestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cuongbtq/market-bridge/internal/domain"
	"golang.org/x/sync/errgroup"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Config holds image store configuration
type Config struct {
	Dir          string
	ImageTimeout time.Duration
	Concurrency  int // parallel downloads per product, default 4
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

// Store downloads product images to local disk and prunes old files
type Store struct {
	dir          string
	imageTimeout time.Duration
	concurrency  int
	httpClient   *http.Client
	logger       *slog.Logger
}

// New creates an image store rooted at cfg.Dir
func New(cfg *Config) *Store {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	imageTimeout := cfg.ImageTimeout
	if imageTimeout <= 0 {
		imageTimeout = 10 * time.Second
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	return &Store{
		dir:          cfg.Dir,
		imageTimeout: imageTimeout,
		concurrency:  concurrency,
		httpClient:   httpClient,
		logger:       cfg.Logger,
	}
}

// Dir returns the directory images are written to
func (s *Store) Dir() string {
	return s.dir
}

// Materialize downloads every image URL of product and replaces the URLs with
// local file names. Individual download failures are skipped.
func (s *Store) Materialize(ctx context.Context, clientKey, marketplace string, product *domain.Product) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create image directory: %w", err)
	}

	saved := make([]string, len(product.ImageURLs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, imageURL := range product.ImageURLs {
		i, imageURL := i, imageURL
		name := FileName(clientKey, product.Article, marketplace, i)

		g.Go(func() error {
			if err := s.download(gctx, imageURL, filepath.Join(s.dir, name)); err != nil {
				s.logger.Warn("Failed to download image",
					slog.String("url", imageURL),
					slog.String("client_key", clientKey),
					slog.String("marketplace", marketplace),
					slog.Any("error", err),
				)
				return nil
			}

			saved[i] = name
			s.logger.Debug("Image saved",
				slog.String("file", name),
			)
			return nil
		})
	}
	_ = g.Wait()

	// keep source order, dropping failed downloads
	images := make([]string, 0, len(saved))
	for _, name := range saved {
		if name != "" {
			images = append(images, name)
		}
	}

	product.Images = images
	product.ImageURLs = nil
	return nil
}

func (s *Store) download(ctx context.Context, imageURL, path string) error {
	ctx, cancel := context.WithTimeout(ctx, s.imageTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}

	tmp, err := os.CreateTemp(s.dir, ".download-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close image file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move image into place: %w", err)
	}
	return nil
}

// Cleanup deletes images last modified before now-olderThan and returns how many were removed
func (s *Store) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read image directory: %w", err)
	}

	cutoff := time.Now().Add(-olderThan)
	deleted := 0

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		if entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			s.logger.Error("Failed to delete image",
				slog.String("file", entry.Name()),
				slog.Any("error", err),
			)
			continue
		}
		deleted++
	}

	s.logger.Info("Image cleanup finished",
		slog.Int("deleted", deleted),
		slog.Duration("retention", olderThan),
	)
	return deleted, nil
}

// FileName builds the on-disk name for the i-th image of a product
func FileName(clientKey, article, marketplace string, i int) string {
	parts := []string{
		sanitize(clientKey),
		sanitize(article),
		sanitize(marketplace),
		strconv.Itoa(i),
	}
	return strings.Join(parts, "-") + ".webp"
}

func sanitize(s string) string {
	return unsafeChars.ReplaceAllString(s, "_")
}
