// Package uploads stores admin image uploads under the public directory and
// cleans up files that records no longer reference.
package uploads

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/arqon/siteapi/internal/domain/entities"
	"github.com/arqon/siteapi/internal/infrastructure/logger"
)

const (
	// MaxImageBytes is the largest accepted upload
	MaxImageBytes = 5 << 20

	// URLPrefix is the public path every managed image starts with
	URLPrefix = "/images/"

	ProjectsDir = ""
	ArticlesDir = "articles"
)

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// Store writes images to <publicDir>/images/<subdir>
type Store struct {
	publicDir string
	logger    *logger.Logger
	inUse     func(url string) bool
	wg        sync.WaitGroup
}

// NewStore creates a store rooted at publicDir
func NewStore(publicDir string, log *logger.Logger) *Store {
	return &Store{
		publicDir: publicDir,
		logger:    log.WithComponent("uploads"),
	}
}

// TrackReferences installs the check RemoveAsync runs before deleting a
// file. It must be set before the store is shared.
func (s *Store) TrackReferences(inUse func(url string) bool) {
	s.inUse = inUse
}

// Root returns the directory served under URLPrefix
func (s *Store) Root() string {
	return filepath.Join(s.publicDir, "images")
}

// Save sniffs the upload, writes it under a random name and returns its
// public URL.
func (s *Store) Save(fh *multipart.FileHeader, subdir string) (string, error) {
	if fh.Size > MaxImageBytes {
		return "", entities.ErrUploadTooLarge
	}

	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	mtype, err := mimetype.DetectReader(src)
	if err != nil {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}
	ext := ""
	for _, m := range []string{"image/jpeg", "image/png", "image/webp"} {
		if mtype.Is(m) {
			ext = extensions[m]
			break
		}
	}
	if ext == "" {
		return "", entities.ErrUnsupportedUpload
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to rewind upload: %w", err)
	}

	dir := filepath.Join(s.Root(), subdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload dir: %w", err)
	}

	name := uuid.New().String() + ext
	dst, err := os.OpenFile(filepath.Join(dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create image file: %w", err)
	}

	n, err := io.Copy(dst, io.LimitReader(src, MaxImageBytes+1))
	closeErr := dst.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && n > MaxImageBytes {
		err = entities.ErrUploadTooLarge
	}
	if err != nil {
		os.Remove(dst.Name())
		if errors.Is(err, entities.ErrUploadTooLarge) {
			return "", err
		}
		return "", fmt.Errorf("failed to write image file: %w", err)
	}

	return path(subdir, name), nil
}

// Managed reports whether url points at a file this store owns
func Managed(url string) bool {
	return strings.HasPrefix(url, URLPrefix)
}

// RemoveAsync deletes the file behind url in the background. URLs outside
// URLPrefix are ignored, files some record still references are kept and
// failures are only logged.
func (s *Store) RemoveAsync(url string) {
	if !Managed(url) {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if s.inUse != nil && s.inUse(url) {
			s.logger.Infow("Image still referenced, keeping file", "url", url)
			return
		}
		if err := s.Remove(url); err != nil {
			s.logger.Warnw("Failed to remove image", "url", url, "error", err)
		}
	}()
}

// Remove deletes the file behind a managed url
func (s *Store) Remove(url string) error {
	if !Managed(url) {
		return nil
	}

	root := s.Root()
	target := filepath.Join(root, filepath.FromSlash(strings.TrimPrefix(url, URLPrefix)))
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("refusing to remove %q outside the image directory", url)
	}

	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Wait blocks until background removals finish
func (s *Store) Wait() {
	s.wg.Wait()
}

func path(subdir, name string) string {
	if subdir == "" {
		return URLPrefix + name
	}
	return URLPrefix + subdir + "/" + name
}
