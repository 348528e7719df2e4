package storage

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MaxImageBytes is the business-rule ceiling for one uploaded image. The
// transport layer enforces its own, larger body limit before this applies.
const MaxImageBytes = 1 << 20

// ImageStore keeps uploaded images as flat files in one directory, each named
// by a generated UUID preserving the upload's extension. Records reference
// images by that filename.
type ImageStore struct {
	dir string
	log zerolog.Logger
}

// NewImageStore ensures dir exists and returns the store.
func NewImageStore(dir string, log zerolog.Logger) (*ImageStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir %s: %w", dir, err)
	}
	return &ImageStore{dir: dir, log: log}, nil
}

// Dir returns the directory images are served from.
func (s *ImageStore) Dir() string { return s.dir }

// Save writes the uploaded file under a generated name and returns that name.
func (s *ImageStore) Save(fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()
	name := uuid.NewString() + safeExt(fh.Filename)
	dst, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return "", fmt.Errorf("create image %s: %w", name, err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("write image %s: %w", name, err)
	}
	return name, nil
}

// Remove deletes a stored image by name. Best-effort: failures are logged and
// never surfaced to the caller.
func (s *ImageStore) Remove(name string) {
	if name == "" {
		return
	}
	if err := os.Remove(filepath.Join(s.dir, filepath.Base(name))); err != nil && !os.IsNotExist(err) {
		s.log.Warn().Err(err).Str("image", name).Msg("remove image")
	}
}

// safeExt extracts a lowercase extension from an upload's client-supplied
// filename, discarding anything that is not a plain suffix.
func safeExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if ext == "." || strings.ContainsAny(ext, `/\`) {
		return ""
	}
	return ext
}
