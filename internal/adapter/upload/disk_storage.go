package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

const MaxFileSize = 5 << 20

var (
	ErrTooLarge        = errors.New("file too large")
	ErrUnsupportedType = errors.New("unsupported file type")
)

var allowedTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

// DiskStorage writes images under dir and serves them from baseURL.
type DiskStorage struct {
	dir     string
	baseURL string
}

func NewDiskStorage(dir, baseURL string) (*DiskStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskStorage{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *DiskStorage) Dir() string {
	return s.dir
}

// Save sniffs the content type, rejects non-images and files over
// MaxFileSize, and stores the file under a fresh name. The client supplied
// name is never used on disk.
func (s *DiskStorage) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxFileSize+1))
	if err != nil {
		return "", fmt.Errorf("read upload %q: %w", name, err)
	}
	if len(data) > MaxFileSize {
		return "", fmt.Errorf("%w: %s", ErrTooLarge, name)
	}

	mtype := mimetype.Detect(data)
	if !mimetype.EqualsAny(mtype.String(), allowedTypes...) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, mtype.String())
	}

	filename := uuid.NewString() + mtype.Extension()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := writeFile(filepath.Join(s.dir, filename), data); err != nil {
		return "", err
	}
	return s.baseURL + "/uploads/" + filename, nil
}

// Delete removes a file previously returned by Save. Missing files are not an
// error.
func (s *DiskStorage) Delete(ctx context.Context, url string) error {
	prefix := s.baseURL + "/uploads/"
	if !strings.HasPrefix(url, prefix) {
		return fmt.Errorf("not a stored upload: %q", url)
	}
	filename := path.Base(strings.TrimPrefix(url, prefix))
	if err := os.Remove(filepath.Join(s.dir, filename)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete upload: %w", err)
	}
	return nil
}

func writeFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create upload: %w", err)
	}
	if _, err := io.Copy(f, bytes.NewReader(data)); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("write upload: %w", err)
	}
	return f.Close()
}
