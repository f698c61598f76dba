// Package local stores attachments on the local filesystem under a root
// directory, one subdirectory per folder.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"correspondence/internal/attachment"
	"correspondence/pkg/platform/sentinel"
)

// Store implements attachment.Store on disk. Returned paths are slash
// separated and relative to the root.
type Store struct {
	root   string
	now    func() time.Time
	logger *slog.Logger
}

var _ attachment.Store = (*Store)(nil)

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates the root directory if needed.
func New(root string, opts ...Option) (*Store, error) {
	s := &Store{root: root, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create attachment root: %w", err)
	}
	return s, nil
}

// Save writes content to <folder>/YYYYMMDD_HHMMSS_<name>. A name already
// taken within the same second is placed in a random subdirectory instead of
// overwriting.
func (s *Store) Save(ctx context.Context, folder, filename string, content io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := attachment.ObjectName(s.now(), filename)
	rel := path.Join(folder, name)

	f, err := s.create(rel)
	if errors.Is(err, fs.ErrExist) {
		rel = path.Join(folder, strings.ReplaceAll(uuid.NewString(), "-", "")[:12], name)
		f, err = s.create(rel)
	}
	if err != nil {
		return "", fmt.Errorf("create attachment file: %w", err)
	}

	if _, err := io.Copy(f, content); err != nil {
		_ = f.Close()
		_ = os.Remove(s.abs(rel))
		return "", fmt.Errorf("write attachment file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(s.abs(rel))
		return "", fmt.Errorf("close attachment file: %w", err)
	}

	s.logger.DebugContext(ctx, "stored attachment", "attachment_path", rel)
	return rel, nil
}

func (s *Store) create(rel string) (*os.File, error) {
	full := s.abs(rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return nil, err
	}
	return os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
}

// Delete removes the file. A missing file is not an error.
func (s *Store) Delete(_ context.Context, p string) error {
	full, err := s.resolve(p)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove attachment file: %w", err)
	}
	return nil
}

func (s *Store) Exists(_ context.Context, p string) (bool, error) {
	full, err := s.resolve(p)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(full)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("stat attachment file: %w", err)
	}
	return info.Mode().IsRegular(), nil
}

func (s *Store) Open(_ context.Context, p string) (io.ReadCloser, error) {
	full, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open attachment file: %w", err)
	}
	return f, nil
}

func (s *Store) abs(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(rel))
}

// resolve maps a stored path to the filesystem, refusing anything that would
// escape the root.
func (s *Store) resolve(p string) (string, error) {
	local := filepath.FromSlash(p)
	if p == "" || !filepath.IsLocal(local) {
		return "", fmt.Errorf("attachment path %q outside store root", p)
	}
	return filepath.Join(s.root, local), nil
}
