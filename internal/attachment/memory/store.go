// Package memory is an in-process attachment store for tests and local runs
// without a writable disk.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"sync"
	"time"

	"correspondence/internal/attachment"
	"correspondence/pkg/platform/sentinel"
)

type Store struct {
	mu    sync.RWMutex
	files map[string][]byte
	seq   int
	now   func() time.Time
}

var _ attachment.Store = (*Store)(nil)

func New() *Store {
	return &Store{files: make(map[string][]byte), now: time.Now}
}

// Save keys files by folder, a sequence number and the object name so
// repeated uploads never collide.
func (s *Store) Save(_ context.Context, folder, filename string, content io.Reader) (string, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return "", fmt.Errorf("read attachment: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	p := path.Join(folder, fmt.Sprintf("%d", s.seq), attachment.ObjectName(s.now(), filename))
	s.files[p] = data
	return p, nil
}

func (s *Store) Delete(_ context.Context, p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, p)
	return nil
}

func (s *Store) Exists(_ context.Context, p string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.files[p]
	return ok, nil
}

func (s *Store) Open(_ context.Context, p string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.files[p]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Paths lists stored paths in lexical order.
func (s *Store) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.files))
	for p := range s.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
