// Package file provides a durable storage.Storage backed by a directory on
// the local filesystem. Each key lives in its own file holding a JSON
// envelope; writes go to a temporary file that is renamed into place so a
// crash never leaves a half-written value behind.
//
// Watch reports keys changed by other processes sharing the directory. It is
// a convenience for refreshing views and carries no ordering or delivery
// guarantees.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/ggoodman/storefront-go/storage"
)

const (
	fileSuffix = ".json"
	tmpPrefix  = ".tmp-"
)

// Storage implements storage.Storage on top of a directory.
type Storage struct {
	dir string
	log *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// Option configures a file Storage.
type Option func(*Storage)

// WithLogger sets the logger used for watch diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Storage) {
		if l != nil {
			s.log = l
		}
	}
}

type storedItem struct {
	Data      []byte     `json:"data"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// New opens (creating if needed) the directory dir.
func New(dir string, opts ...Option) (*Storage, error) {
	if dir == "" {
		return nil, errors.New("file storage: directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("file storage: create %s: %w", dir, err)
	}
	s := &Storage{dir: dir, log: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the backing directory.
func (s *Storage) Dir() string { return s.dir }

func (s *Storage) path(key string) (string, error) {
	if key == "" {
		return "", storage.ErrInvalidKey
	}
	return filepath.Join(s.dir, url.PathEscape(key)+fileSuffix), nil
}

// keyFromPath reverses path; ok is false for foreign or temporary files.
func keyFromPath(p string) (string, bool) {
	base := filepath.Base(p)
	if strings.HasPrefix(base, tmpPrefix) || !strings.HasSuffix(base, fileSuffix) {
		return "", false
	}
	key, err := url.PathUnescape(strings.TrimSuffix(base, fileSuffix))
	if err != nil || key == "" {
		return "", false
	}
	return key, true
}

// Get retrieves data for a key
func (s *Storage) Get(ctx context.Context, key string) (*storage.Item, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrClosed
	}

	raw, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read key %s: %w", key, err)
	}

	var item storedItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stored data: %w", err)
	}
	out := &storage.Item{Data: item.Data, CreatedAt: item.CreatedAt, ExpiresAt: item.ExpiresAt}
	if out.IsExpired() {
		return nil, nil
	}
	return out, nil
}

// Set stores data for a key
func (s *Storage) Set(ctx context.Context, key string, data []byte, opts ...storage.Option) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	item := storage.NewItem(data, time.Now(), storage.ApplyOptions(opts...))
	raw, err := json.Marshal(storedItem{Data: item.Data, CreatedAt: item.CreatedAt, ExpiresAt: item.ExpiresAt})
	if err != nil {
		return fmt.Errorf("failed to marshal storage item: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}

	tmp, err := os.CreateTemp(s.dir, tmpPrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	return nil
}

// Delete removes a key
func (s *Storage) Delete(ctx context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// Close marks the storage closed. Files are left on disk.
func (s *Storage) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Watch calls fn with the key of every file created, written, renamed or
// removed in the directory until ctx is done. It returns nil when ctx ends
// and an error if the watcher could not be started.
func (s *Storage) Watch(ctx context.Context, fn func(key string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("file storage: watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(s.dir); err != nil {
		return fmt.Errorf("file storage: watch %s: %w", s.dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			key, ok := keyFromPath(ev.Name)
			if !ok {
				continue
			}
			fn(key)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.log.Debug("file storage watch error", slog.String("err", err.Error()))
		}
	}
}

// Compile-time interface check
var _ storage.Storage = (*Storage)(nil)
