// Package filestore keeps a storage origin in a directory, one file per key,
// so several processes on one machine can share it. Changes made by other
// processes are picked up with fsnotify.
package filestore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/nikolayk812/storefront-cart/internal/domain"
	"go.uber.org/zap"
)

const (
	fileExt = ".val"
	tmpExt  = ".tmp"
)

type Store struct {
	dir    string
	logger *zap.Logger

	// last content written by this handle per key, used to drop our own echoes
	mu      sync.Mutex
	written map[string]*string
}

type Option func(*Store)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func New(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("os.MkdirAll: %w", err)
	}

	s := &Store{
		dir:     dir,
		logger:  zap.NewNop(),
		written: make(map[string]*string),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	value, ok, err := readValue(s.path(key))
	if err != nil {
		return "", false, fmt.Errorf("readValue: %w", err)
	}
	return value, ok, nil
}

// Set writes to a temporary file and renames it, so readers never see a
// partially written value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := os.CreateTemp(s.dir, "*"+tmpExt)
	if err != nil {
		return fmt.Errorf("os.CreateTemp: %w", err)
	}
	tmp := f.Name()

	if _, err := f.WriteString(value); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("f.WriteString: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("f.Close: %w", err)
	}

	s.remember(key, &value)
	if err := os.Rename(tmp, s.path(key)); err != nil {
		s.forget(key)
		_ = os.Remove(tmp)
		return fmt.Errorf("os.Rename: %w", err)
	}

	return nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.remember(key, nil)
	err := os.Remove(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		// nothing changed on disk, so no event will consume the marker
		s.forget(key)
		return nil
	}
	if err != nil {
		s.forget(key)
		return fmt.Errorf("os.Remove: %w", err)
	}
	return nil
}

// Watch reports changes to keys in the directory until ctx is done. Writes
// made through this Store are not reported.
func (s *Store) Watch(ctx context.Context, fn func(domain.StorageEvent)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify.NewWatcher: %w", err)
	}
	defer watcher.Close()

	// markers left by writes made while nobody was watching would hide
	// later foreign writes of the same content
	s.mu.Lock()
	clear(s.written)
	s.mu.Unlock()

	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("watcher.Add: %w", err)
	}

	known, err := s.snapshot()
	if err != nil {
		return fmt.Errorf("s.snapshot: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			key, ok := keyOf(event.Name)
			if !ok {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			current, exists, err := readValue(event.Name)
			if err != nil {
				s.logger.Warn("filestore: read after change failed", zap.String("key", key), zap.Error(err))
				continue
			}

			var newValue *string
			if exists {
				newValue = &current
			}
			// every event consumes the marker, even one that changes nothing
			own := s.ownWrite(key, newValue)

			oldValue := known[key]
			if equal(oldValue, newValue) {
				continue
			}
			known[key] = newValue

			if own {
				continue
			}
			fn(domain.StorageEvent{Key: key, OldValue: oldValue, NewValue: newValue})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("filestore: watcher error", zap.Error(err))
		}
	}
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, hex.EncodeToString([]byte(key))+fileExt)
}

func (s *Store) remember(key string, value *string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written[key] = value
}

func (s *Store) forget(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.written, key)
}

// ownWrite reports whether value is what this handle last wrote to key and
// drops the marker either way. A mismatch means a foreign write landed after
// ours; reporting our echo then is a duplicate, never a loss.
func (s *Store) ownWrite(key string, value *string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	last, ok := s.written[key]
	if !ok {
		return false
	}
	delete(s.written, key)
	return equal(last, value)
}

func (s *Store) snapshot() (map[string]*string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("os.ReadDir: %w", err)
	}

	known := make(map[string]*string, len(entries))
	for _, e := range entries {
		key, ok := keyOf(e.Name())
		if !ok {
			continue
		}
		value, exists, err := readValue(filepath.Join(s.dir, e.Name()))
		if err != nil {
			return nil, err
		}
		if exists {
			known[key] = &value
		}
	}
	return known, nil
}

func keyOf(path string) (string, bool) {
	name := filepath.Base(path)
	if !strings.HasSuffix(name, fileExt) {
		return "", false
	}
	raw, err := hex.DecodeString(strings.TrimSuffix(name, fileExt))
	if err != nil {
		return "", false
	}
	return string(raw), true
}

func readValue(path string) (string, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("os.ReadFile: %w", err)
	}
	return string(data), true, nil
}

func equal(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
