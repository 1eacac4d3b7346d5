package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/benaskins/voiceauth/internal/filelock"
)

// FileStore persists the namespace as a JSON object in a single file.
// Every operation re-reads the file under a cross-process lock, so several
// processes may share one file. Writes replace it atomically (temp file +
// rename).
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore opens the namespace file at path, creating its directory.
// An existing file must parse.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("credential store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating credential store dir: %w", err)
	}

	s := &FileStore{path: path}
	if _, err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) Get(ctx context.Context, key string) (string, bool, error) {
	var (
		v  string
		ok bool
	)
	err := s.locked(ctx, func() error {
		values, err := s.load()
		if err != nil {
			return err
		}
		v, ok = values[key]
		return nil
	})
	return v, ok, err
}

func (s *FileStore) Put(ctx context.Context, key, value string) error {
	return s.locked(ctx, func() error {
		values, err := s.load()
		if err != nil {
			return err
		}
		values[key] = value
		return s.save(values)
	})
}

func (s *FileStore) Remove(ctx context.Context, key string) (bool, error) {
	existed := false
	err := s.locked(ctx, func() error {
		values, err := s.load()
		if err != nil {
			return err
		}
		if _, existed = values[key]; !existed {
			return nil
		}
		delete(values, key)
		return s.save(values)
	})
	if err != nil {
		return false, err
	}
	return existed, nil
}

func (s *FileStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := s.locked(ctx, func() error {
		values, err := s.load()
		if err != nil {
			return err
		}
		keys = make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return nil
	})
	return keys, err
}

func (s *FileStore) locked(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return filelock.With(s.path, fn)
}

func (s *FileStore) load() (map[string]string, error) {
	values := make(map[string]string)
	data, err := os.ReadFile(s.path)
	switch {
	case err == nil:
		if len(data) > 0 {
			if err := json.Unmarshal(data, &values); err != nil {
				return nil, fmt.Errorf("parsing credential store %s: %w", s.path, err)
			}
		}
	case errors.Is(err, fs.ErrNotExist):
		// first use
	default:
		return nil, fmt.Errorf("reading credential store: %w", err)
	}
	return values, nil
}

func (s *FileStore) save(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("writing credential store: %w", err)
	}
	return os.Rename(tmpPath, s.path)
}
