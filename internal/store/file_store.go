package store

import (
	"bytes"
	"fmt"
	"os"
	"sync"

	"cipherlog/internal/domain"
)

const fileMode = 0o600

// FileStore keeps each key in its own file under dir. Swaps are atomic
// within one process; separate processes sharing dir can still race.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

var (
	_ domain.KVStore = (*FileStore)(nil)
	_ domain.Swapper = (*FileStore)(nil)
)

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Get(key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return readFile(keyPath(s.dir, key))
}

func (s *FileStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeFile(keyPath(s.dir, key), value, fileMode)
}

func (s *FileStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return removeFile(keyPath(s.dir, key))
}

func (s *FileStore) CompareAndSwap(key string, old, new []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := keyPath(s.dir, key)
	cur, ok, err := readFile(path)
	if err != nil {
		return false, err
	}
	if !matches(cur, ok, old) {
		return false, nil
	}
	if new == nil {
		return true, removeFile(path)
	}
	return true, writeFile(path, new, fileMode)
}

// matches reports whether the current value satisfies a swap precondition.
func matches(cur []byte, present bool, old []byte) bool {
	if old == nil {
		return !present
	}
	return present && bytes.Equal(cur, old)
}
