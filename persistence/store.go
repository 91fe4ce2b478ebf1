package persistence

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/harborgrid-justin/phantom-spire-sub003/pkg/errors"
)

// Store is a key-value home for model blobs.
type Store interface {
	Put(ctx context.Context, key string, blob []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]string, error)
	Health(ctx context.Context) error
}

// MemoryStore keeps blobs in process memory. Safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// Put stores a copy of the blob.
func (s *MemoryStore) Put(ctx context.Context, key string, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return errors.NewCancelledError("MemoryStore.Put")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = append([]byte(nil), blob...)
	return nil
}

// Get returns a copy of the stored blob.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelledError("MemoryStore.Get")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[key]
	if !ok {
		return nil, errors.NewNotFoundError(key)
	}
	return append([]byte(nil), blob...), nil
}

// Delete removes a blob; deleting a missing key is a not-found error.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return errors.NewCancelledError("MemoryStore.Delete")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[key]; !ok {
		return errors.NewNotFoundError(key)
	}
	delete(s.blobs, key)
	return nil
}

// List returns the stored keys in sorted order.
func (s *MemoryStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelledError("MemoryStore.List")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.blobs))
	for k := range s.blobs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Health always succeeds for the in-memory store.
func (s *MemoryStore) Health(ctx context.Context) error {
	return ctx.Err()
}

const blobExt = ".psml"

// LocalStore keeps blobs as files under a directory. Writes go to a
// temporary file first and are renamed into place, so a crash mid-write
// never leaves a half-written blob under the final name.
type LocalStore struct {
	dir string
}

// NewLocalStore creates the directory if needed and returns a store over
// it.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.NewStorageError("LocalStore.New", err)
	}
	return &LocalStore{dir: dir}, nil
}

func (s *LocalStore) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, "/\\") || strings.Contains(key, "..") {
		return "", errors.NewInputError("LocalStore", "key must be a plain name without path separators")
	}
	return filepath.Join(s.dir, key+blobExt), nil
}

// Put writes the blob atomically.
func (s *LocalStore) Put(ctx context.Context, key string, blob []byte) error {
	const op = "LocalStore.Put"
	if err := ctx.Err(); err != nil {
		return errors.NewCancelledError(op)
	}
	target, err := s.path(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, key+".tmp-*")
	if err != nil {
		return errors.NewStorageError(op, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.NewStorageError(op, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.NewStorageError(op, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return errors.NewStorageError(op, err)
	}
	return nil
}

// Get reads a stored blob.
func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	const op = "LocalStore.Get"
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelledError(op)
	}
	target, err := s.path(key)
	if err != nil {
		return nil, err
	}
	blob, err := os.ReadFile(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError(key)
		}
		return nil, errors.NewStorageError(op, err)
	}
	return blob, nil
}

// Delete removes a stored blob.
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	const op = "LocalStore.Delete"
	if err := ctx.Err(); err != nil {
		return errors.NewCancelledError(op)
	}
	target, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil {
		if os.IsNotExist(err) {
			return errors.NewNotFoundError(key)
		}
		return errors.NewStorageError(op, err)
	}
	return nil
}

// List returns the stored keys in sorted order.
func (s *LocalStore) List(ctx context.Context) ([]string, error) {
	const op = "LocalStore.List"
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelledError(op)
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.NewStorageError(op, err)
	}
	var keys []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, blobExt) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, blobExt))
	}
	sort.Strings(keys)
	return keys, nil
}

// Health verifies the directory is still writable.
func (s *LocalStore) Health(ctx context.Context) error {
	const op = "LocalStore.Health"
	if err := ctx.Err(); err != nil {
		return errors.NewCancelledError(op)
	}
	probe, err := os.CreateTemp(s.dir, ".health-*")
	if err != nil {
		return errors.NewStorageError(op, err)
	}
	name := probe.Name()
	probe.Close()
	if err := os.Remove(name); err != nil {
		return errors.NewStorageError(op, err)
	}
	return nil
}
