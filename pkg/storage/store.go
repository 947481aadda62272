package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Object describes a stored object
type Object struct {
	Key  string
	ETag string
	Size int64
}

// ObjectStore is the subset of object storage the loader and writer need
type ObjectStore interface {
	// List returns every object under prefix in key order
	List(ctx context.Context, prefix string) ([]Object, error)
	// Get opens an object for reading
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Put stores an object, replacing any existing one
	Put(ctx context.Context, key string, body []byte) error
}

// MemoryStore is an in-process ObjectStore
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	etags   map[string]string
	version int
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string][]byte),
		etags:   make(map[string]string),
	}
}

// List implements ObjectStore
func (m *MemoryStore) List(_ context.Context, prefix string) ([]Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Object, 0, len(m.objects))
	for key, body := range m.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, Object{Key: key, ETag: m.etags[key], Size: int64(len(body))})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })

	return out, nil
}

// Get implements ObjectStore
func (m *MemoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	body, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}

	return io.NopCloser(bytes.NewReader(body)), nil
}

// Put implements ObjectStore
func (m *MemoryStore) Put(_ context.Context, key string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.version++
	m.objects[key] = append([]byte(nil), body...)
	m.etags[key] = strconv.Itoa(m.version)

	return nil
}

var _ ObjectStore = (*MemoryStore)(nil)
