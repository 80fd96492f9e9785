package preferences

import (
	"bytes"
	"context"
	"sync"

	"github.com/dmitrijs2005/artforge/internal/dbx"
)

// MemoryRepository keeps preferences in a map. It is used by tests and by
// components that run without a database.
type MemoryRepository struct {
	mu     sync.Mutex
	values map[string][]byte

	// FailGet and FailSet, when non-nil, are returned by Get and Set for
	// matching keys.
	FailGet func(key string) error
	FailSet func(key string) error
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{values: make(map[string][]byte)}
}

func (r *MemoryRepository) With(dbx.DBTX) Repository { return r }

func (r *MemoryRepository) Get(_ context.Context, key string) ([]byte, error) {
	if r.FailGet != nil {
		if err := r.FailGet(key); err != nil {
			return nil, err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.values[key]
	if !ok {
		return nil, nil
	}
	return bytes.Clone(v), nil
}

func (r *MemoryRepository) Set(_ context.Context, key string, value []byte) error {
	if r.FailSet != nil {
		if err := r.FailSet(key); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[key] = bytes.Clone(value)
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.values, key)
	return nil
}

func (r *MemoryRepository) List(context.Context) (map[string][]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string][]byte, len(r.values))
	for k, v := range r.values {
		out[k] = bytes.Clone(v)
	}
	return out, nil
}

func (r *MemoryRepository) Clear(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = make(map[string][]byte)
	return nil
}
