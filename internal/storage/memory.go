package storage

import (
	"context"
	"sync"
)

// Memory is a process-local Store.
type Memory struct {
	mu      sync.RWMutex
	buckets map[string]map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{buckets: make(map[string]map[string]string)}
}

func (m *Memory) Set(ctx context.Context, bucket, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[bucket]
	if !ok {
		b = make(map[string]string)
		m.buckets[bucket] = b
	}
	b[field] = value
	return nil
}

func (m *Memory) GetAll(ctx context.Context, bucket string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string, len(m.buckets[bucket]))
	for k, v := range m.buckets[bucket] {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) Delete(ctx context.Context, bucket, field string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[bucket]
	if !ok {
		return nil
	}
	delete(b, field)
	if len(b) == 0 {
		delete(m.buckets, bucket)
	}
	return nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
