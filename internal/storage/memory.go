package storage

import (
	"context"
	"strings"
	"sync"
)

type memoryStore struct {
	hub

	mu     sync.Mutex
	kv     map[string]string
	closed bool
}

// NewMemory returns an empty in-process store.
func NewMemory() Store {
	return &memoryStore{kv: map[string]string{}}
}

func (s *memoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", false, ErrClosed
	}
	v, ok := s.kv[strings.TrimSpace(key)]
	return v, ok, nil
}

func (s *memoryStore) Set(ctx context.Context, key, value string) error {
	return s.SetMany(ctx, map[string]string{key: value})
}

func (s *memoryStore) SetMany(ctx context.Context, kv map[string]string) error {
	_ = ctx
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	changes, err := applySet(s.kv, kv)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.publish(changes)
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, keys ...string) error {
	_ = ctx
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	changes := applyDelete(s.kv, keys)
	s.mu.Unlock()
	s.publish(changes)
	return nil
}

func (s *memoryStore) Compact(ctx context.Context) error { return nil }

func (s *memoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.closeAll()
	return nil
}

// applySet mutates kv in place and returns the effective changes.
func applySet(kv map[string]string, in map[string]string) ([]Change, error) {
	for k := range in {
		if strings.TrimSpace(k) == "" {
			return nil, ErrBadKey
		}
	}
	changes := make([]Change, 0, len(in))
	for k, v := range in {
		k = strings.TrimSpace(k)
		if old, ok := kv[k]; ok && old == v {
			continue
		}
		kv[k] = v
		changes = append(changes, Change{Key: k, Value: v})
	}
	return changes, nil
}

func applyDelete(kv map[string]string, keys []string) []Change {
	changes := make([]Change, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if _, ok := kv[k]; !ok {
			continue
		}
		delete(kv, k)
		changes = append(changes, Change{Key: k, Deleted: true})
	}
	return changes
}
