package storage

import (
	"context"
	"sync"
)

// MemoryStore keeps encoded snapshots in process memory. Nothing survives a
// restart.
type MemoryStore struct {
	mu       sync.Mutex
	entries  map[string][]byte
	redirect string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]byte)}
}

func (s *MemoryStore) Save(_ context.Context, snap Snapshot) error {
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[Key(snap.TestID)] = data
	return nil
}

func (s *MemoryStore) Load(_ context.Context, testID int) (*Snapshot, error) {
	s.mu.Lock()
	data, ok := s.entries[Key(testID)]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return decodeSnapshot(data)
}

func (s *MemoryStore) Clear(_ context.Context, testID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, Key(testID))
	return nil
}

func (s *MemoryStore) SetRedirect(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.redirect = path
	return nil
}

func (s *MemoryStore) Redirect(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.redirect, nil
}

func (s *MemoryStore) ClearRedirect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.redirect = ""
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// Put stores raw bytes under key, bypassing encoding.
func (s *MemoryStore) Put(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = append([]byte(nil), data...)
}
