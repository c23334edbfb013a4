package state

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type memoryEntry struct {
	blob     json.RawMessage
	lastSeen time.Time
}

// MemoryStore keeps conversation state in process memory with a TTL
// reaper. Suitable for single-instance deployments and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	ttl     time.Duration
	stop    chan struct{}
	once    sync.Once
}

// NewMemoryStore creates a memory store. A non-zero ttl starts a reaper
// that drops conversations idle for longer than ttl.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*memoryEntry),
		ttl:     ttl,
		stop:    make(chan struct{}),
	}
	if ttl > 0 {
		go s.reap()
	}
	return s
}

func (s *MemoryStore) reap() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for id, e := range s.entries {
				if now.Sub(e.lastSeen) > s.ttl {
					delete(s.entries, id)
				}
			}
			s.mu.Unlock()
		}
	}
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context, conversationID string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[conversationID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make(json.RawMessage, len(e.blob))
	copy(out, e.blob)
	return out, nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, conversationID string, blob json.RawMessage) error {
	stored := make(json.RawMessage, len(blob))
	copy(stored, blob)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[conversationID] = &memoryEntry{blob: stored, lastSeen: time.Now()}
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, conversationID)
	return nil
}

// Len reports the number of stored conversations.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close stops the reaper.
func (s *MemoryStore) Close() {
	s.once.Do(func() { close(s.stop) })
}
