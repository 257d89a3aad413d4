// Package history keeps a bounded, newest-first record of generated artifacts
// per identity.
package history

import (
	"context"
	"sync"
	"time"
)

// DefaultLimit is the per-identity cap on retained entries.
const DefaultLimit = 20

// Entry is one generated artifact plus the instructions that produced it.
type Entry struct {
	Artifact  []byte    `json:"artifact"`
	MimeType  string    `json:"mime_type"`
	Prompt    string    `json:"prompt,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store maps identities to their bounded generation history.
type Store interface {
	// Append prepends an entry, evicting the oldest once the cap is exceeded.
	// The append is all-or-nothing: readers never observe a partial entry.
	Append(ctx context.Context, identity string, entry Entry) error

	// Recent returns up to limit entries, newest first. It never mutates.
	Recent(ctx context.Context, identity string, limit int) ([]Entry, error)
}

// MemoryStore keeps histories resident for the lifetime of the process.
// Each identity owns its lock; appends for one identity serialize against
// each other but identities never contend.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*record
	cap     int
}

type record struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemoryStore creates an in-memory history store with the given cap.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultLimit
	}
	return &MemoryStore{
		records: make(map[string]*record),
		cap:     capacity,
	}
}

func (s *MemoryStore) record(identity string) *record {
	s.mu.RLock()
	rec, ok := s.records[identity]
	s.mu.RUnlock()
	if ok {
		return rec
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok = s.records[identity]; ok {
		return rec
	}
	rec = &record{}
	s.records[identity] = rec
	return rec
}

func (s *MemoryStore) Append(_ context.Context, identity string, entry Entry) error {
	rec := s.record(identity)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	entries := make([]Entry, 0, len(rec.entries)+1)
	entries = append(entries, entry)
	entries = append(entries, rec.entries...)
	if len(entries) > s.cap {
		entries = entries[:s.cap]
	}
	rec.entries = entries
	return nil
}

func (s *MemoryStore) Recent(_ context.Context, identity string, limit int) ([]Entry, error) {
	rec := s.record(identity)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if limit <= 0 || limit > len(rec.entries) {
		limit = len(rec.entries)
	}
	out := make([]Entry, limit)
	copy(out, rec.entries[:limit])
	return out, nil
}
