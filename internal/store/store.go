// Package store keeps demo invoice seeds by id. Entries expire; nothing here
// is durable.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/Fantasim/paysync/internal/models"
)

// InvoiceStore gets and puts seeds by invoice id.
type InvoiceStore interface {
	Get(ctx context.Context, invoiceID string) (*models.Seed, bool, error)
	Put(ctx context.Context, seed models.Seed) error
}

type memoryEntry struct {
	seed      models.Seed
	expiresAt time.Time
}

// MemoryStore is an in-process InvoiceStore.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]memoryEntry
	ttl   time.Duration
	now   func() time.Time
}

// NewMemoryStore creates a store whose entries live for ttl.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		items: make(map[string]memoryEntry),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, invoiceID string) (*models.Seed, bool, error) {
	s.mu.RLock()
	entry, ok := s.items[invoiceID]
	s.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if !s.now().Before(entry.expiresAt) {
		s.mu.Lock()
		delete(s.items, invoiceID)
		s.mu.Unlock()
		return nil, false, nil
	}
	seed := entry.seed
	return &seed, true, nil
}

// Put stores seed and drops every entry that has expired, so seeds that are
// never read do not pile up.
func (s *MemoryStore) Put(_ context.Context, seed models.Seed) error {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(now)
	s.items[seed.InvoiceID] = memoryEntry{seed: seed, expiresAt: now.Add(s.ttl)}
	return nil
}

func (s *MemoryStore) pruneLocked(now time.Time) {
	for id, entry := range s.items {
		if !now.Before(entry.expiresAt) {
			delete(s.items, id)
		}
	}
}

// Len returns the number of stored entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
