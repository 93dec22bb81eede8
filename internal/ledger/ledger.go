// Package ledger owns the authoritative collection of normalized orders.
package ledger

import (
	"fmt"
	"sync"

	"oms/internal/model"
)

// Store abstracts the ledger backend. Insert is first-write-wins: a second
// insert with an existing id reports false and leaves the stored record
// untouched. UpdateStatus mutates status in place and reports false for an
// unknown id.
type Store interface {
	Insert(rec model.OrderRecord) (inserted bool, err error)
	UpdateStatus(id string, status string) (updated bool, err error)
	Get(id string) (model.OrderRecord, bool)
	Range(fn func(rec model.OrderRecord) error) error
	LoadAll(orders []model.OrderRecord)
}

// InMemoryStore is a simple thread-safe map store keyed by order id.
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[string]model.OrderRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{data: make(map[string]model.OrderRecord)}
}

// LoadAll replaces the store contents with the provided records (used by
// snapshot restore).
func (s *InMemoryStore) LoadAll(orders []model.OrderRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]model.OrderRecord, len(orders))
	for _, rec := range orders {
		if rec.ID == "" {
			continue
		}
		s.data[rec.ID] = rec
	}
}

func (s *InMemoryStore) Insert(rec model.OrderRecord) (bool, error) {
	if rec.ID == "" {
		return false, fmt.Errorf("insert: empty order id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[rec.ID]; exists {
		return false, nil
	}
	s.data[rec.ID] = rec
	return true, nil
}

func (s *InMemoryStore) UpdateStatus(id string, status string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.data[id]
	if !ok {
		return false, nil
	}
	rec.Status = status
	s.data[id] = rec
	return true, nil
}

func (s *InMemoryStore) Get(id string) (model.OrderRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.data[id]
	return rec, ok
}

func (s *InMemoryStore) Range(fn func(rec model.OrderRecord) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.data {
		if err := fn(rec); err != nil {
			return fmt.Errorf("range callback failed: %w", err)
		}
	}
	return nil
}

// All collects every record through Range. Shared helper for callers that
// need a full read-only view.
func All(s Store) ([]model.OrderRecord, error) {
	var out []model.OrderRecord
	err := s.Range(func(rec model.OrderRecord) error {
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
