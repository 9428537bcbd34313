package project

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	perrors "github.com/p-blackswan/contextd/internal/errors"
)

// MemoryStore is an in-memory project store for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

var _ Repository = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory project store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (m *MemoryStore) Create(_ context.Context, input CreateInput) (*Record, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, perrors.InvalidInput("project name is required")
	}
	id := input.ID
	if id == "" {
		id = uuid.New().String()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; ok {
		return nil, perrors.InvalidInput("project %q already exists", id)
	}
	now := time.Now().UnixMilli()
	r := &Record{ID: id, Name: name, Metadata: input.Metadata.Clone(), Version: 1, CreatedAt: now, UpdatedAt: now}
	m.records[id] = r
	return copyRecord(r), nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", id, perrors.ErrNotFound)
	}
	return copyRecord(r), nil
}

func (m *MemoryStore) List(_ context.Context, limit int) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Record, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, copyRecord(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt > out[j].UpdatedAt })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) UpdateMetadata(_ context.Context, id string, metadata Metadata, version int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return fmt.Errorf("project %s: %w", id, perrors.ErrNotFound)
	}
	if r.Version != version {
		return fmt.Errorf("project %s at version %d: %w", id, version, perrors.ErrConflict)
	}
	r.Metadata = metadata.Clone()
	r.Version++
	r.UpdatedAt = time.Now().UnixMilli()
	return nil
}

func copyRecord(r *Record) *Record {
	c := *r
	c.Metadata = r.Metadata.Clone()
	return &c
}
