// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatefix Contributors

package store

import (
	"context"
	"sort"
	"sync"

	gferr "github.com/gatefix-dev/gatefix/pkg/errors"
)

func init() {
	RegisterBackend("memory", func(string) (LearningStore, error) {
		return NewMemoryStore(), nil
	})
}

// Compile-time interface check.
var _ LearningStore = (*MemoryStore)(nil)

// MemoryStore is a goroutine-safe in-memory LearningStore. Useful for tests
// and for runs where learning state should not outlive the process.
type MemoryStore struct {
	mu         sync.RWMutex
	arms       map[string]map[string]BanditArm
	quarantine map[string]map[string]QuarantineRecord
	global     map[string]bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		arms:       map[string]map[string]BanditArm{},
		quarantine: map[string]map[string]QuarantineRecord{},
		global:     map[string]bool{},
	}
}

func (m *MemoryStore) GetArm(_ context.Context, contextKey, strategy string) (*BanditArm, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	arm, ok := m.arms[contextKey][strategy]
	if !ok {
		return nil, gferr.New(gferr.CodeStoreKeyNotFound, "bandit arm not found",
			gferr.FieldContextKey(contextKey), gferr.FieldStrategy(strategy))
	}
	return &arm, nil
}

func (m *MemoryStore) ListArms(_ context.Context, contextKey string) ([]*BanditArm, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	arms := make([]*BanditArm, 0, len(m.arms[contextKey]))
	for _, arm := range m.arms[contextKey] {
		a := arm
		arms = append(arms, &a)
	}
	sort.Slice(arms, func(i, j int) bool { return arms[i].Strategy < arms[j].Strategy })
	return arms, nil
}

func (m *MemoryStore) UpsertArm(_ context.Context, arm *BanditArm) error {
	if arm == nil || arm.Strategy == "" {
		return gferr.New(gferr.CodeStoreInvalidInput, "bandit arm requires a strategy name")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.arms[arm.ContextKey] == nil {
		m.arms[arm.ContextKey] = map[string]BanditArm{}
	}
	m.arms[arm.ContextKey][arm.Strategy] = *arm
	return nil
}

func (m *MemoryStore) GetQuarantine(_ context.Context, contextKey, strategy string) (*QuarantineRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.quarantine[contextKey][strategy]
	if !ok {
		return nil, gferr.New(gferr.CodeStoreKeyNotFound, "quarantine record not found",
			gferr.FieldContextKey(contextKey), gferr.FieldStrategy(strategy))
	}
	return &rec, nil
}

func (m *MemoryStore) ListQuarantine(_ context.Context, contextKey string) ([]*QuarantineRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recs := make([]*QuarantineRecord, 0, len(m.quarantine[contextKey]))
	for _, rec := range m.quarantine[contextKey] {
		r := rec
		recs = append(recs, &r)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Strategy < recs[j].Strategy })
	return recs, nil
}

func (m *MemoryStore) UpsertQuarantine(_ context.Context, rec *QuarantineRecord) error {
	if rec == nil || rec.Strategy == "" {
		return gferr.New(gferr.CodeStoreInvalidInput, "quarantine record requires a strategy name")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.quarantine[rec.ContextKey] == nil {
		m.quarantine[rec.ContextKey] = map[string]QuarantineRecord{}
	}
	m.quarantine[rec.ContextKey][rec.Strategy] = *rec
	return nil
}

func (m *MemoryStore) GlobalQuarantine(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string
	for name, on := range m.global {
		if on {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryStore) SetGlobalQuarantine(_ context.Context, strategy string, quarantined bool) error {
	if strategy == "" {
		return gferr.New(gferr.CodeStoreInvalidInput, "strategy name required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if quarantined {
		m.global[strategy] = true
	} else {
		delete(m.global, strategy)
	}
	return nil
}

func (m *MemoryStore) Close() error { return nil }
