// Package store provides the in-memory ledger.Store implementation,
// used by tests and local development.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nanoavatar/avatar-engine/ledger"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

// Memory keeps accounts and entries in maps. A single mutex serializes all
// mutations, which trivially satisfies the per-identity atomicity contract.
type Memory struct {
	mu       sync.RWMutex
	accounts map[ledger.Identity]*ledger.Account
	entries  map[ledger.Identity][]ledger.Entry
	nextID   int64
}

func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[ledger.Identity]*ledger.Account),
		entries:  make(map[ledger.Identity][]ledger.Entry),
	}
}

func (m *Memory) EnsureAccount(_ context.Context, id ledger.Identity, displayName string, initialBalance int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if acct, ok := m.accounts[id]; ok {
		if displayName != "" {
			acct.DisplayName = displayName
		}
		return false, nil
	}
	m.accounts[id] = &ledger.Account{
		Identity:    id,
		DisplayName: displayName,
		Balance:     initialBalance,
	}
	return true, nil
}

func (m *Memory) GetAccount(_ context.Context, id ledger.Identity) (ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	acct, ok := m.accounts[id]
	if !ok {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	return *acct, nil
}

func (m *Memory) Identities(_ context.Context) ([]ledger.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]ledger.Identity, 0, len(m.accounts))
	for id := range m.accounts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *Memory) ApplyDelta(_ context.Context, id ledger.Identity, delta int64, kind ledger.EntryKind, payload string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[id]
	if !ok {
		return 0, ledger.ErrAccountNotFound
	}
	if acct.Balance+delta < 0 {
		return 0, ledger.ErrInsufficientCredits
	}

	acct.Balance += delta
	m.appendLocked(id, kind, delta, payload)
	return acct.Balance, nil
}

func (m *Memory) ApplyGrant(_ context.Context, id ledger.Identity, amount int64, day ledger.Day, kind ledger.EntryKind, payload string) (bool, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[id]
	if !ok {
		return false, 0, ledger.ErrAccountNotFound
	}
	if !acct.LastBonusDay.IsZero() && !acct.LastBonusDay.Before(day) {
		return false, acct.Balance, nil
	}

	acct.Balance += amount
	acct.LastBonusDay = day
	m.appendLocked(id, kind, amount, payload)
	return true, acct.Balance, nil
}

func (m *Memory) Entries(_ context.Context, id ledger.Identity) ([]ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]ledger.Entry, len(m.entries[id]))
	copy(result, m.entries[id])
	return result, nil
}

func (m *Memory) appendLocked(id ledger.Identity, kind ledger.EntryKind, amount int64, payload string) {
	m.nextID++
	m.entries[id] = append(m.entries[id], ledger.Entry{
		ID:        m.nextID,
		Identity:  id,
		Kind:      kind,
		Amount:    amount,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	})
}
