package store

import (
	"context"
	"sort"
	"sync"

	"github.com/segmentio/ksuid"

	"cardgate/account"
)

// Memory implements account.Store in process memory.
type Memory struct {
	mu       sync.RWMutex
	accounts map[string]*account.Account
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{accounts: make(map[string]*account.Account)}
}

// FindByCard implements account.Store.FindByCard.
func (m *Memory) FindByCard(_ context.Context, card string) (*account.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.accounts {
		if a.HasCard(card) {
			return a.Clone(), nil
		}
	}
	return nil, account.ErrNotFound
}

// FindAll implements account.Store.FindAll. Accounts are sorted by name.
func (m *Memory) FindAll(_ context.Context) ([]*account.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]*account.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		all = append(all, a.Clone())
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all, nil
}

// Save implements account.Store.Save.
func (m *Memory) Save(_ context.Context, a *account.Account) error {
	if err := a.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, other := range m.accounts {
		if id == a.ID {
			continue
		}
		for _, card := range a.Cards {
			if other.HasCard(card) {
				return account.ErrCardInUse
			}
		}
	}

	if a.ID == "" {
		a.ID = ksuid.New().String()
	}
	m.accounts[a.ID] = a.Clone()
	return nil
}

// Delete implements account.Store.Delete.
func (m *Memory) Delete(_ context.Context, a *account.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[a.ID]; !ok {
		return account.ErrNotFound
	}
	delete(m.accounts, a.ID)
	return nil
}

// ExistsAny implements account.Store.ExistsAny.
func (m *Memory) ExistsAny(_ context.Context) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.accounts) > 0, nil
}

// ExistsAnyWithLevel implements account.Store.ExistsAnyWithLevel.
func (m *Memory) ExistsAnyWithLevel(_ context.Context, level account.Level) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.accounts {
		if a.Level == level {
			return true, nil
		}
	}
	return false, nil
}

// Wipe implements account.Store.Wipe.
func (m *Memory) Wipe(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts = make(map[string]*account.Account)
	return nil
}

// Close implements account.Store.Close.
func (m *Memory) Close(_ context.Context) error {
	return nil
}
