package store

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"cardgate/account"
)

func newAccount(name string, level account.Level, cards ...string) *account.Account {
	return &account.Account{
		Creator:   "root",
		Cards:     cards,
		Name:      name,
		Level:     level,
		ExpiresAt: time.Now().Add(24 * time.Hour),
		Active:    true,
	}
}

func TestMemoryCRUD(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	exists, err := m.ExistsAny(ctx)
	require.NoError(t, err)
	require.False(t, exists)

	alice := newAccount("alice", account.Privileged, "1111", "2222")
	require.NoError(t, m.Save(ctx, alice))
	require.NotEmpty(t, alice.ID)

	found, err := m.FindByCard(ctx, "2222")
	require.NoError(t, err)
	require.Equal(t, "alice", found.Name)

	// Stored copies are isolated from the caller.
	found.Name = "mallory"
	again, err := m.FindByCard(ctx, "1111")
	require.NoError(t, err)
	require.Equal(t, "alice", again.Name)

	_, err = m.FindByCard(ctx, "9999")
	require.ErrorIs(t, err, account.ErrNotFound)

	dev, err := m.ExistsAnyWithLevel(ctx, account.Developer)
	require.NoError(t, err)
	require.False(t, dev)
	priv, err := m.ExistsAnyWithLevel(ctx, account.Privileged)
	require.NoError(t, err)
	require.True(t, priv)

	require.NoError(t, m.Delete(ctx, alice))
	require.ErrorIs(t, m.Delete(ctx, alice), account.ErrNotFound)
}

func TestMemoryRejectsDuplicateCards(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Save(ctx, newAccount("alice", account.Common, "1111")))
	require.ErrorIs(t, m.Save(ctx, newAccount("bob", account.Common, "1111")), account.ErrCardInUse)

	// Re-saving the owner with the same card is an update, not a conflict.
	alice, err := m.FindByCard(ctx, "1111")
	require.NoError(t, err)
	alice.Level = account.Privileged
	require.NoError(t, m.Save(ctx, alice))
}

func TestMemoryRejectsInvalidAccount(t *testing.T) {
	m := NewMemory()
	require.Error(t, m.Save(context.Background(), newAccount("nocards", account.Common)))
}

func TestMemoryFindAllAndWipe(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Save(ctx, newAccount("carol", account.Guest, "3")))
	require.NoError(t, m.Save(ctx, newAccount("alice", account.Guest, "1")))
	require.NoError(t, m.Save(ctx, newAccount("bob", account.Guest, "2")))

	all, err := m.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "alice", all[0].Name)
	require.Equal(t, "carol", all[2].Name)

	require.NoError(t, m.Wipe(ctx))
	exists, err := m.ExistsAny(ctx)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestOpenUnknownType(t *testing.T) {
	_, err := Open(context.Background(), Config{Type: "sqlite"}, zerolog.Nop())
	require.Error(t, err)

	s, err := Open(context.Background(), Config{Type: "memory"}, zerolog.Nop())
	require.NoError(t, err)
	require.IsType(t, &Memory{}, s)
}
