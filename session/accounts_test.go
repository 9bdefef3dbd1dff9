package session

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cardgate/account"
	"cardgate/audit"
)

// signIn puts op at the console without going through the password gate.
func (f *fixture) signIn(op *account.Account) {
	f.sess.mu.Lock()
	f.sess.operator = op
	f.sess.mu.Unlock()
	f.sess.setMode(Console)
}

func TestAllowedActions(t *testing.T) {
	guest := Allowed(&account.Account{Level: account.Guest})
	require.Equal(t, []Action{ActionShowSelf, ActionExit}, guest)

	common := Allowed(&account.Account{Level: account.Common})
	require.Contains(t, common, ActionChangePassword)
	require.Contains(t, common, ActionViewAuditLog)
	require.NotContains(t, common, ActionAddUser)
	require.NotContains(t, common, ActionLockRoom)

	admin := Allowed(&account.Account{Level: account.Administrator})
	require.Contains(t, admin, ActionMergeAccounts)
	require.NotContains(t, admin, ActionWipeStore)

	require.Len(t, Allowed(&account.Account{Level: account.Developer}), len(Actions))
}

func TestActionsRequireOperator(t *testing.T) {
	f := newFixture(t)
	_, err := f.sess.AddGuest(context.Background(), "Guest", "1")
	require.ErrorIs(t, err, ErrNoOperator)
}

func TestAddGuestExpiresAtMidnight(t *testing.T) {
	f := newFixture(t)
	f.signIn(f.addAccount(t, "Petr", account.Privileged, "1"))

	g, err := f.sess.AddGuest(context.Background(), "Visitor", "2")
	require.NoError(t, err)
	require.Equal(t, account.Guest, g.Level)
	require.Equal(t, "Petr", g.Creator)
	require.Equal(t, time.Date(2024, time.March, 6, 0, 0, 0, 0, time.Local), g.ExpiresAt)
	require.True(t, g.Active)

	stored, err := f.store.FindByCard(context.Background(), "2")
	require.NoError(t, err)
	require.Equal(t, g.ID, stored.ID)

	_, err = f.sess.AddGuest(context.Background(), "Other", "2")
	require.ErrorIs(t, err, account.ErrCardInUse)
}

func TestAddUserLevelCap(t *testing.T) {
	f := newFixture(t)
	f.signIn(f.addAccount(t, "Petr", account.Privileged, "1"))
	ctx := context.Background()
	expires := testNow.AddDate(1, 0, 0)

	_, err := f.sess.AddUser(ctx, NewAccount{Name: "Boss", Card: "2", Level: account.Administrator, ExpiresAt: expires})
	require.ErrorIs(t, err, ErrForbidden)

	u, err := f.sess.AddUser(ctx, NewAccount{Name: "Peer", Card: "2", Level: account.Privileged, ExpiresAt: expires})
	require.NoError(t, err)
	require.Equal(t, account.Privileged, u.Level)

	_, err = f.sess.AddDeveloper(ctx, "Dev", "3", expires)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestAddUserForbiddenForCommon(t *testing.T) {
	f := newFixture(t)
	f.signIn(f.addAccount(t, "Olga", account.Common, "1"))

	_, err := f.sess.AddUser(context.Background(), NewAccount{Name: "X", Card: "2", ExpiresAt: testNow.AddDate(0, 1, 0)})
	require.ErrorIs(t, err, ErrForbidden)
	require.Zero(t, f.store.writeCount())
}

func TestBootstrap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	need, err := f.sess.NeedsBootstrap(ctx)
	require.NoError(t, err)
	require.True(t, need)

	dev, err := f.sess.Bootstrap(ctx, "Ilia", "100", testNow.AddDate(2, 0, 0))
	require.NoError(t, err)
	require.Equal(t, account.Developer, dev.Level)
	require.Equal(t, "Ilia", dev.Creator)

	need, err = f.sess.NeedsBootstrap(ctx)
	require.NoError(t, err)
	require.False(t, need)

	_, err = f.sess.Bootstrap(ctx, "Mallory", "101", testNow.AddDate(2, 0, 0))
	require.ErrorIs(t, err, ErrForbidden)
}

func TestEditRespectsRank(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.addAccount(t, "Admin", account.Administrator, "1")
	dev := f.addAccount(t, "Dev", account.Developer, "2")
	user := f.addAccount(t, "User", account.Common, "3")
	f.signIn(admin)

	require.ErrorIs(t, f.sess.ToggleActive(ctx, dev), ErrForbidden)
	require.ErrorIs(t, f.sess.SetLevel(ctx, user, account.Developer), ErrForbidden)
	require.ErrorIs(t, f.sess.DeleteAccount(ctx, dev), ErrForbidden)
	require.ErrorIs(t, f.sess.DeleteAccount(ctx, admin), ErrForbidden)
	require.Zero(t, f.store.writeCount())

	require.NoError(t, f.sess.SetLevel(ctx, user, account.Privileged))
	require.NoError(t, f.sess.ToggleActive(ctx, user))
	stored, err := f.store.FindByCard(ctx, "3")
	require.NoError(t, err)
	require.Equal(t, account.Privileged, stored.Level)
	require.False(t, stored.Active)
	require.False(t, user.Active)

	require.NoError(t, f.sess.ToggleActive(ctx, user))
	require.True(t, user.Active)
}

func TestCards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signIn(f.addAccount(t, "Admin", account.Administrator, "1"))
	user := f.addAccount(t, "User", account.Common, "3")

	require.ErrorIs(t, f.sess.AddCard(ctx, user, "1"), account.ErrCardInUse)
	require.NoError(t, f.sess.AddCard(ctx, user, "4"))
	require.NoError(t, f.sess.AddCard(ctx, user, "4"))
	require.Equal(t, []string{"3", "4"}, user.Cards)

	owner, err := f.store.FindByCard(ctx, "4")
	require.NoError(t, err)
	require.Equal(t, user.ID, owner.ID)

	require.NoError(t, f.sess.RemoveCard(ctx, user, "3"))
	require.ErrorIs(t, f.sess.RemoveCard(ctx, user, "4"), account.ErrLastCard)
	require.Equal(t, []string{"4"}, user.Cards)
}

func TestResetPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signIn(f.addAccount(t, "Admin", account.Administrator, "1"))
	user := f.addAccount(t, "User", account.Common, "3")
	require.NoError(t, user.SetPassword("pw"))

	require.NoError(t, f.sess.ResetPassword(ctx, user))
	stored, err := f.store.FindByCard(ctx, "3")
	require.NoError(t, err)
	require.False(t, stored.HasPassword())
}

func TestMerge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signIn(f.addAccount(t, "Admin", account.Administrator, "1"))
	a := f.addAccount(t, "Anna", account.Common, "10")
	b := f.addAccount(t, "Anna (old card)", account.Common, "11", "12")
	c := f.addAccount(t, "Ivan", account.Guest, "13")

	require.ErrorIs(t, f.sess.Merge(ctx, a, c), account.ErrLevelMismatch)

	require.NoError(t, f.sess.Merge(ctx, a, b))
	require.Equal(t, []string{"10", "11", "12"}, a.Cards)

	for _, card := range []string{"10", "11", "12"} {
		owner, err := f.store.FindByCard(ctx, card)
		require.NoError(t, err)
		require.Equal(t, a.ID, owner.ID)
	}
	all, err := f.store.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestMergeKeepsOperatorAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.addAccount(t, "Admin", account.Administrator, "1")
	f.signIn(admin)
	other := f.addAccount(t, "Other", account.Administrator, "2")

	require.ErrorIs(t, f.sess.Merge(ctx, other, admin), ErrForbidden)

	owner, err := f.store.FindByCard(ctx, "1")
	require.NoError(t, err)
	require.Equal(t, admin.ID, owner.ID)
	require.Equal(t, []string{"2"}, other.Cards)
	all, err := f.store.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	// Absorbing another account into the operator's is allowed.
	require.NoError(t, f.sess.Merge(ctx, admin, other))
	require.Equal(t, []string{"1", "2"}, admin.Cards)
	require.NoError(t, f.sess.ToggleActive(ctx, admin))
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	op := f.addAccount(t, "Olga", account.Common, "1")
	f.signIn(op)
	f.prompt.passwords = []string{"new", "new"}

	require.NoError(t, f.sess.ChangePassword(context.Background()))
	stored, err := f.store.FindByCard(context.Background(), "1")
	require.NoError(t, err)
	require.True(t, stored.CheckPassword("new"))

	f.prompt.passwords = nil
	require.ErrorIs(t, f.sess.ChangePassword(context.Background()), ErrAborted)
}

func developer(t *testing.T, f *fixture) *account.Account {
	t.Helper()
	dev := f.addAccount(t, "Dev", account.Developer, "1")
	require.NoError(t, dev.SetPassword("pw"))
	f.signIn(dev)
	return dev
}

func TestClearAuditLogs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	developer(t, f)
	require.NoError(t, f.audit.Record(audit.Visit, "someone"))

	require.ErrorIs(t, f.sess.ClearAuditLogs(ctx, "guess"), ErrWrongPassword)
	require.Equal(t, []string{
		"Tue, 05 March 2024, 10:07:09: visit: someone",
		"Tue, 05 March 2024, 10:07:09: wrong password: Dev (Developer)",
	}, f.dayLog(t))
	require.Equal(t, []time.Duration{2 * time.Second}, f.sleeps())

	require.NoError(t, f.sess.ClearAuditLogs(ctx, "pw"))
	require.Empty(t, f.dayLog(t))
}

func TestClearAppLog(t *testing.T) {
	f := newFixture(t)
	developer(t, f)
	require.NoError(t, os.WriteFile(f.sess.appLog, []byte("one\ntwo\n"), 0o640))

	lines, err := f.sess.AppLogTail(1)
	require.NoError(t, err)
	require.Equal(t, []string{"two"}, lines)

	require.NoError(t, f.sess.ClearAppLog(context.Background(), "pw"))
	lines, err = f.sess.AppLogTail(10)
	require.NoError(t, err)
	require.Empty(t, lines)
}

func TestWipeStoreExits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	developer(t, f)
	f.addAccount(t, "User", account.Common, "2")

	require.NoError(t, f.sess.WipeStore(ctx, "pw"))
	exists, err := f.store.ExistsAny(ctx)
	require.NoError(t, err)
	require.False(t, exists)
	require.Equal(t, []int{0}, f.exits)
	require.Equal(t, 1, f.cleanups)
	require.Equal(t, []string{"Tue, 05 March 2024, 10:07:09: program exit: store wiped by Dev (Developer)"}, f.dayLog(t))
}

func TestTerminateAndShell(t *testing.T) {
	f := newFixture(t)
	f.signIn(f.addAccount(t, "Admin", account.Administrator, "9"))
	require.ErrorIs(t, f.sess.Terminate(), ErrForbidden)
	require.ErrorIs(t, f.sess.Shell(), ErrForbidden)
	require.Empty(t, f.exits)

	developer(t, f)
	require.NoError(t, f.sess.Shell())
	require.Equal(t, []string{"/bin/bash"}, f.shells)
	require.Empty(t, f.exits)

	require.NoError(t, f.sess.Terminate())
	require.Equal(t, []int{0}, f.exits)
	require.Equal(t, 2, f.cleanups)
}

func TestViewLogsByLevel(t *testing.T) {
	f := newFixture(t)
	f.signIn(f.addAccount(t, "Guest", account.Guest, "1"))
	_, err := f.sess.AuditTail(audit.Day, 10)
	require.ErrorIs(t, err, ErrForbidden)

	f.signIn(f.addAccount(t, "User", account.Common, "2"))
	_, err = f.sess.AuditTail(audit.Day, 10)
	require.NoError(t, err)
	_, err = f.sess.AppLogTail(10)
	require.ErrorIs(t, err, ErrForbidden)
}
