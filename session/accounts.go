package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cardgate/account"
)

// NewAccount describes an account to register.
type NewAccount struct {
	Name      string
	Card      string
	Level     account.Level
	ExpiresAt time.Time
}

// allow returns the signed-in operator if they may run a.
func (s *Session) allow(a Action) (*account.Account, error) {
	op := s.Operator()
	if op == nil {
		return nil, ErrNoOperator
	}
	if !a.Permits(op.Level) {
		return nil, fmt.Errorf("%s: %w", a, ErrForbidden)
	}
	return op, nil
}

// canEdit refuses changes to accounts ranked above the operator.
func canEdit(op, target *account.Account) error {
	if target.Level > op.Level {
		return fmt.Errorf("%s outranks %s: %w", target.Name, op.Name, ErrForbidden)
	}
	return nil
}

// AddUser registers an account at a level up to the operator's own.
func (s *Session) AddUser(ctx context.Context, n NewAccount) (*account.Account, error) {
	op, err := s.allow(ActionAddUser)
	if err != nil {
		return nil, err
	}
	if n.Level > op.Level {
		return nil, fmt.Errorf("assign %s: %w", n.Level, ErrForbidden)
	}
	return s.register(ctx, op.Name, n)
}

// AddGuest registers a guest account valid until the next local midnight.
func (s *Session) AddGuest(ctx context.Context, name, card string) (*account.Account, error) {
	op, err := s.allow(ActionAddGuest)
	if err != nil {
		return nil, err
	}
	return s.register(ctx, op.Name, NewAccount{
		Name:      name,
		Card:      card,
		Level:     account.Guest,
		ExpiresAt: nextMidnight(s.now()),
	})
}

// AddDeveloper registers another developer account.
func (s *Session) AddDeveloper(ctx context.Context, name, card string, expires time.Time) (*account.Account, error) {
	op, err := s.allow(ActionAddDeveloper)
	if err != nil {
		return nil, err
	}
	return s.register(ctx, op.Name, NewAccount{Name: name, Card: card, Level: account.Developer, ExpiresAt: expires})
}

// NeedsBootstrap reports whether the store holds no accounts at all.
func (s *Session) NeedsBootstrap(ctx context.Context) (bool, error) {
	exists, err := s.store.ExistsAny(ctx)
	if err != nil {
		return false, err
	}
	return !exists, nil
}

// Bootstrap creates the first developer account of an empty installation.
// It is refused once any developer exists.
func (s *Session) Bootstrap(ctx context.Context, name, card string, expires time.Time) (*account.Account, error) {
	exists, err := s.store.ExistsAnyWithLevel(ctx, account.Developer)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("developer already exists: %w", ErrForbidden)
	}
	return s.register(ctx, name, NewAccount{Name: name, Card: card, Level: account.Developer, ExpiresAt: expires})
}

func (s *Session) register(ctx context.Context, creator string, n NewAccount) (*account.Account, error) {
	if _, err := s.store.FindByCard(ctx, n.Card); err == nil {
		return nil, account.ErrCardInUse
	} else if !errors.Is(err, account.ErrNotFound) {
		return nil, err
	}

	a := &account.Account{
		Creator:   creator,
		Cards:     []string{n.Card},
		Name:      n.Name,
		Level:     n.Level,
		ExpiresAt: n.ExpiresAt,
		Active:    true,
	}
	if err := s.store.Save(ctx, a); err != nil {
		return nil, err
	}
	s.log.Info().Str("creator", creator).Str("member", a.Name).Stringer("level", a.Level).Msg("Account created")
	return a, nil
}

// Accounts lists every account for editing.
func (s *Session) Accounts(ctx context.Context) ([]*account.Account, error) {
	if _, err := s.allow(ActionEditAccounts); err != nil {
		return nil, err
	}
	return s.store.FindAll(ctx)
}

// edit applies fn to target and saves it, provided the operator may edit
// accounts at target's level.
func (s *Session) edit(ctx context.Context, target *account.Account, what string, fn func(a *account.Account) error) error {
	op, err := s.allow(ActionEditAccounts)
	if err != nil {
		return err
	}
	if err := canEdit(op, target); err != nil {
		return err
	}

	a := target.Clone()
	if err := fn(a); err != nil {
		return err
	}
	if err := s.store.Save(ctx, a); err != nil {
		return err
	}
	*target = *a
	s.log.Info().Str("operator", op.Name).Str("member", a.Name).Str("change", what).Msg("Account edited")
	return nil
}

// SetLevel changes target's access level. Nobody can grant a level above
// their own.
func (s *Session) SetLevel(ctx context.Context, target *account.Account, level account.Level) error {
	if !level.Valid() {
		return fmt.Errorf("level %d: %w", level, ErrForbidden)
	}
	if op := s.Operator(); op != nil && level > op.Level {
		return fmt.Errorf("assign %s: %w", level, ErrForbidden)
	}
	return s.edit(ctx, target, "level", func(a *account.Account) error {
		a.Level = level
		return nil
	})
}

// ToggleActive blocks an active account or unblocks a blocked one.
func (s *Session) ToggleActive(ctx context.Context, target *account.Account) error {
	return s.edit(ctx, target, "active", func(a *account.Account) error {
		a.Active = !a.Active
		return nil
	})
}

// ResetPassword clears target's password; it must create a new one on its
// next console entry.
func (s *Session) ResetPassword(ctx context.Context, target *account.Account) error {
	return s.edit(ctx, target, "password reset", func(a *account.Account) error {
		a.ResetPassword()
		return nil
	})
}

// AddCard registers another card for target.
func (s *Session) AddCard(ctx context.Context, target *account.Account, card string) error {
	if owner, err := s.store.FindByCard(ctx, card); err == nil {
		if owner.ID == target.ID {
			return nil
		}
		return account.ErrCardInUse
	} else if !errors.Is(err, account.ErrNotFound) {
		return err
	}
	return s.edit(ctx, target, "card added", func(a *account.Account) error {
		a.AddCard(card)
		return nil
	})
}

// RemoveCard drops one of target's cards. The last card cannot be removed.
func (s *Session) RemoveCard(ctx context.Context, target *account.Account, card string) error {
	return s.edit(ctx, target, "card removed", func(a *account.Account) error {
		return a.RemoveCard(card)
	})
}

// DeleteAccount removes target. Operators cannot delete themselves.
func (s *Session) DeleteAccount(ctx context.Context, target *account.Account) error {
	op, err := s.allow(ActionEditAccounts)
	if err != nil {
		return err
	}
	if err := canEdit(op, target); err != nil {
		return err
	}
	if op.ID == target.ID {
		return fmt.Errorf("delete own account: %w", ErrForbidden)
	}
	if err := s.store.Delete(ctx, target); err != nil {
		return err
	}
	s.log.Info().Str("operator", op.Name).Str("member", target.Name).Msg("Account deleted")
	return nil
}

// Merge moves absorbed's cards onto primary and deletes absorbed. Both must
// share the same level, and the operator cannot be the absorbed account.
func (s *Session) Merge(ctx context.Context, primary, absorbed *account.Account) error {
	op, err := s.allow(ActionMergeAccounts)
	if err != nil {
		return err
	}
	if primary.ID == absorbed.ID {
		return nil
	}
	if err := canEdit(op, primary); err != nil {
		return err
	}
	if err := canEdit(op, absorbed); err != nil {
		return err
	}
	if op.ID == absorbed.ID {
		return fmt.Errorf("merge away own account: %w", ErrForbidden)
	}

	merged := primary.Clone()
	if err := account.Merge(merged, absorbed); err != nil {
		return err
	}

	// The absorbed cards must be free before the primary can claim them.
	if err := s.store.Delete(ctx, absorbed); err != nil {
		return err
	}
	if err := s.store.Save(ctx, merged); err != nil {
		if rerr := s.store.Save(ctx, absorbed); rerr != nil {
			s.log.Error().Err(rerr).Str("member", absorbed.Name).Msg("Restoring merged account failed")
		}
		return err
	}
	*primary = *merged
	s.log.Info().Str("operator", op.Name).Str("primary", primary.Name).Str("absorbed", absorbed.Name).Msg("Accounts merged")
	return nil
}

// ChangePassword lets the operator replace their own password.
func (s *Session) ChangePassword(ctx context.Context) error {
	op, err := s.allow(ActionChangePassword)
	if err != nil {
		return err
	}
	return s.createPassword(ctx, op)
}

func nextMidnight(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
}
