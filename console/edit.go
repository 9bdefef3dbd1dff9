package console

import (
	"context"
	"fmt"

	"cardgate/account"
	"cardgate/session"
)

type editOp int

const (
	editShow editOp = iota
	editLevel
	editToggle
	editResetPassword
	editAddCard
	editRemoveCard
	editDelete
)

func (o editOp) label(a *account.Account) string {
	switch o {
	case editShow:
		return "Show details"
	case editLevel:
		return "Change access level"
	case editToggle:
		if a.Active {
			return "Block"
		}
		return "Unblock"
	case editResetPassword:
		return "Reset password"
	case editAddCard:
		return "Add card"
	case editRemoveCard:
		return "Remove card"
	case editDelete:
		return "Delete account"
	default:
		return "?"
	}
}

var editOps = []editOp{editShow, editLevel, editToggle, editResetPassword, editAddCard, editRemoveCard, editDelete}

func accountLabel(a *account.Account) string {
	if a.Active {
		return a.String()
	}
	return a.String() + " [blocked]"
}

// chooseAccount lists every account and returns the one picked.
func (m *Menu) chooseAccount(ctx context.Context, title string) (*account.Account, bool, error) {
	all, err := m.sess.Accounts(ctx)
	if err != nil {
		return nil, false, err
	}
	labels := make([]string, len(all))
	for i, a := range all {
		labels[i] = accountLabel(a)
	}
	i, ok := m.term.Choose(ctx, title, labels)
	if !ok {
		return nil, false, nil
	}
	return all[i], true, nil
}

func (m *Menu) editAccounts(ctx context.Context, op *account.Account) error {
	for {
		target, ok, err := m.chooseAccount(ctx, "Choose an account")
		if err != nil || !ok {
			return err
		}

		labels := make([]string, len(editOps))
		for i, o := range editOps {
			labels[i] = o.label(target)
		}
		i, ok := m.term.Choose(ctx, target.String(), labels)
		if !ok {
			continue
		}
		if err := m.editAccount(ctx, op, target, editOps[i]); err != nil {
			m.report(session.ActionEditAccounts, err)
		}
	}
}

func (m *Menu) editAccount(ctx context.Context, op, target *account.Account, o editOp) error {
	switch o {
	case editShow:
		m.showAccount(target)
		return nil
	case editLevel:
		level, ok := m.chooseLevel(ctx, op)
		if !ok {
			return session.ErrAborted
		}
		return m.sess.SetLevel(ctx, target, level)
	case editToggle:
		if !m.term.Confirm(ctx, fmt.Sprintf("%s %s?", o.label(target), target.Name)) {
			return session.ErrAborted
		}
		return m.sess.ToggleActive(ctx, target)
	case editResetPassword:
		if !m.term.Confirm(ctx, fmt.Sprintf("Reset the password of %s?", target.Name)) {
			return session.ErrAborted
		}
		return m.sess.ResetPassword(ctx, target)
	case editAddCard:
		card, err := m.awaitCard(ctx, "Present the additional card")
		if err != nil {
			return err
		}
		return m.sess.AddCard(ctx, target, card)
	case editRemoveCard:
		i, ok := m.term.Choose(ctx, "Card to remove", target.Cards)
		if !ok {
			return session.ErrAborted
		}
		return m.sess.RemoveCard(ctx, target, target.Cards[i])
	case editDelete:
		if !m.term.Confirm(ctx, fmt.Sprintf("Delete %s?", target.Name)) {
			return session.ErrAborted
		}
		return m.sess.DeleteAccount(ctx, target)
	default:
		return fmt.Errorf("unknown edit %d", o)
	}
}

// mergeAccounts lets the operator pick which account keeps its identity and
// which one hands over its cards.
func (m *Menu) mergeAccounts(ctx context.Context) error {
	primary, ok, err := m.chooseAccount(ctx, "Account to keep")
	if err != nil || !ok {
		return err
	}
	absorbed, ok, err := m.chooseAccount(ctx, "Account to merge into "+primary.Name)
	if err != nil || !ok {
		return err
	}
	if !m.term.Confirm(ctx, fmt.Sprintf("Move the cards of %s to %s and delete %s?", absorbed.Name, primary.Name, absorbed.Name)) {
		return session.ErrAborted
	}
	if err := m.sess.Merge(ctx, primary, absorbed); err != nil {
		return err
	}
	m.term.Show("Accounts merged")
	m.showAccount(primary)
	return nil
}
