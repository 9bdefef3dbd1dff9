package session

import (
	"context"
	"fmt"

	"cardgate/account"
	"cardgate/actuator"
	"cardgate/audit"
)

// EnterConsole authenticates op for the console. An account without a
// password must create one first. A wrong password is audited and costs the
// error delay.
func (s *Session) EnterConsole(ctx context.Context, op *account.Account) bool {
	s.log.Info().Str("operator", op.Name).Stringer("level", op.Level).Msg("Console requested")

	if !op.HasPassword() {
		s.prompt.Notify("You need to set a password for your account")
		if err := s.createPassword(ctx, op); err != nil {
			s.log.Info().Err(err).Str("operator", op.Name).Msg("Password not created")
			return false
		}
	} else {
		password, ok := s.prompt.Password(ctx, "Confirm access")
		if !ok {
			return false
		}
		if !op.CheckPassword(password) {
			s.wrongPassword(ctx, op)
			return false
		}
	}

	s.mu.Lock()
	s.operator = op
	s.mu.Unlock()
	s.setMode(Console)
	s.act.Send(actuator.Maintenance)
	return true
}

// leaveConsole signs the operator out. Locking the room from the console
// keeps the session locked; every other exit returns to standard mode.
func (s *Session) leaveConsole() {
	s.mu.Lock()
	s.operator = nil
	s.mu.Unlock()
	if s.Mode() == Console {
		s.setMode(Standard)
	}
}

// createPassword asks for a new password twice until both entries match or
// the operator gives up, then persists the hash.
func (s *Session) createPassword(ctx context.Context, op *account.Account) error {
	for {
		first, ok := s.prompt.Password(ctx, "New password")
		if !ok {
			return ErrAborted
		}
		second, ok := s.prompt.Password(ctx, "Confirm password")
		if !ok {
			return ErrAborted
		}
		if first != "" && first == second {
			a := op.Clone()
			if err := a.SetPassword(first); err != nil {
				return err
			}
			if err := s.store.Save(ctx, a); err != nil {
				return fmt.Errorf("save password: %w", err)
			}
			*op = *a
			s.log.Info().Str("operator", op.Name).Msg("Password changed")
			return nil
		}

		question := "Passwords do not match. Try again?"
		if first == "" {
			question = "Password is empty. Try again?"
		}
		if !s.prompt.Confirm(ctx, question) {
			return ErrAborted
		}
	}
}

func (s *Session) wrongPassword(ctx context.Context, op *account.Account) {
	s.log.Warn().Str("operator", op.Name).Msg("Wrong password")
	s.record(audit.WrongPassword, op.String())
	s.fail(ctx, "Wrong password")
}

// checkPassword re-authenticates the signed-in operator before a
// destructive action.
func (s *Session) checkPassword(ctx context.Context, op *account.Account, password string) error {
	if op.CheckPassword(password) {
		return nil
	}
	s.wrongPassword(ctx, op)
	return ErrWrongPassword
}

// EnterLocked seals the room. Only accounts above common level may do so;
// a refusal is signalled, audited and costs the error delay.
func (s *Session) EnterLocked(ctx context.Context, op *account.Account) error {
	if op.Level <= account.Common {
		s.record(audit.InsufficientAccess, op.String())
		s.fail(ctx, "Insufficient access level")
		return ErrForbidden
	}
	s.setMode(Locked)
	s.act.Send(actuator.Lock)
	s.log.Info().Str("operator", op.Name).Msg("Room locked")
	return nil
}
