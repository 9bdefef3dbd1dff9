package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"cardgate/audit"
)

// AuditTail returns the last n lines of an audit log.
func (s *Session) AuditTail(which audit.Log, n int) ([]string, error) {
	if _, err := s.allow(ActionViewAuditLog); err != nil {
		return nil, err
	}
	return s.audit.Tail(which, n)
}

// AppLogTail returns the last n lines of the application log.
func (s *Session) AppLogTail(n int) ([]string, error) {
	if _, err := s.allow(ActionViewAppLog); err != nil {
		return nil, err
	}
	return audit.Tail(s.appLog, n)
}

// ClearAuditLogs removes both audit logs after re-checking the operator's
// password.
func (s *Session) ClearAuditLogs(ctx context.Context, password string) error {
	op, err := s.allow(ActionClearAuditLogs)
	if err != nil {
		return err
	}
	if err := s.checkPassword(ctx, op, password); err != nil {
		return err
	}
	for _, l := range []audit.Log{audit.Day, audit.Night} {
		if err := s.audit.Clear(l); err != nil {
			return err
		}
	}
	s.log.Warn().Str("operator", op.Name).Msg("Audit logs cleared")
	return nil
}

// ClearAppLog truncates the application log after re-checking the operator's
// password. The logger keeps appending to the same file.
func (s *Session) ClearAppLog(ctx context.Context, password string) error {
	op, err := s.allow(ActionClearAppLog)
	if err != nil {
		return err
	}
	if err := s.checkPassword(ctx, op, password); err != nil {
		return err
	}
	if s.appLog == "" {
		return nil
	}
	if err := os.Truncate(s.appLog, 0); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("truncate %s: %w", s.appLog, err)
	}
	s.log.Warn().Str("operator", op.Name).Msg("Application log cleared")
	return nil
}

// WipeStore removes every account after re-checking the operator's password,
// then ends the program: with no accounts left nobody could be let in. The
// next start bootstraps a new developer.
func (s *Session) WipeStore(ctx context.Context, password string) error {
	op, err := s.allow(ActionWipeStore)
	if err != nil {
		return err
	}
	if err := s.checkPassword(ctx, op, password); err != nil {
		return err
	}
	if err := s.store.Wipe(ctx); err != nil {
		return fmt.Errorf("wipe store: %w", err)
	}
	s.log.Warn().Str("operator", op.Name).Msg("Account store wiped")
	s.terminate(fmt.Sprintf("store wiped by %s", op))
	return nil
}

// Terminate ends the program.
func (s *Session) Terminate() error {
	op, err := s.allow(ActionTerminate)
	if err != nil {
		return err
	}
	s.terminate(fmt.Sprintf("terminated by %s", op))
	return nil
}

// Shell replaces the program with the configured shell. It only returns if
// the shell could not be started, in which case the program exits anyway:
// the devices have already been released.
func (s *Session) Shell() error {
	op, err := s.allow(ActionShell)
	if err != nil {
		return err
	}
	s.record(audit.ProgramExit, fmt.Sprintf("shell opened by %s", op))
	s.cleanup()
	if err := s.exec(s.cfg.Shell); err != nil {
		s.log.Error().Err(err).Str("shell", s.cfg.Shell).Msg("Shell failed")
		s.exit(1)
	}
	return nil
}

func (s *Session) terminate(detail string) {
	s.record(audit.ProgramExit, detail)
	s.log.Info().Str("detail", detail).Msg("Program exit")
	s.cleanup()
	s.exit(0)
}
