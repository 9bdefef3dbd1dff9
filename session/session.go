// Package session is the access state machine: it turns presented cards into
// decisions, drives the door actuator and the audit trail, and gates the
// administrative console.
package session

import (
	"context"
	"errors"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"cardgate/account"
	"cardgate/actuator"
	"cardgate/audit"
	"cardgate/metrics"
	"cardgate/reader"
)

var (
	ErrForbidden     = errors.New("operation not permitted")
	ErrWrongPassword = errors.New("wrong password")
	ErrAborted       = errors.New("aborted by operator")
	ErrNoOperator    = errors.New("no operator signed in")
)

// Auditor is the audit trail the session writes to.
type Auditor interface {
	Record(cat audit.Category, detail string) error
	Tail(which audit.Log, n int) ([]string, error)
	Clear(which audit.Log) error
}

// Prompter is the operator-facing side of the session.
type Prompter interface {
	// Granted shows the success confirmation for at most d and reports
	// whether the operator asked for the console before it elapsed.
	Granted(ctx context.Context, a *account.Account, d time.Duration) bool
	// Denied tells the person at the door why the card was refused.
	Denied(reason string)
	// Password reads a secret; ok is false when the operator cancels.
	Password(ctx context.Context, title string) (password string, ok bool)
	Confirm(ctx context.Context, question string) bool
	Notify(msg string)
}

// Publisher receives every authorization decision.
type Publisher interface {
	PublishAccess(ev Event)
}

// ConsoleRunner runs the administrative menu for op until the operator
// leaves it.
type ConsoleRunner interface {
	Run(ctx context.Context, op *account.Account)
}

// Config holds the session timing and process settings.
type Config struct {
	SuccessDelay time.Duration `yaml:"success_delay"` // default 5s
	ErrorDelay   time.Duration `yaml:"error_delay"`   // default 2s
	PollInterval time.Duration `yaml:"poll_interval"` // card slot polling, default 100ms
	Shell        string        `yaml:"shell"`         // default /bin/sh
}

// Options are the collaborators of a Session. Store, Actuator, Audit,
// Prompter and Handoff are required.
type Options struct {
	Store     account.Store
	Actuator  actuator.Actuator
	Audit     Auditor
	Prompter  Prompter
	Handoff   *reader.Handoff
	Publisher Publisher
	Log       zerolog.Logger

	// AppLog is the application log file shown and cleared from the console.
	AppLog string
	// Cleanup releases devices before the process exits from the console.
	Cleanup func()

	// Test hooks; nil selects the real implementation.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration)
	Exit  func(code int)
	Exec  func(shell string) error
}

// Session is the single access session of the node.
type Session struct {
	cfg     Config
	store   account.Store
	act     actuator.Actuator
	audit   Auditor
	prompt  Prompter
	handoff *reader.Handoff
	pub     Publisher
	console ConsoleRunner
	log     zerolog.Logger
	appLog  string
	cleanup func()

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
	exit  func(code int)
	exec  func(shell string) error

	mu       sync.Mutex
	mode     Mode
	operator *account.Account
}

// New creates a Session in Standard mode.
func New(cfg Config, opts Options) *Session {
	if cfg.SuccessDelay == 0 {
		cfg.SuccessDelay = 5 * time.Second
	}
	if cfg.ErrorDelay == 0 {
		cfg.ErrorDelay = 2 * time.Second
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if cfg.Shell == "" {
		cfg.Shell = "/bin/sh"
	}

	s := &Session{
		cfg:     cfg,
		store:   opts.Store,
		act:     opts.Actuator,
		audit:   opts.Audit,
		prompt:  opts.Prompter,
		handoff: opts.Handoff,
		pub:     opts.Publisher,
		log:     opts.Log,
		appLog:  opts.AppLog,
		cleanup: opts.Cleanup,
		now:     opts.Now,
		sleep:   opts.Sleep,
		exit:    opts.Exit,
		exec:    opts.Exec,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.sleep == nil {
		s.sleep = sleepCtx
	}
	if s.exit == nil {
		s.exit = os.Exit
	}
	if s.exec == nil {
		s.exec = execShell
	}
	if s.cleanup == nil {
		s.cleanup = func() {}
	}
	metrics.SessionMode.Set(float64(Standard))
	return s
}

// SetConsole installs the administrative menu. Without one, escalation
// requests are ignored.
func (s *Session) SetConsole(c ConsoleRunner) {
	s.console = c
}

// Mode returns the current mode.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Operator returns the account signed in to the console, or nil.
func (s *Session) Operator() *account.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.operator
}

func (s *Session) setMode(m Mode) {
	s.mu.Lock()
	prev := s.mode
	s.mode = m
	s.mu.Unlock()

	if prev != m {
		metrics.SessionMode.Set(float64(m))
		s.log.Info().Stringer("from", prev).Stringer("to", m).Msg("Mode changed")
	}
}

// Run serves cards until ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	for {
		if s.Mode() == Locked {
			s.act.Send(actuator.Lock)
		} else {
			s.act.Send(actuator.Idle)
		}

		card, err := s.AwaitCard(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		res := s.Authorize(ctx, card)
		if res.Escalate && s.console != nil && s.EnterConsole(ctx, res.Account) {
			s.console.Run(ctx, s.Operator())
			s.leaveConsole()
		}
	}
}

// AwaitCard waits for the next card. Any card left over from before the
// call is discarded and cards are only accepted while waiting.
func (s *Session) AwaitCard(ctx context.Context) (string, error) {
	s.handoff.Take()
	s.handoff.SetWaiting(true)
	defer s.handoff.SetWaiting(false)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if card, ok := s.handoff.Take(); ok {
			return card, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// Authorize decides on a presented card and carries the decision out.
// Rejections are reported in the result, never as errors.
func (s *Session) Authorize(ctx context.Context, card string) Result {
	mode := s.Mode()

	a, err := s.store.FindByCard(ctx, card)
	if err != nil && !errors.Is(err, account.ErrNotFound) {
		s.log.Error().Err(err).Str("card", card).Msg("Account lookup failed")
		res := Result{Decision: Unavailable, Card: card}
		s.publish(res, mode)
		s.fail(ctx, "Account store unavailable")
		return res
	}
	if err != nil {
		a = nil
	}

	res := Result{Decision: Decide(mode, a, s.now()), Card: card, Account: a}
	s.publish(res, mode)

	switch res.Decision {
	case Granted:
		s.open()
		s.record(audit.Visit, a.String())
		if mode == Locked {
			s.setMode(Standard)
		}
		s.log.Info().Str("card", card).Str("member", a.Name).Msg("Access granted")

		start := s.now()
		res.Escalate = s.prompt.Granted(ctx, a, s.cfg.SuccessDelay)
		if !res.Escalate {
			s.sleep(ctx, s.cfg.SuccessDelay-s.now().Sub(start))
		}
	case Unknown:
		s.record(audit.UnknownCard, card)
		s.fail(ctx, "Card rejected")
	case Blocked:
		s.record(audit.BlockedCard, a.String())
		s.fail(ctx, "Card blocked")
	case Expired:
		s.record(audit.ExpiredCard, a.String())
		s.fail(ctx, "Card expired")
	case Insufficient:
		s.record(audit.InsufficientAccess, a.String())
		s.fail(ctx, "Insufficient access level")
	}
	return res
}

// ExitButton handles the request-to-exit button: the door opens in
// standard mode and stays shut otherwise.
func (s *Session) ExitButton() {
	if mode := s.Mode(); mode != Standard {
		s.log.Info().Stringer("mode", mode).Msg("Exit button ignored")
		return
	}
	s.open()
	s.record(audit.Visit, "exit button")
}

func (s *Session) open() {
	s.act.Send(actuator.Open)
	s.act.Send(actuator.SignalOk)
}

// fail signals a rejection and holds the session for the error delay.
func (s *Session) fail(ctx context.Context, reason string) {
	s.act.Send(actuator.SignalFail)
	s.prompt.Denied(reason)
	s.sleep(ctx, s.cfg.ErrorDelay)
}

func (s *Session) record(cat audit.Category, detail string) {
	if err := s.audit.Record(cat, detail); err != nil {
		s.log.Error().Err(err).Stringer("category", cat).Msg("Audit write failed")
	}
}

func (s *Session) publish(res Result, mode Mode) {
	metrics.DecisionsTotal.WithLabelValues(res.Decision.String(), mode.String()).Inc()
	if s.pub == nil {
		return
	}
	ev := Event{Time: s.now(), Card: res.Card, Decision: res.Decision, Mode: mode}
	if res.Account != nil {
		ev.Member = res.Account.Name
		ev.Level = res.Account.Level
	}
	s.pub.PublishAccess(ev)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func execShell(shell string) error {
	return syscall.Exec(shell, []string{shell}, os.Environ())
}
