package console

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"cardgate/account"
	"cardgate/audit"
	"cardgate/session"
)

const (
	dateLayout         = "2006-01-02"
	defaultCardTimeout = 30 * time.Second
	defaultTail        = 40
)

var errNoCard = errors.New("no card presented")

var validate = validator.New()

// Terminal is what the menu needs from the operator's screen.
type Terminal interface {
	session.Prompter
	Input(ctx context.Context, prompt string) (string, bool)
	Choose(ctx context.Context, title string, options []string) (int, bool)
	Show(lines ...string)
}

// accountForm is operator input checked before any account is created.
type accountForm struct {
	Name    string        `validate:"required,max=64"`
	Level   account.Level `validate:"gte=0,lte=4"`
	Expires time.Time     `validate:"required"`
}

// Menu is the administrative console.
type Menu struct {
	sess        *session.Session
	term        Terminal
	log         zerolog.Logger
	now         func() time.Time
	cardTimeout time.Duration
	tail        int
}

// NewMenu creates the console menu for sess.
func NewMenu(sess *session.Session, term Terminal, log zerolog.Logger) *Menu {
	return &Menu{
		sess:        sess,
		term:        term,
		log:         log,
		now:         time.Now,
		cardTimeout: defaultCardTimeout,
		tail:        defaultTail,
	}
}

// Run implements session.ConsoleRunner. It returns when the operator leaves,
// when the room gets locked or when ctx ends.
func (m *Menu) Run(ctx context.Context, op *account.Account) {
	for ctx.Err() == nil && m.sess.Mode() == session.Console {
		actions := session.Allowed(op)
		labels := make([]string, len(actions))
		for i, a := range actions {
			labels[i] = a.String()
		}

		i, ok := m.term.Choose(ctx, fmt.Sprintf("Console: %s", op), labels)
		if !ok || actions[i] == session.ActionExit {
			return
		}
		if err := m.dispatch(ctx, op, actions[i]); err != nil {
			m.report(actions[i], err)
		}
	}
}

func (m *Menu) report(a session.Action, err error) {
	switch {
	case errors.Is(err, session.ErrAborted), errors.Is(err, errNoCard):
		m.term.Notify("Cancelled")
	case errors.Is(err, session.ErrWrongPassword):
		// already reported by the session
	case errors.Is(err, session.ErrForbidden):
		m.term.Notify("Not permitted")
	case errors.Is(err, account.ErrCardInUse):
		m.term.Notify("This card is already registered")
	case errors.Is(err, account.ErrLastCard):
		m.term.Notify("An account must keep at least one card")
	case errors.Is(err, account.ErrLevelMismatch):
		m.term.Notify("Only accounts with the same access level can be merged")
	default:
		m.log.Error().Err(err).Stringer("action", a).Msg("Console action failed")
		m.term.Notify(fmt.Sprintf("Error: %v", err))
	}
}

func (m *Menu) dispatch(ctx context.Context, op *account.Account, a session.Action) error {
	switch a {
	case session.ActionExit:
		return nil
	case session.ActionShowSelf:
		m.showAccount(op)
		return nil
	case session.ActionChangePassword:
		return m.sess.ChangePassword(ctx)
	case session.ActionViewAuditLog:
		return m.viewAuditLog(ctx)
	case session.ActionAddGuest:
		return m.addGuest(ctx)
	case session.ActionAddUser:
		return m.addUser(ctx, op)
	case session.ActionLockRoom:
		if !m.term.Confirm(ctx, "Lock the room?") {
			return session.ErrAborted
		}
		return m.sess.EnterLocked(ctx, op)
	case session.ActionEditAccounts:
		return m.editAccounts(ctx, op)
	case session.ActionMergeAccounts:
		return m.mergeAccounts(ctx)
	case session.ActionAddDeveloper:
		return m.addDeveloper(ctx)
	case session.ActionViewAppLog:
		lines, err := m.sess.AppLogTail(m.tail)
		if err != nil {
			return err
		}
		m.showLog("Application log", lines)
		return nil
	case session.ActionClearAuditLogs:
		return m.destructive(ctx, "Clear both visits logs?", m.sess.ClearAuditLogs)
	case session.ActionClearAppLog:
		return m.destructive(ctx, "Clear the application log?", m.sess.ClearAppLog)
	case session.ActionWipeStore:
		return m.destructive(ctx, "Delete every account? This cannot be undone and the program will exit", m.sess.WipeStore)
	case session.ActionShell:
		if !m.term.Confirm(ctx, "Leave the program and open a shell?") {
			return session.ErrAborted
		}
		return m.sess.Shell()
	case session.ActionTerminate:
		if !m.term.Confirm(ctx, "Terminate the program?") {
			return session.ErrAborted
		}
		return m.sess.Terminate()
	default:
		return fmt.Errorf("unknown action %d", a)
	}
}

// destructive asks for confirmation and the operator's password before
// running fn.
func (m *Menu) destructive(ctx context.Context, question string, fn func(ctx context.Context, password string) error) error {
	if !m.term.Confirm(ctx, question) {
		return session.ErrAborted
	}
	password, ok := m.term.Password(ctx, "Confirm with your password")
	if !ok {
		return session.ErrAborted
	}
	return fn(ctx, password)
}

func (m *Menu) viewAuditLog(ctx context.Context) error {
	i, ok := m.term.Choose(ctx, "Which log?", []string{"Visits", "Out-of-hours visits"})
	if !ok {
		return nil
	}
	which := []audit.Log{audit.Day, audit.Night}[i]
	lines, err := m.sess.AuditTail(which, m.tail)
	if err != nil {
		return err
	}
	m.showLog(fmt.Sprintf("%s log", which), lines)
	return nil
}

func (m *Menu) showLog(title string, lines []string) {
	if len(lines) == 0 {
		m.term.Show(title+" is empty")
		return
	}
	m.term.Show("--- " + title + " ---")
	m.term.Show(lines...)
}

func (m *Menu) showAccount(a *account.Account) {
	password := "absent"
	if a.HasPassword() {
		password = "set"
	}
	status := "active"
	if !a.Active {
		status = "blocked"
	}
	m.term.Show(
		fmt.Sprintf("Name:     %s", a.Name),
		fmt.Sprintf("Level:    %s", a.Level),
		fmt.Sprintf("Expires:  %s", a.ExpiresAt.Format("2006-01-02 15:04")),
		fmt.Sprintf("Password: %s", password),
		fmt.Sprintf("Status:   %s", status),
		fmt.Sprintf("Cards:    %d", len(a.Cards)),
		fmt.Sprintf("Creator:  %s", a.Creator),
	)
}

// awaitCard asks for a card, giving up after cardTimeout.
func (m *Menu) awaitCard(ctx context.Context, prompt string) (string, error) {
	m.term.Notify(fmt.Sprintf("%s (%s)...", prompt, m.cardTimeout))
	ctx, cancel := context.WithTimeout(ctx, m.cardTimeout)
	defer cancel()
	card, err := m.sess.AwaitCard(ctx)
	if err != nil {
		return "", errNoCard
	}
	return card, nil
}

func (m *Menu) inputName(ctx context.Context, prompt string) (string, error) {
	name, ok := m.term.Input(ctx, prompt)
	if !ok {
		return "", session.ErrAborted
	}
	if err := validate.Var(name, "required,max=64"); err != nil {
		return "", fmt.Errorf("name %q: %w", name, err)
	}
	return name, nil
}

// inputForm reads and validates a new account's name and expiry date.
func (m *Menu) inputForm(ctx context.Context, level account.Level) (accountForm, error) {
	form := accountForm{Level: level}
	name, ok := m.term.Input(ctx, "Name")
	if !ok {
		return form, session.ErrAborted
	}
	form.Name = name

	raw, ok := m.term.Input(ctx, "Expires on (YYYY-MM-DD)")
	if !ok {
		return form, session.ErrAborted
	}
	expires, err := time.ParseInLocation(dateLayout, raw, time.Local)
	if err != nil {
		return form, fmt.Errorf("date %q: %w", raw, err)
	}
	if !expires.After(m.now()) {
		return form, fmt.Errorf("date %s is not in the future", raw)
	}
	form.Expires = expires

	if err := validate.Struct(form); err != nil {
		return form, err
	}
	return form, nil
}

func (m *Menu) addGuest(ctx context.Context) error {
	name, err := m.inputName(ctx, "Guest name")
	if err != nil {
		return err
	}
	card, err := m.awaitCard(ctx, "Present the guest's card")
	if err != nil {
		return err
	}
	a, err := m.sess.AddGuest(ctx, name, card)
	if err != nil {
		return err
	}
	m.term.Show("Guest created")
	m.showAccount(a)
	return nil
}

func (m *Menu) chooseLevel(ctx context.Context, op *account.Account) (account.Level, bool) {
	var levels []account.Level
	var labels []string
	for _, l := range account.Levels {
		if l <= op.Level {
			levels = append(levels, l)
			labels = append(labels, l.String())
		}
	}
	i, ok := m.term.Choose(ctx, "Access level", labels)
	if !ok {
		return 0, false
	}
	return levels[i], true
}

func (m *Menu) addUser(ctx context.Context, op *account.Account) error {
	level, ok := m.chooseLevel(ctx, op)
	if !ok {
		return session.ErrAborted
	}
	form, err := m.inputForm(ctx, level)
	if err != nil {
		return err
	}
	card, err := m.awaitCard(ctx, "Present the new user's card")
	if err != nil {
		return err
	}
	a, err := m.sess.AddUser(ctx, session.NewAccount{Name: form.Name, Card: card, Level: form.Level, ExpiresAt: form.Expires})
	if err != nil {
		return err
	}
	m.term.Show("User created")
	m.showAccount(a)
	return nil
}

func (m *Menu) addDeveloper(ctx context.Context) error {
	form, err := m.inputForm(ctx, account.Developer)
	if err != nil {
		return err
	}
	card, err := m.awaitCard(ctx, "Present the developer's card")
	if err != nil {
		return err
	}
	a, err := m.sess.AddDeveloper(ctx, form.Name, card, form.Expires)
	if err != nil {
		return err
	}
	m.term.Show("Developer created")
	m.showAccount(a)
	return nil
}

// Bootstrap creates the first developer account of an empty installation.
func (m *Menu) Bootstrap(ctx context.Context) error {
	m.term.Notify("No accounts found, creating the developer account")
	form, err := m.inputForm(ctx, account.Developer)
	if err != nil {
		return err
	}
	card, err := m.awaitCard(ctx, "Present the developer's card")
	if err != nil {
		return err
	}
	a, err := m.sess.Bootstrap(ctx, form.Name, card, form.Expires)
	if err != nil {
		return err
	}
	m.term.Show("Developer created")
	m.showAccount(a)
	return nil
}
