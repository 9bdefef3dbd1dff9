package session

import (
	"cardgate/account"
)

// Action is a console menu entry.
type Action int

const (
	ActionExit Action = iota
	ActionShowSelf
	ActionChangePassword
	ActionViewAuditLog
	ActionAddGuest
	ActionAddUser
	ActionLockRoom
	ActionEditAccounts
	ActionMergeAccounts
	ActionAddDeveloper
	ActionViewAppLog
	ActionClearAuditLogs
	ActionClearAppLog
	ActionWipeStore
	ActionShell
	ActionTerminate
)

// Actions lists every action in menu order.
var Actions = []Action{
	ActionShowSelf,
	ActionChangePassword,
	ActionViewAuditLog,
	ActionAddGuest,
	ActionAddUser,
	ActionLockRoom,
	ActionEditAccounts,
	ActionMergeAccounts,
	ActionAddDeveloper,
	ActionViewAppLog,
	ActionClearAuditLogs,
	ActionClearAppLog,
	ActionWipeStore,
	ActionShell,
	ActionTerminate,
	ActionExit,
}

// MinLevel is the lowest access level allowed to run a.
func (a Action) MinLevel() account.Level {
	switch a {
	case ActionExit, ActionShowSelf:
		return account.Guest
	case ActionChangePassword, ActionViewAuditLog:
		return account.Common
	case ActionAddGuest, ActionAddUser, ActionLockRoom:
		return account.Privileged
	case ActionEditAccounts, ActionMergeAccounts:
		return account.Administrator
	default:
		return account.Developer
	}
}

func (a Action) String() string {
	switch a {
	case ActionExit:
		return "Exit console"
	case ActionShowSelf:
		return "Show my account"
	case ActionChangePassword:
		return "Change password"
	case ActionViewAuditLog:
		return "View visits log"
	case ActionAddGuest:
		return "Add guest"
	case ActionAddUser:
		return "Add user"
	case ActionLockRoom:
		return "Lock room"
	case ActionEditAccounts:
		return "Edit accounts"
	case ActionMergeAccounts:
		return "Merge accounts"
	case ActionAddDeveloper:
		return "Add developer"
	case ActionViewAppLog:
		return "View application log"
	case ActionClearAuditLogs:
		return "Clear visits logs"
	case ActionClearAppLog:
		return "Clear application log"
	case ActionWipeStore:
		return "Wipe account store"
	case ActionShell:
		return "Open shell"
	case ActionTerminate:
		return "Terminate program"
	default:
		return "Unknown action"
	}
}

// Permits reports whether level may run a.
func (a Action) Permits(level account.Level) bool {
	return level >= a.MinLevel()
}

// Allowed returns the actions op may run, in menu order.
func Allowed(op *account.Account) []Action {
	var out []Action
	for _, a := range Actions {
		if a.Permits(op.Level) {
			out = append(out, a)
		}
	}
	return out
}
