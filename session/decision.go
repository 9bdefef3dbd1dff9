package session

import (
	"time"

	"cardgate/account"
)

// Mode is the session state.
type Mode int

const (
	// Standard lets any valid card in.
	Standard Mode = iota
	// Locked seals the room until a card above common level is presented.
	Locked
	// Console is the administrative menu, entered after password
	// authentication.
	Console
)

func (m Mode) String() string {
	switch m {
	case Standard:
		return "standard"
	case Locked:
		return "locked"
	case Console:
		return "console"
	default:
		return "unknown"
	}
}

// Decision is the outcome of presenting a card.
type Decision int

const (
	Granted Decision = iota
	Unknown
	Blocked
	Expired
	Insufficient
	// Unavailable means the store could not be read.
	Unavailable
)

func (d Decision) String() string {
	switch d {
	case Granted:
		return "granted"
	case Unknown:
		return "unknown"
	case Blocked:
		return "blocked"
	case Expired:
		return "expired"
	case Insufficient:
		return "insufficient"
	case Unavailable:
		return "unavailable"
	default:
		return "invalid"
	}
}

// Decide applies the access policy to the account owning a presented card.
// a is nil when no account owns the card. An inactive account is always
// blocked, whatever its level or expiry.
func Decide(mode Mode, a *account.Account, now time.Time) Decision {
	switch {
	case a == nil:
		return Unknown
	case !a.Active:
		return Blocked
	case a.Expired(now):
		return Expired
	case mode == Locked && a.Level <= account.Common:
		return Insufficient
	default:
		return Granted
	}
}

// Result describes one authorization.
type Result struct {
	Decision Decision
	Card     string
	Account  *account.Account // nil for unknown cards and store failures

	// Escalate is set when the operator asked for the console during the
	// success confirmation.
	Escalate bool
}

// Event is published for every authorization decision.
type Event struct {
	Time     time.Time
	Card     string
	Member   string
	Level    account.Level
	Decision Decision
	Mode     Mode
}
