package account

import "fmt"

// Level is the ordered privilege rank of an account. Comparisons use the
// ordinal value.
type Level int

const (
	Guest Level = iota
	Common
	Privileged
	Administrator
	Developer
)

// Levels lists every level from lowest to highest.
var Levels = []Level{Guest, Common, Privileged, Administrator, Developer}

func (l Level) String() string {
	switch l {
	case Guest:
		return "Guest"
	case Common:
		return "Common user"
	case Privileged:
		return "Privileged user"
	case Administrator:
		return "Administrator"
	case Developer:
		return "Developer"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// Valid reports whether l is one of the defined levels.
func (l Level) Valid() bool {
	return l >= Guest && l <= Developer
}
