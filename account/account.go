package account

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNotFound      = errors.New("account not found")
	ErrCardInUse     = errors.New("card already registered")
	ErrLastCard      = errors.New("account must keep at least one card")
	ErrLevelMismatch = errors.New("accounts have different access levels")
	ErrEmptyPassword = errors.New("password is empty")
)

var validate = validator.New()

// Account is a person allowed (or once allowed) through the door. All card
// ids in Cards are aliases of the same identity.
type Account struct {
	ID           string
	Creator      string    `validate:"required"`
	Cards        []string  `validate:"min=1,dive,required"`
	Name         string    `validate:"required"`
	Level        Level     `validate:"gte=0,lte=4"`
	ExpiresAt    time.Time `validate:"required"`
	PasswordHash string
	Active       bool
}

// Validate checks the record invariants that every stored account must hold.
func (a *Account) Validate() error {
	if err := validate.Struct(a); err != nil {
		return fmt.Errorf("invalid account %q: %w", a.Name, err)
	}
	return nil
}

// Expired reports whether the account is expired at now. The expiry instant
// itself already counts as expired.
func (a *Account) Expired(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}

// HasCard reports whether id is one of the account's cards.
func (a *Account) HasCard(id string) bool {
	return slices.Contains(a.Cards, id)
}

// AddCard registers another card alias. Adding a card twice is a no-op.
func (a *Account) AddCard(id string) {
	if !a.HasCard(id) {
		a.Cards = append(a.Cards, id)
	}
}

// RemoveCard drops a card alias, refusing to remove the last one.
func (a *Account) RemoveCard(id string) error {
	i := slices.Index(a.Cards, id)
	if i < 0 {
		return fmt.Errorf("card %s: %w", id, ErrNotFound)
	}
	if len(a.Cards) == 1 {
		return ErrLastCard
	}
	a.Cards = slices.Delete(a.Cards, i, i+1)
	return nil
}

func (a *Account) HasPassword() bool {
	return a.PasswordHash != ""
}

// SetPassword replaces the password hash.
func (a *Account) SetPassword(password string) error {
	if password == "" {
		return ErrEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	a.PasswordHash = string(hash)
	return nil
}

// CheckPassword reports whether password matches the stored hash. Accounts
// without a password never match.
func (a *Account) CheckPassword(password string) bool {
	if !a.HasPassword() {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)) == nil
}

func (a *Account) ResetPassword() {
	a.PasswordHash = ""
}

// Merge moves every card of absorbed onto primary. Both accounts must share
// the same level; the caller is responsible for deleting absorbed.
func Merge(primary, absorbed *Account) error {
	if primary.Level != absorbed.Level {
		return ErrLevelMismatch
	}
	for _, id := range absorbed.Cards {
		primary.AddCard(id)
	}
	return nil
}

// Clone returns a deep copy.
func (a *Account) Clone() *Account {
	c := *a
	c.Cards = slices.Clone(a.Cards)
	return &c
}

func (a *Account) String() string {
	return fmt.Sprintf("%s (%s)", a.Name, a.Level)
}
