package account

import "context"

// Store is the persistence contract for accounts.
//
// FindByCard returns ErrNotFound when no account owns the card. Save inserts
// accounts with an empty ID (assigning one) and replaces the others; it
// returns ErrCardInUse when one of the cards already belongs to another
// account. Wipe irreversibly removes every account.
type Store interface {
	FindByCard(ctx context.Context, card string) (*Account, error)
	FindAll(ctx context.Context) ([]*Account, error)
	Save(ctx context.Context, a *Account) error
	Delete(ctx context.Context, a *Account) error
	ExistsAny(ctx context.Context) (bool, error)
	ExistsAnyWithLevel(ctx context.Context, level Level) (bool, error)
	Wipe(ctx context.Context) error
	Close(ctx context.Context) error
}
