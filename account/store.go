package account

import "context"

// Store persists registered accounts.
type Store interface {
	CreateAccount(ctx context.Context, a *Account) error
	GetAccount(ctx context.Context, ref Ref) (*Account, error)
}
