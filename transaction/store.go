package transaction

import (
	"context"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/id"
)

type Store interface {
	GetTransaction(ctx context.Context, txnID id.TransactionID) (*Transaction, error)
	// ListTransactions returns the account's transactions newest first.
	ListTransactions(ctx context.Context, ref account.Ref, opts ListOpts) ([]*Transaction, error)
}

type ListOpts struct {
	Limit  int
	Offset int
}
