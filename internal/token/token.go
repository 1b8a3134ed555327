// Package token abstracts the stable token used for premiums, investments
// and payouts. The ledger only moves funds the token has actually moved.
package token

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientAllowance = errors.New("insufficient token allowance")
	ErrInsufficientBalance   = errors.New("insufficient token balance")
)

// Token is the approve/pull payment collaborator. Implementations are
// constructed with an operator address: TransferFrom spends the
// allowance the owner granted to the operator, Transfer sends from the
// operator's own custody balance.
type Token interface {
	// BalanceOf returns the holder's balance in base units
	BalanceOf(ctx context.Context, holder common.Address) (int64, error)

	// Allowance returns what owner has approved for spender
	Allowance(ctx context.Context, owner, spender common.Address) (int64, error)

	// TransferFrom pulls amount from owner to recipient using the
	// operator's allowance. Fails with ErrInsufficientAllowance or
	// ErrInsufficientBalance; on failure no balances change.
	TransferFrom(ctx context.Context, owner, recipient common.Address, amount int64) error

	// Transfer sends amount from the operator's custody balance to the
	// recipient. Fails with ErrInsufficientBalance.
	Transfer(ctx context.Context, recipient common.Address, amount int64) error
}
