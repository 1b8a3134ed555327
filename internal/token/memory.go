package token

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// MemoryToken is an in-memory Token used by the dev deployment and by
// tests. Mint is the dev faucet. All methods are safe for concurrent use.
type MemoryToken struct {
	mu         sync.Mutex
	operator   common.Address
	balances   map[common.Address]int64
	allowances map[common.Address]map[common.Address]int64
}

func NewMemoryToken(operator common.Address) *MemoryToken {
	return &MemoryToken{
		operator:   operator,
		balances:   make(map[common.Address]int64),
		allowances: make(map[common.Address]map[common.Address]int64),
	}
}

// Operator returns the custody address the token was constructed with
func (t *MemoryToken) Operator() common.Address {
	return t.operator
}

// Mint credits base units to an address (dev faucet)
func (t *MemoryToken) Mint(to common.Address, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("mint amount must be positive, got %d", amount)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.balances[to] += amount
	return nil
}

// Approve sets spender's allowance over owner's funds
func (t *MemoryToken) Approve(owner, spender common.Address, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("allowance must be non-negative, got %d", amount)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.allowances[owner] == nil {
		t.allowances[owner] = make(map[common.Address]int64)
	}
	t.allowances[owner][spender] = amount
	return nil
}

func (t *MemoryToken) BalanceOf(ctx context.Context, holder common.Address) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.balances[holder], nil
}

func (t *MemoryToken) Allowance(ctx context.Context, owner, spender common.Address) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.allowances[owner][spender], nil
}

func (t *MemoryToken) TransferFrom(ctx context.Context, owner, recipient common.Address, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("transfer amount must be positive, got %d", amount)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	allowance := t.allowances[owner][t.operator]
	if allowance < amount {
		return fmt.Errorf("allowance %d < amount %d: %w", allowance, amount, ErrInsufficientAllowance)
	}
	if t.balances[owner] < amount {
		return fmt.Errorf("balance %d < amount %d: %w", t.balances[owner], amount, ErrInsufficientBalance)
	}

	t.allowances[owner][t.operator] -= amount
	t.balances[owner] -= amount
	t.balances[recipient] += amount
	return nil
}

func (t *MemoryToken) Transfer(ctx context.Context, recipient common.Address, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("transfer amount must be positive, got %d", amount)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.balances[t.operator] < amount {
		return fmt.Errorf("custody balance %d < amount %d: %w", t.balances[t.operator], amount, ErrInsufficientBalance)
	}

	t.balances[t.operator] -= amount
	t.balances[recipient] += amount
	return nil
}
