package state

import "fmt"

// RiskPool holds helper logic for the shared risk pool.
// The pool balance itself lives in the ledger (system:risk_pool account);
// this struct checks the accounting identity and payout coverage against
// balances read from the BalanceTracker.
type RiskPool struct{}

func NewRiskPool() *RiskPool {
	return &RiskPool{}
}

// CanCover checks whether the pool balance covers a payout
func (p *RiskPool) CanCover(poolBalance int64, amount int64) bool {
	return poolBalance >= amount
}

// CheckIdentity validates
// balance == premiums + invested - paidOut and balance >= 0.
func (p *RiskPool) CheckIdentity(balance, premiums, invested, paidOut int64) error {
	if balance != premiums+invested-paidOut {
		return fmt.Errorf("pool identity violated: balance=%d premiums=%d invested=%d paid_out=%d",
			balance, premiums, invested, paidOut)
	}
	if balance < 0 {
		return fmt.Errorf("pool balance is negative: %d", balance)
	}
	return nil
}
