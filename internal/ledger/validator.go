package ledger

import (
	"fmt"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateBatchBalance verifies batch is balanced
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidatePoolIdentity verifies
// pool_balance == total_premiums + total_invested - total_paid_out.
func (v *InvariantValidator) ValidatePoolIdentity(assetID AssetID) error {
	balance := v.tracker.PoolBalance(assetID)
	premiums := v.tracker.TotalPremiums(assetID)
	invested := v.tracker.TotalInvested(assetID)
	paidOut := v.tracker.TotalPaidOut(assetID)

	if balance != premiums+invested-paidOut {
		return fmt.Errorf("pool identity violated: balance=%d premiums=%d invested=%d paid_out=%d",
			balance, premiums, invested, paidOut)
	}

	return nil
}

// ValidatePoolNonNegative verifies the risk pool never goes negative
func (v *InvariantValidator) ValidatePoolNonNegative(assetID AssetID) error {
	return v.tracker.ValidateNonNegative(NewSystemAccountKey(SubTypeSystemRiskPool, assetID))
}

// ValidateInvestorPositionSum verifies the sum of holder invested accounts
// matches the investor capital contra account and the external inflow total.
func (v *InvariantValidator) ValidateInvestorPositionSum(assetID AssetID) error {
	positionSum := v.tracker.SumInvestorPositions(assetID)
	contra := -v.tracker.GetBalance(NewSystemAccountKey(SubTypeSystemInvestorCapital, assetID))
	invested := v.tracker.TotalInvested(assetID)

	if positionSum != contra {
		return fmt.Errorf("investor position sum %d does not match contra account %d", positionSum, contra)
	}
	if positionSum != invested {
		return fmt.Errorf("investor position sum %d does not match total invested %d", positionSum, invested)
	}

	return nil
}

// ValidateGlobalBalance verifies system is zero-sum
func (v *InvariantValidator) ValidateGlobalBalance() error {
	totals := v.tracker.ComputeGlobalBalance()

	for assetID, total := range totals {
		if total != 0 {
			assetName, _ := GetAssetName(assetID)
			return fmt.Errorf("global balance for %s is non-zero: %d", assetName, total)
		}
	}

	return nil
}
