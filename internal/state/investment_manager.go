package state

import (
	"github.com/ethereum/go-ethereum/common"
)

// InvestmentManager accumulates per-investor capital positions.
// Positions mirror the ledger's holder invested accounts; the invariant
// validator cross-checks the two after every commit.
type InvestmentManager struct {
	positions map[common.Address]int64
}

func NewInvestmentManager() *InvestmentManager {
	return &InvestmentManager{
		positions: make(map[common.Address]int64),
	}
}

// RecordInvestment adds amount to the investor's position
func (im *InvestmentManager) RecordInvestment(investor common.Address, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	im.positions[investor] += amount
	return nil
}

// TotalOf returns the investor's cumulative position.
// Unknown investors have a zero position, not an error.
func (im *InvestmentManager) TotalOf(investor common.Address) int64 {
	return im.positions[investor]
}

// Sum returns the total across all investors
func (im *InvestmentManager) Sum() int64 {
	var total int64
	for _, amount := range im.positions {
		total += amount
	}
	return total
}

// GetAllPositions returns a copy of all positions (for snapshot creation)
func (im *InvestmentManager) GetAllPositions() map[common.Address]int64 {
	result := make(map[common.Address]int64, len(im.positions))
	for k, v := range im.positions {
		result[k] = v
	}
	return result
}

// RestorePosition directly sets a position (used for snapshot restore)
func (im *InvestmentManager) RestorePosition(investor common.Address, amount int64) {
	im.positions[investor] = amount
}
