package state

import (
	"github.com/ethereum/go-ethereum/common"
)

// Tier identifies a policy coverage level
type Tier uint8

const (
	TierBasic Tier = iota
	TierStandard
	TierPremium

	tierCount = 3
)

func (t Tier) String() string {
	switch t {
	case TierBasic:
		return "Basic"
	case TierStandard:
		return "Standard"
	case TierPremium:
		return "Premium"
	default:
		return "Unknown"
	}
}

// ValidTier reports whether t is a known tier
func ValidTier(t Tier) bool {
	return t < tierCount
}

// Default premium prices in base units (6 decimals)
var DefaultTierPrices = map[Tier]int64{
	TierBasic:    25_000_000,
	TierStandard: 50_000_000,
	TierPremium:  100_000_000,
}

// PolicyCatalog holds per-tier premium prices and the owner allowed
// to change them. Mutated only on the core goroutine.
type PolicyCatalog struct {
	owner  common.Address
	prices map[Tier]int64
}

func NewPolicyCatalog(owner common.Address) *PolicyCatalog {
	prices := make(map[Tier]int64, tierCount)
	for t, p := range DefaultTierPrices {
		prices[t] = p
	}

	return &PolicyCatalog{
		owner:  owner,
		prices: prices,
	}
}

// Owner returns the address allowed to update prices
func (c *PolicyCatalog) Owner() common.Address {
	return c.owner
}

// PriceOf returns the premium price for a tier
func (c *PolicyCatalog) PriceOf(tier Tier) (int64, error) {
	if !ValidTier(tier) {
		return 0, ErrInvalidTier
	}
	return c.prices[tier], nil
}

// SetPrice updates a tier price. Only the owner may call it.
// Existing policies keep the premium they were issued with.
func (c *PolicyCatalog) SetPrice(caller common.Address, tier Tier, price int64) error {
	if caller != c.owner {
		return ErrAccessDenied
	}
	if !ValidTier(tier) {
		return ErrInvalidTier
	}
	if price <= 0 {
		return ErrInvalidAmount
	}

	c.prices[tier] = price
	return nil
}

// Prices returns a copy of all tier prices (for snapshot creation)
func (c *PolicyCatalog) Prices() map[Tier]int64 {
	result := make(map[Tier]int64, len(c.prices))
	for t, p := range c.prices {
		result[t] = p
	}
	return result
}

// RestorePrice directly sets a tier price (used for snapshot restore)
func (c *PolicyCatalog) RestorePrice(tier Tier, price int64) {
	c.prices[tier] = price
}
