package state

import (
	"github.com/ethereum/go-ethereum/common"
)

// PolicyStatus is the lifecycle state of a policy
type PolicyStatus int32

const (
	PolicyStatusActive PolicyStatus = iota
	PolicyStatusClaimed
	PolicyStatusExpired
)

func (s PolicyStatus) String() string {
	switch s {
	case PolicyStatusActive:
		return "Active"
	case PolicyStatusClaimed:
		return "Claimed"
	case PolicyStatusExpired:
		return "Expired"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further transitions are allowed
func (s PolicyStatus) Terminal() bool {
	return s == PolicyStatusClaimed || s == PolicyStatusExpired
}

// Policy is an issued insurance policy.
// PremiumPaid is fixed at issuance and never changes, even if the
// catalog price for the tier is updated later.
type Policy struct {
	ID          int64
	Holder      common.Address
	Tier        Tier
	PremiumPaid int64 // Base units
	Status      PolicyStatus
	IssuedAt    int64 // Epoch microseconds
	UpdatedAt   int64
	Version     int64
}
