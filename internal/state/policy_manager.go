package state

import (
	"github.com/ethereum/go-ethereum/common"
)

// PolicyManager manages the policy register. IDs are sequential from 0,
// strictly increasing and never reused; assignment happens only on the
// core goroutine.
type PolicyManager struct {
	policies map[int64]*Policy
	byHolder map[common.Address][]int64 // IDs in issuance order
	nextID   int64
}

func NewPolicyManager() *PolicyManager {
	return &PolicyManager{
		policies: make(map[int64]*Policy),
		byHolder: make(map[common.Address][]int64),
	}
}

// Issue creates a new Active policy and returns it
func (pm *PolicyManager) Issue(holder common.Address, tier Tier, premiumPaid int64, timestamp int64) *Policy {
	pol := &Policy{
		ID:          pm.nextID,
		Holder:      holder,
		Tier:        tier,
		PremiumPaid: premiumPaid,
		Status:      PolicyStatusActive,
		IssuedAt:    timestamp,
		UpdatedAt:   timestamp,
		Version:     1,
	}

	pm.policies[pol.ID] = pol
	pm.byHolder[holder] = append(pm.byHolder[holder], pol.ID)
	pm.nextID++

	return pol
}

// PolicyByID returns the policy or ErrPolicyNotFound
func (pm *PolicyManager) PolicyByID(id int64) (*Policy, error) {
	pol, ok := pm.policies[id]
	if !ok {
		return nil, ErrPolicyNotFound
	}
	return pol, nil
}

// SetStatus transitions a policy. Only Active -> Claimed and
// Active -> Expired are legal; Claimed and Expired are terminal.
func (pm *PolicyManager) SetStatus(id int64, status PolicyStatus, timestamp int64) error {
	pol, ok := pm.policies[id]
	if !ok {
		return ErrPolicyNotFound
	}

	if pol.Status.Terminal() {
		return ErrPolicyNotActive
	}
	if status != PolicyStatusClaimed && status != PolicyStatusExpired {
		return ErrInvalidTransition
	}

	pol.Status = status
	pol.UpdatedAt = timestamp
	pol.Version++

	return nil
}

// PoliciesOf returns the holder's policy IDs in issuance order
func (pm *PolicyManager) PoliciesOf(holder common.Address) []int64 {
	ids := pm.byHolder[holder]
	result := make([]int64, len(ids))
	copy(result, ids)
	return result
}

// Count returns the number of policies ever issued
func (pm *PolicyManager) Count() int64 {
	return pm.nextID
}

// NextID returns the next ID to be assigned (for snapshot creation)
func (pm *PolicyManager) NextID() int64 {
	return pm.nextID
}

// GetAllPolicies returns all policies (for snapshot creation)
func (pm *PolicyManager) GetAllPolicies() []*Policy {
	result := make([]*Policy, 0, len(pm.policies))
	for _, pol := range pm.policies {
		result = append(result, pol)
	}
	return result
}

// RestorePolicy directly sets a policy (used for snapshot restore).
// Holder index order is rebuilt by restoring in ID order.
func (pm *PolicyManager) RestorePolicy(pol *Policy) {
	pm.policies[pol.ID] = pol
	pm.byHolder[pol.Holder] = append(pm.byHolder[pol.Holder], pol.ID)
}

// RestoreNextID sets the ID counter (used for snapshot restore)
func (pm *PolicyManager) RestoreNextID(next int64) {
	pm.nextID = next
}
