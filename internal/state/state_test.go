package state_test

import (
	"errors"
	"testing"

	"RainyDayLedger/internal/state"

	"github.com/ethereum/go-ethereum/common"
)

var (
	owner  = common.HexToAddress("0x00000000000000000000000000000000000000AA")
	farmer = common.HexToAddress("0x0000000000000000000000000000000000000001")
)

// ============================================================================
// Test: PolicyCatalog
// ============================================================================

func TestCatalog_DefaultPrices(t *testing.T) {
	c := state.NewPolicyCatalog(owner)

	cases := []struct {
		tier  state.Tier
		price int64
	}{
		{state.TierBasic, 25_000_000},
		{state.TierStandard, 50_000_000},
		{state.TierPremium, 100_000_000},
	}

	for _, tc := range cases {
		price, err := c.PriceOf(tc.tier)
		if err != nil {
			t.Fatalf("PriceOf(%s) failed: %v", tc.tier, err)
		}
		if price != tc.price {
			t.Errorf("%s: got %d, want %d", tc.tier, price, tc.price)
		}
	}
}

func TestCatalog_InvalidTier(t *testing.T) {
	c := state.NewPolicyCatalog(owner)

	_, err := c.PriceOf(state.Tier(3))
	if !errors.Is(err, state.ErrInvalidTier) {
		t.Errorf("expected ErrInvalidTier, got %v", err)
	}
}

func TestCatalog_SetPrice_Owner(t *testing.T) {
	c := state.NewPolicyCatalog(owner)

	if err := c.SetPrice(owner, state.TierBasic, 30_000_000); err != nil {
		t.Fatalf("owner SetPrice failed: %v", err)
	}

	price, _ := c.PriceOf(state.TierBasic)
	if price != 30_000_000 {
		t.Errorf("got %d, want 30_000_000", price)
	}
}

func TestCatalog_SetPrice_NonOwner_Denied(t *testing.T) {
	c := state.NewPolicyCatalog(owner)

	err := c.SetPrice(farmer, state.TierBasic, 30_000_000)
	if !errors.Is(err, state.ErrAccessDenied) {
		t.Errorf("expected ErrAccessDenied, got %v", err)
	}

	// Price unchanged
	price, _ := c.PriceOf(state.TierBasic)
	if price != 25_000_000 {
		t.Errorf("price should be unchanged, got %d", price)
	}
}

func TestCatalog_SetPrice_NonPositive(t *testing.T) {
	c := state.NewPolicyCatalog(owner)

	if err := c.SetPrice(owner, state.TierBasic, 0); !errors.Is(err, state.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount for 0, got %v", err)
	}
	if err := c.SetPrice(owner, state.TierBasic, -5); !errors.Is(err, state.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount for -5, got %v", err)
	}
}

// ============================================================================
// Test: PolicyManager
// ============================================================================

func TestPolicyManager_SequentialIDs(t *testing.T) {
	pm := state.NewPolicyManager()

	p0 := pm.Issue(farmer, state.TierStandard, 50_000_000, 1000)
	p1 := pm.Issue(farmer, state.TierBasic, 25_000_000, 2000)

	if p0.ID != 0 || p1.ID != 1 {
		t.Errorf("IDs should be sequential from 0, got %d and %d", p0.ID, p1.ID)
	}
	if pm.Count() != 2 {
		t.Errorf("Count: got %d, want 2", pm.Count())
	}
}

func TestPolicyManager_IssueActive(t *testing.T) {
	pm := state.NewPolicyManager()
	pol := pm.Issue(farmer, state.TierStandard, 50_000_000, 1000)

	if pol.Status != state.PolicyStatusActive {
		t.Errorf("new policy should be Active, got %s", pol.Status)
	}
	if pol.PremiumPaid != 50_000_000 {
		t.Errorf("PremiumPaid: got %d, want 50_000_000", pol.PremiumPaid)
	}
}

func TestPolicyManager_PolicyByID_NotFound(t *testing.T) {
	pm := state.NewPolicyManager()

	_, err := pm.PolicyByID(42)
	if !errors.Is(err, state.ErrPolicyNotFound) {
		t.Errorf("expected ErrPolicyNotFound, got %v", err)
	}
}

func TestPolicyManager_Transitions(t *testing.T) {
	pm := state.NewPolicyManager()
	pol := pm.Issue(farmer, state.TierStandard, 50_000_000, 1000)

	// Active -> Claimed
	if err := pm.SetStatus(pol.ID, state.PolicyStatusClaimed, 2000); err != nil {
		t.Fatalf("Active -> Claimed failed: %v", err)
	}

	// Claimed is terminal
	err := pm.SetStatus(pol.ID, state.PolicyStatusExpired, 3000)
	if !errors.Is(err, state.ErrPolicyNotActive) {
		t.Errorf("expected ErrPolicyNotActive on terminal policy, got %v", err)
	}
}

func TestPolicyManager_TransitionToActive_Invalid(t *testing.T) {
	pm := state.NewPolicyManager()
	pol := pm.Issue(farmer, state.TierStandard, 50_000_000, 1000)

	err := pm.SetStatus(pol.ID, state.PolicyStatusActive, 2000)
	if !errors.Is(err, state.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestPolicyManager_Expire(t *testing.T) {
	pm := state.NewPolicyManager()
	pol := pm.Issue(farmer, state.TierBasic, 25_000_000, 1000)

	if err := pm.SetStatus(pol.ID, state.PolicyStatusExpired, 2000); err != nil {
		t.Fatalf("Active -> Expired failed: %v", err)
	}

	got, _ := pm.PolicyByID(pol.ID)
	if got.Status != state.PolicyStatusExpired {
		t.Errorf("status: got %s, want Expired", got.Status)
	}
}

func TestPolicyManager_PoliciesOf_IssuanceOrder(t *testing.T) {
	pm := state.NewPolicyManager()
	other := common.HexToAddress("0x0000000000000000000000000000000000000002")

	pm.Issue(farmer, state.TierBasic, 25_000_000, 1000)
	pm.Issue(other, state.TierBasic, 25_000_000, 2000)
	pm.Issue(farmer, state.TierPremium, 100_000_000, 3000)

	ids := pm.PoliciesOf(farmer)
	if len(ids) != 2 || ids[0] != 0 || ids[1] != 2 {
		t.Errorf("PoliciesOf: got %v, want [0 2]", ids)
	}

	if len(pm.PoliciesOf(common.Address{})) != 0 {
		t.Error("unknown holder should have no policies")
	}
}

// ============================================================================
// Test: InvestmentManager
// ============================================================================

func TestInvestmentManager_Accumulates(t *testing.T) {
	im := state.NewInvestmentManager()

	if err := im.RecordInvestment(farmer, 2_000_000_000); err != nil {
		t.Fatalf("RecordInvestment failed: %v", err)
	}
	if err := im.RecordInvestment(farmer, 500_000_000); err != nil {
		t.Fatalf("RecordInvestment failed: %v", err)
	}

	if im.TotalOf(farmer) != 2_500_000_000 {
		t.Errorf("TotalOf: got %d, want 2_500_000_000", im.TotalOf(farmer))
	}
	if im.Sum() != 2_500_000_000 {
		t.Errorf("Sum: got %d, want 2_500_000_000", im.Sum())
	}
}

func TestInvestmentManager_UnknownInvestorZero(t *testing.T) {
	im := state.NewInvestmentManager()

	if im.TotalOf(farmer) != 0 {
		t.Error("unknown investor should have zero position")
	}
}

func TestInvestmentManager_NonPositive(t *testing.T) {
	im := state.NewInvestmentManager()

	if err := im.RecordInvestment(farmer, 0); !errors.Is(err, state.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
}

// ============================================================================
// Test: RiskPool
// ============================================================================

func TestRiskPool_CheckIdentity(t *testing.T) {
	p := state.NewRiskPool()

	if err := p.CheckIdentity(2_050_000_000, 50_000_000, 2_000_000_000, 0); err != nil {
		t.Errorf("valid identity should pass: %v", err)
	}
	if err := p.CheckIdentity(100, 50, 40, 0); err == nil {
		t.Error("broken identity should fail")
	}
	if err := p.CheckIdentity(-10, 0, 0, 10); err == nil {
		t.Error("negative balance should fail")
	}
}

func TestRiskPool_CanCover(t *testing.T) {
	p := state.NewRiskPool()

	if !p.CanCover(1_000, 1_000) {
		t.Error("exact balance should cover")
	}
	if p.CanCover(999, 1_000) {
		t.Error("insufficient balance should not cover")
	}
}
