package ledger_test

import (
	"testing"
	"time"

	"RainyDayLedger/internal/event"
	"RainyDayLedger/internal/ledger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

var testTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// ============================================================================
// Test: AccountKey
// ============================================================================

func TestAccountKey_HolderPath(t *testing.T) {
	holder := common.HexToAddress("0xAb5801a7D398351b8bE11C439e05C5b3259aeC9B")
	assetID, _ := ledger.GetAssetID("USDC")
	key := ledger.NewHolderAccountKey(holder, ledger.SubTypeInvested, assetID)

	path := key.AccountPath()
	expected := "holder:0xab5801a7d398351b8be11c439e05c5b3259aec9b:invested:USDC"
	if path != expected {
		t.Errorf("got %q, want %q", path, expected)
	}
}

func TestAccountKey_SystemPath(t *testing.T) {
	assetID, _ := ledger.GetAssetID("USDC")
	key := ledger.NewSystemAccountKey(ledger.SubTypeSystemRiskPool, assetID)

	path := key.AccountPath()
	if path != "system:risk_pool:USDC" {
		t.Errorf("got %q, want %q", path, "system:risk_pool:USDC")
	}
}

func TestAccountKey_ExternalPath(t *testing.T) {
	assetID, _ := ledger.GetAssetID("USDC")
	key := ledger.NewExternalAccountKey(ledger.SubTypeExternalPremiumInflows, assetID)

	path := key.AccountPath()
	if path != "external:premium_inflows:USDC" {
		t.Errorf("got %q, want %q", path, "external:premium_inflows:USDC")
	}
}

func TestParseAccountPath_RoundTrip(t *testing.T) {
	holder := common.HexToAddress("0xAb5801a7D398351b8bE11C439e05C5b3259aeC9B")
	assetID, _ := ledger.GetAssetID("USDC")

	keys := []ledger.AccountKey{
		ledger.NewHolderAccountKey(holder, ledger.SubTypeInvested, assetID),
		ledger.NewSystemAccountKey(ledger.SubTypeSystemRiskPool, assetID),
		ledger.NewSystemAccountKey(ledger.SubTypeSystemInvestorCapital, assetID),
		ledger.NewExternalAccountKey(ledger.SubTypeExternalPremiumInflows, assetID),
		ledger.NewExternalAccountKey(ledger.SubTypeExternalInvestmentInflows, assetID),
		ledger.NewExternalAccountKey(ledger.SubTypeExternalClaimOutflows, assetID),
	}

	for _, key := range keys {
		parsed := ledger.ParseAccountPath(key.AccountPath())
		if parsed != key {
			t.Errorf("round trip failed for %q", key.AccountPath())
		}
	}
}

func TestGetAssetID_Known(t *testing.T) {
	id, ok := ledger.GetAssetID("USDC")
	if !ok {
		t.Fatal("USDC should be a known asset")
	}
	if id == 0 {
		t.Error("USDC asset ID should be non-zero")
	}
}

func TestGetAssetID_Unknown(t *testing.T) {
	_, ok := ledger.GetAssetID("DOGE")
	if ok {
		t.Error("DOGE should not be a known asset")
	}
}

// ============================================================================
// Test: BalanceTracker
// ============================================================================

func TestBalanceTracker_InitialPoolZero(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	assetID, _ := ledger.GetAssetID("USDC")

	if bt.PoolBalance(assetID) != 0 {
		t.Errorf("initial pool balance should be 0, got %d", bt.PoolBalance(assetID))
	}
	if bt.InvestorPosition(common.Address{}, assetID) != 0 {
		t.Error("unknown investor position should be 0")
	}
}

func TestBalanceTracker_PremiumJournal(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	assetID, _ := ledger.GetAssetID("USDC")

	// Premium: debit system:risk_pool, credit external:premium_inflows
	bt.ApplyJournal(ledger.Journal{
		JournalID:     uuid.New(),
		BatchID:       uuid.New(),
		DebitAccount:  ledger.NewSystemAccountKey(ledger.SubTypeSystemRiskPool, assetID),
		CreditAccount: ledger.NewExternalAccountKey(ledger.SubTypeExternalPremiumInflows, assetID),
		AssetID:       assetID,
		Amount:        50_000_000,
	})

	if bt.PoolBalance(assetID) != 50_000_000 {
		t.Errorf("pool: got %d, want 50_000_000", bt.PoolBalance(assetID))
	}
	if bt.TotalPremiums(assetID) != 50_000_000 {
		t.Errorf("premiums: got %d, want 50_000_000", bt.TotalPremiums(assetID))
	}
}

func TestBalanceTracker_InvestorPositions(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	assetID, _ := ledger.GetAssetID("USDC")
	alice := common.HexToAddress("0x0000000000000000000000000000000000000001")
	bob := common.HexToAddress("0x0000000000000000000000000000000000000002")

	for _, inv := range []struct {
		who    common.Address
		amount int64
	}{
		{alice, 2_000_000_000},
		{bob, 500_000_000},
	} {
		bt.ApplyJournal(ledger.Journal{
			JournalID:     uuid.New(),
			BatchID:       uuid.New(),
			DebitAccount:  ledger.NewHolderAccountKey(inv.who, ledger.SubTypeInvested, assetID),
			CreditAccount: ledger.NewSystemAccountKey(ledger.SubTypeSystemInvestorCapital, assetID),
			AssetID:       assetID,
			Amount:        inv.amount,
		})
	}

	if bt.InvestorPosition(alice, assetID) != 2_000_000_000 {
		t.Errorf("alice position: got %d", bt.InvestorPosition(alice, assetID))
	}
	if bt.SumInvestorPositions(assetID) != 2_500_000_000 {
		t.Errorf("position sum: got %d, want 2_500_000_000", bt.SumInvestorPositions(assetID))
	}
}

func TestBalanceTracker_GlobalBalanceZeroSum(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	assetID, _ := ledger.GetAssetID("USDC")

	bt.ApplyJournal(ledger.Journal{
		JournalID:     uuid.New(),
		BatchID:       uuid.New(),
		DebitAccount:  ledger.NewSystemAccountKey(ledger.SubTypeSystemRiskPool, assetID),
		CreditAccount: ledger.NewExternalAccountKey(ledger.SubTypeExternalInvestmentInflows, assetID),
		AssetID:       assetID,
		Amount:        2_000_000_000,
	})

	bt.ApplyJournal(ledger.Journal{
		JournalID:     uuid.New(),
		BatchID:       uuid.New(),
		DebitAccount:  ledger.NewExternalAccountKey(ledger.SubTypeExternalClaimOutflows, assetID),
		CreditAccount: ledger.NewSystemAccountKey(ledger.SubTypeSystemRiskPool, assetID),
		AssetID:       assetID,
		Amount:        300_000_000,
	})

	totals := bt.ComputeGlobalBalance()
	for aid, total := range totals {
		if total != 0 {
			t.Errorf("asset %d has non-zero global balance: %d", aid, total)
		}
	}
}

func TestBalanceTracker_ValidateSufficientPool(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	assetID, _ := ledger.GetAssetID("USDC")

	// Empty pool, should fail
	if err := bt.ValidateSufficientPool(assetID, 100); err == nil {
		t.Error("expected error for empty pool")
	}

	bt.ApplyJournal(ledger.Journal{
		JournalID:     uuid.New(),
		BatchID:       uuid.New(),
		DebitAccount:  ledger.NewSystemAccountKey(ledger.SubTypeSystemRiskPool, assetID),
		CreditAccount: ledger.NewExternalAccountKey(ledger.SubTypeExternalPremiumInflows, assetID),
		AssetID:       assetID,
		Amount:        1_000,
	})

	if err := bt.ValidateSufficientPool(assetID, 1_000); err != nil {
		t.Errorf("pool should cover 1_000: %v", err)
	}
	if err := bt.ValidateSufficientPool(assetID, 1_001); err == nil {
		t.Error("expected error for 1_001 > 1_000")
	}
}

func TestBalanceTracker_Snapshot(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	assetID, _ := ledger.GetAssetID("USDC")

	bt.ApplyJournal(ledger.Journal{
		JournalID:     uuid.New(),
		BatchID:       uuid.New(),
		DebitAccount:  ledger.NewSystemAccountKey(ledger.SubTypeSystemRiskPool, assetID),
		CreditAccount: ledger.NewExternalAccountKey(ledger.SubTypeExternalPremiumInflows, assetID),
		AssetID:       assetID,
		Amount:        999,
	})

	snap := bt.Snapshot()
	if len(snap) == 0 {
		t.Fatal("snapshot should not be empty")
	}

	// Mutating snapshot should not affect tracker
	for k := range snap {
		snap[k] = 0
	}

	if bt.PoolBalance(assetID) != 999 {
		t.Error("tracker balance should not be affected by snapshot mutation")
	}
}

// ============================================================================
// Test: Batch Validation
// ============================================================================

func TestBatchValidate_EmptyBatch_Fails(t *testing.T) {
	batch := &ledger.Batch{
		BatchID:  uuid.New(),
		Journals: []ledger.Journal{},
	}

	if err := batch.Validate(); err == nil {
		t.Error("empty batch should fail validation")
	}
}

func TestBatchValidate_ZeroAmount_Fails(t *testing.T) {
	batchID := uuid.New()
	assetID, _ := ledger.GetAssetID("USDC")

	batch := &ledger.Batch{
		BatchID: batchID,
		Journals: []ledger.Journal{
			{
				JournalID:     uuid.New(),
				BatchID:       batchID,
				DebitAccount:  ledger.NewSystemAccountKey(ledger.SubTypeSystemRiskPool, assetID),
				CreditAccount: ledger.NewExternalAccountKey(ledger.SubTypeExternalPremiumInflows, assetID),
				AssetID:       assetID,
				Amount:        0,
			},
		},
	}

	if err := batch.Validate(); err == nil {
		t.Error("zero amount should fail validation")
	}
}

func TestBatchValidate_SelfTransfer_Fails(t *testing.T) {
	batchID := uuid.New()
	assetID, _ := ledger.GetAssetID("USDC")
	sameAccount := ledger.NewSystemAccountKey(ledger.SubTypeSystemRiskPool, assetID)

	batch := &ledger.Batch{
		BatchID: batchID,
		Journals: []ledger.Journal{
			{
				JournalID:     uuid.New(),
				BatchID:       batchID,
				DebitAccount:  sameAccount,
				CreditAccount: sameAccount,
				AssetID:       assetID,
				Amount:        100,
			},
		},
	}

	if err := batch.Validate(); err == nil {
		t.Error("self-transfer should fail validation")
	}
}

func TestBatchValidate_MismatchedBatchID_Fails(t *testing.T) {
	batchID := uuid.New()
	assetID, _ := ledger.GetAssetID("USDC")

	batch := &ledger.Batch{
		BatchID: batchID,
		Journals: []ledger.Journal{
			{
				JournalID:     uuid.New(),
				BatchID:       uuid.New(), // Different batch ID
				DebitAccount:  ledger.NewSystemAccountKey(ledger.SubTypeSystemRiskPool, assetID),
				CreditAccount: ledger.NewExternalAccountKey(ledger.SubTypeExternalPremiumInflows, assetID),
				AssetID:       assetID,
				Amount:        100,
			},
		},
	}

	if err := batch.Validate(); err == nil {
		t.Error("mismatched batch ID should fail validation")
	}
}

// ============================================================================
// Test: JournalGenerator
// ============================================================================

func TestJournalGenerator_PremiumCollected(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(1, bt)
	assetID, _ := ledger.GetAssetID("USDC")
	buyer := common.HexToAddress("0x0000000000000000000000000000000000000010")

	evt := &event.PolicyPurchased{
		EventID:   uuid.New(),
		Buyer:     buyer,
		Tier:      1,
		Asset:     "USDC",
		Timestamp: testTime,
	}

	batch, err := jg.GeneratePremiumCollected(evt, 50_000_000, assetID)
	if err != nil {
		t.Fatalf("GeneratePremiumCollected failed: %v", err)
	}
	if len(batch.Journals) != 1 {
		t.Fatalf("expected 1 journal, got %d", len(batch.Journals))
	}

	if err := bt.ApplyBatch(batch); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}
	if bt.PoolBalance(assetID) != 50_000_000 {
		t.Errorf("pool: got %d, want 50_000_000", bt.PoolBalance(assetID))
	}
	if bt.TotalPremiums(assetID) != 50_000_000 {
		t.Errorf("premiums: got %d, want 50_000_000", bt.TotalPremiums(assetID))
	}
}

func TestJournalGenerator_PremiumCollected_NonPositive_Fails(t *testing.T) {
	jg := ledger.NewJournalGenerator(1, ledger.NewBalanceTracker())
	assetID, _ := ledger.GetAssetID("USDC")

	evt := &event.PolicyPurchased{EventID: uuid.New(), Tier: 0, Timestamp: testTime}

	if _, err := jg.GeneratePremiumCollected(evt, 0, assetID); err == nil {
		t.Error("zero premium should fail")
	}
}

func TestJournalGenerator_Investment_TwoLegs(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(1, bt)
	assetID, _ := ledger.GetAssetID("USDC")
	investor := common.HexToAddress("0x0000000000000000000000000000000000000020")

	evt := &event.InvestmentMade{
		EventID:   uuid.New(),
		Investor:  investor,
		Asset:     "USDC",
		Amount:    2_000_000_000,
		Timestamp: testTime,
	}

	batch, err := jg.GenerateInvestment(evt, assetID)
	if err != nil {
		t.Fatalf("GenerateInvestment failed: %v", err)
	}
	if len(batch.Journals) != 2 {
		t.Fatalf("expected 2 journals, got %d", len(batch.Journals))
	}

	if err := bt.ApplyBatch(batch); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}

	if bt.PoolBalance(assetID) != 2_000_000_000 {
		t.Errorf("pool: got %d, want 2_000_000_000", bt.PoolBalance(assetID))
	}
	if bt.TotalInvested(assetID) != 2_000_000_000 {
		t.Errorf("invested: got %d, want 2_000_000_000", bt.TotalInvested(assetID))
	}
	if bt.InvestorPosition(investor, assetID) != 2_000_000_000 {
		t.Errorf("position: got %d, want 2_000_000_000", bt.InvestorPosition(investor, assetID))
	}
}

func TestJournalGenerator_ClaimPayout(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(1, bt)
	assetID, _ := ledger.GetAssetID("USDC")

	// Fund the pool first
	fund, err := jg.GenerateInvestment(&event.InvestmentMade{
		EventID:   uuid.New(),
		Investor:  common.HexToAddress("0x0000000000000000000000000000000000000020"),
		Asset:     "USDC",
		Amount:    1_000_000_000,
		Timestamp: testTime,
	}, assetID)
	if err != nil {
		t.Fatalf("GenerateInvestment failed: %v", err)
	}
	if err := bt.ApplyBatch(fund); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}

	payout, err := jg.GenerateClaimPayout(&event.ClaimPaid{
		EventID:   uuid.New(),
		PolicyID:  0,
		Asset:     "USDC",
		Amount:    400_000_000,
		Timestamp: testTime,
	}, assetID)
	if err != nil {
		t.Fatalf("GenerateClaimPayout failed: %v", err)
	}
	if err := bt.ApplyBatch(payout); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}

	if bt.PoolBalance(assetID) != 600_000_000 {
		t.Errorf("pool: got %d, want 600_000_000", bt.PoolBalance(assetID))
	}
	if bt.TotalPaidOut(assetID) != 400_000_000 {
		t.Errorf("paid out: got %d, want 400_000_000", bt.TotalPaidOut(assetID))
	}
}

func TestJournalGenerator_ClaimPayout_InsufficientPool_Fails(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(1, bt)
	assetID, _ := ledger.GetAssetID("USDC")

	_, err := jg.GenerateClaimPayout(&event.ClaimPaid{
		EventID:   uuid.New(),
		PolicyID:  0,
		Asset:     "USDC",
		Amount:    1,
		Timestamp: testTime,
	}, assetID)
	if err == nil {
		t.Error("payout from empty pool should fail pre-check")
	}
}

// ============================================================================
// Test: InvariantValidator
// ============================================================================

func TestInvariantValidator_FullLifecycle(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	jg := ledger.NewJournalGenerator(1, bt)
	v := ledger.NewInvariantValidator(bt)
	assetID, _ := ledger.GetAssetID("USDC")

	// Empty ledger passes everything
	if err := v.ValidateGlobalBalance(); err != nil {
		t.Errorf("empty ledger: %v", err)
	}
	if err := v.ValidatePoolIdentity(assetID); err != nil {
		t.Errorf("empty ledger pool identity: %v", err)
	}

	// Premium 50, investment 2000, payout 300
	premium, _ := jg.GeneratePremiumCollected(&event.PolicyPurchased{
		EventID: uuid.New(), Tier: 1, Asset: "USDC", Timestamp: testTime,
	}, 50_000_000, assetID)
	if err := bt.ApplyBatch(premium); err != nil {
		t.Fatalf("apply premium: %v", err)
	}

	invest, _ := jg.GenerateInvestment(&event.InvestmentMade{
		EventID:  uuid.New(),
		Investor: common.HexToAddress("0x0000000000000000000000000000000000000030"),
		Asset:    "USDC", Amount: 2_000_000_000, Timestamp: testTime,
	}, assetID)
	if err := bt.ApplyBatch(invest); err != nil {
		t.Fatalf("apply investment: %v", err)
	}

	payout, err := jg.GenerateClaimPayout(&event.ClaimPaid{
		EventID: uuid.New(), PolicyID: 0, Asset: "USDC",
		Amount: 300_000_000, Timestamp: testTime,
	}, assetID)
	if err != nil {
		t.Fatalf("generate payout: %v", err)
	}
	if err := bt.ApplyBatch(payout); err != nil {
		t.Fatalf("apply payout: %v", err)
	}

	if err := v.ValidateGlobalBalance(); err != nil {
		t.Errorf("global balance: %v", err)
	}
	if err := v.ValidatePoolIdentity(assetID); err != nil {
		t.Errorf("pool identity: %v", err)
	}
	if err := v.ValidatePoolNonNegative(assetID); err != nil {
		t.Errorf("pool non-negative: %v", err)
	}
	if err := v.ValidateInvestorPositionSum(assetID); err != nil {
		t.Errorf("investor sum: %v", err)
	}

	want := int64(50_000_000 + 2_000_000_000 - 300_000_000)
	if got := bt.PoolBalance(assetID); got != want {
		t.Errorf("pool: got %d, want %d", got, want)
	}
}
