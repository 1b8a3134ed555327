package ledger

import (
	"fmt"

	"RainyDayLedger/internal/event"

	"github.com/google/uuid"
)

// JournalGenerator creates balanced journal batches from events
type JournalGenerator struct {
	sequence       int64
	balanceTracker *BalanceTracker // Reference for pre-checks
}

func NewJournalGenerator(startSequence int64, tracker *BalanceTracker) *JournalGenerator {
	return &JournalGenerator{
		sequence:       startSequence,
		balanceTracker: tracker,
	}
}

// SetSequence resets the generator sequence (snapshot restore only)
func (jg *JournalGenerator) SetSequence(seq int64) {
	jg.sequence = seq
}

// GeneratePremiumCollected creates journals for a policy purchase.
// The premium is resolved from the catalog by the caller.
// Moves funds: external:premium_inflows -> system:risk_pool
func (jg *JournalGenerator) GeneratePremiumCollected(
	evt *event.PolicyPurchased,
	premium int64,
	assetID AssetID,
) (*Batch, error) {
	if premium <= 0 {
		return nil, fmt.Errorf("premium must be positive, got %d", premium)
	}

	batchID := uuid.New()

	batch := &Batch{
		BatchID:   batchID,
		EventRef:  evt.EventID.String(),
		Sequence:  jg.sequence,
		Timestamp: evt.Timestamp.UnixMicro(),
		Journals:  make([]Journal, 0, 1),
	}

	journal := Journal{
		JournalID:     uuid.New(),
		BatchID:       batchID,
		EventRef:      evt.EventID.String(),
		Sequence:      jg.sequence,
		DebitAccount:  NewSystemAccountKey(SubTypeSystemRiskPool, assetID),
		CreditAccount: NewExternalAccountKey(SubTypeExternalPremiumInflows, assetID),
		AssetID:       assetID,
		Amount:        premium,
		JournalType:   JournalTypePremiumCollected,
		Timestamp:     evt.Timestamp.UnixMicro(),
	}

	batch.Journals = append(batch.Journals, journal)
	jg.sequence++

	return batch, nil
}

// GenerateInvestment creates journals for an investor deposit.
// Two legs under one batch:
//
//	external:investment_inflows -> system:risk_pool        (capital enters pool)
//	system:investor_capital     -> holder:<addr>:invested  (position record)
func (jg *JournalGenerator) GenerateInvestment(
	evt *event.InvestmentMade,
	assetID AssetID,
) (*Batch, error) {
	if evt.Amount <= 0 {
		return nil, fmt.Errorf("investment amount must be positive, got %d", evt.Amount)
	}

	batchID := uuid.New()

	batch := &Batch{
		BatchID:   batchID,
		EventRef:  evt.EventID.String(),
		Sequence:  jg.sequence,
		Timestamp: evt.Timestamp.UnixMicro(),
		Journals:  make([]Journal, 0, 2),
	}

	poolJournal := Journal{
		JournalID:     uuid.New(),
		BatchID:       batchID,
		EventRef:      evt.EventID.String(),
		Sequence:      jg.sequence,
		DebitAccount:  NewSystemAccountKey(SubTypeSystemRiskPool, assetID),
		CreditAccount: NewExternalAccountKey(SubTypeExternalInvestmentInflows, assetID),
		AssetID:       assetID,
		Amount:        evt.Amount,
		JournalType:   JournalTypeInvestmentReceived,
		Timestamp:     evt.Timestamp.UnixMicro(),
	}
	batch.Journals = append(batch.Journals, poolJournal)

	positionJournal := Journal{
		JournalID:     uuid.New(),
		BatchID:       batchID,
		EventRef:      evt.EventID.String(),
		Sequence:      jg.sequence,
		DebitAccount:  NewHolderAccountKey(evt.Investor, SubTypeInvested, assetID),
		CreditAccount: NewSystemAccountKey(SubTypeSystemInvestorCapital, assetID),
		AssetID:       assetID,
		Amount:        evt.Amount,
		JournalType:   JournalTypeInvestorPosition,
		Timestamp:     evt.Timestamp.UnixMicro(),
	}
	batch.Journals = append(batch.Journals, positionJournal)

	jg.sequence++

	return batch, nil
}

// GenerateClaimPayout creates journals for an approved claim payout.
// Pre-check: the pool must cover the payout amount.
// Moves funds: system:risk_pool -> external:claim_outflows
func (jg *JournalGenerator) GenerateClaimPayout(
	evt *event.ClaimPaid,
	assetID AssetID,
) (*Batch, error) {
	if evt.Amount <= 0 {
		return nil, fmt.Errorf("payout amount must be positive, got %d", evt.Amount)
	}

	// PRE-CHECK: pool must not go negative
	if err := jg.balanceTracker.ValidateSufficientPool(assetID, evt.Amount); err != nil {
		return nil, fmt.Errorf("payout pre-check failed: %w", err)
	}

	batchID := uuid.New()

	batch := &Batch{
		BatchID:   batchID,
		EventRef:  evt.EventID.String(),
		Sequence:  jg.sequence,
		Timestamp: evt.Timestamp.UnixMicro(),
		Journals:  make([]Journal, 0, 1),
	}

	journal := Journal{
		JournalID:     uuid.New(),
		BatchID:       batchID,
		EventRef:      evt.EventID.String(),
		Sequence:      jg.sequence,
		DebitAccount:  NewExternalAccountKey(SubTypeExternalClaimOutflows, assetID),
		CreditAccount: NewSystemAccountKey(SubTypeSystemRiskPool, assetID),
		AssetID:       assetID,
		Amount:        evt.Amount,
		JournalType:   JournalTypeClaimPaid,
		Timestamp:     evt.Timestamp.UnixMicro(),
	}

	batch.Journals = append(batch.Journals, journal)
	jg.sequence++

	return batch, nil
}
