package projection

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
)

// ProjectionOutput mirrors the data projection workers need.
// The orchestrator bridges between core.CoreOutput and this.
type ProjectionOutput struct {
	Sequence       int64
	EventType      string
	Source         string
	Payload        []byte
	PolicyID       int64 // Assigned ID for PolicyPurchased, -1 otherwise
	JournalEntries []JournalEntry
	Timestamp      int64
}

// JournalEntry is a simplified journal for projection consumption.
type JournalEntry struct {
	DebitAccount  string
	CreditAccount string
	AssetID       uint16
	Amount        int64
	JournalType   int32
}

// Journal type discriminators, matching ledger.JournalType values.
const (
	journalPremiumCollected   = 0
	journalInvestmentReceived = 1
	journalInvestorPosition   = 2
	journalClaimPaid          = 3
)

// Payload shapes for the events the projections care about. Field names
// match the event structs JSON-encoded by the core.
type purchasePayload struct {
	Buyer string `json:"Buyer"`
	Tier  uint8  `json:"Tier"`
}

type investmentPayload struct {
	Investor string `json:"Investor"`
	Amount   int64  `json:"Amount"`
}

type claimPayload struct {
	PolicyID int64 `json:"PolicyID"`
	Amount   int64 `json:"Amount"`
}

type expiryPayload struct {
	PolicyID int64 `json:"PolicyID"`
}

type priceUpdatePayload struct {
	Tier     uint8 `json:"Tier"`
	NewPrice int64 `json:"NewPrice"`
}

// ProjectionWorker updates the read-side tables from processed events.
// The projection channel is non-blocking with drop: if projections fall
// behind they are rebuilt from the event log, so failures here only WARN.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan ProjectionOutput
	lastSeq   int64
	log       zerolog.Logger
}

func NewProjectionWorker(db *sql.DB, inputChan <-chan ProjectionOutput, log zerolog.Logger) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
		log:       log.With().Str("component", "projection").Logger(),
	}
}

// Run starts the projection worker loop.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			if err := pw.processOutput(ctx, output); err != nil {
				pw.log.Warn().
					Err(err).
					Int64("sequence", output.Sequence).
					Str("event_type", output.EventType).
					Msg("projection update failed")
				// Continue; projections are eventually consistent
			}

			pw.lastSeq = output.Sequence
		}
	}
}

func (pw *ProjectionWorker) processOutput(ctx context.Context, output ProjectionOutput) error {
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	switch output.EventType {
	case "PolicyPurchased":
		if err := pw.applyPurchase(ctx, tx, output); err != nil {
			return fmt.Errorf("policy projection: %w", err)
		}
	case "InvestmentMade":
		if err := pw.applyInvestment(ctx, tx, output); err != nil {
			return fmt.Errorf("investment projection: %w", err)
		}
	case "ClaimPaid":
		if err := pw.applyClaim(ctx, tx, output); err != nil {
			return fmt.Errorf("claim projection: %w", err)
		}
	case "PolicyExpired":
		if err := pw.applyExpiry(ctx, tx, output); err != nil {
			return fmt.Errorf("expiry projection: %w", err)
		}
	case "TierPriceUpdated":
		if err := pw.applyPriceUpdate(ctx, tx, output); err != nil {
			return fmt.Errorf("price projection: %w", err)
		}
	}

	for _, j := range output.JournalEntries {
		if err := pw.updatePool(ctx, tx, j, output.Sequence); err != nil {
			return fmt.Errorf("pool projection: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, output.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

func (pw *ProjectionWorker) applyPurchase(ctx context.Context, tx *sql.Tx, output ProjectionOutput) error {
	var p purchasePayload
	if err := json.Unmarshal(output.Payload, &p); err != nil {
		return err
	}

	// Premium comes from the journal leg, not the payload: the event
	// carries no amount and the catalog price may have changed since.
	var premium int64
	for _, j := range output.JournalEntries {
		if j.JournalType == journalPremiumCollected {
			premium = j.Amount
		}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.policies
			(policy_id, holder, tier, premium_paid, status, issued_at, updated_at, last_sequence)
		VALUES ($1, $2, $3, $4, 'active', $5, $5, $6)
		ON CONFLICT (policy_id) DO NOTHING
	`, output.PolicyID, p.Buyer, p.Tier, premium, output.Timestamp, output.Sequence)
	return err
}

func (pw *ProjectionWorker) applyInvestment(ctx context.Context, tx *sql.Tx, output ProjectionOutput) error {
	var p investmentPayload
	if err := json.Unmarshal(output.Payload, &p); err != nil {
		return err
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.investments (investor, total_invested, last_sequence)
		VALUES ($1, $2, $3)
		ON CONFLICT (investor)
		DO UPDATE SET total_invested = projections.investments.total_invested + $2,
		              last_sequence = $3
		WHERE projections.investments.last_sequence < $3
	`, p.Investor, p.Amount, output.Sequence)
	return err
}

func (pw *ProjectionWorker) applyClaim(ctx context.Context, tx *sql.Tx, output ProjectionOutput) error {
	var p claimPayload
	if err := json.Unmarshal(output.Payload, &p); err != nil {
		return err
	}

	_, err := tx.ExecContext(ctx, `
		UPDATE projections.policies
		SET status = 'claimed', updated_at = $2, last_sequence = $3
		WHERE policy_id = $1 AND last_sequence < $3
	`, p.PolicyID, output.Timestamp, output.Sequence)
	return err
}

func (pw *ProjectionWorker) applyExpiry(ctx context.Context, tx *sql.Tx, output ProjectionOutput) error {
	var p expiryPayload
	if err := json.Unmarshal(output.Payload, &p); err != nil {
		return err
	}

	_, err := tx.ExecContext(ctx, `
		UPDATE projections.policies
		SET status = 'expired', updated_at = $2, last_sequence = $3
		WHERE policy_id = $1 AND last_sequence < $3
	`, p.PolicyID, output.Timestamp, output.Sequence)
	return err
}

func (pw *ProjectionWorker) applyPriceUpdate(ctx context.Context, tx *sql.Tx, output ProjectionOutput) error {
	var p priceUpdatePayload
	if err := json.Unmarshal(output.Payload, &p); err != nil {
		return err
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.tier_prices (tier, price, last_sequence)
		VALUES ($1, $2, $3)
		ON CONFLICT (tier)
		DO UPDATE SET price = $2, last_sequence = $3
		WHERE projections.tier_prices.last_sequence < $3
	`, p.Tier, p.NewPrice, output.Sequence)
	return err
}

// updatePool maintains the single-row pool summary per asset.
func (pw *ProjectionWorker) updatePool(ctx context.Context, tx *sql.Tx, j JournalEntry, seq int64) error {
	var balanceDelta, premiumsDelta, investedDelta, paidOutDelta int64

	switch j.JournalType {
	case journalPremiumCollected:
		balanceDelta = j.Amount
		premiumsDelta = j.Amount
	case journalInvestmentReceived:
		balanceDelta = j.Amount
		investedDelta = j.Amount
	case journalInvestorPosition:
		return nil // Position leg, no pool effect
	case journalClaimPaid:
		balanceDelta = -j.Amount
		paidOutDelta = j.Amount
	default:
		return nil
	}

	// Guarded like the other appliers: replayed outputs re-arrive here
	// on warm restart and must not re-add their deltas. At most one
	// pool-affecting journal exists per event, so equal sequences never
	// carry a second delta.
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.pool
			(asset_id, balance, total_premiums, total_invested, total_paid_out, last_sequence)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (asset_id)
		DO UPDATE SET balance = projections.pool.balance + $2,
		              total_premiums = projections.pool.total_premiums + $3,
		              total_invested = projections.pool.total_invested + $4,
		              total_paid_out = projections.pool.total_paid_out + $5,
		              last_sequence = $6
		WHERE projections.pool.last_sequence < $6
	`, j.AssetID, balanceDelta, premiumsDelta, investedDelta, paidOutDelta, seq)
	return err
}

// RebuildProjections rebuilds the pool summary and watermark from the
// event log journal. Policy and investment rows rebuild via event replay.
func RebuildProjections(ctx context.Context, db *sql.DB, log zerolog.Logger) error {
	truncateStatements := []string{
		`TRUNCATE projections.policies`,
		`TRUNCATE projections.investments`,
		`TRUNCATE projections.pool`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}

	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO projections.pool
			(asset_id, balance, total_premiums, total_invested, total_paid_out, last_sequence)
		SELECT
			asset_id,
			SUM(CASE journal_type
				WHEN 0 THEN amount
				WHEN 1 THEN amount
				WHEN 3 THEN -amount
				ELSE 0 END) AS balance,
			SUM(CASE journal_type WHEN 0 THEN amount ELSE 0 END) AS total_premiums,
			SUM(CASE journal_type WHEN 1 THEN amount ELSE 0 END) AS total_invested,
			SUM(CASE journal_type WHEN 3 THEN amount ELSE 0 END) AS total_paid_out,
			MAX(sequence) AS last_sequence
		FROM event_log.journal
		WHERE journal_type IN (0, 1, 3)
		GROUP BY asset_id
	`)
	if err != nil {
		return fmt.Errorf("rebuild pool summary: %w", err)
	}

	log.Info().Msg("projection rebuild complete")
	return nil
}
