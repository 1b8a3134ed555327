package query

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"RainyDayLedger/internal/money"
)

// tierNames maps tier discriminators to display names for API output.
var tierNames = map[uint8]string{
	0: "Basic",
	1: "Standard",
	2: "Premium",
}

// QueryService provides read-only access to the projection tables.
// All responses include as_of_sequence so callers can reason about
// freshness relative to the event log.
type QueryService struct {
	db *sql.DB
}

func NewQueryService(db *sql.DB) *QueryService {
	return &QueryService{db: db}
}

// GetPricing returns the current premium for every tier.
func (qs *QueryService) GetPricing(ctx context.Context) (*PricingResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT tier, price FROM projections.tier_prices ORDER BY tier
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	resp := &PricingResponse{AsOfSequence: asOfSeq}
	for rows.Next() {
		var tp TierPrice
		if err := rows.Scan(&tp.Tier, &tp.Price); err != nil {
			return nil, err
		}
		tp.Name = tierNames[tp.Tier]
		tp.PriceTokens = money.FormatAmount(tp.Price)
		resp.Tiers = append(resp.Tiers, tp)
	}

	return resp, rows.Err()
}

// GetPolicy returns a single policy by ID.
// Returns nil with no error when the policy does not exist.
func (qs *QueryService) GetPolicy(ctx context.Context, policyID int64) (*PolicyResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	var p PolicyResponse
	p.AsOfSequence = asOfSeq
	err = qs.db.QueryRowContext(ctx, `
		SELECT policy_id, holder, tier, premium_paid, status, issued_at, updated_at
		FROM projections.policies
		WHERE policy_id = $1
	`, policyID).Scan(
		&p.PolicyID, &p.Holder, &p.Tier, &p.PremiumPaid, &p.Status, &p.IssuedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &p, nil
}

// GetPoliciesOf returns all policies held by an address, oldest first.
func (qs *QueryService) GetPoliciesOf(ctx context.Context, holder string) ([]PolicyResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT policy_id, holder, tier, premium_paid, status, issued_at, updated_at
		FROM projections.policies
		WHERE LOWER(holder) = LOWER($1)
		ORDER BY policy_id
	`, holder)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []PolicyResponse
	for rows.Next() {
		var p PolicyResponse
		p.AsOfSequence = asOfSeq
		if err := rows.Scan(
			&p.PolicyID, &p.Holder, &p.Tier, &p.PremiumPaid, &p.Status, &p.IssuedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}

	return policies, rows.Err()
}

// GetPool returns the risk pool summary: balance, cumulative totals and
// the number of policies ever issued.
func (qs *QueryService) GetPool(ctx context.Context, assetID uint16) (*PoolResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	resp := &PoolResponse{AssetID: assetID, AsOfSequence: asOfSeq}
	err = qs.db.QueryRowContext(ctx, `
		SELECT balance, total_premiums, total_invested, total_paid_out
		FROM projections.pool
		WHERE asset_id = $1
	`, assetID).Scan(&resp.Balance, &resp.TotalPremiums, &resp.TotalInvested, &resp.TotalPaidOut)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	resp.BalanceTokens = money.FormatAmount(resp.Balance)

	if err := qs.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM projections.policies
	`).Scan(&resp.PolicyCount); err != nil {
		return nil, err
	}

	return resp, nil
}

// GetPolicyCount returns the number of policies ever issued. Terminal
// policies stay in the projection, so this never decreases.
func (qs *QueryService) GetPolicyCount(ctx context.Context) (*PolicyCountResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	resp := &PolicyCountResponse{AsOfSequence: asOfSeq}
	if err := qs.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM projections.policies
	`).Scan(&resp.Count); err != nil {
		return nil, err
	}

	return resp, nil
}

// GetInvestment returns one investor's cumulative position.
// Unknown investors get a zero total, not an error.
func (qs *QueryService) GetInvestment(ctx context.Context, investor string) (*InvestmentResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	resp := &InvestmentResponse{Investor: investor, AsOfSequence: asOfSeq}
	err = qs.db.QueryRowContext(ctx, `
		SELECT total_invested FROM projections.investments
		WHERE LOWER(investor) = LOWER($1)
	`, investor).Scan(&resp.TotalInvested)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}

	return resp, nil
}

// GetJournalHistory returns journal entries touching a holder's accounts,
// newest first, with cursor-based pagination on sequence.
func (qs *QueryService) GetJournalHistory(
	ctx context.Context,
	holder string,
	limit int,
	afterSequence *int64,
) ([]JournalHistoryEntry, error) {
	accountPrefix := fmt.Sprintf("holder:%s:%%", strings.ToLower(holder))

	query := `
		SELECT journal_id, batch_id, event_ref, sequence,
		       debit_account, credit_account, asset_id, amount, journal_type, timestamp
		FROM event_log.journal
		WHERE debit_account LIKE $1 OR credit_account LIKE $1
	`
	args := []interface{}{accountPrefix}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalHistoryEntry
	for rows.Next() {
		var e JournalHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.EventRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.AssetID, &e.Amount,
			&e.JournalType, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks hash chain continuity and the pool accounting
// identity (balance == premiums + invested - paid out).
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM event_log.events e1
		LEFT JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e2.sequence IS NOT NULL AND e1.prev_hash != e2.state_hash
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var imbalance sql.NullInt64
	err = qs.db.QueryRowContext(ctx, `
		SELECT balance - (total_premiums + total_invested - total_paid_out)
		FROM projections.pool
		LIMIT 1
	`).Scan(&imbalance)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	if imbalance.Valid && imbalance.Int64 != 0 {
		v := imbalance.Int64
		report.PoolImbalance = &v
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && report.PoolImbalance == nil
	return report, nil
}

// --- helpers ---

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_sequence, 0) FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}
