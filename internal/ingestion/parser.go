package ingestion

import (
	"encoding/json"
	"fmt"
	"time"

	"RainyDayLedger/internal/event"

	"github.com/google/uuid"
)

// ParseRawEvent converts a RawEvent (JSON bytes + event type string) into
// a typed event.Event. The ingestion shell validates and converts raw
// oracle messages before they reach the deterministic core.
func ParseRawEvent(raw RawEvent, eventType string) (event.Event, error) {
	switch eventType {
	case "ClaimPaid":
		return parseClaimApproved(raw.Data)
	case "PolicyExpired":
		return parsePolicyExpired(raw.Data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from the claims
// oracle. Field names use snake_case to match the upstream producer.

type claimApprovedJSON struct {
	ClaimID     string `json:"claim_id"`
	PolicyID    int64  `json:"policy_id"`
	Asset       string `json:"asset"`
	Amount      int64  `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseClaimApproved(data []byte) (*event.ClaimPaid, error) {
	var j claimApprovedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ClaimPaid: %w", err)
	}

	claimID, err := uuid.Parse(j.ClaimID)
	if err != nil {
		return nil, fmt.Errorf("parse claim_id: %w", err)
	}

	return &event.ClaimPaid{
		EventID:   claimID,
		PolicyID:  j.PolicyID,
		Asset:     j.Asset,
		Amount:    j.Amount,
		Origin:    event.SourceOracle,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

type policyExpiredJSON struct {
	ExpiryID    string `json:"expiry_id"`
	PolicyID    int64  `json:"policy_id"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parsePolicyExpired(data []byte) (*event.PolicyExpired, error) {
	var j policyExpiredJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PolicyExpired: %w", err)
	}

	expiryID, err := uuid.Parse(j.ExpiryID)
	if err != nil {
		return nil, fmt.Errorf("parse expiry_id: %w", err)
	}

	return &event.PolicyExpired{
		EventID:   expiryID,
		PolicyID:  j.PolicyID,
		Origin:    event.SourceOracle,
		Sequence:  j.Sequence,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}
