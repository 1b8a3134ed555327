package ingestion_test

import (
	"encoding/json"
	"testing"
	"time"

	"RainyDayLedger/internal/event"
	"RainyDayLedger/internal/ingestion"
)

func rawFromJSON(t *testing.T, v interface{}) ingestion.RawEvent {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawEvent{
		Subject:   "test",
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}
}

func TestParseClaimApproved(t *testing.T) {
	payload := map[string]interface{}{
		"claim_id":     "550e8400-e29b-41d4-a716-446655440000",
		"policy_id":    int64(7),
		"asset":        "USDC",
		"amount":       int64(500_000_000),
		"sequence":     int64(3),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "ClaimPaid")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	cp, ok := evt.(*event.ClaimPaid)
	if !ok {
		t.Fatalf("expected *event.ClaimPaid, got %T", evt)
	}

	if cp.PolicyID != 7 {
		t.Errorf("policy_id: got %d, want 7", cp.PolicyID)
	}
	if cp.Asset != "USDC" {
		t.Errorf("asset: got %s, want USDC", cp.Asset)
	}
	if cp.Amount != 500_000_000 {
		t.Errorf("amount: got %d, want 500_000_000", cp.Amount)
	}
	if cp.Source() != event.SourceOracle {
		t.Errorf("source: got %s, want oracle", cp.Source())
	}
	if cp.SourceSequence() != 3 {
		t.Errorf("sequence: got %d, want 3", cp.SourceSequence())
	}
	if cp.EventType() != event.EventTypeClaimPaid {
		t.Errorf("event type: got %v, want ClaimPaid", cp.EventType())
	}
	if cp.Timestamp != time.UnixMicro(1700000000000000) {
		t.Errorf("timestamp: got %v", cp.Timestamp)
	}
}

func TestParsePolicyExpired(t *testing.T) {
	payload := map[string]interface{}{
		"expiry_id":    "660e8400-e29b-41d4-a716-446655440001",
		"policy_id":    int64(12),
		"sequence":     int64(4),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "PolicyExpired")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	pe, ok := evt.(*event.PolicyExpired)
	if !ok {
		t.Fatalf("expected *event.PolicyExpired, got %T", evt)
	}

	if pe.PolicyID != 12 {
		t.Errorf("policy_id: got %d, want 12", pe.PolicyID)
	}
	if pe.Source() != event.SourceOracle {
		t.Errorf("source: got %s, want oracle", pe.Source())
	}
	if pe.EventType() != event.EventTypePolicyExpired {
		t.Errorf("event type: got %v, want PolicyExpired", pe.EventType())
	}
}

func TestParseUnknownEventType_Fails(t *testing.T) {
	raw := ingestion.RawEvent{Data: []byte(`{}`)}
	_, err := ingestion.ParseRawEvent(raw, "NonExistentType")
	if err == nil {
		t.Fatal("expected error for unknown event type")
	}
}

func TestParseInvalidJSON_Fails(t *testing.T) {
	raw := ingestion.RawEvent{Data: []byte(`{invalid json`)}
	_, err := ingestion.ParseRawEvent(raw, "ClaimPaid")
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestParseInvalidUUID_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"claim_id":     "not-a-uuid",
		"policy_id":    int64(1),
		"asset":        "USDC",
		"amount":       int64(1),
		"sequence":     int64(0),
		"timestamp_us": int64(0),
	}

	raw := rawFromJSON(t, payload)
	_, err := ingestion.ParseRawEvent(raw, "ClaimPaid")
	if err == nil {
		t.Fatal("expected error for invalid UUID")
	}
}
