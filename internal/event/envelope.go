package event

import (
	"time"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypePolicyPurchased
	EventTypeInvestmentMade
	EventTypeClaimPaid
	EventTypePolicyExpired
	EventTypeTierPriceUpdated
)

// Well-known event sources. The source partitions source-sequence
// validation: each source carries its own monotonic counter.
const (
	SourceAPI    = "api"
	SourceOracle = "oracle"
)

// EventEnvelope wraps every event in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Origin of the event (API, claims oracle)
	Source string

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// Upstream sequence for ordering validation
	SourceSequence int64

	// JSON-encoded event-specific data
	Payload []byte

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all event payloads must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// Source returns the origin partition for sequence validation
	Source() string

	// SourceSequence returns upstream ordering key
	SourceSequence() int64

	// SetSourceSequence stamps the ordering key. The API server assigns
	// it atomically with enqueueing the event so an abandoned submission
	// never consumes a number.
	SetSourceSequence(seq int64)
}

func (et EventType) String() string {
	switch et {
	case EventTypePolicyPurchased:
		return "PolicyPurchased"
	case EventTypeInvestmentMade:
		return "InvestmentMade"
	case EventTypeClaimPaid:
		return "ClaimPaid"
	case EventTypePolicyExpired:
		return "PolicyExpired"
	case EventTypeTierPriceUpdated:
		return "TierPriceUpdated"
	default:
		return "Unknown"
	}
}
