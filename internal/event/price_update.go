package event

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// TierPriceUpdated changes the premium price of a tier.
// Caller must match the catalog owner or the core rejects it.
type TierPriceUpdated struct {
	EventID   uuid.UUID
	Caller    common.Address
	Tier      uint8
	NewPrice  int64 // Base units, must be positive
	Origin    string
	Sequence  int64
	Timestamp time.Time
}

func (t *TierPriceUpdated) IdempotencyKey() string {
	return t.EventID.String()
}

func (t *TierPriceUpdated) EventType() EventType {
	return EventTypeTierPriceUpdated
}

func (t *TierPriceUpdated) Source() string {
	return t.Origin
}

func (t *TierPriceUpdated) SourceSequence() int64 {
	return t.Sequence
}

func (t *TierPriceUpdated) SetSourceSequence(seq int64) {
	t.Sequence = seq
}
