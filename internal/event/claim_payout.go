package event

import (
	"time"

	"github.com/google/uuid"
)

// ClaimPaid books an approved claim payout against a policy.
// The recipient is the policy holder, resolved by the core.
type ClaimPaid struct {
	EventID   uuid.UUID
	PolicyID  int64
	Asset     string
	Amount    int64 // Base units, must be positive
	Origin    string
	Sequence  int64
	Timestamp time.Time
}

func (c *ClaimPaid) IdempotencyKey() string {
	return c.EventID.String()
}

func (c *ClaimPaid) EventType() EventType {
	return EventTypeClaimPaid
}

func (c *ClaimPaid) Source() string {
	return c.Origin
}

func (c *ClaimPaid) SourceSequence() int64 {
	return c.Sequence
}

func (c *ClaimPaid) SetSourceSequence(seq int64) {
	c.Sequence = seq
}
