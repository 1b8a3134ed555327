package event

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// PolicyPurchased requests issuance of a policy for Buyer.
// The premium amount is resolved by the core from the catalog at
// processing time, never by the submitter.
type PolicyPurchased struct {
	EventID   uuid.UUID
	Buyer     common.Address
	Tier      uint8
	Asset     string
	Origin    string
	Sequence  int64
	Timestamp time.Time
}

func (p *PolicyPurchased) IdempotencyKey() string {
	return p.EventID.String()
}

func (p *PolicyPurchased) EventType() EventType {
	return EventTypePolicyPurchased
}

func (p *PolicyPurchased) Source() string {
	return p.Origin
}

func (p *PolicyPurchased) SourceSequence() int64 {
	return p.Sequence
}

func (p *PolicyPurchased) SetSourceSequence(seq int64) {
	p.Sequence = seq
}
