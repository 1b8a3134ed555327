package event

import (
	"time"

	"github.com/google/uuid"
)

// PolicyExpired marks a policy Expired. No monetary effect.
type PolicyExpired struct {
	EventID   uuid.UUID
	PolicyID  int64
	Origin    string
	Sequence  int64
	Timestamp time.Time
}

func (p *PolicyExpired) IdempotencyKey() string {
	return p.EventID.String()
}

func (p *PolicyExpired) EventType() EventType {
	return EventTypePolicyExpired
}

func (p *PolicyExpired) Source() string {
	return p.Origin
}

func (p *PolicyExpired) SourceSequence() int64 {
	return p.Sequence
}

func (p *PolicyExpired) SetSourceSequence(seq int64) {
	p.Sequence = seq
}
