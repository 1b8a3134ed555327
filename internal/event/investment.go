package event

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// InvestmentMade records investor capital entering the risk pool
type InvestmentMade struct {
	EventID   uuid.UUID
	Investor  common.Address
	Asset     string
	Amount    int64 // Base units, must be positive
	Origin    string
	Sequence  int64
	Timestamp time.Time
}

func (i *InvestmentMade) IdempotencyKey() string {
	return i.EventID.String()
}

func (i *InvestmentMade) EventType() EventType {
	return EventTypeInvestmentMade
}

func (i *InvestmentMade) Source() string {
	return i.Origin
}

func (i *InvestmentMade) SourceSequence() int64 {
	return i.Sequence
}

func (i *InvestmentMade) SetSourceSequence(seq int64) {
	i.Sequence = seq
}
