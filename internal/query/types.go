package query

// TierPrice is one catalog entry for API queries. Price is in base
// units; PriceTokens is the decimal display form ("50", "50.25").
type TierPrice struct {
	Tier        uint8  `json:"tier"`
	Name        string `json:"name"`
	Price       int64  `json:"price"`
	PriceTokens string `json:"price_tokens"`
}

// PricingResponse lists the current premium for every tier.
type PricingResponse struct {
	Tiers        []TierPrice `json:"tiers"`
	AsOfSequence int64       `json:"as_of_sequence"`
}

// PolicyResponse represents a policy for API queries.
type PolicyResponse struct {
	PolicyID     int64  `json:"policy_id"`
	Holder       string `json:"holder"`
	Tier         uint8  `json:"tier"`
	PremiumPaid  int64  `json:"premium_paid"`
	Status       string `json:"status"`
	IssuedAt     int64  `json:"issued_at"`
	UpdatedAt    int64  `json:"updated_at"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// PoolResponse summarizes the risk pool for API queries.
type PoolResponse struct {
	AssetID       uint16 `json:"asset_id"`
	Balance       int64  `json:"balance"`
	BalanceTokens string `json:"balance_tokens"`
	TotalPremiums int64  `json:"total_premiums"`
	TotalInvested int64  `json:"total_invested"`
	TotalPaidOut  int64  `json:"total_paid_out"`
	PolicyCount   int64  `json:"policy_count"`
	AsOfSequence  int64  `json:"as_of_sequence"`
}

// PolicyCountResponse reports the number of policies ever issued.
type PolicyCountResponse struct {
	Count        int64 `json:"count"`
	AsOfSequence int64 `json:"as_of_sequence"`
}

// InvestmentResponse represents one investor's position for API queries.
type InvestmentResponse struct {
	Investor      string `json:"investor"`
	TotalInvested int64  `json:"total_invested"`
	AsOfSequence  int64  `json:"as_of_sequence"`
}

// JournalHistoryEntry represents a journal entry for API queries.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	EventRef      string `json:"event_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	AssetID       uint16 `json:"asset_id"`
	Amount        int64  `json:"amount"`
	JournalType   int32  `json:"journal_type"`
	Timestamp     int64  `json:"timestamp"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy       bool    `json:"is_healthy"`
	HashChainBreaks []int64 `json:"hash_chain_breaks,omitempty"`
	PoolImbalance   *int64  `json:"pool_imbalance,omitempty"`
}
