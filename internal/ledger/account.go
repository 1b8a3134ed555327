package ledger

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeHolder AccountScope = iota
	AccountScopeSystem
	AccountScopeExternal
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	// Holder sub-types
	SubTypeInvested AccountSubType = iota

	// System sub-types
	SubTypeSystemRiskPool
	SubTypeSystemInvestorCapital

	// External sub-types (boundary with token custody)
	SubTypeExternalPremiumInflows
	SubTypeExternalInvestmentInflows
	SubTypeExternalClaimOutflows
)

// AssetID maps asset strings to numeric IDs for performance
type AssetID uint16

var (
	assetToID = map[string]AssetID{
		"USDC": 1,
	}
	idToAsset = map[AssetID]string{
		1: "USDC",
	}
)

func GetAssetID(asset string) (AssetID, bool) {
	id, ok := assetToID[asset]
	return id, ok
}

func GetAssetName(id AssetID) (string, bool) {
	name, ok := idToAsset[id]
	return name, ok
}

// AccountKey is the in-memory key for balance tracking (24 bytes, cache-friendly)
type AccountKey struct {
	Scope    AccountScope
	EntityID [20]byte // Holder address; zero for system/external accounts
	SubType  AccountSubType
	AssetID  AssetID
}

// NewHolderAccountKey creates a key for holder accounts
func NewHolderAccountKey(holder common.Address, subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:    AccountScopeHolder,
		EntityID: holder,
		SubType:  subType,
		AssetID:  assetID,
	}
}

// NewSystemAccountKey creates a key for system accounts
func NewSystemAccountKey(subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeSystem,
		SubType: subType,
		AssetID: assetID,
	}
}

// NewExternalAccountKey creates a key for external boundary accounts
func NewExternalAccountKey(subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeExternal,
		SubType: subType,
		AssetID: assetID,
	}
}

// Holder returns the holder address encoded in the key.
func (k AccountKey) Holder() common.Address {
	return common.Address(k.EntityID)
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	assetName, _ := GetAssetName(k.AssetID)

	switch k.Scope {
	case AccountScopeHolder:
		addr := common.Address(k.EntityID)
		return fmt.Sprintf("holder:%s:%s:%s", strings.ToLower(addr.Hex()), k.subTypeName(), assetName)
	case AccountScopeSystem:
		return fmt.Sprintf("system:%s:%s", k.subTypeName(), assetName)
	case AccountScopeExternal:
		return fmt.Sprintf("external:%s:%s", k.subTypeName(), assetName)
	}
	return "unknown"
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypeInvested:
		return "invested"
	case SubTypeSystemRiskPool:
		return "risk_pool"
	case SubTypeSystemInvestorCapital:
		return "investor_capital"
	case SubTypeExternalPremiumInflows:
		return "premium_inflows"
	case SubTypeExternalInvestmentInflows:
		return "investment_inflows"
	case SubTypeExternalClaimOutflows:
		return "claim_outflows"
	default:
		return "unknown"
	}
}

// ParseAccountPath converts an AccountPath string back into an AccountKey.
// Used when restoring balances from a snapshot.
func ParseAccountPath(path string) AccountKey {
	parts := strings.Split(path, ":")
	if len(parts) < 3 {
		return AccountKey{}
	}

	assetID, _ := GetAssetID(parts[len(parts)-1])

	switch parts[0] {
	case "holder":
		if len(parts) != 4 {
			return AccountKey{}
		}
		addr := common.HexToAddress(parts[1])
		return NewHolderAccountKey(addr, subTypeFromName(parts[2]), assetID)
	case "system":
		return NewSystemAccountKey(subTypeFromName(parts[1]), assetID)
	case "external":
		return NewExternalAccountKey(subTypeFromName(parts[1]), assetID)
	}
	return AccountKey{}
}

func subTypeFromName(name string) AccountSubType {
	switch name {
	case "invested":
		return SubTypeInvested
	case "risk_pool":
		return SubTypeSystemRiskPool
	case "investor_capital":
		return SubTypeSystemInvestorCapital
	case "premium_inflows":
		return SubTypeExternalPremiumInflows
	case "investment_inflows":
		return SubTypeExternalInvestmentInflows
	case "claim_outflows":
		return SubTypeExternalClaimOutflows
	}
	return SubTypeInvested
}
