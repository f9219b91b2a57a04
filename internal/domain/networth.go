package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AssetType is a closed set of asset classes.
type AssetType string

const (
	AssetCash       AssetType = "cash"
	AssetInvestment AssetType = "investment"
	AssetProperty   AssetType = "property"
	AssetVehicle    AssetType = "vehicle"
	AssetOther      AssetType = "other"
)

// LiabilityType is a closed set of liability classes.
type LiabilityType string

const (
	LiabilityCreditCard LiabilityType = "credit_card"
	LiabilityLoan       LiabilityType = "loan"
	LiabilityMortgage   LiabilityType = "mortgage"
	LiabilityOther      LiabilityType = "other"
)

// Asset is something owned, valued at a point in time.
type Asset struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Value     decimal.Decimal `json:"value"`
	Type      AssetType       `json:"type"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Liability is something owed.
type Liability struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Amount    decimal.Decimal `json:"amount"`
	Type      LiabilityType   `json:"type"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NetWorthSummary is the assets-minus-liabilities rollup.
type NetWorthSummary struct {
	TotalAssets      decimal.Decimal `json:"total_assets"`
	TotalLiabilities decimal.Decimal `json:"total_liabilities"`
	NetWorth         decimal.Decimal `json:"net_worth"`
	Assets           []Asset         `json:"assets"`
	Liabilities      []Liability     `json:"liabilities"`
}

// SummarizeNetWorth totals the given assets and liabilities.
func SummarizeNetWorth(assets []Asset, liabilities []Liability) NetWorthSummary {
	totalAssets := decimal.Zero
	for _, a := range assets {
		totalAssets = totalAssets.Add(a.Value)
	}
	totalLiabilities := decimal.Zero
	for _, l := range liabilities {
		totalLiabilities = totalLiabilities.Add(l.Amount)
	}
	if assets == nil {
		assets = []Asset{}
	}
	if liabilities == nil {
		liabilities = []Liability{}
	}
	return NetWorthSummary{
		TotalAssets:      totalAssets,
		TotalLiabilities: totalLiabilities,
		NetWorth:         totalAssets.Sub(totalLiabilities),
		Assets:           assets,
		Liabilities:      liabilities,
	}
}
