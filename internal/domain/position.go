package domain

import "github.com/shopspring/decimal"

// RawPosition is a broker-reported open position. Exactly one of LongQuantity
// and ShortQuantity is expected to be nonzero.
type RawPosition struct {
	Symbol        string
	AssetType     string
	LongQuantity  decimal.Decimal
	ShortQuantity decimal.Decimal
	AveragePrice  decimal.Decimal
	MarketValue   decimal.Decimal
}

// AccountBalances are the account-level figures returned with positions.
type AccountBalances struct {
	LiquidationValue decimal.Decimal
	Equity           decimal.Decimal
	CashBalance      decimal.Decimal
}

// AccountSnapshot is one positions-endpoint response.
type AccountSnapshot struct {
	AccountNumber string
	Positions     []RawPosition
	Balances      AccountBalances
}
