package schwab

import "github.com/shopspring/decimal"

// --------------------------------------------------------------------------
// Schwab Trader API DTOs
// --------------------------------------------------------------------------

// accountResponse is the body of GET /trader/v1/accounts/{hash}?fields=positions.
type accountResponse struct {
	SecuritiesAccount securitiesAccount  `json:"securitiesAccount"`
	AggregatedBalance *aggregatedBalance `json:"aggregatedBalance"`
}

type securitiesAccount struct {
	Type            string          `json:"type"`
	AccountNumber   string          `json:"accountNumber"`
	Positions       []position      `json:"positions"`
	CurrentBalances *currentBalance `json:"currentBalances"`
}

type position struct {
	LongQuantity      decimal.Decimal  `json:"longQuantity"`
	ShortQuantity     decimal.Decimal  `json:"shortQuantity"`
	AveragePrice      decimal.Decimal  `json:"averagePrice"`
	AverageLongPrice  *decimal.Decimal `json:"averageLongPrice"`
	AverageShortPrice *decimal.Decimal `json:"averageShortPrice"`
	MarketValue       decimal.Decimal  `json:"marketValue"`
	Instrument        instrument       `json:"instrument"`
}

type instrument struct {
	Symbol    string `json:"symbol"`
	AssetType string `json:"assetType"`
	CUSIP     string `json:"cusip"`
}

type currentBalance struct {
	LiquidationValue *decimal.Decimal `json:"liquidationValue"`
	Equity           *decimal.Decimal `json:"equity"`
	CashBalance      *decimal.Decimal `json:"cashBalance"`
	AvailableFunds   *decimal.Decimal `json:"availableFunds"`
}

type aggregatedBalance struct {
	CurrentLiquidationValue *decimal.Decimal `json:"currentLiquidationValue"`
	LiquidationValue        *decimal.Decimal `json:"liquidationValue"`
}

// order is one element of GET /trader/v1/accounts/{hash}/orders. Bracket and
// OCO orders carry their protective legs in ChildOrderStrategies.
type order struct {
	OrderID              int64            `json:"orderId"`
	OrderType            string           `json:"orderType"`
	Status               string           `json:"status"`
	StopPrice            *decimal.Decimal `json:"stopPrice"`
	EnteredTime          string           `json:"enteredTime"`
	OrderLegCollection   []orderLeg       `json:"orderLegCollection"`
	ChildOrderStrategies []order          `json:"childOrderStrategies"`
}

type orderLeg struct {
	Instruction string          `json:"instruction"`
	Quantity    decimal.Decimal `json:"quantity"`
	Instrument  instrument      `json:"instrument"`
}

// tokenResponse is the body of POST /v1/oauth/token.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
}

type tokenErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}
