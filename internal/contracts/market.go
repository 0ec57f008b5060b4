package contracts

import (
	"github.com/shopspring/decimal"
)

// Quote is a market data snapshot. Absent fields stay invalid.
type Quote struct {
	Last  decimal.NullDecimal `json:"last"`
	Bid   decimal.NullDecimal `json:"bid"`
	Ask   decimal.NullDecimal `json:"ask"`
	Close decimal.NullDecimal `json:"close"`
}

// MarketPrice is last, else the bid/ask midpoint, else the previous close
func (q Quote) MarketPrice() decimal.NullDecimal {
	if q.Last.Valid {
		return q.Last
	}
	if mid := Mid(q.Bid, q.Ask); mid.Valid {
		return mid
	}
	return q.Close
}

// HasBidAsk reports whether both sides are present
func (q Quote) HasBidAsk() bool {
	return q.Bid.Valid && q.Ask.Valid
}

// Mid is round((bid+ask)/2, 2), only when both sides are present
func Mid(bid, ask decimal.NullDecimal) decimal.NullDecimal {
	if !bid.Valid || !ask.Valid {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(bid.Decimal.Add(ask.Decimal).Div(decimal.NewFromInt(2)).Round(2))
}

// OptionChain is one option parameter set for an underlying
type OptionChain struct {
	Exchange     string            `json:"exchange"`
	TradingClass string            `json:"trading_class"`
	Multiplier   string            `json:"multiplier"`
	Expirations  []string          `json:"expirations"`
	Strikes      []decimal.Decimal `json:"strikes"`
}

// AtmQuote is the result of an ATM lookup
type AtmQuote struct {
	Symbol          string              `json:"symbol"`
	Expiry          string              `json:"expiry"`
	Right           Right               `json:"right"`
	Strike          decimal.Decimal     `json:"atm_strike"`
	UnderlyingPrice decimal.Decimal     `json:"underlying_price"`
	Bid             decimal.NullDecimal `json:"bid"`
	Ask             decimal.NullDecimal `json:"ask"`
	Mid             decimal.NullDecimal `json:"mid"`
	TradingClass    string              `json:"trading_class"`
	ConID           int64               `json:"conid"`
}

// AccountValue is one account summary entry
type AccountValue struct {
	Account  string `json:"account"`
	Tag      string `json:"tag"`
	Value    string `json:"value"`
	Currency string `json:"currency,omitempty"`
}

// TagNetLiquidation is the account summary tag for net liquidation value
const TagNetLiquidation = "NetLiquidation"
