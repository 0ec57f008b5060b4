package contracts

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Action is the order side
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// ParseAction accepts BUY or SELL in any case
func ParseAction(s string) (Action, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return ActionBuy, nil
	case "SELL":
		return ActionSell, nil
	default:
		return "", Validationf("unknown action %q", s)
	}
}

// Opposite returns the closing side
func (a Action) Opposite() Action {
	if a == ActionBuy {
		return ActionSell
	}
	return ActionBuy
}

// OrderKind is the logical order kind a caller asks for
type OrderKind string

const (
	KindMarket   OrderKind = "Market"
	KindLimit    OrderKind = "Limit"
	KindStop     OrderKind = "Stop"
	KindTrailing OrderKind = "Trail"
	KindBracket  OrderKind = "Bracket"
)

// ParseOrderKind maps user spellings to an OrderKind. Empty defaults to Limit.
func ParseOrderKind(s string) (OrderKind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "LIMIT", "LMT":
		return KindLimit, nil
	case "MARKET", "MKT":
		return KindMarket, nil
	case "STOP", "STP":
		return KindStop, nil
	case "TRAIL", "TRAILING":
		return KindTrailing, nil
	case "BRACKET":
		return KindBracket, nil
	default:
		return "", Validationf("unknown order type %q", s)
	}
}

// OrderType is the broker order-type code
type OrderType string

const (
	OrderTypeMarket   OrderType = "MKT"
	OrderTypeLimit    OrderType = "LMT"
	OrderTypeStop     OrderType = "STP"
	OrderTypeTrailing OrderType = "TRAIL"
)

// TimeInForce defaults to DAY
const TimeInForceDay = "DAY"

// Bracket offsets used when the intent leaves them empty
var (
	DefaultStopLossOffset   = decimal.NewFromInt(3)
	DefaultTakeProfitOffset = decimal.NewFromInt(5)
)

// OrderIntent is what the caller wants to trade
type OrderIntent struct {
	Action           Action              `json:"action"`
	Quantity         int                 `json:"quantity"`
	Kind             OrderKind           `json:"kind"`
	LimitPrice       decimal.NullDecimal `json:"limit_price"`
	StopPrice        decimal.NullDecimal `json:"stop_price"`
	TrailAmount      decimal.NullDecimal `json:"trail_amount"`
	StopLossOffset   decimal.NullDecimal `json:"stop_loss_offset"`
	TakeProfitOffset decimal.NullDecimal `json:"take_profit_offset"`
	TIF              string              `json:"tif,omitempty"`
}

// Validate checks the intent without touching the broker
func (i OrderIntent) Validate() error {
	if i.Action != ActionBuy && i.Action != ActionSell {
		return Validationf("action must be BUY or SELL, got %q", i.Action)
	}
	if i.Quantity <= 0 {
		return Validationf("quantity must be positive, got %d", i.Quantity)
	}

	switch i.Kind {
	case KindMarket:
	case KindLimit:
		if !positive(i.LimitPrice) {
			return Validationf("limit order requires a positive limit price")
		}
	case KindStop:
		if !positive(i.StopPrice) {
			return Validationf("stop order requires a positive stop price")
		}
	case KindTrailing:
		if !positive(i.LimitPrice) {
			return Validationf("trailing order requires a positive limit price for the entry leg")
		}
		if !positive(i.TrailAmount) {
			return Validationf("trailing order requires a positive trail amount")
		}
	case KindBracket:
		if !positive(i.LimitPrice) {
			return Validationf("bracket order requires a positive limit price")
		}
		if i.StopLossOffset.Valid && !i.StopLossOffset.Decimal.IsPositive() {
			return Validationf("stop-loss offset must be positive")
		}
		if i.TakeProfitOffset.Valid && !i.TakeProfitOffset.Decimal.IsPositive() {
			return Validationf("take-profit offset must be positive")
		}
		if sl, tp := i.BracketPrices(); !sl.IsPositive() || !tp.IsPositive() {
			return Validationf("bracket exit prices must stay positive (stop %s, target %s)", sl, tp)
		}
	default:
		return Validationf("unknown order kind %q", i.Kind)
	}
	return nil
}

func (i OrderIntent) stopLossOffset() decimal.Decimal {
	if i.StopLossOffset.Valid {
		return i.StopLossOffset.Decimal
	}
	return DefaultStopLossOffset
}

func (i OrderIntent) takeProfitOffset() decimal.Decimal {
	if i.TakeProfitOffset.Valid {
		return i.TakeProfitOffset.Decimal
	}
	return DefaultTakeProfitOffset
}

// BracketPrices returns the stop-loss trigger and take-profit limit for a bracket
func (i OrderIntent) BracketPrices() (stopLoss, takeProfit decimal.Decimal) {
	limit := i.LimitPrice.Decimal
	if i.Action == ActionBuy {
		return limit.Sub(i.stopLossOffset()), limit.Add(i.takeProfitOffset())
	}
	return limit.Add(i.stopLossOffset()), limit.Sub(i.takeProfitOffset())
}

func positive(d decimal.NullDecimal) bool {
	return d.Valid && d.Decimal.IsPositive()
}

// OrderRequest is one broker order leg
type OrderRequest struct {
	ID         int64               `json:"id"`
	ParentID   int64               `json:"parent_id,omitempty"`
	Action     Action              `json:"action"`
	OrderType  OrderType           `json:"order_type"`
	Quantity   int                 `json:"quantity"`
	LimitPrice decimal.NullDecimal `json:"limit_price"`
	AuxPrice   decimal.NullDecimal `json:"aux_price"` // stop trigger or trail distance
	TIF        string              `json:"tif"`
	Transmit   bool                `json:"transmit"`
}

// OrderPlan is an instrument plus its ordered legs, parent first
type OrderPlan struct {
	Instrument InstrumentRequest `json:"instrument"`
	Kind       OrderKind         `json:"kind"`
	Legs       []OrderRequest    `json:"legs"`
}

// IsComposite reports whether the plan links several legs
func (p OrderPlan) IsComposite() bool {
	return len(p.Legs) > 1
}

// Parent returns the first leg
func (p OrderPlan) Parent() OrderRequest {
	return p.Legs[0]
}

// Status represents broker order status
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSubmitted Status = "SUBMITTED"
	StatusFilled    Status = "FILLED"
	StatusCanceled  Status = "CANCELED"
	StatusRejected  Status = "REJECTED"
)

// OrderHandle is the broker acknowledgement of one leg
type OrderHandle struct {
	OrderID       int64               `json:"order_id"`
	BrokerOrderID string              `json:"broker_order_id,omitempty"`
	ParentID      int64               `json:"parent_id,omitempty"`
	Symbol        string              `json:"symbol"`
	Action        Action              `json:"action"`
	OrderType     OrderType           `json:"order_type"`
	Quantity      int                 `json:"quantity"`
	LimitPrice    decimal.NullDecimal `json:"limit_price"`
	AuxPrice      decimal.NullDecimal `json:"aux_price"`
	Status        Status              `json:"status"`
}

// Submission is the ordered set of handles for one plan
type Submission struct {
	Contract QualifiedContract `json:"contract"`
	Handles  []OrderHandle     `json:"handles"`
}

// Parent returns the handle of the first leg
func (s Submission) Parent() OrderHandle {
	return s.Handles[0]
}

// Children returns every handle after the parent
func (s Submission) Children() []OrderHandle {
	if len(s.Handles) < 2 {
		return nil
	}
	return s.Handles[1:]
}

// Trade is one row of the broker's order board
type Trade struct {
	OrderID      string          `json:"order_id"`
	Symbol       string          `json:"symbol"`
	Action       Action          `json:"action"`
	OrderType    string          `json:"order_type"`
	Status       string          `json:"status"`
	Quantity     decimal.Decimal `json:"quantity"`
	Filled       decimal.Decimal `json:"filled"`
	Remaining    decimal.Decimal `json:"remaining"`
	AvgFillPrice decimal.Decimal `json:"avg_fill_price"`
}
