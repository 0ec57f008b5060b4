package execution

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/wonny/ibbridge/internal/contracts"
)

// IDSource hands out order request ids
type IDSource interface {
	NextRequestID() int64
}

// Builder turns intents into order legs
type Builder struct {
	ids IDSource
}

// NewBuilder creates a builder drawing ids from ids (normally the Session)
func NewBuilder(ids IDSource) *Builder {
	return &Builder{ids: ids}
}

// Build validates the request and intent, then lays out the legs.
// Ids are drawn only after validation succeeds.
func (b *Builder) Build(req contracts.InstrumentRequest, intent contracts.OrderIntent) (contracts.OrderPlan, error) {
	if err := req.Validate(); err != nil {
		return contracts.OrderPlan{}, contracts.WithOp("build", err)
	}
	if err := intent.Validate(); err != nil {
		return contracts.OrderPlan{}, contracts.WithOp("build", err)
	}

	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	tif := intent.TIF
	if tif == "" {
		tif = contracts.TimeInForceDay
	}

	plan := contracts.OrderPlan{Instrument: req, Kind: intent.Kind}

	switch intent.Kind {
	case contracts.KindMarket:
		plan.Legs = []contracts.OrderRequest{b.leg(intent.Action, contracts.OrderTypeMarket, intent.Quantity, tif)}

	case contracts.KindLimit:
		leg := b.leg(intent.Action, contracts.OrderTypeLimit, intent.Quantity, tif)
		leg.LimitPrice = intent.LimitPrice
		plan.Legs = []contracts.OrderRequest{leg}

	case contracts.KindStop:
		leg := b.leg(intent.Action, contracts.OrderTypeStop, intent.Quantity, tif)
		leg.AuxPrice = intent.StopPrice
		plan.Legs = []contracts.OrderRequest{leg}

	case contracts.KindTrailing:
		parent := b.leg(intent.Action, contracts.OrderTypeLimit, intent.Quantity, tif)
		parent.LimitPrice = intent.LimitPrice
		parent.Transmit = false

		trail := b.leg(intent.Action.Opposite(), contracts.OrderTypeTrailing, intent.Quantity, tif)
		trail.AuxPrice = intent.TrailAmount
		trail.ParentID = parent.ID

		plan.Legs = []contracts.OrderRequest{parent, trail}

	case contracts.KindBracket:
		stopLoss, takeProfit := intent.BracketPrices()

		parent := b.leg(intent.Action, contracts.OrderTypeLimit, intent.Quantity, tif)
		parent.LimitPrice = intent.LimitPrice
		parent.Transmit = false

		stop := b.leg(intent.Action.Opposite(), contracts.OrderTypeStop, intent.Quantity, tif)
		stop.AuxPrice = decimal.NewNullDecimal(stopLoss)
		stop.ParentID = parent.ID
		stop.Transmit = false

		target := b.leg(intent.Action.Opposite(), contracts.OrderTypeLimit, intent.Quantity, tif)
		target.LimitPrice = decimal.NewNullDecimal(takeProfit)
		target.ParentID = parent.ID

		plan.Legs = []contracts.OrderRequest{parent, stop, target}
	}

	return plan, nil
}

func (b *Builder) leg(action contracts.Action, orderType contracts.OrderType, qty int, tif string) contracts.OrderRequest {
	return contracts.OrderRequest{
		ID:        b.ids.NextRequestID(),
		Action:    action,
		OrderType: orderType,
		Quantity:  qty,
		TIF:       tif,
		Transmit:  true,
	}
}
