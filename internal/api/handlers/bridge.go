package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/wonny/ibbridge/internal/contracts"
	"github.com/wonny/ibbridge/pkg/logger"
)

// Bridge is the order bridge as seen by the HTTP layer
type Bridge interface {
	IsConnected() bool
	PlaceOrder(ctx context.Context, req contracts.InstrumentRequest, intent contracts.OrderIntent) (contracts.Submission, error)
	ResolveATM(ctx context.Context, symbol string, right contracts.Right, expiry string) (contracts.AtmQuote, error)
	NetLiquidation(ctx context.Context) (decimal.NullDecimal, error)
	Orders(ctx context.Context) ([]contracts.Trade, error)
}

// BridgeHandler handles order and lookup endpoints
// SSOT: bridge API handlers live in this struct only
type BridgeHandler struct {
	bridge Bridge
	logger *logger.Logger
}

// NewBridgeHandler creates a new bridge handler
func NewBridgeHandler(bridge Bridge, log *logger.Logger) *BridgeHandler {
	return &BridgeHandler{
		bridge: bridge,
		logger: log.Component("api"),
	}
}

// OrderBody is the request body of the order endpoints
type OrderBody struct {
	Symbol           string              `json:"symbol"`
	Qty              int                 `json:"qty"`
	LimitPrice       decimal.NullDecimal `json:"limit_price"`
	StopPrice        decimal.NullDecimal `json:"stop_price"`
	TrailAmount      decimal.NullDecimal `json:"trail_amount"`
	StopLossOffset   decimal.NullDecimal `json:"stop_loss_offset"`
	TakeProfitOffset decimal.NullDecimal `json:"take_profit_offset"`
	OrderType        string              `json:"order_type"`
	TIF              string              `json:"tif"`
	IsOption         bool                `json:"is_option"`
	Expiry           string              `json:"expiry"`
	Strike           decimal.NullDecimal `json:"strike"`
	Right            string              `json:"right"`
}

// toRequest splits the body into instrument and intent; kind overrides order_type when set
func (b OrderBody) toRequest(action contracts.Action, kind contracts.OrderKind) (contracts.InstrumentRequest, contracts.OrderIntent, error) {
	if kind == "" {
		parsed, err := contracts.ParseOrderKind(b.OrderType)
		if err != nil {
			return contracts.InstrumentRequest{}, contracts.OrderIntent{}, err
		}
		kind = parsed
	}

	req := contracts.InstrumentRequest{
		Symbol:   b.Symbol,
		IsOption: b.IsOption,
		Expiry:   b.Expiry,
		Strike:   b.Strike,
	}
	if strings.TrimSpace(b.Right) != "" {
		right, err := contracts.ParseRight(b.Right)
		if err != nil {
			return contracts.InstrumentRequest{}, contracts.OrderIntent{}, err
		}
		req.Right = right
	}

	intent := contracts.OrderIntent{
		Action:           action,
		Quantity:         b.Qty,
		Kind:             kind,
		LimitPrice:       b.LimitPrice,
		StopPrice:        b.StopPrice,
		TrailAmount:      b.TrailAmount,
		StopLossOffset:   b.StopLossOffset,
		TakeProfitOffset: b.TakeProfitOffset,
		TIF:              b.TIF,
	}
	return req, intent, nil
}

// BuyOrder places a buy order of any kind
// POST /buy_order
func (h *BridgeHandler) BuyOrder(w http.ResponseWriter, r *http.Request) {
	h.placeOrder(w, r, contracts.ActionBuy, "")
}

// SellOrder places a sell order of any kind
// POST /sell_order
func (h *BridgeHandler) SellOrder(w http.ResponseWriter, r *http.Request) {
	h.placeOrder(w, r, contracts.ActionSell, "")
}

// BuyTrailing places a limit buy with a trailing-stop exit
// POST /buy_trailing
func (h *BridgeHandler) BuyTrailing(w http.ResponseWriter, r *http.Request) {
	h.placeOrder(w, r, contracts.ActionBuy, contracts.KindTrailing)
}

// BuyBracket places a limit buy with stop-loss and take-profit exits
// POST /buy_bracket
func (h *BridgeHandler) BuyBracket(w http.ResponseWriter, r *http.Request) {
	h.placeOrder(w, r, contracts.ActionBuy, contracts.KindBracket)
}

func (h *BridgeHandler) placeOrder(w http.ResponseWriter, r *http.Request, action contracts.Action, kind contracts.OrderKind) {
	var body OrderBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, contracts.Validationf("invalid request body: %v", err))
		return
	}

	req, intent, err := body.toRequest(action, kind)
	if err != nil {
		respondError(w, err)
		return
	}

	sub, err := h.bridge.PlaceOrder(r.Context(), req, intent)
	if err != nil {
		h.logger.WithFields(map[string]interface{}{
			"symbol": req.Symbol,
			"action": action,
			"kind":   intent.Kind,
		}).WithError(err).Warn("Order request failed")
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, submissionResponse(intent.Kind, sub))
}

// submissionResponse shapes a submission: single legs report orderId, composites report the parent and children
func submissionResponse(kind contracts.OrderKind, sub contracts.Submission) map[string]interface{} {
	resp := map[string]interface{}{
		"status": "success",
		"orders": sub.Handles,
	}
	if len(sub.Handles) == 0 {
		return resp
	}

	parent := sub.Parent()
	children := sub.Children()
	if len(children) == 0 {
		resp["orderId"] = parent.OrderID
		return resp
	}

	childIDs := make([]int64, len(children))
	for i, c := range children {
		childIDs[i] = c.OrderID
	}
	resp["parentOrderId"] = parent.OrderID
	resp["childOrderIds"] = childIDs

	switch kind {
	case contracts.KindTrailing:
		resp["trailOrderId"] = children[0].OrderID
	case contracts.KindBracket:
		resp["stopLossOrderId"] = children[0].OrderID
		if len(children) > 1 {
			resp["takeProfitOrderId"] = children[1].OrderID
		}
	}
	return resp
}

// ATMOption resolves the at-the-money option of a symbol
// GET /atm_option?symbol=NVDA&right=C&expiry=20250117
func (h *BridgeHandler) ATMOption(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	right := contracts.RightCall
	if raw := q.Get("right"); raw != "" {
		parsed, err := contracts.ParseRight(raw)
		if err != nil {
			respondError(w, err)
			return
		}
		right = parsed
	}

	quote, err := h.bridge.ResolveATM(r.Context(), q.Get("symbol"), right, q.Get("expiry"))
	if err != nil {
		h.logger.WithField("symbol", q.Get("symbol")).WithError(err).Warn("ATM lookup failed")
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, quote)
}

// NetLiquidation returns the account's net liquidation value, null when the broker reports none
// GET /net_liquidation
func (h *BridgeHandler) NetLiquidation(w http.ResponseWriter, r *http.Request) {
	value, err := h.bridge.NetLiquidation(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "success",
		"net_liquidation": jsonNumber(value),
	})
}

// Orders returns the broker's order board
// GET /orders
func (h *BridgeHandler) Orders(w http.ResponseWriter, r *http.Request) {
	trades, err := h.bridge.Orders(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"orders": trades,
		"count":  len(trades),
	})
}
