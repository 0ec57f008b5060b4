package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/wonny/ibbridge/internal/contracts"
	"github.com/wonny/ibbridge/pkg/httputil"
)

// maxReplies bounds the confirmation round-trips of one order group
const maxReplies = 5

type heldLeg struct {
	contract contracts.QualifiedContract
	order    contracts.OrderRequest
}

// PlaceOrder dispatches one leg. Legs with Transmit=false are held until the
// transmitting leg of the same group arrives; the whole group is then posted
// in one request, children linked to the parent through cOID/parentId.
func (c *Client) PlaceOrder(ctx context.Context, qc contracts.QualifiedContract, order contracts.OrderRequest) (contracts.OrderHandle, error) {
	if !order.Transmit {
		if order.ParentID == 0 {
			c.dropHeld()
		}
		c.held = append(c.held, heldLeg{contract: qc, order: order})
		return handleFor(qc, order, "", contracts.StatusPending), nil
	}

	group := append(c.groupOf(order), heldLeg{contract: qc, order: order})
	c.held = nil

	tickets := make([]OrderTicket, 0, len(group))
	for _, leg := range group {
		tickets = append(tickets, c.ticket(leg))
	}

	replies, err := c.submit(ctx, tickets)
	if err != nil {
		return contracts.OrderHandle{}, err
	}

	// replies come back in ticket order
	var last contracts.OrderHandle
	for i, leg := range group {
		brokerID, status := "", contracts.StatusSubmitted
		if i < len(replies) {
			brokerID = replies[i].OrderID
			status = mapStatus(replies[i].OrderStatus)
		}
		h := handleFor(leg.contract, leg.order, brokerID, status)
		c.acks[leg.order.ID] = h
		last = h
	}

	c.logger.WithFields(map[string]interface{}{
		"symbol":   qc.Contract.Symbol,
		"legs":     len(group),
		"order_id": last.BrokerOrderID,
	}).Info("Order group transmitted")

	return last, nil
}

// groupOf returns the held legs belonging to the group of order
func (c *Client) groupOf(order contracts.OrderRequest) []heldLeg {
	if order.ParentID == 0 {
		c.dropHeld()
		return nil
	}
	group := make([]heldLeg, 0, len(c.held))
	for _, leg := range c.held {
		if leg.order.ID == order.ParentID || leg.order.ParentID == order.ParentID {
			group = append(group, leg)
		}
	}
	if len(group) != len(c.held) {
		c.logger.WithField("held", len(c.held)-len(group)).Warn("Discarding legs of an abandoned order group")
	}
	return group
}

func (c *Client) dropHeld() {
	if len(c.held) > 0 {
		c.logger.WithField("held", len(c.held)).Warn("Discarding legs of an abandoned order group")
	}
	c.held = nil
}

// Acknowledged returns the final handle of a leg transmitted as part of a group
func (c *Client) Acknowledged(orderID int64) (contracts.OrderHandle, bool) {
	h, ok := c.acks[orderID]
	if ok {
		delete(c.acks, orderID)
	}
	return h, ok
}

func (c *Client) ticket(leg heldLeg) OrderTicket {
	o := leg.order
	t := OrderTicket{
		AcctID:    c.account,
		Conid:     leg.contract.ConID,
		COID:      c.clientOrderID(o.ID),
		OrderType: string(o.OrderType),
		Side:      string(o.Action),
		Quantity:  o.Quantity,
		TIF:       o.TIF,
	}
	if o.ParentID != 0 {
		t.ParentID = c.clientOrderID(o.ParentID)
	}

	switch o.OrderType {
	case contracts.OrderTypeLimit:
		t.Price = floatPtr(o.LimitPrice)
	case contracts.OrderTypeStop:
		// the gateway takes the stop trigger as price
		t.Price = floatPtr(o.AuxPrice)
	case contracts.OrderTypeTrailing:
		t.TrailingAmt = floatPtr(o.AuxPrice)
		t.TrailingType = "amt"
	}
	return t
}

func (c *Client) clientOrderID(id int64) string {
	return fmt.Sprintf("%s-%d", c.nonce, id)
}

// submit posts tickets and answers confirmation prompts until the gateway acknowledges
func (c *Client) submit(ctx context.Context, tickets []OrderTicket) ([]OrderReply, error) {
	var raw json.RawMessage
	err := c.httpClient.PostJSON(ctx, c.url(fmt.Sprintf("/iserver/account/%s/orders", c.account)), OrderRequestBody{Orders: tickets}, &raw)
	if err != nil {
		return nil, rejection(err)
	}
	replies, err := decodeReplies(raw)
	if err != nil {
		return nil, err
	}

	for i := 0; i < maxReplies; i++ {
		if len(replies) == 0 {
			return nil, contracts.Rejection("place order", errors.New("empty gateway response"))
		}
		if msg := replies[0].Error; msg != "" {
			return nil, contracts.Rejection("place order", errors.New(msg))
		}
		if replies[0].OrderID != "" {
			return replies, nil
		}

		prompt := replies[0]
		text := strings.Join(prompt.Message, " ")
		if !c.cfg.AutoConfirm {
			return nil, contracts.Rejection("place order", fmt.Errorf("confirmation required: %s", text))
		}

		c.logger.WithFields(map[string]interface{}{
			"reply_id": prompt.ID,
			"message":  text,
		}).Warn("Confirming order prompt")

		raw = nil
		body := map[string]bool{"confirmed": true}
		if err := c.httpClient.PostJSON(ctx, c.url("/iserver/reply/"+prompt.ID), body, &raw); err != nil {
			return nil, rejection(err)
		}
		if replies, err = decodeReplies(raw); err != nil {
			return nil, err
		}
	}

	return nil, contracts.Rejection("place order", fmt.Errorf("gateway kept asking for confirmation after %d replies", maxReplies))
}

// decodeReplies reads an order response, which is a list of replies or a single {error} object
func decodeReplies(raw json.RawMessage) ([]OrderReply, error) {
	body := strings.TrimSpace(string(raw))
	if strings.HasPrefix(body, "{") {
		var e errorBody
		if err := decodeJSON(body, &e); err != nil || e.Error == "" {
			return nil, contracts.Rejection("place order", fmt.Errorf("unexpected gateway response: %s", body))
		}
		return nil, contracts.Rejection("place order", errors.New(e.Error))
	}

	var replies []OrderReply
	if body == "" {
		return replies, nil
	}
	if err := decodeJSON(body, &replies); err != nil {
		return nil, contracts.Rejection("place order", fmt.Errorf("decode order reply: %w", err))
	}
	return replies, nil
}

// rejection turns a gateway HTTP failure into a broker rejection carrying its error text
func rejection(err error) error {
	var statusErr *httputil.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode != http.StatusUnauthorized {
		if msg := gatewayErrorText(statusErr.Body); msg != "" {
			return contracts.Rejection("place order", errors.New(msg))
		}
	}
	return contracts.Rejection("place order", err)
}

func gatewayErrorText(body string) string {
	var e errorBody
	if err := decodeJSON(body, &e); err != nil {
		return ""
	}
	return e.Error
}

// OpenTrades returns the live orders of the gateway session
func (c *Client) OpenTrades(ctx context.Context) ([]contracts.Trade, error) {
	var resp LiveOrdersResponse
	if err := c.httpClient.GetJSON(ctx, c.url("/iserver/account/orders"), &resp); err != nil {
		return nil, fmt.Errorf("live orders: %w", err)
	}

	trades := make([]contracts.Trade, 0, len(resp.Orders))
	for _, o := range resp.Orders {
		trades = append(trades, TradeFromLiveOrder(o))
	}
	return trades, nil
}

// TradeFromLiveOrder maps a live order row to a board entry
func TradeFromLiveOrder(o LiveOrder) contracts.Trade {
	return contracts.Trade{
		OrderID:      o.OrderID.String(),
		Symbol:       o.Ticker,
		Action:       contracts.Action(strings.ToUpper(o.Side)),
		OrderType:    o.OrderType,
		Status:       o.Status,
		Quantity:     number(o.TotalSize),
		Filled:       number(o.FilledQuantity),
		Remaining:    number(o.RemainingQuantity),
		AvgFillPrice: number(o.AvgPrice),
	}
}

func handleFor(qc contracts.QualifiedContract, o contracts.OrderRequest, brokerID string, status contracts.Status) contracts.OrderHandle {
	return contracts.OrderHandle{
		OrderID:       o.ID,
		BrokerOrderID: brokerID,
		ParentID:      o.ParentID,
		Symbol:        qc.Contract.Symbol,
		Action:        o.Action,
		OrderType:     o.OrderType,
		Quantity:      o.Quantity,
		LimitPrice:    o.LimitPrice,
		AuxPrice:      o.AuxPrice,
		Status:        status,
	}
}

func mapStatus(s string) contracts.Status {
	switch strings.ToLower(s) {
	case "filled":
		return contracts.StatusFilled
	case "cancelled", "canceled":
		return contracts.StatusCanceled
	case "inactive", "rejected":
		return contracts.StatusRejected
	case "pendingsubmit", "presubmitted":
		return contracts.StatusPending
	default:
		return contracts.StatusSubmitted
	}
}

func floatPtr(d decimal.NullDecimal) *float64 {
	if !d.Valid {
		return nil
	}
	f := d.Decimal.InexactFloat64()
	return &f
}

func number(n interface{ String() string }) decimal.Decimal {
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}
