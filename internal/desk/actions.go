package desk

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"

	"github.com/wonny/ibbridge/internal/contracts"
)

type ordersMsg struct {
	trades    []contracts.Trade
	connected bool
	err       error
}

type priceMsg struct {
	symbol string
	quote  contracts.Quote
	err    error
}

type orderMsg struct {
	label string
	sub   contracts.Submission
	err   error
}

type atmMsg struct {
	quote contracts.AtmQuote
	err   error
}

type netLiqMsg struct {
	value decimal.NullDecimal
	err   error
}

// run executes fn off the UI loop with the desk's call timeout
func (m Model) run(fn func(ctx context.Context) tea.Msg) tea.Cmd {
	timeout := m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return fn(ctx)
	}
}

func (m Model) refreshOrders() tea.Cmd {
	bridge := m.bridge
	return m.run(func(ctx context.Context) tea.Msg {
		if !bridge.IsConnected() {
			return ordersMsg{connected: false, err: contracts.NotConnected("orders")}
		}
		trades, err := bridge.Orders(ctx)
		return ordersMsg{trades: trades, connected: true, err: err}
	})
}

func (m Model) price() (tea.Model, tea.Cmd) {
	req, err := m.instrument()
	if err != nil {
		return m.fail("Price", err), nil
	}

	bridge := m.bridge
	return m, m.run(func(ctx context.Context) tea.Msg {
		q, err := bridge.Price(ctx, req)
		return priceMsg{symbol: req.Symbol, quote: q, err: err}
	})
}

// placeLimit sends a limit-priced order built from the form; Trail also reads the trailing field
func (m Model) placeLimit(action contracts.Action, kind contracts.OrderKind, label string) (tea.Model, tea.Cmd) {
	req, err := m.instrument()
	if err != nil {
		return m.fail(label, err), nil
	}

	intent, err := m.intent(action, kind)
	if err != nil {
		return m.fail(label, err), nil
	}

	m.status = fmt.Sprintf("%s %s x%d sent", label, req.Symbol, intent.Quantity)
	m.statusErr = false

	bridge := m.bridge
	return m, m.run(func(ctx context.Context) tea.Msg {
		sub, err := bridge.PlaceOrder(ctx, req, intent)
		return orderMsg{label: label, sub: sub, err: err}
	})
}

func (m Model) atm() (tea.Model, tea.Cmd) {
	symbol := m.symbol()
	if symbol == "" {
		return m.fail("ATM", contracts.Validationf("ticker is empty")), nil
	}

	right, expiry := m.right, strings.TrimSpace(m.inputs[fieldExpiry].Value())
	bridge := m.bridge
	return m, m.run(func(ctx context.Context) tea.Msg {
		q, err := bridge.ResolveATM(ctx, symbol, right, expiry)
		return atmMsg{quote: q, err: err}
	})
}

func (m Model) symbol() string {
	return strings.ToUpper(strings.TrimSpace(m.inputs[fieldTicker].Value()))
}

func (m Model) instrument() (contracts.InstrumentRequest, error) {
	symbol := m.symbol()
	if symbol == "" {
		return contracts.InstrumentRequest{}, contracts.Validationf("ticker is empty")
	}

	req := contracts.InstrumentRequest{Symbol: symbol}
	if !m.option {
		return req, nil
	}

	strike, err := m.decimalField(fieldStrike)
	if err != nil {
		return contracts.InstrumentRequest{}, err
	}
	req.IsOption = true
	req.Expiry = strings.TrimSpace(m.inputs[fieldExpiry].Value())
	req.Strike = strike
	req.Right = m.right
	return req, nil
}

func (m Model) intent(action contracts.Action, kind contracts.OrderKind) (contracts.OrderIntent, error) {
	qty, err := strconv.Atoi(strings.TrimSpace(m.inputs[fieldQty].Value()))
	if err != nil {
		return contracts.OrderIntent{}, contracts.Validationf("qty must be a whole number")
	}

	limit, err := m.decimalField(fieldLimit)
	if err != nil {
		return contracts.OrderIntent{}, err
	}

	intent := contracts.OrderIntent{
		Action:     action,
		Quantity:   qty,
		Kind:       kind,
		LimitPrice: limit,
		TIF:        contracts.TimeInForceDay,
	}
	if kind == contracts.KindTrailing {
		if intent.TrailAmount, err = m.decimalField(fieldTrailing); err != nil {
			return contracts.OrderIntent{}, err
		}
	}
	return intent, nil
}

func (m Model) decimalField(field int) (decimal.NullDecimal, error) {
	raw := strings.TrimSpace(m.inputs[field].Value())
	if raw == "" {
		return decimal.NullDecimal{}, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.NullDecimal{}, contracts.Validationf("%s must be a number, got %q", strings.ToLower(fieldLabels[field]), raw)
	}
	return decimal.NewNullDecimal(v), nil
}
