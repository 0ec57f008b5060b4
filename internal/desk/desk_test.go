package desk

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/ibbridge/internal/contracts"
	"github.com/wonny/ibbridge/pkg/config"
	"github.com/wonny/ibbridge/pkg/logger"
)

type fakeBridge struct {
	mu        sync.Mutex
	connected bool
	err       error

	priced  []contracts.InstrumentRequest
	placed  []contracts.OrderIntent
	reqs    []contracts.InstrumentRequest
	atmArgs []string
	trades  []contracts.Trade
}

func (f *fakeBridge) IsConnected() bool { return f.connected }

func (f *fakeBridge) Price(ctx context.Context, req contracts.InstrumentRequest) (contracts.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.priced = append(f.priced, req)
	if f.err != nil {
		return contracts.Quote{}, f.err
	}
	return contracts.Quote{Last: decimal.NewNullDecimal(decimal.RequireFromString("487.30"))}, nil
}

func (f *fakeBridge) PlaceOrder(ctx context.Context, req contracts.InstrumentRequest, intent contracts.OrderIntent) (contracts.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	f.placed = append(f.placed, intent)
	if f.err != nil {
		return contracts.Submission{}, f.err
	}
	sub := contracts.Submission{Handles: []contracts.OrderHandle{{OrderID: 1}}}
	if intent.Kind == contracts.KindBracket {
		sub.Handles = append(sub.Handles, contracts.OrderHandle{OrderID: 2}, contracts.OrderHandle{OrderID: 3})
	}
	return sub, nil
}

func (f *fakeBridge) ResolveATM(ctx context.Context, symbol string, right contracts.Right, expiry string) (contracts.AtmQuote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.atmArgs = append(f.atmArgs, symbol, string(right), expiry)
	if f.err != nil {
		return contracts.AtmQuote{}, f.err
	}
	return contracts.AtmQuote{
		Symbol:          symbol,
		Expiry:          "20250117",
		Right:           right,
		Strike:          decimal.RequireFromString("485"),
		UnderlyingPrice: decimal.RequireFromString("487.3"),
		TradingClass:    symbol,
	}, nil
}

func (f *fakeBridge) NetLiquidation(ctx context.Context) (decimal.NullDecimal, error) {
	if f.err != nil {
		return decimal.NullDecimal{}, f.err
	}
	return decimal.NewNullDecimal(decimal.RequireFromString("125000.50")), nil
}

func (f *fakeBridge) Orders(ctx context.Context) ([]contracts.Trade, error) {
	return f.trades, f.err
}

func newModel(bridge *fakeBridge) Model {
	return New(bridge, config.DeskConfig{
		QuickSymbols: []string{"NVDA", "nvdl", "TSLA"},
		Refresh:      time.Second,
	}, logger.Nop())
}

// press feeds a key to the model and returns the updated model and command
func press(t *testing.T, m Model, key tea.KeyMsg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(key)
	out, ok := next.(Model)
	require.True(t, ok)
	return out, cmd
}

// deliver runs cmd and feeds its message back into the model
func deliver(t *testing.T, m Model, cmd tea.Cmd) (Model, tea.Cmd) {
	t.Helper()
	require.NotNil(t, cmd)
	next, out := m.Update(cmd())
	model, ok := next.(Model)
	require.True(t, ok)
	return model, out
}

func TestQuickSymbols(t *testing.T) {
	m := newModel(&fakeBridge{connected: true})

	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyF2})
	assert.Nil(t, cmd)
	assert.Equal(t, "NVDL", m.symbol())

	// unassigned slot leaves the ticker alone
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyF9})
	assert.Equal(t, "NVDL", m.symbol())
}

func TestFocusCycles(t *testing.T) {
	m := newModel(&fakeBridge{})
	assert.Equal(t, fieldTicker, m.focus)

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyShiftTab})
	assert.Equal(t, fieldExpiry, m.focus)

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, fieldTicker, m.focus)
	assert.True(t, m.inputs[fieldTicker].Focused())
}

func TestTypingEditsFocusedField(t *testing.T) {
	m := newModel(&fakeBridge{})

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("tsla")})
	assert.Equal(t, "TSLA", m.symbol())
	assert.Equal(t, "1", m.inputs[fieldQty].Value())
}

func TestBuyPlacesLimitOrder(t *testing.T) {
	bridge := &fakeBridge{connected: true}
	m := newModel(bridge)
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyF1})

	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyCtrlB})
	assert.Contains(t, m.status, "Buy NVDA x1 sent")

	m, refresh := deliver(t, m, cmd)
	assert.False(t, m.statusErr)
	assert.Equal(t, "Buy placed: 1", m.status)
	assert.NotNil(t, refresh)

	require.Len(t, bridge.placed, 1)
	intent := bridge.placed[0]
	assert.Equal(t, contracts.ActionBuy, intent.Action)
	assert.Equal(t, contracts.KindLimit, intent.Kind)
	assert.Equal(t, 1, intent.Quantity)
	assert.True(t, intent.LimitPrice.Decimal.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, contracts.TimeInForceDay, intent.TIF)
	assert.False(t, bridge.reqs[0].IsOption)
}

func TestOrderActions(t *testing.T) {
	tests := []struct {
		name   string
		key    tea.KeyType
		action contracts.Action
		kind   contracts.OrderKind
		status string
	}{
		{"sell", tea.KeyCtrlX, contracts.ActionSell, contracts.KindLimit, "Sell placed: 1"},
		{"bracket", tea.KeyCtrlK, contracts.ActionBuy, contracts.KindBracket, "Buy+Bracket placed: 1, 2, 3"},
		{"trailing", tea.KeyCtrlT, contracts.ActionBuy, contracts.KindTrailing, "Buy+Trailing placed: 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bridge := &fakeBridge{connected: true}
			m := newModel(bridge)
			m.inputs[fieldTicker].SetValue("tsla")

			m, cmd := press(t, m, tea.KeyMsg{Type: tt.key})
			m, _ = deliver(t, m, cmd)

			require.Len(t, bridge.placed, 1)
			assert.Equal(t, tt.action, bridge.placed[0].Action)
			assert.Equal(t, tt.kind, bridge.placed[0].Kind)
			assert.Equal(t, tt.status, m.status)
		})
	}
}

func TestTrailingReadsTrailField(t *testing.T) {
	bridge := &fakeBridge{connected: true}
	m := newModel(bridge)
	m.inputs[fieldTicker].SetValue("NVDA")
	m.inputs[fieldTrailing].SetValue("2.5")

	_, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyCtrlT})
	cmd()

	require.Len(t, bridge.placed, 1)
	assert.True(t, bridge.placed[0].TrailAmount.Decimal.Equal(decimal.RequireFromString("2.5")))
}

func TestOptionOrderUsesToggles(t *testing.T) {
	bridge := &fakeBridge{connected: true}
	m := newModel(bridge)
	m.inputs[fieldTicker].SetValue("SPX")

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlO})
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlR})
	assert.True(t, m.option)
	assert.Equal(t, contracts.RightPut, m.right)

	_, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyCtrlB})
	cmd()

	require.Len(t, bridge.reqs, 1)
	req := bridge.reqs[0]
	assert.True(t, req.IsOption)
	assert.Equal(t, contracts.RightPut, req.Right)
	assert.Equal(t, "20251219", req.Expiry)
	assert.True(t, req.Strike.Decimal.Equal(decimal.NewFromInt(100)))
}

func TestFormErrorsSkipBridge(t *testing.T) {
	tests := []struct {
		name  string
		setup func(m Model)
		want  string
	}{
		{"empty ticker", func(m Model) {}, "ticker is empty"},
		{"bad qty", func(m Model) {
			m.inputs[fieldTicker].SetValue("NVDA")
			m.inputs[fieldQty].SetValue("1.5")
		}, "qty must be a whole number"},
		{"bad limit", func(m Model) {
			m.inputs[fieldTicker].SetValue("NVDA")
			m.inputs[fieldLimit].SetValue("abc")
		}, `limit must be a number, got "abc"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bridge := &fakeBridge{connected: true}
			m := newModel(bridge)
			tt.setup(m)

			m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyCtrlB})
			assert.Nil(t, cmd)
			assert.True(t, m.statusErr)
			assert.Contains(t, m.status, tt.want)
			assert.Empty(t, bridge.placed)
		})
	}
}

func TestBridgeErrorIsShown(t *testing.T) {
	bridge := &fakeBridge{err: contracts.NotConnected("place order")}
	m := newModel(bridge)
	m.inputs[fieldTicker].SetValue("NVDA")

	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyCtrlB})
	m, refresh := deliver(t, m, cmd)

	assert.Nil(t, refresh)
	assert.True(t, m.statusErr)
	assert.Equal(t, "Buy: broker session not connected", m.status)
}

func TestPrice(t *testing.T) {
	bridge := &fakeBridge{connected: true}
	m := newModel(bridge)
	m.inputs[fieldTicker].SetValue("spx")

	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyCtrlP})
	m, _ = deliver(t, m, cmd)

	require.Len(t, bridge.priced, 1)
	assert.Equal(t, "SPX", bridge.priced[0].Symbol)
	assert.Equal(t, "Price SPX: 487.3", m.status)
	assert.Contains(t, m.info[0], "SPX last 487.3")
}

func TestATMFillsStrikeAndExpiry(t *testing.T) {
	bridge := &fakeBridge{connected: true}
	m := newModel(bridge)
	m.inputs[fieldTicker].SetValue("NVDA")
	m.inputs[fieldExpiry].SetValue("")

	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyCtrlA})
	m, _ = deliver(t, m, cmd)

	assert.Equal(t, []string{"NVDA", "C", ""}, bridge.atmArgs)
	assert.Equal(t, "485", m.inputs[fieldStrike].Value())
	assert.Equal(t, "20250117", m.inputs[fieldExpiry].Value())
	assert.Contains(t, m.info, "TradingClass: NVDA")
	assert.Contains(t, m.info, "Bid: n/a  Ask: n/a  Mid: n/a")
}

func TestATMError(t *testing.T) {
	bridge := &fakeBridge{connected: true, err: contracts.MarketDataf("option quote unavailable")}
	m := newModel(bridge)
	m.inputs[fieldTicker].SetValue("NVDA")

	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyCtrlA})
	m, _ = deliver(t, m, cmd)

	assert.True(t, m.statusErr)
	assert.Equal(t, "ATM: option quote unavailable", m.status)
	assert.Equal(t, "100", m.inputs[fieldStrike].Value())
}

func TestNetLiquidation(t *testing.T) {
	m := newModel(&fakeBridge{connected: true})

	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyCtrlN})
	m, _ = deliver(t, m, cmd)
	assert.Equal(t, "Net liquidation: 125000.5", m.status)
}

func TestOrderBoardRefresh(t *testing.T) {
	bridge := &fakeBridge{
		connected: true,
		trades: []contracts.Trade{{
			OrderID:      "1001",
			Symbol:       "NVDA",
			Action:       contracts.ActionBuy,
			OrderType:    "LMT",
			Status:       "Submitted",
			Quantity:     decimal.NewFromInt(5),
			Filled:       decimal.NewFromInt(2),
			Remaining:    decimal.NewFromInt(3),
			AvgFillPrice: decimal.RequireFromString("487.3"),
		}},
	}
	m := newModel(bridge)

	m, _ = deliver(t, m, m.refreshOrders())
	assert.True(t, m.connected)
	rows := m.orders.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "1001", rows[0][0])
	assert.Equal(t, "487.30", rows[0][7])

	// a failed refresh keeps the last board
	bridge.connected = false
	m, _ = deliver(t, m, m.refreshOrders())
	assert.False(t, m.connected)
	assert.Len(t, m.orders.Rows(), 1)
}

func TestTickSchedulesRefresh(t *testing.T) {
	m := newModel(&fakeBridge{})

	_, cmd := m.Update(tickMsg(time.Now()))
	assert.NotNil(t, cmd)
}

func TestQuit(t *testing.T) {
	m := newModel(&fakeBridge{})

	_, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}

func TestView(t *testing.T) {
	m := newModel(&fakeBridge{})
	m.status = "ready"

	view := m.View()
	assert.Contains(t, view, "ibbridge desk")
	assert.Contains(t, view, "F2 NVDL")
	assert.Contains(t, view, "disconnected")
	assert.Contains(t, view, "ready")
}

func TestBridgeErrorsUseMessage(t *testing.T) {
	m := newModel(&fakeBridge{})
	m = m.fail("Orders", errors.New("socket closed"))
	assert.Equal(t, "Orders: socket closed", m.status)
}
