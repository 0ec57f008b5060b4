package desk

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/wonny/ibbridge/internal/contracts"
	"github.com/wonny/ibbridge/pkg/config"
	"github.com/wonny/ibbridge/pkg/logger"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("36"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(9)

	focusedLabelStyle = labelStyle.
				Foreground(lipgloss.Color("39")).
				Bold(true)

	toggleOnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	toggleOffStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("230")).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46"))
)

// Bridge is what the desk needs from the order bridge
type Bridge interface {
	IsConnected() bool
	Price(ctx context.Context, req contracts.InstrumentRequest) (contracts.Quote, error)
	PlaceOrder(ctx context.Context, req contracts.InstrumentRequest, intent contracts.OrderIntent) (contracts.Submission, error)
	ResolveATM(ctx context.Context, symbol string, right contracts.Right, expiry string) (contracts.AtmQuote, error)
	NetLiquidation(ctx context.Context) (decimal.NullDecimal, error)
	Orders(ctx context.Context) ([]contracts.Trade, error)
}

const (
	fieldTicker = iota
	fieldQty
	fieldLimit
	fieldTrailing
	fieldStrike
	fieldExpiry
	fieldCount
)

var fieldLabels = [fieldCount]string{"Ticker", "Qty", "Limit", "Trailing", "Strike", "Expiry"}

var fieldDefaults = [fieldCount]string{"", "1", "100", "3", "100", "20251219"}

// DefaultTimeout bounds every bridge call made from the desk
const DefaultTimeout = 30 * time.Second

// Model is the Bubble Tea model of the trading desk
type Model struct {
	bridge  Bridge
	logger  *logger.Logger
	quick   []string
	refresh time.Duration
	timeout time.Duration

	inputs []textinput.Model
	focus  int
	option bool
	right  contracts.Right

	orders    table.Model
	trades    []contracts.Trade
	connected bool

	info      []string
	status    string
	statusErr bool
	width     int
}

// New builds the desk model around bridge
func New(bridge Bridge, cfg config.DeskConfig, log *logger.Logger) Model {
	inputs := make([]textinput.Model, fieldCount)
	for i := range inputs {
		in := textinput.New()
		in.Prompt = ""
		in.CharLimit = 16
		in.Width = 12
		in.SetValue(fieldDefaults[i])
		inputs[i] = in
	}
	inputs[fieldTicker].Placeholder = "symbol"
	inputs[fieldTicker].Focus()

	refresh := cfg.Refresh
	if refresh <= 0 {
		refresh = 2 * time.Second
	}

	quick := cfg.QuickSymbols
	if len(quick) > 12 {
		quick = quick[:12]
	}

	orders := table.New(
		table.WithColumns([]table.Column{
			{Title: "ID", Width: 10},
			{Title: "Symbol", Width: 10},
			{Title: "Side", Width: 5},
			{Title: "Type", Width: 6},
			{Title: "Status", Width: 10},
			{Title: "Filled", Width: 7},
			{Title: "Remaining", Width: 9},
			{Title: "AvgPrice", Width: 9},
		}),
		table.WithHeight(8),
	)

	return Model{
		bridge:  bridge,
		logger:  log.Component("desk"),
		quick:   quick,
		refresh: refresh,
		timeout: DefaultTimeout,
		inputs:  inputs,
		right:   contracts.RightCall,
		orders:  orders,
		info:    []string{},
	}
}

// Run starts the desk on the terminal and blocks until it quits
func Run(m Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

type tickMsg time.Time

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.refreshOrders(), tickCmd(m.refresh))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.refreshOrders(), tickCmd(m.refresh))

	case ordersMsg:
		m.connected = msg.connected
		if msg.err != nil {
			// the board keeps its last rows until the next refresh
			m.logger.WithError(msg.err).Debug("Order board refresh failed")
			return m, nil
		}
		m.trades = msg.trades
		m.orders.SetRows(tradeRows(msg.trades))
		return m, nil

	case priceMsg:
		if msg.err != nil {
			return m.fail("Price "+msg.symbol, msg.err), nil
		}
		m.info = quoteLines(msg.symbol, msg.quote)
		return m.succeed(fmt.Sprintf("Price %s: %s", msg.symbol, nullString(msg.quote.MarketPrice()))), nil

	case orderMsg:
		if msg.err != nil {
			return m.fail(msg.label, msg.err), nil
		}
		m.logger.WithFields(map[string]interface{}{
			"label":  msg.label,
			"orders": len(msg.sub.Handles),
		}).Info("Order placed from desk")
		return m.succeed(fmt.Sprintf("%s placed: %s", msg.label, orderIDs(msg.sub))), m.refreshOrders()

	case atmMsg:
		if msg.err != nil {
			return m.fail("ATM", msg.err), nil
		}
		q := msg.quote
		m.inputs[fieldStrike].SetValue(q.Strike.String())
		m.inputs[fieldExpiry].SetValue(q.Expiry)
		m.info = atmLines(q)
		return m.succeed(fmt.Sprintf("ATM %s %s %s %s", q.Symbol, q.Expiry, q.Right, q.Strike.String())), nil

	case netLiqMsg:
		if msg.err != nil {
			return m.fail("Net liquidation", msg.err), nil
		}
		m.info = []string{"NetLiquidation: " + nullString(msg.value)}
		return m.succeed("Net liquidation: " + nullString(msg.value)), nil
	}

	return m.updateFocused(msg)
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if i, ok := quickIndex(msg); ok {
		if i < len(m.quick) {
			m.inputs[fieldTicker].SetValue(strings.ToUpper(m.quick[i]))
		}
		return m, nil
	}

	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit
	case "tab", "down", "enter":
		return m.setFocus(m.focus + 1), nil
	case "shift+tab", "up":
		return m.setFocus(m.focus - 1), nil
	case "ctrl+o":
		m.option = !m.option
		return m, nil
	case "ctrl+r":
		if m.right == contracts.RightCall {
			m.right = contracts.RightPut
		} else {
			m.right = contracts.RightCall
		}
		return m, nil
	case "ctrl+p":
		return m.price()
	case "ctrl+b":
		return m.placeLimit(contracts.ActionBuy, contracts.KindLimit, "Buy")
	case "ctrl+x":
		return m.placeLimit(contracts.ActionSell, contracts.KindLimit, "Sell")
	case "ctrl+k":
		return m.placeLimit(contracts.ActionBuy, contracts.KindBracket, "Buy+Bracket")
	case "ctrl+t":
		return m.placeLimit(contracts.ActionBuy, contracts.KindTrailing, "Buy+Trailing")
	case "ctrl+a":
		return m.atm()
	case "ctrl+n":
		return m, m.run(func(ctx context.Context) tea.Msg {
			value, err := m.bridge.NetLiquidation(ctx)
			return netLiqMsg{value: value, err: err}
		})
	}

	return m.updateFocused(msg)
}

// quickIndex maps F1..F12 to a quick-symbol slot
func quickIndex(msg tea.KeyMsg) (int, bool) {
	key := msg.String()
	if msg.Type == tea.KeyRunes || !strings.HasPrefix(key, "f") {
		return 0, false
	}
	n, err := strconv.Atoi(key[1:])
	if err != nil || n < 1 || n > 12 {
		return 0, false
	}
	return n - 1, true
}

func (m Model) setFocus(i int) Model {
	i = (i%fieldCount + fieldCount) % fieldCount
	m.inputs[m.focus].Blur()
	m.focus = i
	m.inputs[m.focus].Focus()
	return m
}

func (m Model) updateFocused(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m Model) succeed(status string) Model {
	m.status = status
	m.statusErr = false
	return m
}

func (m Model) fail(label string, err error) Model {
	m.logger.WithError(err).Warnf("%s failed", label)
	m.status = fmt.Sprintf("%s: %s", label, contracts.Message(err))
	m.statusErr = true
	return m
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("ibbridge desk"))
	b.WriteString("  ")
	b.WriteString(m.renderQuick())
	b.WriteString("\n\n")

	form := lipgloss.JoinVertical(lipgloss.Left, m.renderFields(), "", m.renderToggles())
	info := panelStyle.Width(40).Render(strings.Join(append([]string{"Info"}, m.info...), "\n"))
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, panelStyle.Render(form), " ", info))
	b.WriteString("\n")

	b.WriteString(panelStyle.Render("Orders\n" + m.orders.View()))
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("tab move  F1-F12 symbols  ^P price  ^B buy  ^X sell  ^K bracket  ^T trailing  ^A atm  ^N net liq  ^O option  ^R call/put  esc quit"))

	return b.String()
}

func (m Model) renderQuick() string {
	parts := make([]string, len(m.quick))
	for i, sym := range m.quick {
		parts[i] = fmt.Sprintf("F%d %s", i+1, strings.ToUpper(sym))
	}
	return helpStyle.Render(strings.Join(parts, "  "))
}

func (m Model) renderFields() string {
	rows := make([]string, fieldCount)
	for i := range m.inputs {
		style := labelStyle
		if i == m.focus {
			style = focusedLabelStyle
		}
		rows[i] = style.Render(fieldLabels[i]) + m.inputs[i].View()
	}
	return strings.Join(rows, "\n")
}

func (m Model) renderToggles() string {
	option := toggleOffStyle.Render("[ ] Option")
	if m.option {
		option = toggleOnStyle.Render("[x] Option")
	}

	call, put := toggleOffStyle.Render("Call"), toggleOffStyle.Render("Put")
	if m.right == contracts.RightCall {
		call = toggleOnStyle.Render("Call")
	} else {
		put = toggleOnStyle.Render("Put")
	}
	return option + "   " + call + " / " + put
}

func (m Model) renderStatusBar() string {
	conn := errorStyle.Render("● disconnected")
	if m.connected {
		conn = successStyle.Render("● connected")
	}

	status := m.status
	if status != "" {
		if m.statusErr {
			status = errorStyle.Render(status)
		} else {
			status = successStyle.Render(status)
		}
	}

	bar := statusBarStyle
	if m.width > 0 {
		bar = bar.Width(m.width)
	}
	return bar.Render(conn + "  " + status)
}

func tradeRows(trades []contracts.Trade) []table.Row {
	rows := make([]table.Row, len(trades))
	for i, t := range trades {
		rows[i] = table.Row{
			t.OrderID,
			t.Symbol,
			string(t.Action),
			t.OrderType,
			t.Status,
			t.Filled.String(),
			t.Remaining.String(),
			t.AvgFillPrice.StringFixed(2),
		}
	}
	return rows
}

func quoteLines(symbol string, q contracts.Quote) []string {
	return []string{
		fmt.Sprintf("%s last %s", symbol, nullString(q.Last)),
		fmt.Sprintf("Bid: %s  Ask: %s", nullString(q.Bid), nullString(q.Ask)),
		fmt.Sprintf("Close: %s", nullString(q.Close)),
	}
}

func atmLines(q contracts.AtmQuote) []string {
	return []string{
		fmt.Sprintf("ATM %s %s %s %s", q.Symbol, q.Expiry, q.Right, q.Strike.String()),
		fmt.Sprintf("Underlying: %s", q.UnderlyingPrice.StringFixed(2)),
		fmt.Sprintf("Bid: %s  Ask: %s  Mid: %s", nullString(q.Bid), nullString(q.Ask), nullString(q.Mid)),
		fmt.Sprintf("TradingClass: %s", q.TradingClass),
	}
}

func orderIDs(sub contracts.Submission) string {
	ids := make([]string, len(sub.Handles))
	for i, h := range sub.Handles {
		ids[i] = strconv.FormatInt(h.OrderID, 10)
	}
	return strings.Join(ids, ", ")
}

func nullString(v decimal.NullDecimal) string {
	if !v.Valid {
		return "n/a"
	}
	return v.Decimal.String()
}
