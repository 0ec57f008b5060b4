package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/ibbridge/internal/contracts"
)

// Broker defines the broker session operations the loop goroutine drives
// SSOT: the broker integration interface is defined here only.
// Implementations are not required to be goroutine-safe; only the session loop calls them.
type Broker interface {
	// Connect opens the session and returns the first valid order request id
	Connect(ctx context.Context, host string, port, clientID int) (int64, error)

	// Qualify asks the broker for the canonical identifier of a contract
	Qualify(ctx context.Context, c contracts.Contract) (contracts.QualifiedContract, error)

	// Quote returns the current market data snapshot; fields may be absent
	Quote(ctx context.Context, c contracts.QualifiedContract) (contracts.Quote, error)

	// OptionChains returns the option parameter sets of an underlying
	OptionChains(ctx context.Context, underlying contracts.QualifiedContract) ([]contracts.OptionChain, error)

	// PlaceOrder dispatches one order leg
	PlaceOrder(ctx context.Context, c contracts.QualifiedContract, order contracts.OrderRequest) (contracts.OrderHandle, error)

	// ManagedAccounts lists the accounts of the session
	ManagedAccounts(ctx context.Context) ([]string, error)

	// AccountSummary returns the summary entries of an account
	AccountSummary(ctx context.Context, account string) ([]contracts.AccountValue, error)

	// OpenTrades returns the order board
	OpenTrades(ctx context.Context) ([]contracts.Trade, error)

	// Keepalive keeps the broker session from timing out
	Keepalive(ctx context.Context) error
}

// PlacedOrder records one PlaceOrder call on the MockBroker
type PlacedOrder struct {
	Contract contracts.QualifiedContract
	Order    contracts.OrderRequest
	At       time.Time
}

// MockBroker implements Broker in memory
// Used by tests and by the --sim mode of the CLI
type MockBroker struct {
	mu sync.Mutex

	ConnectErr   error
	PlaceErr     error
	KeepaliveErr error
	PanicOn    string // method name that panics, for loop-recovery tests
	FirstID    int64

	accounts  []string
	summary   map[string][]contracts.AccountValue
	trades    []contracts.Trade
	quotes    map[string][]contracts.Quote
	chains    map[string][]contracts.OptionChain
	unknown   map[string]bool
	placed    []PlacedOrder
	calls     map[string]int
	nextConID int64
}

// NewMockBroker creates an empty mock broker with one paper account
func NewMockBroker() *MockBroker {
	return &MockBroker{
		FirstID:   1,
		accounts:  []string{"DU0000001"},
		summary:   make(map[string][]contracts.AccountValue),
		quotes:    make(map[string][]contracts.Quote),
		chains:    make(map[string][]contracts.OptionChain),
		unknown:   make(map[string]bool),
		calls:     make(map[string]int),
		nextConID: 1000,
	}
}

// NewSimulatedBroker creates a mock broker seeded with a few quotes and chains
func NewSimulatedBroker(now time.Time) *MockBroker {
	b := NewMockBroker()
	seed := map[string]float64{"NVDA": 487.3, "NVDL": 61.2, "TSLA": 251.8, "TSLL": 14.6, "SPX": 5021.4}

	for sym, px := range seed {
		price := decimal.NewFromFloat(px)
		b.SetQuotes(sym, contracts.Quote{
			Last: decimal.NewNullDecimal(price),
			Bid:  decimal.NewNullDecimal(price.Sub(decimal.RequireFromString("0.05"))),
			Ask:  decimal.NewNullDecimal(price.Add(decimal.RequireFromString("0.05"))),
		})
		b.SetChains(sym, simulatedChain(sym, price, now))
	}

	b.SetSummary("DU0000001", contracts.AccountValue{
		Account: "DU0000001", Tag: contracts.TagNetLiquidation, Value: "1000000.00", Currency: "USD",
	})
	return b
}

// simulatedChain lists the next three Fridays and 21 strikes around price
func simulatedChain(symbol string, price decimal.Decimal, now time.Time) contracts.OptionChain {
	step := decimal.NewFromInt(5)
	if price.LessThan(decimal.NewFromInt(100)) {
		step = decimal.NewFromInt(1)
	}
	center := price.Div(step).Round(0).Mul(step)

	strikes := make([]decimal.Decimal, 0, 21)
	for i := -10; i <= 10; i++ {
		if s := center.Add(step.Mul(decimal.NewFromInt(int64(i)))); s.IsPositive() {
			strikes = append(strikes, s)
		}
	}

	day := now
	for day.Weekday() != time.Friday {
		day = day.AddDate(0, 0, 1)
	}
	expirations := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		expirations = append(expirations, day.AddDate(0, 0, 7*i).Format("20060102"))
	}

	return contracts.OptionChain{
		Exchange:     "SMART",
		TradingClass: symbol,
		Multiplier:   "100",
		Expirations:  expirations,
		Strikes:      strikes,
	}
}

// MockKey identifies a contract in the mock's quote table
func MockKey(c contracts.Contract) string {
	if c.SecType == contracts.SecTypeOption {
		return fmt.Sprintf("%s %s %s %s", c.Symbol, c.Expiry, c.Strike.String(), c.Right)
	}
	return c.Symbol
}

// SetQuotes sets the snapshots returned for key, one per call; the last one repeats
func (b *MockBroker) SetQuotes(key string, quotes ...contracts.Quote) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.quotes[key] = quotes
}

// SetChains sets the option chains of an underlying symbol
func (b *MockBroker) SetChains(symbol string, chains ...contracts.OptionChain) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chains[symbol] = chains
}

// SetUnknown makes Qualify fail for symbol
func (b *MockBroker) SetUnknown(symbol string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unknown[symbol] = true
}

// SetAccounts replaces the managed accounts
func (b *MockBroker) SetAccounts(accounts ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts = accounts
}

// SetSummary sets the summary entries of an account
func (b *MockBroker) SetSummary(account string, values ...contracts.AccountValue) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.summary[account] = values
}

// SetTrades sets the order board
func (b *MockBroker) SetTrades(trades ...contracts.Trade) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trades = trades
}

// Placed returns every order leg placed so far
func (b *MockBroker) Placed() []PlacedOrder {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]PlacedOrder, len(b.placed))
	copy(out, b.placed)
	return out
}

// Calls returns how many times method was called
func (b *MockBroker) Calls(method string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[method]
}

// TotalCalls returns the number of broker calls of any kind
func (b *MockBroker) TotalCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := 0
	for _, n := range b.calls {
		total += n
	}
	return total
}

func (b *MockBroker) record(method string) {
	b.calls[method]++
	if b.PanicOn == method {
		panic("mock broker: " + method)
	}
}

// Connect implements Broker
func (b *MockBroker) Connect(ctx context.Context, host string, port, clientID int) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("Connect")
	if b.ConnectErr != nil {
		return 0, b.ConnectErr
	}
	return b.FirstID, nil
}

// Qualify implements Broker
func (b *MockBroker) Qualify(ctx context.Context, c contracts.Contract) (contracts.QualifiedContract, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("Qualify")

	if b.unknown[c.Symbol] {
		return contracts.QualifiedContract{}, contracts.Resolutionf("no security definition for %s", c.Symbol)
	}

	b.nextConID++
	c.ConID = b.nextConID
	if c.TradingClass == "" {
		c.TradingClass = c.Symbol
	}
	return contracts.QualifiedContract{
		ConID:        c.ConID,
		Contract:     c,
		LocalSymbol:  c.Symbol,
		TradingClass: c.TradingClass,
	}, nil
}

// Quote implements Broker
func (b *MockBroker) Quote(ctx context.Context, c contracts.QualifiedContract) (contracts.Quote, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("Quote")

	key := MockKey(c.Contract)
	seq := b.quotes[key]
	if len(seq) == 0 {
		return contracts.Quote{}, nil
	}
	q := seq[0]
	if len(seq) > 1 {
		b.quotes[key] = seq[1:]
	}
	return q, nil
}

// OptionChains implements Broker
func (b *MockBroker) OptionChains(ctx context.Context, underlying contracts.QualifiedContract) ([]contracts.OptionChain, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("OptionChains")
	return b.chains[underlying.Contract.Symbol], nil
}

// PlaceOrder implements Broker
func (b *MockBroker) PlaceOrder(ctx context.Context, c contracts.QualifiedContract, order contracts.OrderRequest) (contracts.OrderHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("PlaceOrder")

	if b.PlaceErr != nil {
		return contracts.OrderHandle{}, b.PlaceErr
	}

	b.placed = append(b.placed, PlacedOrder{Contract: c, Order: order, At: time.Now()})

	status := contracts.StatusSubmitted
	if !order.Transmit {
		status = contracts.StatusPending
	}
	return contracts.OrderHandle{
		OrderID:       order.ID,
		BrokerOrderID: fmt.Sprintf("sim-%d", order.ID),
		ParentID:      order.ParentID,
		Symbol:        c.Contract.Symbol,
		Action:        order.Action,
		OrderType:     order.OrderType,
		Quantity:      order.Quantity,
		LimitPrice:    order.LimitPrice,
		AuxPrice:      order.AuxPrice,
		Status:        status,
	}, nil
}

// ManagedAccounts implements Broker
func (b *MockBroker) ManagedAccounts(ctx context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("ManagedAccounts")
	return append([]string(nil), b.accounts...), nil
}

// AccountSummary implements Broker
func (b *MockBroker) AccountSummary(ctx context.Context, account string) ([]contracts.AccountValue, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("AccountSummary")
	return append([]contracts.AccountValue(nil), b.summary[account]...), nil
}

// OpenTrades implements Broker
func (b *MockBroker) OpenTrades(ctx context.Context) ([]contracts.Trade, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("OpenTrades")

	if len(b.trades) > 0 {
		return append([]contracts.Trade(nil), b.trades...), nil
	}

	// sim mode: every placed leg is a working order, newest first
	trades := make([]contracts.Trade, 0, len(b.placed))
	for i := len(b.placed) - 1; i >= 0; i-- {
		p := b.placed[i]
		qty := decimal.NewFromInt(int64(p.Order.Quantity))
		trades = append(trades, contracts.Trade{
			OrderID:   fmt.Sprintf("sim-%d", p.Order.ID),
			Symbol:    p.Contract.Contract.Symbol,
			Action:    p.Order.Action,
			OrderType: string(p.Order.OrderType),
			Status:    "Submitted",
			Quantity:  qty,
			Remaining: qty,
		})
	}
	return trades, nil
}

// Keepalive implements Broker
func (b *MockBroker) Keepalive(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("Keepalive")
	return b.KeepaliveErr
}
