package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/ibbridge/internal/contracts"
)

func TestPlaceTrailingOrder(t *testing.T) {
	broker := NewMockBroker()
	broker.FirstID = 11
	svc := startService(t, broker)

	sub, err := svc.PlaceOrder(context.Background(),
		contracts.InstrumentRequest{Symbol: "NVDA"},
		contracts.OrderIntent{Action: contracts.ActionBuy, Quantity: 10, Kind: contracts.KindTrailing, LimitPrice: nd("500"), TrailAmount: nd("5")},
	)
	require.NoError(t, err)
	require.Len(t, sub.Handles, 2)

	parent, child := sub.Parent(), sub.Children()[0]
	assert.Equal(t, int64(11), parent.OrderID)
	assert.Equal(t, contracts.ActionBuy, parent.Action)
	assert.Equal(t, contracts.ActionSell, child.Action)
	assert.Equal(t, parent.OrderID, child.ParentID)
	assert.Equal(t, contracts.OrderTypeTrailing, child.OrderType)
	assert.Equal(t, "NVDA", sub.Contract.Contract.Symbol)

	placed := broker.Placed()
	require.Len(t, placed, 2)
	assert.False(t, placed[0].Order.Transmit)
	assert.True(t, placed[1].Order.Transmit)
	assert.GreaterOrEqual(t, placed[1].At.Sub(placed[0].At), testBridgeConfig.LegDelay)
}

func TestPlaceBracketOrderLegOrder(t *testing.T) {
	broker := NewMockBroker()
	svc := startService(t, broker)

	sub, err := svc.PlaceOrder(context.Background(),
		contracts.InstrumentRequest{Symbol: "TSLA"},
		contracts.OrderIntent{Action: contracts.ActionBuy, Quantity: 2, Kind: contracts.KindBracket, LimitPrice: nd("250")},
	)
	require.NoError(t, err)
	require.Len(t, sub.Handles, 3)

	placed := broker.Placed()
	require.Len(t, placed, 3)
	for i := 1; i < len(placed); i++ {
		assert.Equal(t, placed[0].Order.ID, placed[i].Order.ParentID)
		assert.False(t, placed[i].At.Before(placed[i-1].At))
	}
	assert.True(t, placed[2].Order.Transmit)
	assert.Equal(t, 1, broker.Calls("Qualify"))
}

func TestPlaceOrderResolvesIndexAndOptions(t *testing.T) {
	broker := NewMockBroker()
	svc := startService(t, broker)
	ctx := context.Background()
	market := contracts.OrderIntent{Action: contracts.ActionBuy, Quantity: 1, Kind: contracts.KindMarket}

	_, err := svc.PlaceOrder(ctx, contracts.InstrumentRequest{Symbol: "spx"}, market)
	require.NoError(t, err)

	_, err = svc.PlaceOrder(ctx, contracts.InstrumentRequest{Symbol: "NVDA"}, market)
	require.NoError(t, err)

	_, err = svc.PlaceOrder(ctx, contracts.InstrumentRequest{
		Symbol: "NVDA", IsOption: true, Expiry: "2025-01-17", Strike: nd("500"), Right: contracts.RightCall,
	}, market)
	require.NoError(t, err)

	placed := broker.Placed()
	require.Len(t, placed, 3)

	assert.Equal(t, contracts.SecTypeIndex, placed[0].Contract.Contract.SecType)
	assert.Equal(t, "CBOE", placed[0].Contract.Contract.Exchange)

	assert.Equal(t, contracts.SecTypeStock, placed[1].Contract.Contract.SecType)
	assert.Equal(t, "SMART", placed[1].Contract.Contract.Exchange)

	opt := placed[2].Contract.Contract
	assert.Equal(t, contracts.SecTypeOption, opt.SecType)
	assert.Equal(t, "20250117", opt.Expiry)
	assert.Equal(t, "100", opt.Multiplier)
	assert.Equal(t, contracts.RightCall, opt.Right)
}

func TestPlaceOrderRejection(t *testing.T) {
	broker := NewMockBroker()
	broker.PlaceErr = errors.New("order size exceeds limit")
	svc := startService(t, broker)

	_, err := svc.PlaceOrder(context.Background(),
		contracts.InstrumentRequest{Symbol: "NVDA"},
		contracts.OrderIntent{Action: contracts.ActionBuy, Quantity: 1, Kind: contracts.KindLimit, LimitPrice: nd("500")},
	)
	require.Error(t, err)
	assert.True(t, errors.Is(err, contracts.ErrBrokerRejection))
	assert.Contains(t, err.Error(), "order size exceeds limit")

	// loop still serves
	_, err = svc.Orders(context.Background())
	assert.NoError(t, err)
}

func TestPlaceOrderUnknownSymbol(t *testing.T) {
	broker := NewMockBroker()
	broker.SetUnknown("ZZZZ")
	svc := startService(t, broker)

	_, err := svc.PlaceOrder(context.Background(),
		contracts.InstrumentRequest{Symbol: "ZZZZ"},
		contracts.OrderIntent{Action: contracts.ActionBuy, Quantity: 1, Kind: contracts.KindMarket},
	)
	assert.Equal(t, contracts.KindResolution, contracts.KindOf(err))
	assert.Zero(t, broker.Calls("PlaceOrder"))
}

func TestPlaceOrderValidationSkipsBroker(t *testing.T) {
	broker := NewMockBroker()
	svc := startService(t, broker)
	before := broker.TotalCalls()

	_, err := svc.PlaceOrder(context.Background(),
		contracts.InstrumentRequest{Symbol: "NVDA"},
		contracts.OrderIntent{Action: contracts.ActionBuy, Quantity: 10, Kind: contracts.KindTrailing, LimitPrice: nd("500")},
	)
	assert.Equal(t, contracts.KindValidation, contracts.KindOf(err))
	assert.Equal(t, before, broker.TotalCalls())
}

func TestSubmitEmptyPlan(t *testing.T) {
	s := startSession(t, NewMockBroker())
	sub := NewSubmitter(s, NewResolver(nil), 0, nopLogger())

	_, err := sub.Submit(context.Background(), contracts.OrderPlan{Instrument: contracts.InstrumentRequest{Symbol: "NVDA"}})
	assert.Equal(t, contracts.KindValidation, contracts.KindOf(err))
}

func TestQualify(t *testing.T) {
	broker := NewMockBroker()
	svc := startService(t, broker)

	qc, err := svc.Qualify(context.Background(), contracts.InstrumentRequest{Symbol: "NDX"})
	require.NoError(t, err)
	assert.NotZero(t, qc.ConID)
	assert.Equal(t, contracts.SecTypeIndex, qc.Contract.SecType)

	_, err = svc.Qualify(context.Background(), contracts.InstrumentRequest{Symbol: ""})
	assert.Equal(t, contracts.KindValidation, contracts.KindOf(err))
}

// slowBroker delays every PlaceOrder, like a gateway round-trip under load
type slowBroker struct {
	*MockBroker
	delay time.Duration
}

func (b slowBroker) PlaceOrder(ctx context.Context, c contracts.QualifiedContract, order contracts.OrderRequest) (contracts.OrderHandle, error) {
	time.Sleep(b.delay)
	return b.MockBroker.PlaceOrder(ctx, c, order)
}

func TestPlaceOrderOutlivesCallerTimeout(t *testing.T) {
	broker := NewMockBroker()
	svc := startService(t, slowBroker{MockBroker: broker, delay: 100 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	sub, err := svc.PlaceOrder(ctx,
		contracts.InstrumentRequest{Symbol: "NVDA"},
		contracts.OrderIntent{Action: contracts.ActionBuy, Quantity: 1, Kind: contracts.KindLimit, LimitPrice: nd("480")},
	)
	require.NoError(t, err)
	require.Len(t, sub.Handles, 1)
	assert.Equal(t, contracts.StatusSubmitted, sub.Handles[0].Status)
	assert.Len(t, broker.Placed(), 1)
	assert.Error(t, ctx.Err())
}

func TestPlaceOrderRejectionAfterCallerTimeout(t *testing.T) {
	broker := NewMockBroker()
	broker.PlaceErr = errors.New("margin")
	svc := startService(t, slowBroker{MockBroker: broker, delay: 60 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := svc.PlaceOrder(ctx,
		contracts.InstrumentRequest{Symbol: "NVDA"},
		contracts.OrderIntent{Action: contracts.ActionBuy, Quantity: 1, Kind: contracts.KindMarket},
	)
	assert.Equal(t, contracts.KindBrokerRejection, contracts.KindOf(err))
	assert.Contains(t, err.Error(), "margin")
}
