package execution

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/ibbridge/internal/contracts"
)

func TestSimulatedBroker(t *testing.T) {
	monday := time.Date(2025, 1, 13, 10, 0, 0, 0, time.UTC)
	broker := NewSimulatedBroker(monday)
	svc := startService(t, broker)
	ctx := context.Background()

	call, err := svc.ResolveATM(ctx, "NVDA", contracts.RightCall, "")
	require.NoError(t, err)
	assert.Equal(t, "20250117", call.Expiry)
	assert.True(t, call.Strike.Equal(d("490")))

	put, err := svc.ResolveATM(ctx, "NVDA", contracts.RightPut, "20250124")
	require.NoError(t, err)
	assert.Equal(t, "20250124", put.Expiry)
	assert.True(t, put.Strike.Equal(d("485")))

	nl, err := svc.NetLiquidation(ctx)
	require.NoError(t, err)
	assert.True(t, nl.Decimal.Equal(d("1000000")))

	_, err = svc.PlaceOrder(ctx,
		contracts.InstrumentRequest{Symbol: "TSLA"},
		contracts.OrderIntent{Action: contracts.ActionBuy, Quantity: 5, Kind: contracts.KindTrailing, LimitPrice: nd("250"), TrailAmount: nd("2")},
	)
	require.NoError(t, err)

	trades, err := svc.Orders(ctx)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "TRAIL", trades[0].OrderType)
	assert.Equal(t, contracts.ActionSell, trades[0].Action)
	assert.True(t, trades[1].Remaining.Equal(d("5")))
}

func TestMockBrokerQuoteSequence(t *testing.T) {
	broker := NewMockBroker()
	broker.SetQuotes("NVDA", contracts.Quote{}, contracts.Quote{Last: nd("1")})
	qc := contracts.QualifiedContract{Contract: contracts.Contract{Symbol: "NVDA", SecType: contracts.SecTypeStock}}

	q1, _ := broker.Quote(context.Background(), qc)
	q2, _ := broker.Quote(context.Background(), qc)
	q3, _ := broker.Quote(context.Background(), qc)

	assert.False(t, q1.Last.Valid)
	assert.True(t, q2.Last.Valid)
	assert.True(t, q3.Last.Valid)
	assert.Equal(t, 3, broker.Calls("Quote"))
}
