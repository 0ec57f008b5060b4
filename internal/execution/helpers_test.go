package execution

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/wonny/ibbridge/internal/contracts"
	"github.com/wonny/ibbridge/pkg/config"
	"github.com/wonny/ibbridge/pkg/logger"
)

var testBridgeConfig = config.BridgeConfig{
	LegDelay:      20 * time.Millisecond,
	QuoteAttempts: 3,
	QuoteInterval: time.Millisecond,
	IndexSymbols:  map[string]string{"SPX": "CBOE", "NDX": "CBOE"},
}

// startSession returns a connected session around broker, stopped at test end
func startSession(t *testing.T, broker Broker) *Session {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	s := NewSession(broker, logger.Nop())
	require.NoError(t, s.Start(ctx, "127.0.0.1", 5000, 1))

	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	require.NoError(t, s.WaitConnected(waitCtx))
	return s
}

func startService(t *testing.T, broker Broker) *Service {
	t.Helper()
	return NewService(startSession(t, broker), testBridgeConfig, "", logger.Nop())
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func nd(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func strikes(values ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		out[i] = d(v)
	}
	return out
}

func optionKey(symbol, expiry, strike string, right contracts.Right) string {
	return MockKey(contracts.Contract{
		Symbol:  symbol,
		SecType: contracts.SecTypeOption,
		Expiry:  expiry,
		Strike:  d(strike),
		Right:   right,
	})
}

func nopLogger() *logger.Logger {
	return logger.Nop()
}
