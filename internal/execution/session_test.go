package execution

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/ibbridge/internal/contracts"
	"github.com/wonny/ibbridge/pkg/logger"
)

func TestCallNotConnectedSchedulesNothing(t *testing.T) {
	broker := NewMockBroker()
	s := NewSession(broker, logger.Nop())

	ran := false
	_, err := Call(context.Background(), s, "probe", func(ctx context.Context, b Broker) (int, error) {
		ran = true
		return 1, nil
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, contracts.ErrNotConnected))
	assert.False(t, ran)
	assert.Zero(t, broker.TotalCalls())
}

func TestServiceNotConnectedMakesNoBrokerCalls(t *testing.T) {
	broker := NewMockBroker()
	svc := NewService(NewSession(broker, logger.Nop()), testBridgeConfig, "", logger.Nop())
	ctx := context.Background()

	_, err := svc.PlaceOrder(ctx,
		contracts.InstrumentRequest{Symbol: "NVDA"},
		contracts.OrderIntent{Action: contracts.ActionBuy, Quantity: 10, Kind: contracts.KindTrailing, LimitPrice: nd("500"), TrailAmount: nd("5")},
	)
	assert.Equal(t, contracts.KindNotConnected, contracts.KindOf(err))

	// an invalid intent still reports the connection first
	_, err = svc.PlaceOrder(ctx, contracts.InstrumentRequest{}, contracts.OrderIntent{})
	assert.Equal(t, contracts.KindNotConnected, contracts.KindOf(err))

	_, err = svc.ResolveATM(ctx, "NVDA", contracts.RightCall, "")
	assert.Equal(t, contracts.KindNotConnected, contracts.KindOf(err))

	nl, err := svc.NetLiquidation(ctx)
	assert.Equal(t, contracts.KindNotConnected, contracts.KindOf(err))
	assert.False(t, nl.Valid)

	_, err = svc.Orders(ctx)
	assert.Equal(t, contracts.KindNotConnected, contracts.KindOf(err))

	_, err = svc.Qualify(ctx, contracts.InstrumentRequest{Symbol: "NVDA"})
	assert.Equal(t, contracts.KindNotConnected, contracts.KindOf(err))

	assert.Equal(t, contracts.KindNotConnected, contracts.KindOf(svc.Keepalive(ctx)))

	assert.Zero(t, broker.TotalCalls())
}

func TestSessionConnect(t *testing.T) {
	broker := NewMockBroker()
	broker.FirstID = 42
	s := startSession(t, broker)

	assert.True(t, s.IsConnected())
	assert.Equal(t, int64(42), s.NextRequestID())
	assert.Equal(t, int64(43), s.NextRequestID())

	info := s.Info()
	assert.Equal(t, "127.0.0.1", info.Host)
	assert.Equal(t, 5000, info.Port)
	assert.True(t, info.Connected)
}

func TestSessionDuplicateStart(t *testing.T) {
	s := startSession(t, NewMockBroker())
	err := s.Start(context.Background(), "127.0.0.1", 5000, 1)
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestSessionConnectFailureThenRetry(t *testing.T) {
	broker := NewMockBroker()
	broker.ConnectErr = errors.New("connection refused")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewSession(broker, logger.Nop())
	require.NoError(t, s.Start(ctx, "127.0.0.1", 5000, 1))

	err := s.WaitConnected(ctx)
	require.Error(t, err)
	assert.Equal(t, contracts.KindNotConnected, contracts.KindOf(err))
	assert.Contains(t, err.Error(), "connection refused")
	assert.False(t, s.IsConnected())

	broker.ConnectErr = nil
	require.NoError(t, s.Start(ctx, "127.0.0.1", 5000, 1))
	require.NoError(t, s.WaitConnected(ctx))
	assert.True(t, s.IsConnected())
	assert.Equal(t, 2, broker.Calls("Connect"))
}

func TestSessionReconnect(t *testing.T) {
	broker := NewMockBroker()
	broker.ConnectErr = errors.New("connection refused")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewSession(broker, logger.Nop())
	assert.Equal(t, contracts.KindNotConnected, contracts.KindOf(s.Reconnect(ctx)))

	require.NoError(t, s.Start(ctx, "gateway.local", 5001, 3))
	require.Error(t, s.WaitConnected(ctx))

	require.Error(t, s.Reconnect(ctx))
	assert.Equal(t, 2, broker.Calls("Connect"))

	broker.mu.Lock()
	broker.ConnectErr = nil
	broker.mu.Unlock()

	require.NoError(t, s.Reconnect(ctx))
	assert.True(t, s.IsConnected())
	assert.Equal(t, "gateway.local", s.Info().Host)
	assert.Equal(t, 3, s.Info().ClientID)

	// a running loop is left alone
	require.NoError(t, s.Reconnect(ctx))
	assert.Equal(t, 3, broker.Calls("Connect"))

	cancel()
	assert.Equal(t, contracts.KindNotConnected, contracts.KindOf(s.Reconnect(context.Background())))
}

func TestWaitConnectedHonoursContext(t *testing.T) {
	s := NewSession(NewMockBroker(), logger.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, s.WaitConnected(ctx), context.DeadlineExceeded)
}

func TestCallSerializesCommands(t *testing.T) {
	s := startSession(t, NewMockBroker())

	var inFlight, maxInFlight atomic.Int32
	counter := 0 // only touched on the loop goroutine

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Call(context.Background(), s, "count", func(ctx context.Context, b Broker) (int, error) {
				n := inFlight.Add(1)
				if n > maxInFlight.Load() {
					maxInFlight.Store(n)
				}
				counter++
				time.Sleep(time.Millisecond)
				inFlight.Add(-1)
				return counter, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	total, err := Call(context.Background(), s, "read", func(ctx context.Context, b Broker) (int, error) {
		return counter, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 50, total)
	assert.Equal(t, int32(1), maxInFlight.Load())
}

func TestCallRunsInEnqueueOrder(t *testing.T) {
	s := startSession(t, NewMockBroker())

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		_, err := Call(context.Background(), s, "seq", func(ctx context.Context, b Broker) (struct{}, error) {
			order = append(order, i)
			return struct{}{}, nil
		})
		require.NoError(t, err)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestCallRecoversPanic(t *testing.T) {
	s := startSession(t, NewMockBroker())

	_, err := Call(context.Background(), s, "explode", func(ctx context.Context, b Broker) (int, error) {
		panic("boom")
	})
	require.Error(t, err)
	assert.Equal(t, contracts.KindBrokerRejection, contracts.KindOf(err))
	assert.Contains(t, err.Error(), "boom")

	v, err := Call(context.Background(), s, "after", func(ctx context.Context, b Broker) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestCallPropagatesTypedErrors(t *testing.T) {
	s := startSession(t, NewMockBroker())

	_, err := Call(context.Background(), s, "lookup", func(ctx context.Context, b Broker) (int, error) {
		return 0, contracts.Resolutionf("no such contract")
	})
	assert.Equal(t, contracts.KindResolution, contracts.KindOf(err))
	assert.Equal(t, "lookup: no such contract", err.Error())
}

func TestCallCallerTimeoutLeavesLoopUsable(t *testing.T) {
	s := startSession(t, NewMockBroker())

	release := make(chan struct{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := Call(ctx, s, "slow", func(ctx context.Context, b Broker) (int, error) {
		<-release
		return 1, nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, contracts.KindTimeout, contracts.KindOf(err))

	close(release)

	v, err := Call(context.Background(), s, "next", func(ctx context.Context, b Broker) (int, error) {
		return 2, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestSessionStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewSession(NewMockBroker(), logger.Nop())
	require.NoError(t, s.Start(ctx, "127.0.0.1", 5000, 1))
	require.NoError(t, s.WaitConnected(ctx))

	cancel()
	require.Eventually(t, func() bool { return !s.IsConnected() }, time.Second, 5*time.Millisecond)

	_, err := Call(context.Background(), s, "late", func(ctx context.Context, b Broker) (int, error) {
		return 1, nil
	})
	assert.Equal(t, contracts.KindNotConnected, contracts.KindOf(err))
}

func TestBrokerPanicDoesNotKillLoop(t *testing.T) {
	broker := NewMockBroker()
	broker.PanicOn = "Keepalive"
	svc := startService(t, broker)

	err := svc.Keepalive(context.Background())
	require.Error(t, err)
	assert.Equal(t, contracts.KindBrokerRejection, contracts.KindOf(err))

	_, err = svc.Orders(context.Background())
	assert.NoError(t, err)
}

func TestCallWithdrawsQueuedCommand(t *testing.T) {
	s := startSession(t, NewMockBroker())

	release := make(chan struct{})
	busy := make(chan struct{})
	go func() {
		_, _ = Call(context.Background(), s, "busy", func(ctx context.Context, b Broker) (int, error) {
			close(busy)
			<-release
			return 0, nil
		})
	}()
	<-busy

	ran := false
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := Call(ctx, s, "queued", func(ctx context.Context, b Broker) (int, error) {
		ran = true
		return 1, nil
	})
	assert.Equal(t, contracts.KindTimeout, contracts.KindOf(err))
	assert.Contains(t, err.Error(), "withdrawn before it reached the broker")

	close(release)

	v, err := Call(context.Background(), s, "next", func(ctx context.Context, b Broker) (int, error) {
		return 2, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.False(t, ran)
}

func TestKeepaliveSessionLossStopsLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker := NewMockBroker()
	s := NewSession(broker, logger.Nop())
	require.NoError(t, s.Start(ctx, "127.0.0.1", 5000, 1))
	require.NoError(t, s.WaitConnected(ctx))
	svc := NewService(s, testBridgeConfig, "", logger.Nop())

	// a transient failure keeps the session up
	broker.KeepaliveErr = errors.New("tickle: 500")
	assert.Equal(t, contracts.KindBrokerRejection, contracts.KindOf(svc.Keepalive(ctx)))
	assert.True(t, s.IsConnected())

	broker.KeepaliveErr = &contracts.Error{Kind: contracts.KindNotConnected, Op: "keepalive", Msg: "brokerage session no longer authenticated"}
	assert.Equal(t, contracts.KindNotConnected, contracts.KindOf(svc.Keepalive(ctx)))
	require.Eventually(t, func() bool { return !s.IsConnected() }, time.Second, 5*time.Millisecond)

	_, err := svc.Orders(ctx)
	assert.Equal(t, contracts.KindNotConnected, contracts.KindOf(err))

	broker.KeepaliveErr = nil
	require.NoError(t, s.Reconnect(ctx))
	assert.True(t, s.IsConnected())
	assert.Equal(t, 2, broker.Calls("Connect"))
	assert.NoError(t, svc.Keepalive(ctx))
}
