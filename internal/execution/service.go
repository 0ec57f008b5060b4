package execution

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/wonny/ibbridge/internal/contracts"
	"github.com/wonny/ibbridge/pkg/config"
	"github.com/wonny/ibbridge/pkg/logger"
)

// Service is the bridge facade used by the HTTP API, the desk, the CLI and the scheduler
type Service struct {
	session   *Session
	resolver  *Resolver
	builder   *Builder
	submitter *Submitter
	atm       *ATMResolver
	account   *AccountQuery
	poll      PollConfig
	logger    *logger.Logger
}

// NewService wires the core components around session
func NewService(session *Session, bridge config.BridgeConfig, accountID string, log *logger.Logger) *Service {
	resolver := NewResolver(bridge.IndexSymbols)
	poll := PollConfig{Attempts: bridge.QuoteAttempts, Interval: bridge.QuoteInterval}

	return &Service{
		session:   session,
		resolver:  resolver,
		builder:   NewBuilder(session),
		submitter: NewSubmitter(session, resolver, bridge.LegDelay, log),
		atm:       NewATMResolver(session, resolver, poll, log),
		account:   NewAccountQuery(session, accountID),
		poll:      poll,
		logger:    log.Component("service"),
	}
}

// Session returns the underlying session
func (s *Service) Session() *Session {
	return s.session
}

// IsConnected reports whether the broker session is up
func (s *Service) IsConnected() bool {
	return s.session.IsConnected()
}

// PlaceOrder builds and submits one order or composite order.
// Connectivity is checked before validation.
func (s *Service) PlaceOrder(ctx context.Context, req contracts.InstrumentRequest, intent contracts.OrderIntent) (contracts.Submission, error) {
	if !s.session.IsConnected() {
		return contracts.Submission{}, contracts.NotConnected("place order")
	}

	plan, err := s.builder.Build(req, intent)
	if err != nil {
		return contracts.Submission{}, err
	}

	sub, err := s.submitter.Submit(ctx, plan)
	if err != nil {
		s.logger.WithFields(map[string]interface{}{
			"symbol": req.Symbol,
			"kind":   intent.Kind,
			"action": intent.Action,
		}).WithError(err).Warn("Order submission failed")
		return contracts.Submission{}, err
	}
	return sub, nil
}

// ResolveATM looks up the at-the-money option of symbol
func (s *Service) ResolveATM(ctx context.Context, symbol string, right contracts.Right, expiry string) (contracts.AtmQuote, error) {
	return s.atm.Resolve(ctx, symbol, right, expiry)
}

// NetLiquidation returns the account's net liquidation value, invalid when absent
func (s *Service) NetLiquidation(ctx context.Context) (decimal.NullDecimal, error) {
	return s.account.NetLiquidation(ctx)
}

// Qualify resolves an instrument request to a broker contract
func (s *Service) Qualify(ctx context.Context, req contracts.InstrumentRequest) (contracts.QualifiedContract, error) {
	return s.resolver.Resolve(ctx, s.session, req)
}

// Price quotes an instrument, polling until the broker reports a market price
func (s *Service) Price(ctx context.Context, req contracts.InstrumentRequest) (contracts.Quote, error) {
	if !s.session.IsConnected() {
		return contracts.Quote{}, contracts.NotConnected("price")
	}
	if err := req.Validate(); err != nil {
		return contracts.Quote{}, contracts.WithOp("price", err)
	}

	return Call(ctx, s.session, "price", func(ctx context.Context, b Broker) (contracts.Quote, error) {
		qc, err := s.resolver.Qualify(ctx, b, s.resolver.Contract(req))
		if err != nil {
			return contracts.Quote{}, err
		}

		q, ok, err := Poll(ctx, s.poll,
			func(ctx context.Context) (contracts.Quote, error) { return b.Quote(ctx, qc) },
			func(q contracts.Quote) bool { return q.MarketPrice().Valid },
		)
		if err != nil {
			return contracts.Quote{}, &contracts.Error{Kind: contracts.KindMarketDataUnavailable, Msg: "quote request failed", Err: err}
		}
		if !ok {
			return contracts.Quote{}, contracts.MarketDataf("market price unavailable for %s", qc.Contract.Symbol)
		}
		return q, nil
	})
}

// Orders returns the broker's order board
func (s *Service) Orders(ctx context.Context) ([]contracts.Trade, error) {
	return Call(ctx, s.session, "orders", func(ctx context.Context, b Broker) ([]contracts.Trade, error) {
		trades, err := b.OpenTrades(ctx)
		if err != nil {
			return nil, contracts.Rejection("orders", err)
		}
		return trades, nil
	})
}

// Keepalive pings the broker session. A broker that reports its session gone
// stops the loop so the reconnect job can start it again.
func (s *Service) Keepalive(ctx context.Context) error {
	_, err := Call(ctx, s.session, "keepalive", func(ctx context.Context, b Broker) (struct{}, error) {
		err := b.Keepalive(ctx)
		if contracts.KindOf(err) == contracts.KindNotConnected {
			s.session.markLost(err)
		}
		return struct{}{}, err
	})
	return err
}
