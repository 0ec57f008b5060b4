package execution

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/wonny/ibbridge/internal/contracts"
	"github.com/wonny/ibbridge/pkg/logger"
)

// ATMResolver finds the at-the-money option of an underlying and quotes it
type ATMResolver struct {
	session  *Session
	resolver *Resolver
	poll     PollConfig
	logger   *logger.Logger
}

// NewATMResolver creates an ATM resolver polling quotes with poll
func NewATMResolver(session *Session, resolver *Resolver, poll PollConfig, log *logger.Logger) *ATMResolver {
	return &ATMResolver{
		session:  session,
		resolver: resolver,
		poll:     poll,
		logger:   log.Component("atm"),
	}
}

// Resolve runs the whole lookup as one loop command. expiry may be empty.
func (a *ATMResolver) Resolve(ctx context.Context, symbol string, right contracts.Right, expiry string) (contracts.AtmQuote, error) {
	if !a.session.IsConnected() {
		return contracts.AtmQuote{}, contracts.NotConnected("atm")
	}

	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return contracts.AtmQuote{}, contracts.WithOp("atm", contracts.Validationf("symbol is required"))
	}
	if right != contracts.RightCall && right != contracts.RightPut {
		return contracts.AtmQuote{}, contracts.WithOp("atm", contracts.Validationf("right must be C or P, got %q", right))
	}
	if expiry != "" && len(contracts.NormalizeExpiry(expiry)) != 8 {
		return contracts.AtmQuote{}, contracts.WithOp("atm", contracts.Validationf("expiry must be YYYYMMDD, got %q", expiry))
	}

	return Call(ctx, a.session, "atm", func(ctx context.Context, b Broker) (contracts.AtmQuote, error) {
		return a.resolve(ctx, b, symbol, right, expiry)
	})
}

// resolve runs on the loop goroutine
func (a *ATMResolver) resolve(ctx context.Context, b Broker, symbol string, right contracts.Right, expiry string) (contracts.AtmQuote, error) {
	// 1. underlying price
	underlying, err := a.resolver.Qualify(ctx, b, a.resolver.Underlying(symbol))
	if err != nil {
		return contracts.AtmQuote{}, err
	}

	ulQuote, ok, err := Poll(ctx, a.poll,
		func(ctx context.Context) (contracts.Quote, error) { return b.Quote(ctx, underlying) },
		func(q contracts.Quote) bool { return q.MarketPrice().Valid },
	)
	if err != nil {
		return contracts.AtmQuote{}, &contracts.Error{Kind: contracts.KindMarketDataUnavailable, Msg: "underlying quote request failed", Err: err}
	}
	if !ok {
		return contracts.AtmQuote{}, contracts.MarketDataf("underlying price unavailable for %s", symbol)
	}
	price := ulQuote.MarketPrice().Decimal

	// 2. chains
	chains, err := b.OptionChains(ctx, underlying)
	if err != nil {
		return contracts.AtmQuote{}, &contracts.Error{Kind: contracts.KindResolution, Msg: "option chain request failed", Err: err}
	}
	if len(chains) == 0 {
		return contracts.AtmQuote{}, contracts.Resolutionf("chain not found for %s", symbol)
	}

	// 3. expiry
	chain, chosenExpiry, ok := SelectExpiry(chains, expiry)
	if !ok {
		return contracts.AtmQuote{}, contracts.Resolutionf("no expirations listed for %s", symbol)
	}
	if want := contracts.NormalizeExpiry(expiry); want != "" && want != chosenExpiry {
		a.logger.WithFields(map[string]interface{}{
			"symbol":    symbol,
			"requested": want,
			"using":     chosenExpiry,
		}).Warn("Requested expiry not listed, using earliest")
	}

	// 4. strike
	strike, ok := SelectATMStrike(chain.Strikes, price, right)
	if !ok {
		return contracts.AtmQuote{}, contracts.Resolutionf("chain %s has no strikes", chain.TradingClass)
	}

	// 5. option quote
	multiplier := chain.Multiplier
	if multiplier == "" {
		multiplier = "100"
	}
	option, err := a.resolver.Qualify(ctx, b, contracts.Contract{
		Symbol:       symbol,
		SecType:      contracts.SecTypeOption,
		Exchange:     "SMART",
		Currency:     "USD",
		Expiry:       chosenExpiry,
		Strike:       strike,
		Right:        right,
		Multiplier:   multiplier,
		TradingClass: chain.TradingClass,
	})
	if err != nil {
		return contracts.AtmQuote{}, err
	}

	optQuote, _, err := Poll(ctx, a.poll,
		func(ctx context.Context) (contracts.Quote, error) { return b.Quote(ctx, option) },
		contracts.Quote.HasBidAsk,
	)
	if err != nil {
		return contracts.AtmQuote{}, &contracts.Error{Kind: contracts.KindMarketDataUnavailable, Msg: "option quote request failed", Err: err}
	}

	tradingClass := chain.TradingClass
	if tradingClass == "" {
		tradingClass = option.TradingClass
	}

	result := contracts.AtmQuote{
		Symbol:          symbol,
		Expiry:          chosenExpiry,
		Right:           right,
		Strike:          strike,
		UnderlyingPrice: price.Round(2),
		Bid:             optQuote.Bid,
		Ask:             optQuote.Ask,
		Mid:             contracts.Mid(optQuote.Bid, optQuote.Ask),
		TradingClass:    tradingClass,
		ConID:           option.ConID,
	}

	a.logger.WithFields(map[string]interface{}{
		"symbol":     symbol,
		"expiry":     chosenExpiry,
		"right":      right,
		"strike":     strike.String(),
		"underlying": price.String(),
		"mid":        nullString(result.Mid),
	}).Info("ATM option resolved")

	return result, nil
}

func nullString(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}
