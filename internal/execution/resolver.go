package execution

import (
	"context"
	"errors"
	"strings"

	"github.com/wonny/ibbridge/internal/contracts"
)

// Resolver maps instrument requests to broker contracts
type Resolver struct {
	indexSymbols map[string]string // symbol -> listing exchange
}

// NewResolver creates a resolver that treats indexSymbols as index instruments
func NewResolver(indexSymbols map[string]string) *Resolver {
	symbols := make(map[string]string, len(indexSymbols))
	for sym, exch := range indexSymbols {
		symbols[strings.ToUpper(sym)] = exch
	}
	return &Resolver{indexSymbols: symbols}
}

// IsIndex reports whether symbol resolves to an index instrument
func (r *Resolver) IsIndex(symbol string) bool {
	_, ok := r.indexSymbols[strings.ToUpper(symbol)]
	return ok
}

// Underlying builds the stock or index contract of symbol
func (r *Resolver) Underlying(symbol string) contracts.Contract {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if exch, ok := r.indexSymbols[symbol]; ok {
		return contracts.Contract{Symbol: symbol, SecType: contracts.SecTypeIndex, Exchange: exch, Currency: "USD"}
	}
	return contracts.Contract{Symbol: symbol, SecType: contracts.SecTypeStock, Exchange: "SMART", Currency: "USD"}
}

// Contract builds the unqualified contract of req
func (r *Resolver) Contract(req contracts.InstrumentRequest) contracts.Contract {
	if !req.IsOption {
		return r.Underlying(req.Symbol)
	}
	return contracts.Contract{
		Symbol:     strings.ToUpper(strings.TrimSpace(req.Symbol)),
		SecType:    contracts.SecTypeOption,
		Exchange:   "SMART",
		Currency:   "USD",
		Expiry:     contracts.NormalizeExpiry(req.Expiry),
		Strike:     req.Strike.Decimal,
		Right:      req.Right,
		Multiplier: "100",
	}
}

// Qualify resolves c on the broker. Loop side: b is the session's broker.
func (r *Resolver) Qualify(ctx context.Context, b Broker, c contracts.Contract) (contracts.QualifiedContract, error) {
	qc, err := b.Qualify(ctx, c)
	if err != nil {
		var typed *contracts.Error
		if errors.As(err, &typed) {
			return contracts.QualifiedContract{}, err
		}
		return contracts.QualifiedContract{}, &contracts.Error{
			Kind: contracts.KindResolution,
			Msg:  "cannot qualify " + describe(c),
			Err:  err,
		}
	}
	if qc.ConID == 0 {
		return contracts.QualifiedContract{}, contracts.Resolutionf("broker returned no identifier for %s", describe(c))
	}
	return qc, nil
}

// Resolve validates req and qualifies it through the session loop
func (r *Resolver) Resolve(ctx context.Context, s *Session, req contracts.InstrumentRequest) (contracts.QualifiedContract, error) {
	if !s.IsConnected() {
		return contracts.QualifiedContract{}, contracts.NotConnected("resolve")
	}
	if err := req.Validate(); err != nil {
		return contracts.QualifiedContract{}, contracts.WithOp("resolve", err)
	}

	c := r.Contract(req)
	return Call(ctx, s, "resolve", func(ctx context.Context, b Broker) (contracts.QualifiedContract, error) {
		return r.Qualify(ctx, b, c)
	})
}

func describe(c contracts.Contract) string {
	if c.SecType == contracts.SecTypeOption {
		return c.Symbol + " " + c.Expiry + " " + c.Strike.String() + string(c.Right)
	}
	return c.Symbol + " " + string(c.SecType)
}
