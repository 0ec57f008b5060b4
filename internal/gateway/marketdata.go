package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/ibbridge/internal/contracts"
)

// Qualify resolves a contract to its gateway conid
func (c *Client) Qualify(ctx context.Context, ct contracts.Contract) (contracts.QualifiedContract, error) {
	if ct.SecType == contracts.SecTypeOption {
		return c.qualifyOption(ctx, ct)
	}

	results, err := c.search(ctx, ct.Symbol, string(ct.SecType))
	if err != nil {
		return contracts.QualifiedContract{}, err
	}

	for _, r := range results {
		if !strings.EqualFold(r.Symbol, ct.Symbol) || !r.HasSecType(string(ct.SecType)) {
			continue
		}
		conid, err := r.Conid.Int64()
		if err != nil || conid == 0 {
			continue
		}

		ct.ConID = conid
		return contracts.QualifiedContract{
			ConID:        conid,
			Contract:     ct,
			LocalSymbol:  r.Symbol,
			TradingClass: r.Symbol,
		}, nil
	}

	return contracts.QualifiedContract{}, contracts.Resolutionf("no %s contract found for %s", ct.SecType, ct.Symbol)
}

func (c *Client) qualifyOption(ctx context.Context, ct contracts.Contract) (contracts.QualifiedContract, error) {
	underlying, err := c.optionUnderlying(ctx, ct.Symbol)
	if err != nil {
		return contracts.QualifiedContract{}, err
	}

	month, err := contractMonth(ct.Expiry)
	if err != nil {
		return contracts.QualifiedContract{}, contracts.Validationf("option expiry %q: %v", ct.Expiry, err)
	}

	infos, err := c.secdefInfo(ctx, underlying, month, ct.Strike.String(), string(ct.Right))
	if err != nil {
		return contracts.QualifiedContract{}, err
	}

	var matches []SecDefInfo
	for _, info := range infos {
		if contracts.NormalizeExpiry(info.MaturityDate) != contracts.NormalizeExpiry(ct.Expiry) {
			continue
		}
		if ct.TradingClass != "" && info.TradingClass != ct.TradingClass {
			continue
		}
		matches = append(matches, info)
	}

	if len(matches) == 0 {
		return contracts.QualifiedContract{}, contracts.Resolutionf("no option %s %s %s%s listed", ct.Symbol, ct.Expiry, ct.Strike, ct.Right)
	}
	if len(matches) > 1 {
		classes := make([]string, 0, len(matches))
		for _, m := range matches {
			classes = append(classes, m.TradingClass)
		}
		return contracts.QualifiedContract{}, contracts.Resolutionf("ambiguous option %s %s %s%s: trading classes %s",
			ct.Symbol, ct.Expiry, ct.Strike, ct.Right, strings.Join(classes, ","))
	}

	info := matches[0]
	conid, err := info.Conid.Int64()
	if err != nil {
		return contracts.QualifiedContract{}, contracts.Resolutionf("bad conid %q for %s option", info.Conid, ct.Symbol)
	}

	ct.ConID = conid
	ct.TradingClass = info.TradingClass
	if info.Multiplier != "" {
		ct.Multiplier = info.Multiplier
	}
	return contracts.QualifiedContract{
		ConID:        conid,
		Contract:     ct,
		LocalSymbol:  fmt.Sprintf("%s %s %s%s", info.TradingClass, ct.Expiry, ct.Strike, ct.Right),
		TradingClass: info.TradingClass,
	}, nil
}

// optionUnderlying finds the conid of the first search result that lists options
func (c *Client) optionUnderlying(ctx context.Context, symbol string) (int64, error) {
	results, err := c.search(ctx, symbol, "")
	if err != nil {
		return 0, err
	}
	for _, r := range results {
		if !strings.EqualFold(r.Symbol, symbol) || !r.HasSecType(string(contracts.SecTypeOption)) {
			continue
		}
		if conid, err := r.Conid.Int64(); err == nil && conid != 0 {
			return conid, nil
		}
	}
	return 0, contracts.Resolutionf("no optionable underlying found for %s", symbol)
}

func (c *Client) search(ctx context.Context, symbol, secType string) ([]SearchResult, error) {
	q := url.Values{"symbol": {symbol}}
	if secType != "" {
		q.Set("secType", secType)
	}

	var results []SearchResult
	if err := c.httpClient.GetJSON(ctx, c.urlWithQuery("/iserver/secdef/search", q), &results); err != nil {
		return nil, fmt.Errorf("secdef search %s: %w", symbol, err)
	}
	return results, nil
}

func (c *Client) secdefInfo(ctx context.Context, underlying int64, month, strike, right string) ([]SecDefInfo, error) {
	q := url.Values{
		"conid":    {fmt.Sprint(underlying)},
		"secType":  {string(contracts.SecTypeOption)},
		"month":    {month},
		"strike":   {strike},
		"right":    {right},
		"exchange": {"SMART"},
	}

	var infos []SecDefInfo
	if err := c.httpClient.GetJSON(ctx, c.urlWithQuery("/iserver/secdef/info", q), &infos); err != nil {
		return nil, fmt.Errorf("secdef info %d %s: %w", underlying, month, err)
	}
	return infos, nil
}

// Quote reads one market data snapshot. The first request for a conid usually
// comes back empty while the gateway subscribes; callers poll.
func (c *Client) Quote(ctx context.Context, qc contracts.QualifiedContract) (contracts.Quote, error) {
	q := url.Values{
		"conids": {fmt.Sprint(qc.ConID)},
		"fields": {snapshotFields},
	}

	var rows []map[string]interface{}
	if err := c.httpClient.GetJSON(ctx, c.urlWithQuery("/iserver/marketdata/snapshot", q), &rows); err != nil {
		return contracts.Quote{}, fmt.Errorf("snapshot %d: %w", qc.ConID, err)
	}

	for _, row := range rows {
		if fmt.Sprint(row["conid"]) != fmt.Sprint(qc.ConID) {
			continue
		}
		return contracts.Quote{
			Last:  parsePrice(row[FieldLast]),
			Bid:   parsePrice(row[FieldBid]),
			Ask:   parsePrice(row[FieldAsk]),
			Close: parsePrice(row[FieldPriorClose]),
		}, nil
	}
	return contracts.Quote{}, nil
}

// OptionChains groups the option contracts of the next months by trading class
func (c *Client) OptionChains(ctx context.Context, underlying contracts.QualifiedContract) ([]contracts.OptionChain, error) {
	results, err := c.search(ctx, underlying.Contract.Symbol, "")
	if err != nil {
		return nil, err
	}

	var months []string
	for _, r := range results {
		conid, _ := r.Conid.Int64()
		if conid != underlying.ConID {
			continue
		}
		if sec := r.Section(string(contracts.SecTypeOption)); sec != nil {
			months = splitList(sec.Months)
		}
		break
	}
	if len(months) == 0 {
		return nil, nil
	}
	if n := c.cfg.ChainMonths; n > 0 && len(months) > n {
		months = months[:n]
	}

	byClass := make(map[string]*contracts.OptionChain)
	var order []string

	for _, month := range months {
		q := url.Values{
			"conid":    {fmt.Sprint(underlying.ConID)},
			"sectype":  {string(contracts.SecTypeOption)},
			"month":    {month},
			"exchange": {"SMART"},
		}
		var strikes StrikesResponse
		if err := c.httpClient.GetJSON(ctx, c.urlWithQuery("/iserver/secdef/strikes", q), &strikes); err != nil {
			return nil, fmt.Errorf("secdef strikes %s: %w", month, err)
		}
		monthStrikes := parseStrikes(strikes.Call)
		if len(monthStrikes) == 0 {
			continue
		}

		// any listed strike returns every expiry and trading class of the month
		probe := monthStrikes[len(monthStrikes)/2]
		infos, err := c.secdefInfo(ctx, underlying.ConID, month, probe.String(), string(contracts.RightCall))
		if err != nil {
			return nil, err
		}

		for _, info := range infos {
			class := info.TradingClass
			if class == "" {
				class = underlying.Contract.Symbol
			}
			chain, ok := byClass[class]
			if !ok {
				chain = &contracts.OptionChain{Exchange: "SMART", TradingClass: class, Multiplier: info.Multiplier}
				byClass[class] = chain
				order = append(order, class)
			}
			chain.Expirations = appendUnique(chain.Expirations, contracts.NormalizeExpiry(info.MaturityDate))
			chain.Strikes = mergeStrikes(chain.Strikes, monthStrikes)
		}
	}

	// the class named like the symbol (the monthly series) comes first
	sort.SliceStable(order, func(i, j int) bool {
		return order[i] == underlying.Contract.Symbol && order[j] != underlying.Contract.Symbol
	})

	chains := make([]contracts.OptionChain, 0, len(order))
	for _, class := range order {
		chain := byClass[class]
		sort.Strings(chain.Expirations)
		chains = append(chains, *chain)
	}
	return chains, nil
}

// contractMonth turns 20250117 into JAN25
func contractMonth(expiry string) (string, error) {
	t, err := time.Parse("20060102", contracts.NormalizeExpiry(expiry))
	if err != nil {
		return "", err
	}
	return strings.ToUpper(t.Format("Jan06")), nil
}

// parsePrice reads a snapshot value: "C97.30" (closing), "H97.30" (halted), "1,234.5".
// Blank, NaN and unparsable values are absent.
func parsePrice(v interface{}) decimal.NullDecimal {
	var s string
	switch t := v.(type) {
	case nil:
		return decimal.NullDecimal{}
	case string:
		s = t
	default:
		s = fmt.Sprint(t)
	}

	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "CH")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" || strings.EqualFold(s, "nan") || strings.EqualFold(s, "n/a") {
		return decimal.NullDecimal{}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func parseStrikes(values []json.Number) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(values))
	for _, v := range values {
		if d, err := decimal.NewFromString(v.String()); err == nil {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LessThan(out[j]) })
	return out
}

func mergeStrikes(have, add []decimal.Decimal) []decimal.Decimal {
	seen := make(map[string]bool, len(have))
	for _, s := range have {
		seen[s.String()] = true
	}
	for _, s := range add {
		if !seen[s.String()] {
			have = append(have, s)
			seen[s.String()] = true
		}
	}
	sort.Slice(have, func(i, j int) bool { return have[i].LessThan(have[j]) })
	return have
}

func appendUnique(list []string, v string) []string {
	if v == "" {
		return list
	}
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
