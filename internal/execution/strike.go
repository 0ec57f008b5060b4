package execution

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/wonny/ibbridge/internal/contracts"
)

// SelectATMStrike picks the at-the-money strike for right.
//
// Call: the smallest strike at or above price, else the largest strike.
// Put: the largest strike at or below price, else the smallest strike.
// ok is false only when strikes is empty.
func SelectATMStrike(strikes []decimal.Decimal, price decimal.Decimal, right contracts.Right) (strike decimal.Decimal, ok bool) {
	if len(strikes) == 0 {
		return decimal.Decimal{}, false
	}

	sorted := make([]decimal.Decimal, len(strikes))
	copy(sorted, strikes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })

	if right == contracts.RightPut {
		for i := len(sorted) - 1; i >= 0; i-- {
			if sorted[i].LessThanOrEqual(price) {
				return sorted[i], true
			}
		}
		return sorted[0], true
	}

	for _, s := range sorted {
		if s.GreaterThanOrEqual(price) {
			return s, true
		}
	}
	return sorted[len(sorted)-1], true
}

// SelectExpiry picks the chain and expiry for a requested expiry.
// The first chain listing expiry wins; otherwise the first chain and its earliest expiry.
func SelectExpiry(chains []contracts.OptionChain, expiry string) (contracts.OptionChain, string, bool) {
	if len(chains) == 0 {
		return contracts.OptionChain{}, "", false
	}

	want := contracts.NormalizeExpiry(expiry)
	if want != "" {
		for _, c := range chains {
			for _, e := range c.Expirations {
				if contracts.NormalizeExpiry(e) == want {
					return c, want, true
				}
			}
		}
	}

	chain := chains[0]
	earliest := ""
	for _, e := range chain.Expirations {
		n := contracts.NormalizeExpiry(e)
		if n == "" {
			continue
		}
		// YYYYMMDD orders lexically
		if earliest == "" || n < earliest {
			earliest = n
		}
	}
	if earliest == "" {
		return contracts.OptionChain{}, "", false
	}
	return chain, earliest, true
}
