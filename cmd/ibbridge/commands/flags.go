package commands

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/wonny/ibbridge/internal/contracts"
)

// instrumentFlags are the contract flags shared by order and price
type instrumentFlags struct {
	symbol   string
	isOption bool
	expiry   string
	strike   string
	right    string
}

func (f *instrumentFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.symbol, "symbol", "s", "", "ticker symbol (required)")
	cmd.Flags().BoolVar(&f.isOption, "option", false, "trade the option instead of the underlying")
	cmd.Flags().StringVar(&f.expiry, "expiry", "", "option expiry YYYYMMDD")
	cmd.Flags().StringVar(&f.strike, "strike", "", "option strike")
	cmd.Flags().StringVar(&f.right, "right", "C", "option right C|P")
	_ = cmd.MarkFlagRequired("symbol")
}

func (f *instrumentFlags) request() (contracts.InstrumentRequest, error) {
	req := contracts.InstrumentRequest{Symbol: f.symbol}
	if !f.isOption {
		return req, nil
	}

	strike, err := parseDecimalFlag("strike", f.strike)
	if err != nil {
		return contracts.InstrumentRequest{}, err
	}
	right, err := contracts.ParseRight(f.right)
	if err != nil {
		return contracts.InstrumentRequest{}, err
	}

	req.IsOption = true
	req.Expiry = f.expiry
	req.Strike = strike
	req.Right = right
	return req, nil
}

// parseDecimalFlag parses an optional decimal flag; empty means absent
func parseDecimalFlag(name, raw string) (decimal.NullDecimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.NullDecimal{}, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.NullDecimal{}, contracts.Validationf("--%s must be a number, got %q", name, raw)
	}
	return decimal.NewNullDecimal(v), nil
}
