package contracts

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Right is the option right
type Right string

const (
	RightCall Right = "C"
	RightPut  Right = "P"
)

// ParseRight accepts C, CALL, P, PUT in any case
func ParseRight(s string) (Right, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "C", "CALL":
		return RightCall, nil
	case "P", "PUT":
		return RightPut, nil
	default:
		return "", Validationf("unknown option right %q", s)
	}
}

func (r Right) String() string {
	if r == RightPut {
		return "PUT"
	}
	return "CALL"
}

// SecType is the broker security type
type SecType string

const (
	SecTypeStock  SecType = "STK"
	SecTypeOption SecType = "OPT"
	SecTypeIndex  SecType = "IND"
)

var expiryPattern = regexp.MustCompile(`^\d{8}$`)

// InstrumentRequest is the logical instrument a caller asks for
type InstrumentRequest struct {
	Symbol   string              `json:"symbol"`
	IsOption bool                `json:"is_option"`
	Expiry   string              `json:"expiry,omitempty"` // YYYYMMDD
	Strike   decimal.NullDecimal `json:"strike"`
	Right    Right               `json:"right,omitempty"`
}

// Validate checks the request without touching the broker
func (r InstrumentRequest) Validate() error {
	if strings.TrimSpace(r.Symbol) == "" {
		return Validationf("symbol is required")
	}
	if !r.IsOption {
		return nil
	}
	if !expiryPattern.MatchString(NormalizeExpiry(r.Expiry)) {
		return Validationf("option expiry must be YYYYMMDD, got %q", r.Expiry)
	}
	if !r.Strike.Valid || !r.Strike.Decimal.IsPositive() {
		return Validationf("option strike must be positive")
	}
	if r.Right != RightCall && r.Right != RightPut {
		return Validationf("option right must be C or P, got %q", r.Right)
	}
	return nil
}

// Contract is a broker instrument description
type Contract struct {
	ConID        int64           `json:"conid,omitempty"`
	Symbol       string          `json:"symbol"`
	SecType      SecType         `json:"sec_type"`
	Exchange     string          `json:"exchange"`
	Currency     string          `json:"currency"`
	Expiry       string          `json:"expiry,omitempty"`
	Strike       decimal.Decimal `json:"strike,omitempty"`
	Right        Right           `json:"right,omitempty"`
	Multiplier   string          `json:"multiplier,omitempty"`
	TradingClass string          `json:"trading_class,omitempty"`
}

// QualifiedContract is a contract the broker has assigned an identifier to
type QualifiedContract struct {
	ConID        int64    `json:"conid"`
	Contract     Contract `json:"contract"`
	LocalSymbol  string   `json:"local_symbol,omitempty"`
	TradingClass string   `json:"trading_class,omitempty"`
}

// NormalizeExpiry reduces any date spelling (2025-01-17, 20250117 16:00) to YYYYMMDD
func NormalizeExpiry(s string) string {
	var b strings.Builder
	for _, c := range strings.TrimSpace(s) {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
			if b.Len() == 8 {
				break
			}
		}
	}
	return b.String()
}
