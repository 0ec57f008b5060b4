package execution

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/wonny/ibbridge/internal/contracts"
)

// AccountQuery reads account summary values through the session loop
type AccountQuery struct {
	session *Session
	account string // empty = first managed account
}

// NewAccountQuery creates an account query; account may be empty
func NewAccountQuery(session *Session, account string) *AccountQuery {
	return &AccountQuery{session: session, account: account}
}

// NetLiquidation returns the account's net liquidation value.
// A missing or unparsable tag yields an invalid NullDecimal and no error.
func (q *AccountQuery) NetLiquidation(ctx context.Context) (decimal.NullDecimal, error) {
	return q.Value(ctx, contracts.TagNetLiquidation)
}

// Value returns the summary value for tag
func (q *AccountQuery) Value(ctx context.Context, tag string) (decimal.NullDecimal, error) {
	if !q.session.IsConnected() {
		return decimal.NullDecimal{}, contracts.NotConnected("account")
	}

	values, err := Call(ctx, q.session, "account", func(ctx context.Context, b Broker) ([]contracts.AccountValue, error) {
		account := q.account
		if account == "" {
			accounts, err := b.ManagedAccounts(ctx)
			if err != nil {
				return nil, contracts.Rejection("accounts", err)
			}
			if len(accounts) == 0 {
				return nil, contracts.Resolutionf("no managed accounts")
			}
			account = accounts[0]
		}

		values, err := b.AccountSummary(ctx, account)
		if err != nil {
			return nil, contracts.Rejection("account summary", err)
		}
		return values, nil
	})
	if err != nil {
		return decimal.NullDecimal{}, err
	}

	return FindTag(values, tag), nil
}

// FindTag parses the first entry tagged tag
func FindTag(values []contracts.AccountValue, tag string) decimal.NullDecimal {
	for _, v := range values {
		if v.Tag != tag {
			continue
		}
		d, err := decimal.NewFromString(strings.TrimSpace(v.Value))
		if err != nil {
			return decimal.NullDecimal{}
		}
		return decimal.NewNullDecimal(d)
	}
	return decimal.NullDecimal{}
}
