package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/wonny/ibbridge/internal/contracts"
)

// AccountSummary reads /portfolio/{acct}/summary and names the entries by account tag
func (c *Client) AccountSummary(ctx context.Context, account string) ([]contracts.AccountValue, error) {
	var raw map[string]SummaryEntry
	if err := c.httpClient.GetJSON(ctx, c.url(fmt.Sprintf("/portfolio/%s/summary", account)), &raw); err != nil {
		return nil, fmt.Errorf("account summary %s: %w", account, err)
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make([]contracts.AccountValue, 0, len(raw))
	for _, key := range keys {
		entry := raw[key]
		if entry.IsNull {
			continue
		}

		value := entry.Amount.String()
		if value == "" && entry.Value != nil {
			value = *entry.Value
		}
		if value == "" {
			continue
		}

		tag, ok := summaryTags[key]
		if !ok {
			tag = key
		}
		values = append(values, contracts.AccountValue{
			Account:  account,
			Tag:      tag,
			Value:    value,
			Currency: entry.Currency,
		})
	}
	return values, nil
}

func decodeJSON(body string, out interface{}) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()
	return dec.Decode(out)
}
