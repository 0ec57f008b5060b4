package gateway

import (
	"encoding/json"
	"strings"
)

// Snapshot field ids
const (
	FieldLast       = "31"
	FieldBid        = "84"
	FieldAsk        = "86"
	FieldPriorClose = "7741"
)

var snapshotFields = strings.Join([]string{FieldLast, FieldBid, FieldAsk, FieldPriorClose}, ",")

// AuthStatus is the response of /iserver/auth/status
type AuthStatus struct {
	Authenticated bool   `json:"authenticated"`
	Competing     bool   `json:"competing"`
	Connected     bool   `json:"connected"`
	Message       string `json:"message"`
}

// AccountsResponse is the response of /iserver/accounts
type AccountsResponse struct {
	Accounts        []string `json:"accounts"`
	SelectedAccount string   `json:"selectedAccount"`
}

// SearchResult is one entry of /iserver/secdef/search
type SearchResult struct {
	Conid         json.Number     `json:"conid"`
	Symbol        string          `json:"symbol"`
	CompanyName   string          `json:"companyName"`
	CompanyHeader string          `json:"companyHeader"`
	Description   string          `json:"description"`
	Sections      []SearchSection `json:"sections"`
}

// SearchSection lists one tradable security type of a search result
type SearchSection struct {
	SecType  string `json:"secType"`
	Months   string `json:"months"`   // "JAN25;FEB25"
	Exchange string `json:"exchange"` // "SMART;CBOE"
}

// HasSecType reports whether the result offers secType
func (r SearchResult) HasSecType(secType string) bool {
	return r.Section(secType) != nil
}

// Section returns the section of secType, nil when absent
func (r SearchResult) Section(secType string) *SearchSection {
	for i := range r.Sections {
		if r.Sections[i].SecType == secType {
			return &r.Sections[i]
		}
	}
	return nil
}

// SecDefInfo is one contract of /iserver/secdef/info
type SecDefInfo struct {
	Conid        json.Number `json:"conid"`
	Symbol       string      `json:"symbol"`
	SecType      string      `json:"secType"`
	Exchange     string      `json:"exchange"`
	Right        string      `json:"right"`
	Strike       json.Number `json:"strike"`
	Currency     string      `json:"currency"`
	MaturityDate string      `json:"maturityDate"`
	Multiplier   string      `json:"multiplier"`
	TradingClass string      `json:"tradingClass"`
}

// StrikesResponse is the response of /iserver/secdef/strikes
type StrikesResponse struct {
	Call []json.Number `json:"call"`
	Put  []json.Number `json:"put"`
}

// OrderTicket is one order of a /iserver/account/{acct}/orders request
type OrderTicket struct {
	AcctID       string   `json:"acctId"`
	Conid        int64    `json:"conid"`
	COID         string   `json:"cOID"`
	ParentID     string   `json:"parentId,omitempty"`
	OrderType    string   `json:"orderType"`
	Side         string   `json:"side"`
	Quantity     int      `json:"quantity"`
	TIF          string   `json:"tif"`
	Price        *float64 `json:"price,omitempty"`
	AuxPrice     *float64 `json:"auxPrice,omitempty"`
	TrailingAmt  *float64 `json:"trailingAmt,omitempty"`
	TrailingType string   `json:"trailingType,omitempty"`
	OutsideRTH   bool     `json:"outsideRTH"`
}

// OrderRequestBody wraps the tickets of one order group
type OrderRequestBody struct {
	Orders []OrderTicket `json:"orders"`
}

// OrderReply is one element of an order or reply response.
// It is either an acknowledgement (OrderID set) or a prompt (ID and Message set).
type OrderReply struct {
	OrderID     string   `json:"order_id"`
	OrderStatus string   `json:"order_status"`
	LocalID     string   `json:"local_order_id"`
	ID          string   `json:"id"`
	Message     []string `json:"message"`
	MessageIDs  []string `json:"messageIds"`
	Error       string   `json:"error"`
}

// errorBody is the gateway's error object
type errorBody struct {
	Error string `json:"error"`
}

// SummaryEntry is one value of /portfolio/{acct}/summary
type SummaryEntry struct {
	Amount   json.Number `json:"amount"`
	Currency string      `json:"currency"`
	IsNull   bool        `json:"isNull"`
	Value    *string     `json:"value"`
}

// LiveOrder is one row of /iserver/account/orders and of the "sor" stream topic
type LiveOrder struct {
	Account           string      `json:"acct"`
	Conid             json.Number `json:"conid"`
	OrderID           json.Number `json:"orderId"`
	Ticker            string      `json:"ticker"`
	Side              string      `json:"side"`
	OrderType         string      `json:"orderType"`
	Status            string      `json:"status"`
	TotalSize         json.Number `json:"totalSize"`
	FilledQuantity    json.Number `json:"filledQuantity"`
	RemainingQuantity json.Number `json:"remainingQuantity"`
	AvgPrice          json.Number `json:"avgPrice"`
	Price             json.Number `json:"price"`
}

// LiveOrdersResponse is the response of /iserver/account/orders
type LiveOrdersResponse struct {
	Orders   []LiveOrder `json:"orders"`
	Snapshot bool        `json:"snapshot"`
}

// TickleResponse is the response of /tickle
type TickleResponse struct {
	Session string `json:"session"`
	IServer struct {
		AuthStatus AuthStatus `json:"authStatus"`
	} `json:"iserver"`
}

// summaryTags maps summary keys to account summary tag names
var summaryTags = map[string]string{
	"netliquidation":      "NetLiquidation",
	"totalcashvalue":      "TotalCashValue",
	"buyingpower":         "BuyingPower",
	"availablefunds":      "AvailableFunds",
	"excessliquidity":     "ExcessLiquidity",
	"grosspositionvalue":  "GrossPositionValue",
	"equitywithloanvalue": "EquityWithLoanValue",
	"initmarginreq":       "InitMarginReq",
	"maintmarginreq":      "MaintMarginReq",
	"accruedcash":         "AccruedCash",
}
