package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/wonny/ibbridge/internal/contracts"
	"github.com/wonny/ibbridge/internal/execution"
	"github.com/wonny/ibbridge/pkg/config"
	"github.com/wonny/ibbridge/pkg/httputil"
	"github.com/wonny/ibbridge/pkg/logger"
)

// Client talks to the Interactive Brokers Client Portal gateway
// SSOT: gateway REST calls happen in this package only.
// Not goroutine-safe: the session loop is its only caller.
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	cfg        config.GatewayConfig

	baseURL string
	account string
	nonce   string // prefixes cOID so ids never collide across runs

	held []heldLeg                       // untransmitted legs of the open group
	acks map[int64]contracts.OrderHandle // handles acknowledged as part of a group
}

var _ execution.Broker = (*Client)(nil)

// NewClient creates a new gateway client
func NewClient(cfg config.GatewayConfig, httpClient *httputil.Client, log *logger.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     log.Component("gateway"),
		cfg:        cfg,
		baseURL:    cfg.BaseURL(),
		acks:       make(map[int64]contracts.OrderHandle),
	}
}

// Connect checks the gateway's brokerage session and selects the trading account.
// The gateway has no request-id handshake; ids start at 1 and cOID carries a per-run nonce.
func (c *Client) Connect(ctx context.Context, host string, port, clientID int) (int64, error) {
	c.baseURL = fmt.Sprintf("https://%s:%d%s", host, port, c.cfg.BasePath)
	c.nonce = strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	c.held = nil

	var status AuthStatus
	if err := c.httpClient.GetJSON(ctx, c.url("/iserver/auth/status"), &status); err != nil {
		return 0, fmt.Errorf("auth status: %w", err)
	}
	if !status.Authenticated || !status.Connected {
		return 0, fmt.Errorf("gateway session not authenticated (authenticated=%t connected=%t): log in at https://%s:%d",
			status.Authenticated, status.Connected, host, port)
	}
	if status.Competing {
		c.logger.Warn("Another session competes for this brokerage login")
	}

	accounts, err := c.ManagedAccounts(ctx)
	if err != nil {
		return 0, err
	}

	c.account = c.cfg.AccountID
	if c.account == "" {
		if len(accounts) == 0 {
			return 0, errors.New("gateway reports no accounts")
		}
		c.account = accounts[0]
	}

	// portfolio endpoints answer only after the account list was requested once
	var portfolioAccounts []map[string]interface{}
	if err := c.httpClient.GetJSON(ctx, c.url("/portfolio/accounts"), &portfolioAccounts); err != nil {
		return 0, fmt.Errorf("portfolio accounts: %w", err)
	}

	c.logger.WithFields(map[string]interface{}{
		"base_url":  c.baseURL,
		"account":   c.account,
		"client_id": clientID,
	}).Info("Gateway session ready")

	return 1, nil
}

// ManagedAccounts lists the brokerage accounts
func (c *Client) ManagedAccounts(ctx context.Context) ([]string, error) {
	var resp AccountsResponse
	if err := c.httpClient.GetJSON(ctx, c.url("/iserver/accounts"), &resp); err != nil {
		return nil, fmt.Errorf("accounts: %w", err)
	}
	return resp.Accounts, nil
}

// Keepalive tickles the gateway so the session does not time out
func (c *Client) Keepalive(ctx context.Context) error {
	var resp TickleResponse
	if err := c.httpClient.PostJSON(ctx, c.url("/tickle"), nil, &resp); err != nil {
		return fmt.Errorf("tickle: %w", err)
	}
	if !resp.IServer.AuthStatus.Authenticated {
		return &contracts.Error{Kind: contracts.KindNotConnected, Op: "keepalive", Msg: "brokerage session no longer authenticated"}
	}
	return nil
}

// Account returns the account orders are routed to
func (c *Client) Account() string {
	return c.account
}

func (c *Client) url(path string) string {
	return c.baseURL + path
}

func (c *Client) urlWithQuery(path string, q url.Values) string {
	return c.baseURL + path + "?" + q.Encode()
}
