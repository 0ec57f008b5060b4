package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wonny/ibbridge/pkg/config"
	"github.com/wonny/ibbridge/pkg/httputil"
	"github.com/wonny/ibbridge/pkg/logger"
)

const apiPrefix = "/v1/api"

// fakeGateway serves the Client Portal routes a test registers, plus a logged-in session
type fakeGateway struct {
	t      *testing.T
	server *httptest.Server
	cfg    config.GatewayConfig

	mu     sync.Mutex
	routes map[string]http.HandlerFunc
}

func newFakeGateway(t *testing.T) *fakeGateway {
	t.Helper()

	g := &fakeGateway{t: t, routes: make(map[string]http.HandlerFunc)}
	g.server = httptest.NewTLSServer(http.HandlerFunc(g.serve))
	t.Cleanup(g.server.Close)

	u, err := url.Parse(g.server.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	g.cfg = config.GatewayConfig{
		Host:        u.Hostname(),
		Port:        port,
		ClientID:    1,
		BasePath:    apiPrefix,
		InsecureTLS: true,
		AutoConfirm: true,
		ChainMonths: 2,
	}

	g.handleJSON("/iserver/auth/status", `{"authenticated":true,"connected":true,"competing":false}`)
	g.handleJSON("/iserver/accounts", `{"accounts":["U1234567","U7654321"],"selectedAccount":"U1234567"}`)
	g.handleJSON("/portfolio/accounts", `[{"id":"U1234567"}]`)
	return g
}

// handle registers or replaces the handler of path
func (g *fakeGateway) handle(path string, h http.HandlerFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.routes[apiPrefix+path] = h
}

func (g *fakeGateway) serve(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	h, ok := g.routes[r.URL.Path]
	g.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, `{"error":"no route `+r.URL.Path+`"}`)
		return
	}
	h(w, r)
}

func (g *fakeGateway) handleJSON(path, body string) {
	g.handle(path, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, body)
	})
}

func (g *fakeGateway) httpClient() *httputil.Client {
	return httputil.New(&config.Config{Gateway: g.cfg}, logger.Nop()).DisableRetry()
}

// client returns a connected gateway client
func (g *fakeGateway) client() *Client {
	g.t.Helper()

	c := NewClient(g.cfg, g.httpClient(), logger.Nop())
	first, err := c.Connect(context.Background(), g.cfg.Host, g.cfg.Port, g.cfg.ClientID)
	require.NoError(g.t, err)
	require.Equal(g.t, int64(1), first)
	return c
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func decodeBody(t *testing.T, r *http.Request, out interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(r.Body).Decode(out))
}
