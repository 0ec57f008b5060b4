package gateway

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wonny/ibbridge/internal/contracts"
	"github.com/wonny/ibbridge/pkg/config"
	"github.com/wonny/ibbridge/pkg/httputil"
	"github.com/wonny/ibbridge/pkg/logger"
)

// Stream topics and timing
const (
	TopicLiveOrders = "sor"
	heartbeatTopic  = "tic"

	HeartbeatInterval = 55 * time.Second
	handshakeTimeout  = 10 * time.Second
)

// Stream receives live order updates from the gateway websocket.
// It owns its own HTTP client and never touches the loop-owned Client.
type Stream struct {
	cfg        config.GatewayConfig
	httpClient *httputil.Client
	logger     *logger.Logger
	heartbeat  time.Duration

	conn      *websocket.Conn
	connMu    sync.Mutex
	connected bool

	// Callbacks
	onOrder      func(contracts.Trade)
	onError      func(error)
	onDisconnect func()

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// streamMessage is one frame of the gateway websocket
type streamMessage struct {
	Topic string          `json:"topic"`
	Args  json.RawMessage `json:"args"`
}

// NewStream creates a stream client
func NewStream(cfg config.GatewayConfig, httpClient *httputil.Client, log *logger.Logger) *Stream {
	return &Stream{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     log.Component("stream"),
		heartbeat:  HeartbeatInterval,
		stopCh:     make(chan struct{}),
	}
}

// Callback setters
func (s *Stream) OnOrder(fn func(contracts.Trade)) { s.onOrder = fn }
func (s *Stream) OnError(fn func(error))           { s.onError = fn }
func (s *Stream) OnDisconnect(fn func())           { s.onDisconnect = fn }

// WithHeartbeat sets the heartbeat interval
func (s *Stream) WithHeartbeat(d time.Duration) *Stream {
	s.heartbeat = d
	return s
}

// Connect authenticates the websocket with the gateway session and subscribes to live orders
func (s *Stream) Connect(ctx context.Context) error {
	var tickle TickleResponse
	if err := s.httpClient.PostJSON(ctx, s.cfg.BaseURL()+"/tickle", nil, &tickle); err != nil {
		return fmt.Errorf("tickle: %w", err)
	}
	if tickle.Session == "" {
		return errors.New("tickle: gateway returned no session")
	}

	if err := s.connect(ctx, tickle.Session); err != nil {
		return fmt.Errorf("websocket connect: %w", err)
	}

	if err := s.write([]byte(TopicLiveOrders + "+{}")); err != nil {
		return fmt.Errorf("subscribe live orders: %w", err)
	}

	s.wg.Add(2)
	go s.readLoop()
	go s.pingLoop()

	s.logger.WithField("url", s.cfg.StreamURL()).Info("Gateway stream connected")
	return nil
}

func (s *Stream) connect(ctx context.Context, session string) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
		TLSClientConfig:  &tls.Config{InsecureSkipVerify: s.cfg.InsecureTLS}, //nolint:gosec // local gateway self-signed cert
	}

	header := http.Header{}
	header.Set("Cookie", "api="+session)

	conn, _, err := dialer.DialContext(ctx, s.cfg.StreamURL(), header)
	if err != nil {
		return err
	}

	payload, _ := json.Marshal(map[string]string{"session": session})
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		conn.Close()
		return err
	}

	s.conn = conn
	s.connected = true
	return nil
}

// Disconnect closes the connection and waits for the loops to exit
func (s *Stream) Disconnect() error {
	select {
	case <-s.stopCh:
		return nil
	default:
		close(s.stopCh)
	}

	s.connMu.Lock()
	if s.conn != nil {
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.conn.Close()
		s.connected = false
	}
	s.connMu.Unlock()

	s.wg.Wait()

	s.logger.Info("Gateway stream disconnected")
	return nil
}

// IsConnected returns connection status
func (s *Stream) IsConnected() bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.connected
}

func (s *Stream) write(msg []byte) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return errors.New("not connected")
	}
	return s.conn.WriteMessage(websocket.TextMessage, msg)
}

func (s *Stream) readLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && s.onError != nil {
				s.onError(fmt.Errorf("read error: %w", err))
			}
			s.handleDisconnect()
			return
		}

		s.handleMessage(message)
	}
}

// handleMessage dispatches live order frames; system and heartbeat frames are ignored
func (s *Stream) handleMessage(data []byte) {
	var msg streamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.WithError(err).Debug("Ignoring non-JSON stream frame")
		return
	}
	if msg.Topic != TopicLiveOrders || len(msg.Args) == 0 {
		return
	}

	var orders []LiveOrder
	if err := decodeJSON(string(msg.Args), &orders); err != nil {
		s.logger.WithError(err).Warn("Malformed live order frame")
		return
	}

	for _, o := range orders {
		if s.onOrder != nil {
			s.onOrder(TradeFromLiveOrder(o))
		}
	}
}

// pingLoop sends the gateway heartbeat
func (s *Stream) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if err := s.write([]byte(heartbeatTopic)); err != nil {
				if s.onError != nil {
					s.onError(fmt.Errorf("heartbeat error: %w", err))
				}
				s.handleDisconnect()
				return
			}
		}
	}
}

func (s *Stream) handleDisconnect() {
	s.connMu.Lock()
	wasConnected := s.connected
	s.connected = false
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connMu.Unlock()

	if wasConnected && s.onDisconnect != nil {
		s.onDisconnect()
	}
}
