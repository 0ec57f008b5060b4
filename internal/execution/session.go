package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/wonny/ibbridge/internal/contracts"
	"github.com/wonny/ibbridge/pkg/logger"
)

// ErrAlreadyStarted is returned by Start while a connect is in flight or the loop runs
var ErrAlreadyStarted = errors.New("session already started")

const commandQueueSize = 64

// command is one closure scheduled on the loop goroutine
type command struct {
	ctx context.Context // caller context; a command whose caller left is skipped
	op  string
	run func(ctx context.Context, b Broker)
}

// Session owns the broker adapter and the goroutine that drives it.
// Only the loop goroutine calls the broker; every other goroutine goes through Call.
type Session struct {
	broker   Broker
	logger   *logger.Logger
	commands chan command

	connected atomic.Bool
	started   atomic.Bool
	nextID    atomic.Int64

	lost error // set on the loop when the broker reports its session gone

	mu          sync.Mutex
	base        context.Context // loop context of the last Start
	info        SessionInfo
	attempt     chan struct{} // closed when the current connect attempt finishes
	attemptDone bool
	lastErr     error
	loopDone    chan struct{} // closed when the running loop exits
}

// SessionInfo describes the endpoint of a session
type SessionInfo struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	ClientID  int    `json:"client_id"`
	Connected bool   `json:"connected"`
}

// NewSession creates an unconnected session around broker
func NewSession(broker Broker, log *logger.Logger) *Session {
	done := make(chan struct{})
	close(done)
	return &Session{
		broker:   broker,
		logger:   log.Component("session"),
		commands: make(chan command, commandQueueSize),
		attempt:  make(chan struct{}),
		loopDone: done,
	}
}

// Start spawns the loop goroutine: connect, then serve commands until ctx is cancelled.
// It returns immediately. A failed connect is logged and Start may be called again.
func (s *Session) Start(ctx context.Context, host string, port, clientID int) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	s.mu.Lock()
	if s.attemptDone {
		s.attempt = make(chan struct{})
		s.attemptDone = false
	}
	s.lastErr = nil
	s.base = ctx
	s.info = SessionInfo{Host: host, Port: port, ClientID: clientID}
	loopDone := make(chan struct{})
	s.loopDone = loopDone
	s.mu.Unlock()

	go s.run(ctx, host, port, clientID, loopDone)
	return nil
}

func (s *Session) run(ctx context.Context, host string, port, clientID int, loopDone chan struct{}) {
	defer close(loopDone)

	log := s.logger.WithFields(map[string]interface{}{
		"host":      host,
		"port":      port,
		"client_id": clientID,
	})

	// leftovers from a previous loop belong to callers that already got NotConnected
	s.drain()
	s.lost = nil

	firstID, err := s.connect(ctx, host, port, clientID)
	if err != nil {
		log.WithError(err).Error("Broker connect failed")
		s.started.Store(false)
		s.finishAttempt(err)
		return
	}

	s.nextID.Store(firstID)
	s.connected.Store(true)
	s.finishAttempt(nil)
	log.WithField("next_id", firstID).Info("Broker session connected")

	for {
		select {
		case <-ctx.Done():
			s.connected.Store(false)
			dropped := s.drain()
			s.started.Store(false)
			log.WithField("dropped", dropped).Info("Broker session loop stopped")
			return
		case cmd := <-s.commands:
			s.execute(ctx, cmd)
			if lost := s.lost; lost != nil {
				s.connected.Store(false)
				dropped := s.drain()
				log.WithError(lost).WithField("dropped", dropped).Warn("Broker session lost, loop stopped")
				s.finishAttempt(lost)
				s.started.Store(false)
				return
			}
		}
	}
}

// markLost stops the loop after the current command. Loop goroutine only.
func (s *Session) markLost(err error) {
	s.lost = err
}

func (s *Session) connect(ctx context.Context, host string, port, clientID int) (id int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("connect panicked: %v", r)
		}
	}()
	return s.broker.Connect(ctx, host, port, clientID)
}

// execute runs one command; a panic is logged and the loop continues
func (s *Session) execute(loopCtx context.Context, cmd command) {
	if cmd.ctx != nil && cmd.ctx.Err() != nil {
		s.logger.WithField("op", cmd.op).Debug("Skipping command, caller gone")
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(map[string]interface{}{
				"op":    cmd.op,
				"panic": r,
			}).Error("Recovered from panic in session loop")
		}
	}()

	cmd.run(loopCtx, s.broker)
}

// drain discards queued commands so a later Start never runs them
func (s *Session) drain() int {
	n := 0
	for {
		select {
		case <-s.commands:
			n++
		default:
			return n
		}
	}
}

func (s *Session) finishAttempt(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
	if !s.attemptDone {
		close(s.attempt)
		s.attemptDone = true
	}
}

// Reconnect restarts a stopped loop on the endpoint and context of the last Start,
// then waits for the connect attempt. ctx bounds only the wait.
func (s *Session) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	base, info := s.base, s.info
	s.mu.Unlock()

	if base == nil {
		return &contracts.Error{Kind: contracts.KindNotConnected, Op: "reconnect", Msg: "session was never started"}
	}
	if err := base.Err(); err != nil {
		return &contracts.Error{Kind: contracts.KindNotConnected, Op: "reconnect", Msg: "session stopped", Err: err}
	}

	if err := s.Start(base, info.Host, info.Port, info.ClientID); err != nil && !errors.Is(err, ErrAlreadyStarted) {
		return err
	}
	return s.WaitConnected(ctx)
}

// IsConnected reports whether the loop is connected and serving commands
func (s *Session) IsConnected() bool {
	return s.connected.Load()
}

// WaitConnected blocks until the current connect attempt finishes or ctx is done
func (s *Session) WaitConnected(ctx context.Context) error {
	s.mu.Lock()
	attempt := s.attempt
	s.mu.Unlock()

	select {
	case <-attempt:
	case <-ctx.Done():
		return ctx.Err()
	}

	if s.IsConnected() {
		return nil
	}

	s.mu.Lock()
	lastErr := s.lastErr
	s.mu.Unlock()
	return &contracts.Error{Kind: contracts.KindNotConnected, Op: "connect", Msg: "broker session not connected", Err: lastErr}
}

// NextRequestID returns a new order request id; ids increase monotonically
func (s *Session) NextRequestID() int64 {
	return s.nextID.Add(1) - 1
}

// Info returns the endpoint and connection state
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	info := s.info
	s.mu.Unlock()
	info.Connected = s.IsConnected()
	return info
}

func (s *Session) done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loopDone
}
