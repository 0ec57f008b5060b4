package execution

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/wonny/ibbridge/internal/contracts"
)

// command states; the loop and the caller race to move a command out of pending
const (
	cmdPending int32 = iota
	cmdRunning
	cmdAbandoned
)

type callResult[T any] struct {
	value T
	err   error
}

// Call runs fn on the session loop goroutine and blocks until it returns.
//
// A disconnected session yields contracts.NotConnected without scheduling anything.
// ctx bounds the wait only: once the loop has picked fn up, fn runs to completion
// under the session's own context and a caller that stops waiting gets a
// KindTimeout error whose outcome is unknown. fn must use the Broker it is handed
// and must not call Call itself (the loop would wait on itself).
func Call[T any](ctx context.Context, s *Session, op string, fn func(ctx context.Context, b Broker) (T, error)) (T, error) {
	return call(ctx, s, op, fn, false)
}

// callToCompletion is Call for operations that must report their real outcome,
// such as order placement: ctx may still withdraw fn while it is queued, but once
// the loop runs it the caller waits for the result.
func callToCompletion[T any](ctx context.Context, s *Session, op string, fn func(ctx context.Context, b Broker) (T, error)) (T, error) {
	return call(ctx, s, op, fn, true)
}

func call[T any](ctx context.Context, s *Session, op string, fn func(ctx context.Context, b Broker) (T, error), complete bool) (T, error) {
	var zero T

	if !s.IsConnected() {
		return zero, contracts.NotConnected(op)
	}

	done := s.done()
	result := make(chan callResult[T], 1)
	state := new(atomic.Int32)

	cmd := command{
		ctx: ctx,
		op:  op,
		run: func(loopCtx context.Context, b Broker) {
			if !state.CompareAndSwap(cmdPending, cmdRunning) {
				return
			}
			defer func() {
				if r := recover(); r != nil {
					result <- callResult[T]{err: contracts.Rejection(op, fmt.Errorf("panic: %v", r))}
				}
			}()
			v, err := fn(loopCtx, b)
			result <- callResult[T]{value: v, err: contracts.WithOp(op, err)}
		},
	}

	select {
	case s.commands <- cmd:
	case <-done:
		return zero, contracts.NotConnected(op)
	case <-ctx.Done():
		return zero, contracts.Timeout(op, "request withdrawn before it reached the broker", ctx.Err())
	}

	select {
	case r := <-result:
		return r.value, r.err
	case <-done:
		return stopped(op, result)
	case <-ctx.Done():
		if state.CompareAndSwap(cmdPending, cmdAbandoned) {
			return zero, contracts.Timeout(op, "request withdrawn before it reached the broker", ctx.Err())
		}
		if !complete {
			return zero, contracts.Timeout(op, "stopped waiting for the broker, outcome unknown", ctx.Err())
		}
	}

	// fn is running on the loop; the loop finishes it before it can exit
	select {
	case r := <-result:
		return r.value, r.err
	case <-done:
		return stopped(op, result)
	}
}

// stopped reports the result of a command whose loop has exited
func stopped[T any](op string, result <-chan callResult[T]) (T, error) {
	select {
	case r := <-result:
		return r.value, r.err
	default:
		var zero T
		return zero, contracts.NotConnected(op)
	}
}
