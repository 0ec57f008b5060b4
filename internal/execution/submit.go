package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/ibbridge/internal/contracts"
	"github.com/wonny/ibbridge/pkg/logger"
)

// Submitter places order plans through the session loop
type Submitter struct {
	session  *Session
	resolver *Resolver
	legDelay time.Duration
	logger   *logger.Logger
}

// NewSubmitter creates a submitter that waits legDelay between composite legs
func NewSubmitter(session *Session, resolver *Resolver, legDelay time.Duration, log *logger.Logger) *Submitter {
	return &Submitter{
		session:  session,
		resolver: resolver,
		legDelay: legDelay,
		logger:   log.Component("submitter"),
	}
}

// Submit qualifies the plan's instrument and places its legs in order, as one loop command
func (s *Submitter) Submit(ctx context.Context, plan contracts.OrderPlan) (contracts.Submission, error) {
	if !s.session.IsConnected() {
		return contracts.Submission{}, contracts.NotConnected("submit")
	}
	if len(plan.Legs) == 0 {
		return contracts.Submission{}, &contracts.Error{Kind: contracts.KindValidation, Op: "submit", Msg: "order plan has no legs"}
	}

	// a placed order must never be reported as failed, so the wait outlives ctx
	sub, err := callToCompletion(ctx, s.session, "submit", func(ctx context.Context, b Broker) (contracts.Submission, error) {
		return s.place(ctx, b, plan)
	})
	if ctx.Err() != nil && contracts.KindOf(err) != contracts.KindTimeout {
		s.logger.WithField("legs", len(plan.Legs)).Warn("Caller stopped waiting, submission finished anyway")
	}
	return sub, err
}

// place runs on the loop goroutine
func (s *Submitter) place(ctx context.Context, b Broker, plan contracts.OrderPlan) (contracts.Submission, error) {
	qc, err := s.resolver.Qualify(ctx, b, s.resolver.Contract(plan.Instrument))
	if err != nil {
		return contracts.Submission{}, err
	}

	sub := contracts.Submission{Contract: qc, Handles: make([]contracts.OrderHandle, 0, len(plan.Legs))}

	for i, leg := range plan.Legs {
		if i > 0 {
			if err := sleep(ctx, s.legDelay); err != nil {
				return contracts.Submission{}, contracts.Rejection("submit", fmt.Errorf("interrupted before leg %d: %w", leg.ID, err))
			}
		}

		handle, err := b.PlaceOrder(ctx, qc, leg)
		if err != nil {
			s.logger.WithFields(map[string]interface{}{
				"symbol":     qc.Contract.Symbol,
				"order_id":   leg.ID,
				"order_type": leg.OrderType,
				"error":      err.Error(),
			}).Error("Order leg rejected")

			var typed *contracts.Error
			if errors.As(err, &typed) {
				return contracts.Submission{}, err
			}
			return contracts.Submission{}, contracts.Rejection("submit", err)
		}

		s.logger.WithFields(map[string]interface{}{
			"symbol":     qc.Contract.Symbol,
			"order_id":   handle.OrderID,
			"parent_id":  handle.ParentID,
			"action":     handle.Action,
			"order_type": handle.OrderType,
			"qty":        handle.Quantity,
			"transmit":   leg.Transmit,
		}).Info("Order leg placed")

		sub.Handles = append(sub.Handles, handle)
	}

	if ack, ok := b.(acknowledger); ok {
		for i, h := range sub.Handles {
			if final, found := ack.Acknowledged(h.OrderID); found {
				sub.Handles[i] = final
			}
		}
	}

	return sub, nil
}

// acknowledger is implemented by brokers that transmit a group's legs together
// and learn the broker ids of held legs only once the group is sent.
type acknowledger interface {
	Acknowledged(orderID int64) (contracts.OrderHandle, bool)
}
