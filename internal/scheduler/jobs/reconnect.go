package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/ibbridge/internal/scheduler"
	"github.com/wonny/ibbridge/pkg/logger"
)

// Reconnector restarts a broker session that is down
type Reconnector interface {
	IsConnected() bool
	Reconnect(ctx context.Context) error
}

// ReconnectJob brings the broker session back after a failed connect or after a
// keepalive found the gateway session gone (the bridge stops its loop then)
type ReconnectJob struct {
	session  Reconnector
	schedule string
	logger   *logger.Logger
}

// NewReconnectJob creates a new reconnect job
func NewReconnectJob(session Reconnector, schedule string, log *logger.Logger) *ReconnectJob {
	return &ReconnectJob{
		session:  session,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *ReconnectJob) Name() string {
	return "gateway-reconnect"
}

// Schedule returns the cron schedule (default every 30 seconds)
func (j *ReconnectJob) Schedule() string {
	if j.schedule == "" {
		return "@every 30s"
	}
	return j.schedule
}

// Run reconnects when the session is down and skips otherwise
func (j *ReconnectJob) Run(ctx context.Context) error {
	if j.session.IsConnected() {
		return fmt.Errorf("%w: already connected", scheduler.ErrSkipped)
	}

	j.logger.Info("Broker session down, reconnecting")
	if err := j.session.Reconnect(ctx); err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}

	j.logger.Info("Broker session restored")
	return nil
}
