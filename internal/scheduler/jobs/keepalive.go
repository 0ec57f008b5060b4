package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/wonny/ibbridge/internal/contracts"
	"github.com/wonny/ibbridge/internal/scheduler"
	"github.com/wonny/ibbridge/pkg/logger"
)

// Keepaliver pings the broker session through the bridge loop
type Keepaliver interface {
	IsConnected() bool
	Keepalive(ctx context.Context) error
}

// KeepaliveJob keeps the gateway brokerage session from timing out
type KeepaliveJob struct {
	bridge   Keepaliver
	schedule string
	logger   *logger.Logger
}

// NewKeepaliveJob creates a new keepalive job
func NewKeepaliveJob(bridge Keepaliver, schedule string, log *logger.Logger) *KeepaliveJob {
	return &KeepaliveJob{
		bridge:   bridge,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *KeepaliveJob) Name() string {
	return "gateway-keepalive"
}

// Schedule returns the cron schedule (default every 55 seconds)
func (j *KeepaliveJob) Schedule() string {
	if j.schedule == "" {
		return "@every 55s"
	}
	return j.schedule
}

// Run tickles the gateway; a disconnected bridge skips the run
func (j *KeepaliveJob) Run(ctx context.Context) error {
	if !j.bridge.IsConnected() {
		return fmt.Errorf("%w: bridge not connected", scheduler.ErrSkipped)
	}

	if err := j.bridge.Keepalive(ctx); err != nil {
		if errors.Is(err, contracts.ErrNotConnected) {
			// the bridge stops its loop on a lost session; gateway-reconnect restores it
			j.logger.WithError(err).Warn("Gateway session not connected")
			return fmt.Errorf("%w: %v", scheduler.ErrSkipped, err)
		}
		return fmt.Errorf("keepalive: %w", err)
	}

	j.logger.Debug("Gateway session tickled")
	return nil
}
