package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/ibbridge/internal/execution"
	"github.com/wonny/ibbridge/internal/gateway"
	"github.com/wonny/ibbridge/pkg/config"
	"github.com/wonny/ibbridge/pkg/httputil"
	"github.com/wonny/ibbridge/pkg/logger"
)

// connectTimeout bounds the first connect of one-shot commands
const connectTimeout = 15 * time.Second

// loadConfig loads the environment and applies the global flags
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if configFile != "" {
		if err := cfg.ApplyFile(configFile); err != nil {
			return nil, err
		}
	}
	if env != "" {
		cfg.Env = env
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// newBroker returns the gateway adapter, or the simulated broker with --sim
func newBroker(cfg *config.Config, log *logger.Logger) execution.Broker {
	if simulate {
		log.Warn("Using simulated broker, no orders reach Interactive Brokers")
		return execution.NewSimulatedBroker(time.Now())
	}
	return gateway.NewClient(cfg.Gateway, httputil.New(cfg, log), log)
}

// startBridge starts the session loop under ctx without waiting for the connect
func startBridge(ctx context.Context, cfg *config.Config, log *logger.Logger) (*execution.Service, error) {
	session := execution.NewSession(newBroker(cfg, log), log)
	if err := session.Start(ctx, cfg.Gateway.Host, cfg.Gateway.Port, cfg.Gateway.ClientID); err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	return execution.NewService(session, cfg.Bridge, cfg.Gateway.AccountID, log), nil
}

// connectBridge starts the session and waits for the first connect
func connectBridge(ctx context.Context, cfg *config.Config, log *logger.Logger) (*execution.Service, error) {
	svc, err := startBridge(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := svc.Session().WaitConnected(waitCtx); err != nil {
		return nil, fmt.Errorf("connect to %s:%d: %w", cfg.Gateway.Host, cfg.Gateway.Port, err)
	}
	return svc, nil
}

// oneShot loads config, connects and runs fn with a quiet logger on stderr
func oneShot(fn func(ctx context.Context, svc *execution.Service) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !verbose {
		cfg.LogLevel = "warn"
	}
	cfg.LogFormat = "console"
	log := logger.NewWithWriter(cfg, stderr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := connectBridge(ctx, cfg, log)
	if err != nil {
		return err
	}
	return fn(ctx, svc)
}
