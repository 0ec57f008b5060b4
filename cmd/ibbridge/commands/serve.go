package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/ibbridge/internal/api"
	"github.com/wonny/ibbridge/internal/api/handlers"
	"github.com/wonny/ibbridge/internal/scheduler"
	"github.com/wonny/ibbridge/internal/scheduler/jobs"
	"github.com/wonny/ibbridge/pkg/logger"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Starts the order bridge HTTP API and the gateway keepalive scheduler.

Endpoints:
  GET  /health           - Health check with scheduler stats
  POST /buy_order        - Buy (Market|Limit|Stop|Trail|Bracket)
  POST /sell_order       - Sell
  POST /buy_trailing     - Buy with a trailing stop child
  POST /buy_bracket      - Buy with stop-loss and take-profit children
  GET  /orders           - Order board
  GET  /atm_option       - At-the-money option (?symbol=&right=&expiry=)
  GET  /net_liquidation  - Account net liquidation value

Example:
  ibbridge serve
  ibbridge serve --port 8080
  ibbridge serve --sim`,
	RunE: runServe,
}

var (
	servePort string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	// Flags
	serveCmd.Flags().StringVar(&servePort, "port", "", "API port (default: PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	// 1. Load config
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != "" {
		cfg.Port = servePort
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	log.WithFields(map[string]interface{}{
		"port":    cfg.Port,
		"env":     cfg.Env,
		"gateway": cfg.Gateway.BaseURL(),
	}).Info("Initializing order bridge")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Start the broker session; a failed connect is retried by the reconnect job
	svc, err := startBridge(ctx, cfg, log)
	if err != nil {
		return err
	}

	// 4. Scheduler
	sched := scheduler.New(log)
	if err := sched.AddJob(jobs.NewKeepaliveJob(svc, cfg.KeepaliveSchedule, log.Component("keepalive"))); err != nil {
		return fmt.Errorf("add keepalive job: %w", err)
	}
	if err := sched.AddJob(jobs.NewReconnectJob(svc.Session(), cfg.ReconnectSchedule, log.Component("reconnect"))); err != nil {
		return fmt.Errorf("add reconnect job: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	// 5. Handlers, router, server
	bridgeHandler := handlers.NewBridgeHandler(svc, log)
	healthHandler := handlers.NewHealthHandler(svc, sched)
	router := api.NewRouter(bridgeHandler, healthHandler, cfg.CORSOrigins, log)
	server := api.New(cfg, log, router)

	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	PrintSuccess(fmt.Sprintf("Order bridge running on http://localhost:%s", cfg.Port))
	PrintInfo("Press Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
