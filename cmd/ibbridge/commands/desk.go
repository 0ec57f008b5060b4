package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wonny/ibbridge/internal/desk"
	"github.com/wonny/ibbridge/internal/scheduler"
	"github.com/wonny/ibbridge/internal/scheduler/jobs"
	"github.com/wonny/ibbridge/pkg/logger"
)

// deskCmd represents the desk command
var deskCmd = &cobra.Command{
	Use:   "desk",
	Short: "Interactive trading desk",
	Long: `Opens the terminal trading desk.

The desk has fields for ticker, quantity, limit, trailing amount, strike and
expiry, an option toggle and a call/put toggle. Function keys fill the ticker
from the quick symbols (DESK_SYMBOLS). The order board refreshes every
DESK_REFRESH. Logs go to LOG_FILE so they do not draw over the desk.

Keys:
  tab / shift+tab  move between fields
  F1-F12           quick symbols
  ctrl+p           price
  ctrl+b / ctrl+x  buy / sell (limit)
  ctrl+k           buy + bracket
  ctrl+t           buy + trailing
  ctrl+a           ATM option (fills strike and expiry)
  ctrl+n           net liquidation
  ctrl+o / ctrl+r  option / call-put toggles
  esc              quit

Example:
  ibbridge desk
  ibbridge desk --sim`,
	RunE: runDesk,
}

func init() {
	rootCmd.AddCommand(deskCmd)
}

func runDesk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	log := logger.NewWithWriter(cfg, logFile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := startBridge(ctx, cfg, log)
	if err != nil {
		return err
	}

	// the desk stays open through gateway restarts
	sched := scheduler.New(log)
	if err := sched.AddJob(jobs.NewKeepaliveJob(svc, cfg.KeepaliveSchedule, log.Component("keepalive"))); err != nil {
		return fmt.Errorf("add keepalive job: %w", err)
	}
	if err := sched.AddJob(jobs.NewReconnectJob(svc.Session(), cfg.ReconnectSchedule, log.Component("reconnect"))); err != nil {
		return fmt.Errorf("add reconnect job: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	return desk.Run(desk.New(svc, cfg.Desk, log))
}
