package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/ibbridge/internal/contracts"
	"github.com/wonny/ibbridge/internal/gateway"
	"github.com/wonny/ibbridge/pkg/httputil"
	"github.com/wonny/ibbridge/pkg/logger"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream live order updates",
	Long: `Subscribes to the gateway websocket and prints live order updates
until interrupted. Needs a logged-in gateway; not available with --sim.

Example:
  ibbridge watch`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if simulate {
		return errors.New("watch streams from the gateway and cannot run with --sim")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !verbose {
		cfg.LogLevel = "warn"
	}
	cfg.LogFormat = "console"
	log := logger.NewWithWriter(cfg, stderr)

	stream := gateway.NewStream(cfg.Gateway, httputil.New(cfg, log), log)

	done := make(chan struct{})
	stream.OnOrder(func(t contracts.Trade) {
		fmt.Fprintf(stdout, "%s  ", time.Now().Format("15:04:05"))
		PrintTableRow(tradeRow(t), []int{12, 10, 5, 6, 12, 8, 8, 9, 10})
	})
	stream.OnError(func(err error) {
		PrintError(err.Error())
	})
	stream.OnDisconnect(func() {
		close(done)
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := stream.Connect(ctx); err != nil {
		return fmt.Errorf("connect stream: %w", err)
	}

	PrintInfo(fmt.Sprintf("Watching live orders on %s (Ctrl+C to stop)", cfg.Gateway.StreamURL()))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case <-quit:
	case <-done:
		PrintWarning("Gateway closed the stream")
	}
	return stream.Disconnect()
}
