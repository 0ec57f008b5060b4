package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/ibbridge/internal/contracts"
	"github.com/wonny/ibbridge/internal/execution"
)

var (
	priceCmd = &cobra.Command{
		Use:   "price",
		Short: "Quote an instrument",
		Long: `Qualifies the instrument and polls its quote until a market price
(last, else bid/ask mid, else close) is available.

Example:
  ibbridge price --symbol NVDA
  ibbridge price --symbol SPX --option --expiry 20251219 --strike 5000 --right C`,
		RunE: runPrice,
	}

	atmCmd = &cobra.Command{
		Use:   "atm",
		Short: "Find the at-the-money option",
		Long: `Finds the option whose strike is nearest the underlying price and quotes it.
Without --expiry the nearest listed expiry is used.

Example:
  ibbridge atm --symbol NVDA
  ibbridge atm --symbol SPX --right P --expiry 20251219`,
		RunE: runATM,
	}

	netliqCmd = &cobra.Command{
		Use:   "netliq",
		Short: "Show account net liquidation value",
		RunE:  runNetLiq,
	}

	ordersCmd = &cobra.Command{
		Use:   "orders",
		Short: "Show the order board",
		RunE:  runOrders,
	}
)

var (
	priceInstrument instrumentFlags
	atmSymbol       string
	atmRight        string
	atmExpiry       string
)

func init() {
	rootCmd.AddCommand(priceCmd)
	rootCmd.AddCommand(atmCmd)
	rootCmd.AddCommand(netliqCmd)
	rootCmd.AddCommand(ordersCmd)

	// Flags
	priceInstrument.bind(priceCmd)

	atmCmd.Flags().StringVarP(&atmSymbol, "symbol", "s", "", "underlying symbol (required)")
	atmCmd.Flags().StringVar(&atmRight, "right", "C", "option right C|P")
	atmCmd.Flags().StringVar(&atmExpiry, "expiry", "", "expiry YYYYMMDD (default: nearest)")
	_ = atmCmd.MarkFlagRequired("symbol")
}

func runPrice(cmd *cobra.Command, args []string) error {
	req, err := priceInstrument.request()
	if err != nil {
		return err
	}

	return oneShot(func(ctx context.Context, svc *execution.Service) error {
		q, err := svc.Price(ctx, req)
		if err != nil {
			PrintError(contracts.Message(err))
			return err
		}

		PrintKeyValue("Symbol", req.Symbol, 8)
		PrintKeyValue("Price", formatNull(q.MarketPrice()), 8)
		PrintKeyValue("Last", formatNull(q.Last), 8)
		PrintKeyValue("Bid", formatNull(q.Bid), 8)
		PrintKeyValue("Ask", formatNull(q.Ask), 8)
		PrintKeyValue("Close", formatNull(q.Close), 8)
		return nil
	})
}

func runATM(cmd *cobra.Command, args []string) error {
	right, err := contracts.ParseRight(atmRight)
	if err != nil {
		return err
	}

	return oneShot(func(ctx context.Context, svc *execution.Service) error {
		q, err := svc.ResolveATM(ctx, atmSymbol, right, atmExpiry)
		if err != nil {
			PrintError(contracts.Message(err))
			return err
		}

		PrintSuccess(fmt.Sprintf("ATM %s %s %s %s", q.Symbol, q.Expiry, q.Right, q.Strike.String()))
		PrintKeyValue("Underlying", q.UnderlyingPrice.StringFixed(2), 12)
		PrintKeyValue("Bid", formatNull(q.Bid), 12)
		PrintKeyValue("Ask", formatNull(q.Ask), 12)
		PrintKeyValue("Mid", formatNull(q.Mid), 12)
		PrintKeyValue("TradingClass", q.TradingClass, 12)
		PrintKeyValue("ConID", fmt.Sprintf("%d", q.ConID), 12)
		return nil
	})
}

func runNetLiq(cmd *cobra.Command, args []string) error {
	return oneShot(func(ctx context.Context, svc *execution.Service) error {
		value, err := svc.NetLiquidation(ctx)
		if err != nil {
			PrintError(contracts.Message(err))
			return err
		}
		if !value.Valid {
			PrintWarning("Account reports no NetLiquidation value")
			return nil
		}
		PrintKeyValue("NetLiquidation", value.Decimal.StringFixed(2), 14)
		return nil
	})
}

func runOrders(cmd *cobra.Command, args []string) error {
	return oneShot(func(ctx context.Context, svc *execution.Service) error {
		trades, err := svc.Orders(ctx)
		if err != nil {
			PrintError(contracts.Message(err))
			return err
		}
		if len(trades) == 0 {
			PrintInfo("No orders")
			return nil
		}
		printTrades(trades)
		return nil
	})
}

func printTrades(trades []contracts.Trade) {
	columns := []string{"OrderID", "Symbol", "Side", "Type", "Status", "Qty", "Filled", "Remaining", "AvgPrice"}
	widths := []int{12, 10, 5, 6, 12, 8, 8, 9, 10}

	PrintTableHeader(columns, widths)
	for _, t := range trades {
		PrintTableRow(tradeRow(t), widths)
	}
}

func tradeRow(t contracts.Trade) []string {
	return []string{
		t.OrderID,
		t.Symbol,
		string(t.Action),
		t.OrderType,
		t.Status,
		t.Quantity.String(),
		t.Filled.String(),
		t.Remaining.String(),
		t.AvgFillPrice.StringFixed(2),
	}
}
