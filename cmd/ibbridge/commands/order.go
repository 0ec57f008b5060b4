package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/wonny/ibbridge/internal/contracts"
	"github.com/wonny/ibbridge/internal/execution"
)

// orderCmd represents the order command
var orderCmd = &cobra.Command{
	Use:   "order",
	Short: "Place one order",
	Long: `Places one order or composite order and prints the acknowledged legs.

Order types:
  Market   - market order
  Limit    - limit order (--limit)
  Stop     - stop order (--stop)
  Trail    - limit entry (--limit) with a trailing-stop child (--trail)
  Bracket  - limit entry (--limit) with stop-loss and take-profit children
             (--sl-offset, --tp-offset; defaults 3 and 5)

Example:
  ibbridge order --symbol NVDA --qty 10 --type Limit --limit 120.5
  ibbridge order --symbol TSLA --action sell --type Market --qty 5
  ibbridge order --symbol NVDA --type Bracket --limit 120 --sl-offset 2
  ibbridge order --symbol SPX --option --expiry 20251219 --strike 5000 --right P --limit 12.5`,
	RunE: runOrder,
}

var (
	orderInstrument instrumentFlags
	orderAction     string
	orderType       string
	orderQty        int
	orderLimit      string
	orderStop       string
	orderTrail      string
	orderSLOffset   string
	orderTPOffset   string
	orderTIF        string
)

func init() {
	rootCmd.AddCommand(orderCmd)

	// Flags
	orderInstrument.bind(orderCmd)
	orderCmd.Flags().StringVar(&orderAction, "action", "BUY", "BUY or SELL")
	orderCmd.Flags().StringVarP(&orderType, "type", "t", "Limit", "Market|Limit|Stop|Trail|Bracket")
	orderCmd.Flags().IntVarP(&orderQty, "qty", "q", 1, "quantity")
	orderCmd.Flags().StringVar(&orderLimit, "limit", "", "limit price")
	orderCmd.Flags().StringVar(&orderStop, "stop", "", "stop price")
	orderCmd.Flags().StringVar(&orderTrail, "trail", "", "trailing amount")
	orderCmd.Flags().StringVar(&orderSLOffset, "sl-offset", "", "bracket stop-loss offset")
	orderCmd.Flags().StringVar(&orderTPOffset, "tp-offset", "", "bracket take-profit offset")
	orderCmd.Flags().StringVar(&orderTIF, "tif", contracts.TimeInForceDay, "time in force")
}

func runOrder(cmd *cobra.Command, args []string) error {
	req, err := orderInstrument.request()
	if err != nil {
		return err
	}
	intent, err := orderIntent()
	if err != nil {
		return err
	}

	return oneShot(func(ctx context.Context, svc *execution.Service) error {
		sub, err := svc.PlaceOrder(ctx, req, intent)
		if err != nil {
			PrintError(contracts.Message(err))
			return err
		}

		PrintSuccess(fmt.Sprintf("%s %s %s x%d placed", intent.Action, sub.Contract.Contract.Symbol, intent.Kind, intent.Quantity))
		printHandles(sub.Handles)
		return nil
	})
}

func orderIntent() (contracts.OrderIntent, error) {
	action, err := contracts.ParseAction(orderAction)
	if err != nil {
		return contracts.OrderIntent{}, err
	}
	kind, err := contracts.ParseOrderKind(orderType)
	if err != nil {
		return contracts.OrderIntent{}, err
	}

	intent := contracts.OrderIntent{
		Action:   action,
		Quantity: orderQty,
		Kind:     kind,
		TIF:      orderTIF,
	}

	prices := []struct {
		name string
		raw  string
		dst  *decimal.NullDecimal
	}{
		{"limit", orderLimit, &intent.LimitPrice},
		{"stop", orderStop, &intent.StopPrice},
		{"trail", orderTrail, &intent.TrailAmount},
		{"sl-offset", orderSLOffset, &intent.StopLossOffset},
		{"tp-offset", orderTPOffset, &intent.TakeProfitOffset},
	}
	for _, p := range prices {
		if *p.dst, err = parseDecimalFlag(p.name, p.raw); err != nil {
			return contracts.OrderIntent{}, err
		}
	}
	return intent, nil
}

func printHandles(handles []contracts.OrderHandle) {
	columns := []string{"OrderID", "Parent", "Action", "Type", "Qty", "Limit", "Aux", "Status"}
	widths := []int{8, 8, 6, 6, 6, 10, 10, 10}

	PrintTableHeader(columns, widths)
	for _, h := range handles {
		parent := "-"
		if h.ParentID != 0 {
			parent = strconv.FormatInt(h.ParentID, 10)
		}
		PrintTableRow([]string{
			strconv.FormatInt(h.OrderID, 10),
			parent,
			string(h.Action),
			string(h.OrderType),
			strconv.Itoa(h.Quantity),
			formatNull(h.LimitPrice),
			formatNull(h.AuxPrice),
			string(h.Status),
		}, widths)
	}
}
