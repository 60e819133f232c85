package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"papertrader/internal/models"
)

// addOrderCommands adds order inspection and cancellation commands.
func addOrderCommands(rootCmd *cobra.Command, app *App) {
	ordersCmd := &cobra.Command{
		Use:   "orders",
		Short: "Inspect and cancel orders",
	}

	ordersCmd.AddCommand(newOrdersListCmd(app))
	ordersCmd.AddCommand(newOrdersCancelCmd(app))

	rootCmd.AddCommand(ordersCmd)
}

func newOrdersListCmd(app *App) *cobra.Command {
	var portfolioID int64
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a portfolio's orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireLedger(); err != nil {
				return err
			}

			orders, err := app.Ledger.FindOrdersByPortfolio(cmd.Context(), portfolioID, models.OrderStatus(status))
			if err != nil {
				return err
			}

			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(orders)
			}

			if len(orders) == 0 {
				output.Dim("No orders")
				return nil
			}

			table := NewTable(output, "ORDER", "SYMBOL", "SIDE", "TYPE", "QTY", "TRIGGER", "STATUS", "FILL PRICE")
			for i := range orders {
				o := &orders[i]
				trigger := "-"
				if o.LimitPrice != nil {
					trigger = FormatMoney(*o.LimitPrice)
				} else if o.StopPrice != nil {
					trigger = FormatMoney(*o.StopPrice)
				}
				fill := "-"
				if o.PriceAtExecution != nil {
					fill = FormatMoney(*o.PriceAtExecution)
				}
				table.AddRow(o.ID, o.Symbol, string(o.Side), string(o.Type),
					strconv.Itoa(o.Quantity), trigger, string(o.Status), fill)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().Int64Var(&portfolioID, "portfolio", 1, "portfolio ID")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending, filled, cancelled)")
	return cmd
}

func newOrdersCancelCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <order-id>",
		Short: "Cancel a pending order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.tradingService()
			if err != nil {
				return err
			}

			if err := svc.CancelOrder(cmd.Context(), args[0]); err != nil {
				return err
			}

			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{"orderId": args[0], "status": string(models.OrderStatusCancelled)})
			}
			output.Success("Cancelled order %s", args[0])
			return nil
		},
	}
}
