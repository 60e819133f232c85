package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"papertrader/internal/models"
	"papertrader/internal/trading"
)

// addTradeCommands adds buy and sell commands.
func addTradeCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newTradeCmd(app, models.OrderSideBuy))
	rootCmd.AddCommand(newTradeCmd(app, models.OrderSideSell))
}

func newTradeCmd(app *App, side models.OrderSide) *cobra.Command {
	var portfolioID int64
	var limitPrice float64
	var stopPrice float64

	use := string(side)
	short := "Buy shares at market, or place a limit order"
	if side == models.OrderSideSell {
		short = "Sell shares at market, or place a limit/stop order"
	}

	cmd := &cobra.Command{
		Use:   use + " <symbol> <quantity>",
		Short: short,
		Long: fmt.Sprintf(`Place a %s order.

Without flags the order executes immediately at the last traded price.
With --limit or --stop the order is recorded as pending and fills when
the execution engine ('papertrader serve') observes a qualifying price.`, side),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol := strings.ToUpper(strings.TrimSpace(args[0]))
			qty, err := strconv.Atoi(args[1])
			if err != nil || qty <= 0 {
				return fmt.Errorf("invalid quantity %q", args[1])
			}
			if limitPrice > 0 && stopPrice > 0 {
				return fmt.Errorf("--limit and --stop are mutually exclusive")
			}
			if stopPrice > 0 && side == models.OrderSideBuy {
				return fmt.Errorf("stop orders are sell-only")
			}

			svc, err := app.tradingService()
			if err != nil {
				return err
			}

			in := trading.PlaceOrderInput{
				PortfolioID: portfolioID,
				Symbol:      symbol,
				Side:        side,
				Type:        models.OrderTypeMarket,
				Quantity:    qty,
			}
			switch {
			case limitPrice > 0:
				in.Type = models.OrderTypeLimit
				in.LimitPrice = &limitPrice
			case stopPrice > 0:
				in.Type = models.OrderTypeStop
				in.StopPrice = &stopPrice
			}

			order, err := svc.PlaceOrder(cmd.Context(), in)
			if err != nil {
				return err
			}

			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(order)
			}

			if order.Status == models.OrderStatusFilled {
				output.Success("Filled: %s %d %s @ %s",
					order.Side, order.Quantity, order.Symbol, FormatMoney(*order.PriceAtExecution))
			} else {
				output.Info("Pending: %s %d %s (%s), order %s",
					order.Side, order.Quantity, order.Symbol, describeTrigger(order), order.ID)
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&portfolioID, "portfolio", 1, "portfolio ID")
	cmd.Flags().Float64Var(&limitPrice, "limit", 0, "limit price (creates a pending limit order)")
	if side == models.OrderSideSell {
		cmd.Flags().Float64Var(&stopPrice, "stop", 0, "stop price (creates a pending stop-loss order)")
	}
	return cmd
}

func describeTrigger(order *models.Order) string {
	switch order.Type {
	case models.OrderTypeLimit:
		if order.LimitPrice != nil {
			if order.Side == models.OrderSideBuy {
				return "limit, fills at or below " + FormatMoney(*order.LimitPrice)
			}
			return "limit, fills at or above " + FormatMoney(*order.LimitPrice)
		}
	case models.OrderTypeStop:
		if order.StopPrice != nil {
			return "stop, fills at or below " + FormatMoney(*order.StopPrice)
		}
	}
	return string(order.Type)
}
