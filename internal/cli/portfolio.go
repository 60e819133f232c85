package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"papertrader/internal/trading"
)

// addPortfolioCommands adds portfolio management commands.
func addPortfolioCommands(rootCmd *cobra.Command, app *App) {
	portfolioCmd := &cobra.Command{
		Use:   "portfolio",
		Short: "Manage paper trading portfolios",
	}

	portfolioCmd.AddCommand(newPortfolioCreateCmd(app))
	portfolioCmd.AddCommand(newPortfolioShowCmd(app))
	portfolioCmd.AddCommand(newPortfolioHistoryCmd(app))

	rootCmd.AddCommand(portfolioCmd)
}

func newPortfolioCreateCmd(app *App) *cobra.Command {
	var userID string
	var name string
	var balance float64

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new portfolio with a starting cash balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireLedger(); err != nil {
				return err
			}
			if balance <= 0 {
				return fmt.Errorf("starting balance must be positive")
			}

			p, err := app.Ledger.CreatePortfolio(cmd.Context(), userID, name, balance)
			if err != nil {
				return err
			}

			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(p)
			}
			output.Success("Created portfolio %d (%s) with %s cash", p.ID, p.Name, FormatMoney(p.Balance))
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "local", "owner user ID")
	cmd.Flags().StringVar(&name, "name", "default", "portfolio name")
	cmd.Flags().Float64Var(&balance, "balance", 10000, "starting cash balance")
	return cmd
}

func newPortfolioShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <portfolio-id>",
		Short: "Show a portfolio's holdings and live valuation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireLedger(); err != nil {
				return err
			}
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid portfolio ID %q", args[0])
			}

			p, err := app.Ledger.GetPortfolio(cmd.Context(), id)
			if err != nil {
				return err
			}

			valuer := trading.NewValuer(app.Ledger, app.Prices, app.notifier(), app.Logger)
			valuation, err := valuer.Value(cmd.Context(), id)
			if err != nil {
				return err
			}

			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"portfolio": p,
					"valuation": valuation,
				})
			}

			output.Bold("Portfolio %d — %s", p.ID, p.Name)
			output.Printf("Cash:           %s\n", FormatMoney(valuation.CashBalance))
			output.Printf("Holdings value: %s\n", FormatMoney(valuation.HoldingsValue))
			output.Printf("Total value:    %s\n", FormatMoney(valuation.TotalValue))
			output.Printf("Gain/loss:      %s (%s)\n",
				output.FormatPnL(valuation.GainLoss), output.FormatPercent(valuation.GainLossPercent))

			if len(p.Holdings) > 0 {
				output.Println()
				table := NewTable(output, "SYMBOL", "QTY", "AVG PRICE", "INVESTED")
				for _, h := range p.Holdings {
					table.AddRow(
						h.Symbol,
						strconv.Itoa(h.Quantity),
						FormatMoney(h.AvgBuyPrice),
						FormatMoney(float64(h.Quantity)*h.AvgBuyPrice),
					)
				}
				table.Render()
			}
			return nil
		},
	}
}

func newPortfolioHistoryCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "history <portfolio-id>",
		Short: "Show a portfolio's transaction history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireLedger(); err != nil {
				return err
			}
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid portfolio ID %q", args[0])
			}

			txns, err := app.Ledger.Transactions(cmd.Context(), id)
			if err != nil {
				return err
			}

			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(txns)
			}

			if len(txns) == 0 {
				output.Dim("No transactions")
				return nil
			}

			table := NewTable(output, "TIME", "SYMBOL", "SIDE", "TYPE", "QTY", "PRICE")
			for _, t := range txns {
				table.AddRow(
					t.CreatedAt.Format("2006-01-02 15:04:05"),
					t.Symbol,
					string(t.Side),
					string(t.Type),
					strconv.Itoa(t.Quantity),
					FormatMoney(t.PriceAtExecution),
				)
			}
			table.Render()
			return nil
		},
	}
}
