// Package cli provides the command-line interface for the paper
// trading application.
package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"papertrader/internal/config"
	"papertrader/internal/ledger"
	"papertrader/internal/notify"
	"papertrader/internal/pricefeed"
	"papertrader/internal/trading"
)

// Version information
const (
	Version = "0.1.0"
)

// App holds the application dependencies.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Ledger ledger.Store
	Prices pricefeed.Source
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
		Prices: newPriceSource(cfg),
	}

	// Initialize the ledger store
	store, err := ledger.NewSQLiteStore(cfg.Ledger.Path)
	if err != nil {
		logger.Warn().Err(err).Str("path", cfg.Ledger.Path).
			Msg("Failed to open ledger, trading commands unavailable")
	} else {
		app.Ledger = store
		logger.Debug().Str("path", cfg.Ledger.Path).Msg("Ledger store initialized")
	}

	rootCmd := &cobra.Command{
		Use:   "papertrader",
		Short: "Paper trading portfolio simulator",
		Long: `Papertrader is a paper trading simulator backed by live market prices.

Portfolios hold virtual cash and stock positions. Market orders execute
immediately at the last traded price; limit and stop orders wait in the
order book and fill automatically when the live price crosses their
trigger, driven by the background execution engine started with
'papertrader serve'.

Use 'papertrader help <command>' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/papertrader)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addPortfolioCommands(rootCmd, app)
	addTradeCommands(rootCmd, app)
	addOrderCommands(rootCmd, app)
	addServeCommand(rootCmd, app)
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"version": Version})
			} else {
				output.Printf("Papertrader v%s\n", Version)
			}
		},
	}
}

// newPriceSource builds the configured price source: Polygon behind a
// short-lived cache so repeated lookups within one tick share a quote.
func newPriceSource(cfg *config.Config) pricefeed.Source {
	var src pricefeed.Source = pricefeed.NewPolygonSource(pricefeed.PolygonConfig{
		BaseURL:              cfg.Feed.BaseURL,
		APIKey:               cfg.Feed.APIKey,
		MaxRequestsPerMinute: cfg.Feed.MaxRequestsPerMinute,
		RequestTimeout:       cfg.Feed.RequestTimeout,
	})
	if cfg.Feed.CacheTTL > 0 {
		src = pricefeed.NewCachedSource(src, cfg.Feed.CacheTTL)
	}
	return src
}

// notifier returns the notifier used by one-shot CLI commands: the
// configured webhook, or a no-op when none is set.
func (app *App) notifier() notify.Notifier {
	wh := app.Config.Notifications.Webhook
	if wh.Enabled && wh.URL != "" {
		return notify.NewWebhook(wh.URL)
	}
	return notify.Nop{}
}

// tradingService wires up the order placement service, or returns an
// error if the ledger failed to open.
func (app *App) tradingService() (*trading.Service, error) {
	if app.Ledger == nil {
		return nil, fmt.Errorf("ledger store unavailable")
	}
	exec := trading.NewExecutor(app.Ledger, app.Logger)
	return trading.NewService(app.Ledger, app.Prices, exec, app.notifier(), app.Logger), nil
}

func (app *App) requireLedger() error {
	if app.Ledger == nil {
		return fmt.Errorf("ledger store unavailable")
	}
	return nil
}
