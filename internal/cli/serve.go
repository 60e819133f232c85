package cli

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"papertrader/internal/engine"
	"papertrader/internal/notify"
	"papertrader/internal/stream"
	"papertrader/internal/trading"
)

// addServeCommand adds the long-running engine + websocket server.
func addServeCommand(rootCmd *cobra.Command, app *App) {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the order execution engine and websocket stream",
		Long: `Run the background services: the order execution engine polls live
prices for every symbol with at least one websocket subscriber, fills
pending limit and stop orders whose trigger price is reached, and
streams price ticks, fills, and portfolio valuations to clients
connected at /ws.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireLedger(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			bus := notify.NewBus()
			var notifier notify.Notifier = bus
			if wh := app.Config.Notifications.Webhook; wh.Enabled && wh.URL != "" {
				notifier = notify.NewMulti(bus, notify.NewWebhook(wh.URL))
			}

			registry := stream.NewRegistry()
			gateway := stream.NewGateway(stream.DefaultGatewayConfig(), registry, bus, app.Logger)
			defer gateway.Close()

			exec := trading.NewExecutor(app.Ledger, app.Logger)
			valuer := trading.NewValuer(app.Ledger, app.Prices, notifier, app.Logger)

			eng := engine.New(engine.Config{
				PollInterval:      app.Config.Engine.PollInterval(),
				MaxSymbolsPerTick: app.Config.Engine.MaxSymbolsPerTick,
				SymbolConcurrency: app.Config.Engine.SymbolConcurrency,
			}, app.Ledger, app.Prices, exec, valuer, registry, notifier, app.Logger)

			eng.Start(ctx)
			defer eng.Stop()

			mux := http.NewServeMux()
			mux.Handle("/ws", gateway)
			mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			server := &http.Server{
				Addr:    addr,
				Handler: mux,
			}

			errCh := make(chan error, 1)
			go func() {
				app.Logger.Info().Str("addr", addr).Msg("Websocket server listening")
				errCh <- server.ListenAndServe()
			}()

			select {
			case <-ctx.Done():
				app.Logger.Info().Msg("Shutting down")
			case err := <-errCh:
				return err
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address for the websocket server")
	rootCmd.AddCommand(cmd)
}
