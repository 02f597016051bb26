package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// newServeCmd creates the 'serve' subcommand: the daily scheduler loop
// plus the status HTTP server, until SIGINT or SIGTERM.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the daily scheduler and the status API",
		Long: `Starts the long-running service: one acquisition cycle fires at the
configured daily time (immediately as well, when run_immediately is set),
the arrival watcher picks up files landing between cycles, and the HTTP
server exposes health, metrics, and run status throughout.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			logger := appInstance.Logger()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", appInstance.Config().Server.Port),
				Handler:           appInstance.Server().Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Info("status server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("status server: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				err := appInstance.Scheduler().Run(gctx, func(ctx context.Context, date time.Time) {
					appInstance.Runner().RunOnce(ctx, date)
				})
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
			g.Go(func() error {
				// Continuous arrival watching between scheduled cycles. The
				// shared in-flight and processed sets keep it from
				// double-emitting against a cycle's own watch loop.
				err := appInstance.Watcher().Run(gctx)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})

			if err := g.Wait(); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			logger.Info("service stopped")
			return nil
		},
	}
}
