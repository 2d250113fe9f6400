package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/nikolayk812/storefront-cart/internal/cart"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the item count as other processes change the cart",
		Args:  cobra.NoArgs,
		RunE: opts.withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			out := cmd.OutOrStdout()
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			counter := cart.NewItemCounter(a.store, a.notifier)
			counter.OnChange(func(n int) {
				fmt.Fprintf(out, "items: %d\n", n)
			})
			deactivate := counter.Activate(ctx)
			defer deactivate()

			g, gctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				// a watcher that stops on its own ends the command too
				defer cancel()
				return a.notifier.Listen(gctx, a.storage)
			})

			if metricsAddr != "" {
				srv := newMetricsServer(metricsAddr, a)
				g.Go(func() error {
					a.logger.Info("serving metrics", zap.String("addr", metricsAddr))
					if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
						return fmt.Errorf("srv.ListenAndServe: %w", err)
					}
					return nil
				})
				g.Go(func() error {
					<-gctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				})
			}

			return g.Wait()
		}),
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")

	return cmd
}

func newMetricsServer(addr string, a *app) *http.Server {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	return &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
