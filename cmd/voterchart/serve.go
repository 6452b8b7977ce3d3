package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/user/voterchart/internal/config"
	"github.com/user/voterchart/internal/dataset"
	"github.com/user/voterchart/internal/debounce"
	"github.com/user/voterchart/internal/models"
	"github.com/user/voterchart/internal/server"
	"github.com/user/voterchart/internal/session"
	"github.com/user/voterchart/internal/watch"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	d := config.Defaults()
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serves the interactive chart over HTTP.",
		Long: `Serves a page with the province selector and the chart. The page reports
container resizes back to the server, which redraws once the resizes settle.
With --watch, edits to a local data file are picked up without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().String("addr", d.Addr, "listen address")
	cmd.Flags().Bool("watch", d.Watch, "reload the data file when it changes")
	cmd.Flags().Duration("debounce", d.Debounce, "quiet period before a resize or file change redraws")
	return cmd
}

func (a *app) serve(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctrl := session.New(a.cfg.Width,
		session.WithLogger(a.logger),
		session.WithDebouncer(debounce.New(a.cfg.Debounce)),
	)
	defer ctrl.Close()

	ds, err := a.loadDataset(ctx)
	if err != nil {
		return err
	}
	if err := ctrl.Load(ctx, ds); err != nil {
		return err
	}
	if a.cfg.Province != "" {
		if err := ctrl.Select(ctx, a.cfg.Province); err != nil {
			return err
		}
	}

	srv, err := server.New(ctrl, a.logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	httpServer := &http.Server{
		Addr:              a.cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		// Event streams end with the group instead of blocking Shutdown.
		BaseContext: func(net.Listener) context.Context { return gctx },
	}

	g.Go(func() error {
		a.logger.Info("serving chart", "addr", a.cfg.Addr, "provinces", len(ds.Categories), "source", ds.Source)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve on %s: %w", a.cfg.Addr, err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var result *multierror.Error
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to shut down HTTP server: %w", err))
		}
		if a.shutdown != nil {
			if err := a.shutdown(shutdownCtx); err != nil {
				result = multierror.Append(result, fmt.Errorf("failed to flush traces: %w", err))
			}
			a.shutdown = nil
		}
		a.logger.Info("server stopped")
		return result.ErrorOrNil()
	})

	if a.cfg.Watch {
		if dataset.IsRemote(a.cfg.Data) {
			a.logger.Warn("cannot watch a remote data source", "source", a.cfg.Data)
		} else {
			w := watch.New(a.cfg.Data, func(ctx context.Context) (*models.Dataset, error) {
				return a.loadDataset(ctx)
			}, ctrl.Load)
			w.Debounce = debounce.New(a.cfg.Debounce)
			w.Logger = a.logger
			g.Go(func() error { return w.Run(gctx) })
		}
	}

	return g.Wait()
}
