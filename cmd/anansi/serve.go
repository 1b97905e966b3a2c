package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/david/anansi/internal/api"
	"github.com/david/anansi/internal/auth"
	"github.com/david/anansi/internal/logger"
	"github.com/david/anansi/internal/metrics"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the admin HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()
		ctx := cmd.Context()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m := metrics.NewMetrics(reg)

		d, err := a.driver(ctx, m, a.runOptions())
		if err != nil {
			return err
		}

		authSvc := auth.NewService(a.cfg.Auth.JWTSecret, a.cfg.Auth.AdminSecretHash)
		if !authSvc.Enabled() {
			a.log.Warn("No admin credentials configured; admin endpoints will refuse requests")
		}

		srv := api.NewServer(api.Config{
			Auth:     authSvc,
			Run:      d.Run,
			Ledger:   d.Ledger,
			Registry: a.registry,
			Gatherer: reg,
			Log:      a.log,
		})

		errCh := make(chan error, 1)
		go func() {
			a.log.Info("Server starting", logger.String("port", a.cfg.HTTP.Port))
			errCh <- srv.Start(a.cfg.HTTP.Port)
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}

		a.log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
