package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aretw0/choreo"
	"github.com/aretw0/choreo/internal/cli"
	"github.com/aretw0/choreo/internal/config"
	"github.com/aretw0/choreo/pkg/machine"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Fire state timeouts of every in-progress run",
	Long: `Ticks every in-progress run each sweep.interval until interrupted, serving
Prometheus metrics on metrics.addr. With --once a single pass is made.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		once, _ := cmd.Flags().GetBool("once")
		sc := cli.NewSignalContext(cmd.Context())
		defer sc.Cancel()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		return withEngine(sc, reg, func(ctx context.Context, cfg config.Config, eng *choreo.Engine) error {
			sweeper := eng.Sweeper(machine.WithInterval(cfg.Sweep.Interval))
			if once {
				res, err := sweeper.Sweep(ctx)
				if err != nil {
					return err
				}
				cli.PrintSystemMessage(cmd.OutOrStdout(), "Checked %d run(s): %d transitioned, %d failed.", res.Checked, res.Transitioned, res.Failed)
				return nil
			}

			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
			srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
			errCh := make(chan error, 1)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
					sc.Cancel()
				}
				close(errCh)
			}()
			cli.PrintSystemMessage(cmd.ErrOrStderr(), "Sweeping every %s; metrics on %s/metrics.", cfg.Sweep.Interval, cfg.Metrics.Addr)

			err := sweeper.Run(ctx)

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
			if serveErr := <-errCh; serveErr != nil {
				return serveErr
			}
			if errors.Is(err, context.Canceled) && sc.Signal() != nil {
				cli.PrintSystemMessage(cmd.ErrOrStderr(), "Interrupted.")
				return nil
			}
			return err
		})
	},
}

func init() {
	sweepCmd.Flags().Bool("once", false, "make a single pass and exit")
	rootCmd.AddCommand(sweepCmd)
}
