package main

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/bft-labs/recordship/internal/app"
	"github.com/bft-labs/recordship/internal/cliconfig"
	"github.com/bft-labs/recordship/internal/metrics"
	"github.com/bft-labs/recordship/internal/reload"
	"github.com/bft-labs/recordship/internal/sink"
	"github.com/bft-labs/recordship/internal/spool"
)

func newSpoolCommand(c *cli) *cobra.Command {
	cfg := &c.cfg

	cmd := &cobra.Command{
		Use:   "spool",
		Short: "Watch a directory and send every record file dropped into it",
		Long: `Watch a directory and send every record file dropped into it.

Files ending in .csv, .jsonl or .ndjson are sent one per transaction and
removed once the transaction completes. Files that fail are moved to the
failed/ subdirectory. When every peer is penalized the spool backs off and
keeps the file. Editing the config file reloads the sink in place.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, base, path, changed, err := c.load(cmd)
			if err != nil {
				return err
			}
			if loaded.SpoolDir == "" {
				return errors.New("spool-dir is required")
			}
			sc, err := loaded.SinkConfig()
			if err != nil {
				return err
			}

			ctx, cancel := c.signalContext()
			defer cancel()

			logger := c.adapter()
			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			m := metrics.New(reg)

			svc := sink.NewService(logger, app.EventEmitterFunc(func(previous, current app.State, reason string) {
				c.log.Info().
					Str("from", previous.String()).
					Str("to", current.String()).
					Str("reason", reason).
					Msg("sink state changed")
			}), sink.WithLogger(logger), sink.WithMetrics(m))

			if err := svc.Enable(ctx, sc); err != nil {
				return err
			}
			defer func() {
				if err := svc.Disable(); err != nil {
					c.log.Error().Err(err).Msg("disable sink")
				}
			}()

			var wg sync.WaitGroup

			if loaded.MetricsAddr != "" {
				r := chi.NewRouter()
				r.Handle("/metrics", metrics.Handler(reg))
				srv := &http.Server{Addr: loaded.MetricsAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
				wg.Add(1)
				go func() {
					defer wg.Done()
					c.log.Info().Str("addr", loaded.MetricsAddr).Msg("serving metrics")
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						c.log.Error().Err(err).Msg("metrics server")
					}
				}()
				go func() {
					<-ctx.Done()
					shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
					defer done()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			if cliconfig.FileExists(path) {
				w := reload.New(reload.Config{Path: path, Logger: logger}, func(ctx context.Context) {
					next, err := cliconfig.Load(base, path, changed)
					if err != nil {
						c.log.Error().Err(err).Msg("reload config")
						return
					}
					nsc, err := next.SinkConfig()
					if err != nil {
						c.log.Error().Err(err).Msg("reload config")
						return
					}
					if err := svc.Reload(ctx, nsc); err != nil {
						c.log.Error().Err(err).Msg("reload sink")
						return
					}
					c.log.Info().Str("path", path).Msg("sink reloaded")
				})
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := w.Run(ctx); err != nil {
						c.log.Error().Err(err).Msg("config watcher")
					}
				}()
			}

			sp := spool.New(spool.Config{
				Dir:             loaded.SpoolDir,
				PollInterval:    loaded.SpoolPollInterval,
				MaxFilesPerScan: loaded.BatchSize,
				SendZeroResults: loaded.SendZeroResults,
				Logger:          logger,
			}, svc)

			err = sp.Run(ctx)
			cancel()
			wg.Wait()
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&cfg.SpoolDir, "spool-dir", cfg.SpoolDir, "directory watched for record files")
	cmd.Flags().DurationVar(&cfg.SpoolPollInterval, "spool-poll-interval", cfg.SpoolPollInterval, "safety scan interval and first decline backoff")
	return cmd
}
