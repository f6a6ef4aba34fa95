package main

import (
	"context"
	stderrors "errors"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vango-dev/dataverse/internal/config"
	"github.com/vango-dev/dataverse/internal/errors"
	"github.com/vango-dev/dataverse/pkg/dataverse"
	"github.com/vango-dev/dataverse/pkg/frame"
	"github.com/vango-dev/dataverse/pkg/inspect"
	"github.com/vango-dev/dataverse/pkg/observe"
)

// sampleInterval is how often the dashboard records a sample.
const sampleInterval = time.Second

func serveCmd(g *globals) *cobra.Command {
	var (
		addr string
		fps  int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a frame loop with the inspector",
		Long: `Run a frame loop hosting a small dashboard graph and serve the
inspector: watched values as JSON, a WebSocket feed of changes and
Prometheus metrics.

The configuration file is watched; changes to loop.fps and log.level are
applied without a restart.

Examples:
  dataverse serve
  dataverse serve --addr=:7070 --fps=30`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Inspector.Addr = addr
				cfg.Inspector.Enabled = true
			}
			if fps > 0 {
				cfg.Loop.FPS = fps
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, g, cfg, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Inspector listen address (default from config)")
	cmd.Flags().IntVar(&fps, "fps", 0, "Frames per second (default from config)")

	return cmd
}

func runServe(ctx context.Context, g *globals, cfg *config.Config, out io.Writer) error {
	logger := g.logger

	provider, shutdownTracing, err := newTracerProvider(cfg.Tracing, os.Stderr)
	if err != nil {
		return errors.New("DV101").Wrap(err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observe.NewMetrics(
		observe.WithNamespace(cfg.Metrics.Namespace),
		observe.WithRegistry(registry),
	)
	tracer := observe.NewTracer(
		observe.WithTracerName(cfg.Tracing.TracerName),
		observe.WithTracerProvider(provider),
		observe.WithSkipIdle(cfg.Tracing.SkipIdle),
	)

	dv := dataverse.NewContext(
		dataverse.WithName("serve"),
		dataverse.WithLogger(logger),
		dataverse.WithObserver(observe.Multi(metrics, tracer)),
	)
	loop := frame.New(dv,
		frame.WithFPS(cfg.Loop.FPS),
		frame.WithDispatchBuffer(cfg.Loop.DispatchBuffer),
		frame.WithLogger(logger),
	)
	dash := newDashboard(*cfg)

	var listener net.Listener
	if cfg.Inspector.Enabled {
		listener, err = net.Listen("tcp", cfg.Inspector.Addr)
		if err != nil {
			return errors.New("DV201").
				WithSuggestion("Pick another address with --addr or inspector.addr").
				Wrap(err)
		}
	}
	server := inspect.New(loop, inspect.WithGatherer(registry), inspect.WithLogger(logger))

	grp, ctx := errgroup.WithContext(ctx)

	grp.Go(func() error {
		return loop.Run(ctx)
	})

	grp.Go(func() error {
		err := runDashboard(ctx, dash, loop, server, g)
		if ctx.Err() != nil && (stderrors.Is(err, frame.ErrLoopClosed) || stderrors.Is(err, ctx.Err())) {
			return nil
		}
		return err
	})

	if listener != nil {
		httpServer := &http.Server{
			Handler:           server.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		grp.Go(func() error {
			if err := httpServer.Serve(listener); !stderrors.Is(err, http.ErrServerClosed) {
				return errors.New("DV201").Wrap(err)
			}
			return nil
		})
		grp.Go(func() error {
			<-ctx.Done()
			server.Close()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})
		success(out, "Inspector listening on http://%s", listener.Addr())
	}

	if path := cfg.Path(); path != "" {
		watcher, err := config.NewWatcher(path, func(next *config.Config) {
			if err := loop.Dispatch(func(*dataverse.Context) { dash.config.Set(*next) }); err != nil {
				logger.Warn("config change dropped", "error", err)
			}
		}, config.WithWatcherLogger(logger))
		if err != nil {
			logger.Warn("config will not be reloaded", "path", path, "error", err)
		} else {
			grp.Go(func() error { return watcher.Run(ctx) })
			info(out, "Watching %s", path)
		}
	}

	info(out, "Frame loop running at %d fps", cfg.Loop.FPS)
	err = grp.Wait()
	info(out, "Stopped after %d frames", loop.Stats().Frames)
	return err
}

// runDashboard binds the dashboard to the loop, registers its values with
// the inspector and records a sample every second until ctx is done.
func runDashboard(ctx context.Context, dash *dashboard, loop *frame.Loop, server *inspect.Server, g *globals) error {
	var untaps []dataverse.Untap
	if err := loop.Do(ctx, func(c *dataverse.Context) {
		untaps = dash.bind(c, loop, g.level, g.logger)
	}); err != nil {
		return err
	}
	defer func() {
		// The loop may already be gone; untapping is then moot.
		_ = loop.Dispatch(func(*dataverse.Context) {
			for _, untap := range untaps {
				untap()
			}
		})
	}()

	if err := dash.watch(server); err != nil {
		return err
	}

	ticker := time.NewTicker(sampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			v := rand.IntN(100)
			if err := loop.Dispatch(func(*dataverse.Context) { dash.sample(v) }); err != nil && !stderrors.Is(err, frame.ErrDispatchFull) {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}
