package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dd0wney/cluso-bench/pkg/api"
	"github.com/dd0wney/cluso-bench/pkg/config"
	"github.com/dd0wney/cluso-bench/pkg/events"
	"github.com/dd0wney/cluso-bench/pkg/health"
	"github.com/dd0wney/cluso-bench/pkg/logging"
	"github.com/dd0wney/cluso-bench/pkg/metrics"
	"github.com/dd0wney/cluso-bench/pkg/server"
	"github.com/dd0wney/cluso-bench/pkg/service"
)

const (
	connectTimeout        = 30 * time.Second
	processMetricsInterval = 15 * time.Second
)

func main() {
	configPath := flag.String("config", "", "YAML config file (default bench.yaml when present)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "bench-server: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := cfg.Logger(os.Stdout)
	started := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	backends, err := service.OpenBackends(ctx, cfg, logger)
	cancel()
	if err != nil {
		return err
	}

	bus := events.NewBus(cfg.Events.Buffer)
	var publisher *events.Publisher
	if cfg.Events.PublishAddr != "" {
		publisher, err = events.NewPublisher(cfg.Events.PublishAddr, logger.With(logging.Component("events")))
		if err != nil {
			backends.Close(context.Background())
			return err
		}
		bus.Forward(publisher)
	}

	reg := metrics.NewRegistry()
	reg.SetMemoryBudget(cfg.Generation.MemoryBudgetMB)
	deps := backends.Deps()
	deps.Bus = bus
	deps.Metrics = reg
	svc, err := service.New(deps, service.Config{
		Generation: cfg.Generation,
		Benchmark:  cfg.Benchmark,
	}, logger.With(logging.Component("service")))
	if err != nil {
		backends.Close(context.Background())
		return err
	}

	rss := health.ProcessRSS()
	hc := health.NewHealthChecker()
	hc.RegisterReadinessCheck("postgresql", health.BackendCheck("postgresql", backends.Postgres.Ping))
	hc.RegisterReadinessCheck("neo4j", health.BackendCheck("neo4j", backends.Neo4j.Ping))
	hc.RegisterCheck("memory", health.MemoryCheck(rss, cfg.Generation.MemoryBudgetMB))
	hc.RegisterCheck("tasks", health.TasksCheck(svc.Running))
	hc.RegisterLivenessCheck("process", health.SimpleCheck("process"))

	srv := api.NewServer(api.Options{
		Jobs:         svc,
		Health:       hc,
		Metrics:      reg,
		Logger:       logger.With(logging.Component("api")),
		CORSOrigins:  cfg.Server.CORSOrigins,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	})

	gs := server.NewGracefulServer(server.Options{
		Addr:            cfg.Server.Addr(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, srv.Handler(), logger)

	// hooks run in registration order: stop jobs before closing what they use
	gs.OnShutdown(svc.Shutdown)
	gs.OnShutdown(func(context.Context) error {
		bus.Shutdown()
		if publisher != nil {
			return publisher.Close()
		}
		return nil
	})
	gs.OnShutdown(backends.Close)

	gs.SetConfigReloadFunc(func() error {
		next, err := config.Load(configPath)
		if err != nil {
			return err
		}
		logger.SetLevel(logging.ParseLevel(next.Log.Level))
		logger.Info("log level reloaded", logging.String("level", next.Log.Level))
		return nil
	})

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()
	go reportProcessMetrics(runCtx, reg, rss, started)

	logger.Info("benchmark server starting",
		logging.String("addr", cfg.Server.Addr()),
		logging.String("snapshot_dir", cfg.Snapshot.Dir),
		logging.String("publish_addr", cfg.Events.PublishAddr))

	if err := gs.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("benchmark server stopped")
	return nil
}

func reportProcessMetrics(ctx context.Context, reg *metrics.Registry, rss health.RSSFunc, started time.Time) {
	ticker := time.NewTicker(processMetricsInterval)
	defer ticker.Stop()
	for {
		bytes, err := rss(ctx)
		if err == nil {
			reg.UpdateProcessMetrics(started, bytes)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
