package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dd0wney/cluso-bench/pkg/bench"
	"github.com/dd0wney/cluso-bench/pkg/config"
	"github.com/dd0wney/cluso-bench/pkg/events"
	"github.com/dd0wney/cluso-bench/pkg/logging"
	"github.com/dd0wney/cluso-bench/pkg/memstore"
	"github.com/dd0wney/cluso-bench/pkg/model"
	"github.com/dd0wney/cluso-bench/pkg/service"
	"github.com/dd0wney/cluso-bench/pkg/snapshot"
	"github.com/dd0wney/cluso-bench/pkg/tasks"
)

// statusInterval is how often a waiting command checks its task
const statusInterval = 100 * time.Millisecond

type rootOptions struct {
	configPath string
	dryRun     bool
	verbose    bool
	quiet      bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "benchctl",
		Short: "Compare PostgreSQL and Neo4j on the same social commerce dataset",
		Long: `benchctl loads identical synthetic users, products, follows and purchases
into PostgreSQL and Neo4j, then times equivalent queries on both.

Settings come from bench.yaml, .env and the environment, the same way the
server reads them. With --dry-run both backends are replaced by an
in-memory store, which is useful to check a plan without databases.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "YAML config file (default bench.yaml when present)")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "use the in-memory store instead of the databases")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log at the configured level instead of warn")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "do not print progress")

	cmd.AddCommand(
		newGenerateCommand(opts),
		newRunCommand(opts),
		newIDsCommand(opts),
		newResetCommand(opts),
	)
	return cmd
}

// session is an in-process service plus whatever it must release
type session struct {
	svc     *service.Service
	logger  logging.Logger
	reset   func(ctx context.Context) error
	release func(ctx context.Context) error
}

func openSession(ctx context.Context, opts *rootOptions, stderr io.Writer) (*session, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger(stderr)
	if !opts.verbose {
		logger.SetLevel(logging.WarnLevel)
	}

	var (
		deps    service.Deps
		reset   func(context.Context) error
		release func(context.Context) error
	)
	if opts.dryRun {
		deps, reset, err = dryRunDeps(cfg, logger)
		release = func(context.Context) error { return nil }
	} else {
		var b *service.Backends
		b, err = service.OpenBackends(ctx, cfg, logger)
		if b != nil {
			deps, reset, release = b.Deps(), b.Reset, b.Close
		}
	}
	if err != nil {
		return nil, err
	}

	svc, err := service.New(deps, service.Config{
		Generation: cfg.Generation,
		Benchmark:  cfg.Benchmark,
	}, logger)
	if err != nil {
		release(ctx)
		return nil, err
	}
	return &session{svc: svc, logger: logger, reset: reset, release: release}, nil
}

func dryRunDeps(cfg *config.Config, logger logging.Logger) (service.Deps, func(context.Context) error, error) {
	pg, neo := memstore.New(), memstore.New()
	store, err := snapshot.NewFileStore(filepath.Join(os.TempDir(), "benchctl-dry-run"), cfg.Snapshot.Compression, logger)
	if err != nil {
		return service.Deps{}, nil, err
	}
	deps := service.Deps{
		Relational: pg.AsRelational(),
		Graph:      neo.AsGraph(),
		Targets: []bench.Target{
			{Backend: model.PostgreSQL, Impl: pg},
			{Backend: model.Neo4j, Impl: neo},
		},
		Sampler:   pg,
		Snapshots: store,
	}
	// a fresh process starts with empty stores
	reset := func(context.Context) error { return nil }
	return deps, reset, nil
}

func (s *session) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := s.svc.Shutdown(ctx); err != nil {
		return err
	}
	return s.release(ctx)
}

// wait prints progress for id until the task is terminal. A failed task is
// returned as an error.
func (s *session) wait(ctx context.Context, sub *events.Subscription, id string, out io.Writer, quiet bool) (tasks.View, error) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()
	progress := sub.Channel()
	for {
		if v := s.svc.Status(id); v.Status.Terminal() {
			if v.Status == tasks.StatusFailed {
				return v, fmt.Errorf("task %s failed: %s", id, v.Error)
			}
			return v, nil
		}
		select {
		case <-ctx.Done():
			return tasks.View{}, ctx.Err()
		case p, open := <-progress:
			if !open {
				progress = nil
				continue
			}
			if !quiet && p.TaskID == id {
				fmt.Fprintln(out, renderProgress(p))
			}
		case <-ticker.C:
		}
	}
}
