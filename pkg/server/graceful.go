package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dd0wney/cluso-bench/pkg/logging"
)

// ConfigReloadFunc is a function that reloads configuration
type ConfigReloadFunc func() error

// ShutdownHook runs after the listener stops accepting requests
type ShutdownHook func(ctx context.Context) error

// Options configures the HTTP server
type Options struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// GracefulServer wraps an HTTP server with graceful shutdown capabilities
type GracefulServer struct {
	server          *http.Server
	shutdownTimeout time.Duration
	logger          logging.Logger

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	shutdownErr  error

	mu             sync.RWMutex
	listener       net.Listener
	ready          chan struct{}
	configReloadFn ConfigReloadFunc
	hooks          []ShutdownHook
}

// NewGracefulServer creates a new graceful HTTP server
func NewGracefulServer(opts Options, handler http.Handler, logger logging.Logger) *GracefulServer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 30 * time.Second
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 30 * time.Second
	}
	return &GracefulServer{
		server: &http.Server{
			Addr:           opts.Addr,
			Handler:        handler,
			ReadTimeout:    opts.ReadTimeout,
			WriteTimeout:   opts.WriteTimeout,
			IdleTimeout:    120 * time.Second,
			MaxHeaderBytes: 1 << 20,
		},
		shutdownTimeout: opts.ShutdownTimeout,
		logger:          logger.With(logging.Component("http")),
		shutdownCh:      make(chan struct{}),
		ready:           make(chan struct{}),
	}
}

// OnShutdown registers a hook run during shutdown, in registration order
func (gs *GracefulServer) OnShutdown(hook ShutdownHook) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.hooks = append(gs.hooks, hook)
}

// Run serves until ctx is done or SIGINT/SIGTERM arrives, then shuts down
// gracefully. SIGHUP triggers ReloadConfig.
func (gs *GracefulServer) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", gs.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", gs.server.Addr, err)
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	// SIGHUP must be caught before anyone can observe the server as ready
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go gs.handleReloads(ctx, hup)

	gs.mu.Lock()
	gs.listener = ln
	gs.mu.Unlock()
	close(gs.ready)

	serveErr := make(chan error, 1)
	go func() {
		gs.logger.Info("http server listening", logging.String("addr", ln.Addr().String()))
		if err := gs.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return gs.Shutdown(gs.shutdownTimeout)
	case <-ctx.Done():
		gs.logger.Info("shutdown requested")
	case <-gs.shutdownCh:
	}
	return gs.Shutdown(gs.shutdownTimeout)
}

// Addr returns the bound address once Run is listening
func (gs *GracefulServer) Addr() net.Addr {
	<-gs.ready
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	return gs.listener.Addr()
}

// Shutdown stops accepting requests, drains in-flight ones and runs the
// hooks. Later calls return the first call's result.
func (gs *GracefulServer) Shutdown(timeout time.Duration) error {
	gs.shutdownOnce.Do(func() {
		close(gs.shutdownCh)

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		gs.logger.Info("initiating graceful shutdown", logging.Duration("timeout", timeout))

		var errs []error
		if err := gs.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to drain http server: %w", err))
		}

		gs.mu.RLock()
		hooks := append([]ShutdownHook(nil), gs.hooks...)
		gs.mu.RUnlock()
		for _, hook := range hooks {
			if err := hook(ctx); err != nil {
				errs = append(errs, err)
			}
		}

		gs.shutdownErr = errors.Join(errs...)
		if gs.shutdownErr != nil {
			gs.logger.Error("shutdown finished with errors", logging.Error(gs.shutdownErr))
		} else {
			gs.logger.Info("server shutdown complete")
		}
	})
	return gs.shutdownErr
}

func (gs *GracefulServer) handleReloads(ctx context.Context, sigCh <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-gs.shutdownCh:
			return
		case <-sigCh:
			gs.logger.Info("received SIGHUP, reloading configuration")
			if err := gs.ReloadConfig(); err != nil {
				gs.logger.Error("configuration reload failed", logging.Error(err))
			}
		}
	}
}

// IsShuttingDown returns true if shutdown has been initiated
func (gs *GracefulServer) IsShuttingDown() bool {
	select {
	case <-gs.shutdownCh:
		return true
	default:
		return false
	}
}

// ShutdownChannel returns a channel that closes when shutdown is initiated
func (gs *GracefulServer) ShutdownChannel() <-chan struct{} {
	return gs.shutdownCh
}

// SetConfigReloadFunc sets the function to call when configuration reload is triggered
func (gs *GracefulServer) SetConfigReloadFunc(fn ConfigReloadFunc) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.configReloadFn = fn
}

// ReloadConfig triggers a configuration reload
func (gs *GracefulServer) ReloadConfig() error {
	gs.mu.RLock()
	reloadFn := gs.configReloadFn
	gs.mu.RUnlock()

	if reloadFn == nil {
		gs.logger.Warn("configuration reload requested, but no reload function configured")
		return nil
	}
	return reloadFn()
}
