package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	xhttp "MacroPanel/pkg/http"
	applogger "MacroPanel/pkg/logger"
)

// Component is a background part of the service that lives as long as the app.
type Component interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type funcComponent struct {
	name  string
	start func(ctx context.Context) error
	stop  func(ctx context.Context) error
}

func (f funcComponent) Name() string { return f.name }

func (f funcComponent) Start(ctx context.Context) error { return f.start(ctx) }

func (f funcComponent) Stop(ctx context.Context) error {
	if f.stop == nil {
		return nil
	}
	return f.stop(ctx)
}

// Func adapts a start/stop pair into a Component. stop may be nil.
func Func(name string, start, stop func(ctx context.Context) error) Component {
	return funcComponent{name: name, start: start, stop: stop}
}

// Ticker runs fn every interval until the app stops.
func Ticker(name string, interval time.Duration, fn func(ctx context.Context)) Component {
	done := make(chan struct{})
	cancel := func() {}
	return Func(name,
		func(ctx context.Context) error {
			ctx, cancel = context.WithCancel(ctx)
			go func() {
				defer close(done)
				t := time.NewTicker(interval)
				defer t.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-t.C:
						fn(ctx)
					}
				}
			}()
			return nil
		},
		func(ctx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	)
}

type closer struct {
	name string
	fn   func() error
}

// App encapsulates the entire application lifecycle.
type App struct {
	log             *applogger.Logger
	httpServer      *xhttp.Server
	components      []Component
	closers         []closer
	shutdownTimeout time.Duration
}

type Option func(*App)

// WithComponent adds a background component. Components start in the order
// given and stop in reverse.
func WithComponent(c Component) Option {
	return func(a *App) {
		if c != nil {
			a.components = append(a.components, c)
		}
	}
}

// WithCloser releases a resource after every component has stopped.
func WithCloser(name string, fn func() error) Option {
	return func(a *App) { a.closers = append(a.closers, closer{name: name, fn: fn}) }
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(a *App) { a.shutdownTimeout = d }
}

func New(log *applogger.Logger, httpServer *xhttp.Server, opts ...Option) *App {
	if log == nil {
		log = applogger.Nop()
	}
	a := &App{log: log.With("app"), httpServer: httpServer, shutdownTimeout: 15 * time.Second}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts everything and blocks until ctx is done, then shuts down.
func (a *App) RunContext(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	started := make([]Component, 0, len(a.components))
	for _, c := range a.components {
		if err := c.Start(runCtx); err != nil {
			a.log.Error("component start failed", applogger.String("component", c.Name()), applogger.Error(err))
			cancel()
			a.shutdown(started)
			return fmt.Errorf("start %s: %w", c.Name(), err)
		}
		a.log.Info("component started", applogger.String("component", c.Name()))
		started = append(started, c)
	}

	if a.httpServer != nil {
		if err := a.httpServer.Start(); err != nil {
			cancel()
			a.shutdown(started)
			return err
		}
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	cancel()
	a.shutdown(started)
	return nil
}

// shutdown gracefully stops all services.
func (a *App) shutdown(started []Component) {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}
	for i := len(started) - 1; i >= 0; i-- {
		c := started[i]
		if err := c.Stop(ctx); err != nil {
			a.log.Warn("component stop error", applogger.String("component", c.Name()), applogger.Error(err))
		}
	}
	for _, c := range a.closers {
		if err := c.fn(); err != nil {
			a.log.Warn("close error", applogger.String("resource", c.name), applogger.Error(err))
		}
	}
	a.log.Info("shutdown complete")
}
