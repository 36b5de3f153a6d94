package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"FinScout/pkg/logger"
)

// Service is a component with a non-blocking start and a draining stop.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Runner blocks until ctx is cancelled.
type Runner interface {
	Run(ctx context.Context) error
}

// HTTPServer is the API listener.
type HTTPServer interface {
	Start() error
	Stop(ctx context.Context) error
	Err() <-chan error
}

// Restorer seeds state before anything else starts.
type Restorer interface {
	Restore(ctx context.Context) error
}

type namedRunner struct {
	name string
	r    Runner
}

type namedService struct {
	name string
	s    Service
}

// App encapsulates the application lifecycle: restore state, start
// services and runners, serve HTTP, then tear down in reverse order.
type App struct {
	restorer        Restorer
	log             *logger.Logger
	http            HTTPServer
	services        []namedService
	runners         []namedRunner
	shutdownTimeout time.Duration
}

type Option func(*App)

func WithHTTPServer(s HTTPServer) Option {
	return func(a *App) { a.http = s }
}

// WithRunner adds a long-running loop such as the market feed or the
// scheduler. Runners start in the order they are added.
func WithRunner(name string, r Runner) Option {
	return func(a *App) { a.runners = append(a.runners, namedRunner{name: name, r: r}) }
}

func WithConsumer(s Service) Option {
	return func(a *App) { a.services = append(a.services, namedService{name: "kafka consumer", s: s}) }
}

func WithQueue(s Service) Option {
	return func(a *App) { a.services = append(a.services, namedService{name: "cycle queue", s: s}) }
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(a *App) {
		if d > 0 {
			a.shutdownTimeout = d
		}
	}
}

func New(restorer Restorer, log *logger.Logger, opts ...Option) *App {
	if log == nil {
		log = logger.Nop()
	}
	a := &App{
		restorer:        restorer,
		log:             log.With(logger.String("component", "app")),
		shutdownTimeout: 20 * time.Second,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Run blocks until ctx is cancelled or the HTTP listener fails, then shuts
// everything down. A failed restore is logged and the engine starts cold.
func (a *App) Run(ctx context.Context) error {
	if a.restorer != nil {
		if err := a.restorer.Restore(ctx); err != nil {
			a.log.Warn("starting without learned metrics", logger.Error(err))
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	started := make([]namedService, 0, len(a.services))
	for _, s := range a.services {
		if err := s.s.Start(runCtx); err != nil {
			a.stopServices(started)
			return fmt.Errorf("start %s: %w", s.name, err)
		}
		a.log.Info("service started", logger.String("service", s.name))
		started = append(started, s)
	}

	var wg sync.WaitGroup
	for _, nr := range a.runners {
		wg.Add(1)
		go func(nr namedRunner) {
			defer wg.Done()
			if err := nr.r.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error("runner exited", logger.String("runner", nr.name), logger.Error(err))
			}
		}(nr)
	}

	var errCh <-chan error
	if a.http != nil {
		if err := a.http.Start(); err != nil {
			cancel()
			wg.Wait()
			a.stopServices(started)
			return fmt.Errorf("start http: %w", err)
		}
		errCh = a.http.Err()
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case err := <-errCh:
		runErr = err
	}

	cancel()
	a.shutdown(&wg, started)
	return runErr
}

func (a *App) shutdown(runners *sync.WaitGroup, started []namedService) {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	if a.http != nil {
		if err := a.http.Stop(ctx); err != nil {
			a.log.Error("http shutdown failed", logger.Error(err))
		}
	}

	done := make(chan struct{})
	go func() {
		runners.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("runners did not stop in time")
	}

	a.stopServicesCtx(ctx, started)
	a.log.Info("shutdown complete")
}

func (a *App) stopServices(started []namedService) {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()
	a.stopServicesCtx(ctx, started)
}

func (a *App) stopServicesCtx(ctx context.Context, started []namedService) {
	for i := len(started) - 1; i >= 0; i-- {
		if err := started[i].s.Stop(ctx); err != nil {
			a.log.Warn("service stop failed", logger.String("service", started[i].name), logger.Error(err))
		}
	}
}
