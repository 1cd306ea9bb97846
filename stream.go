package featurestream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coderxlab/featurestream/dispatcher"
	"github.com/coderxlab/featurestream/logger"
)

const Version = "v0.1.0" // x-release-please-version

var (
	ErrAlreadyRunning = errors.New("application is already running")
	ErrClosed         = errors.New("application is closed")
)

const closeTimeout = 10 * time.Second

// Application runs a dispatcher over a set of topics together with the
// processes that live alongside it: the metrics server and the lag reporter.
type Application struct {
	dispatcher *dispatcher.Dispatcher
	topics     []string
	config     Config

	logger logger.Logger

	mu        sync.Mutex
	running   bool
	closeOnce sync.Once
	closedCh  chan struct{}
}

func NewApplication(d *dispatcher.Dispatcher, topics []string, opts ...ConfigOption) *Application {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	return NewApplicationWithConfig(d, topics, config)
}

func NewApplicationWithConfig(d *dispatcher.Dispatcher, topics []string, config Config) *Application {
	if config.Logger == nil {
		config.Logger = logger.NewNoopLogger()
	}

	return &Application{
		dispatcher: d,
		topics:     topics,
		config:     config,
		logger:     config.Logger.With("component", "application"),
		closedCh:   make(chan struct{}),
	}
}

func (a *Application) Dispatcher() *dispatcher.Dispatcher {
	return a.dispatcher
}

// Run blocks until ctx is cancelled, Close is called or the dispatcher
// fails. Closers run before it returns.
func (a *Application) Run(ctx context.Context) error {
	if err := a.startRunning(); err != nil {
		return err
	}
	defer a.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-a.closedCh:
			cancel()
		case <-runCtx.Done():
		}
	}()

	var wg sync.WaitGroup
	if s := a.config.Server; s != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.ListenAndServe(runCtx); err != nil {
				a.logger.Error("Metrics server stopped", "error", err)
			}
		}()
	}
	if r := a.config.Lag; r != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Run(runCtx)
		}()
	}

	a.logger.Info("Application starting", "version", Version, "topics", a.topics)
	err := a.dispatcher.Run(runCtx, a.topics)
	if a.config.Server != nil {
		a.config.Server.SetReady(false)
	}

	cancel()
	wg.Wait()
	a.runClosers()

	if err != nil {
		a.logger.Error("Application stopped with error", "error", err)
		return err
	}
	a.logger.Info("Application stopped")
	return nil
}

func (a *Application) runClosers() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	for i := len(a.config.Closers) - 1; i >= 0; i-- {
		if err := a.config.Closers[i](ctx); err != nil {
			a.logger.Warn("Failed to release resource", "error", err)
		}
	}
}

func (a *Application) Close() {
	a.closeOnce.Do(
		func() {
			a.mu.Lock()
			defer a.mu.Unlock()

			a.running = false
			close(a.closedCh)
		},
	)
}

func (a *Application) startRunning() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return ErrAlreadyRunning
	}

	select {
	case <-a.closedCh:
		return ErrClosed
	default:
	}

	a.running = true
	return nil
}
