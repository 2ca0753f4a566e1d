package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"ssw-access-monitor/internal/config"
	"ssw-access-monitor/internal/dispatcher"
	"ssw-access-monitor/internal/metrics"
	"ssw-access-monitor/pkg/tracing"
	"ssw-access-monitor/pkg/types"
	"ssw-access-monitor/pkg/validation"

	"github.com/sirupsen/logrus"
)

// App representa a aplicação principal
type App struct {
	config *types.Config
	logger *logrus.Logger

	tracing     *tracing.TracingManager
	validator   *validation.RowValidator
	dispatcher  *dispatcher.Dispatcher
	aggregators []types.Aggregator
	sinks       []types.MessageSink
	monitor     types.Monitor

	httpServer    *http.Server
	metricsServer *metrics.MetricsServer

	input  io.Reader
	output io.Writer

	startTime   time.Time
	done        chan struct{}
	pipelineErr error

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mutex    sync.Mutex
	started  bool
	stopOnce sync.Once
}

// Option customises an App before its components are built
type Option func(*App)

// WithInput replaces os.Stdin as the stdin source
func WithInput(r io.Reader) Option {
	return func(app *App) { app.input = r }
}

// WithOutput replaces os.Stdout as the console sink destination
func WithOutput(w io.Writer) Option {
	return func(app *App) { app.output = w }
}

// WithLogger replaces the logger built from the configuration
func WithLogger(logger *logrus.Logger) Option {
	return func(app *App) { app.logger = logger }
}

// New cria uma nova instância da aplicação
func New(configFile string, opts ...Option) (*App, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewWithConfig(cfg, opts...)
}

// NewWithConfig builds the application from an already loaded configuration.
func NewWithConfig(cfg *types.Config, opts ...Option) (*App, error) {
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(app)
	}
	if app.logger == nil {
		app.logger = newLogger(cfg.App)
	}

	if err := app.initializeComponents(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}
	return app, nil
}

// newLogger configura o logger; stdout fica reservado para o console sink
func newLogger(cfg types.AppConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

// Start inicia a aplicação
func (app *App) Start() error {
	app.mutex.Lock()
	defer app.mutex.Unlock()

	if app.started {
		return fmt.Errorf("application already started")
	}
	app.startTime = time.Now()
	app.logger.WithFields(config.LogFields(app.config)).Info("Starting access monitor")

	if app.metricsServer != nil {
		if err := app.metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	if err := app.dispatcher.Start(app.ctx); err != nil {
		return fmt.Errorf("failed to start dispatcher: %w", err)
	}

	if err := app.monitor.Start(app.ctx); err != nil {
		app.dispatcher.Stop()
		return fmt.Errorf("failed to start monitor: %w", err)
	}
	metrics.SetComponentHealth("monitor", app.monitor.GetStatus().Name, true)

	app.wg.Add(1)
	go app.runPipeline()

	if app.httpServer != nil {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			app.logger.WithField("addr", app.httpServer.Addr).Info("Starting HTTP server")
			if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				app.logger.WithError(err).Error("HTTP server error")
			}
		}()
	}

	app.started = true
	app.logger.Info("Access monitor started")
	return nil
}

// runPipeline feeds every line from the monitor into the dispatcher and
// flushes the queue after each one, so messages leave in emission order.
func (app *App) runPipeline() {
	defer app.wg.Done()
	defer close(app.done)

	lines := app.monitor.Lines()
	for {
		select {
		case <-app.ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				app.finishInput()
				return
			}
			if err := app.process(line); err != nil {
				app.setPipelineError(err)
				return
			}
		}
	}
}

func (app *App) process(line types.LogLine) error {
	if err := app.dispatcher.Handle(app.ctx, line); err != nil {
		return fmt.Errorf("handle event at %d: %w", line.Timestamp, err)
	}
	if err := app.dispatcher.DisplayMessages(app.ctx); err != nil {
		return fmt.Errorf("display messages: %w", err)
	}
	return nil
}

// finishInput runs once the source is exhausted
func (app *App) finishInput() {
	status := app.monitor.GetStatus()
	app.logger.WithFields(logrus.Fields{
		"lines_read":    status.LinesRead,
		"rows_rejected": status.RowsRejected,
		"max_timestamp": app.dispatcher.MaxTimestamp(),
	}).Info("Input exhausted")

	if status.LastError != "" {
		app.setPipelineError(fmt.Errorf("input %s: %s", status.Source, status.LastError))
	}

	if app.config.Report.FlushOnExit {
		if err := app.dispatcher.Flush(app.ctx); err != nil {
			app.setPipelineError(err)
			return
		}
	}
	if err := app.dispatcher.DisplayMessages(app.ctx); err != nil {
		app.setPipelineError(err)
	}
}

func (app *App) setPipelineError(err error) {
	app.logger.WithError(err).Error("Pipeline stopped")
	metrics.RecordError("app", "pipeline")

	app.mutex.Lock()
	defer app.mutex.Unlock()
	if app.pipelineErr == nil {
		app.pipelineErr = err
	}
}

// Done is closed when the pipeline goroutine has returned, either because
// the input ended or because the application is stopping.
func (app *App) Done() <-chan struct{} {
	return app.done
}

// Err returns the error that stopped the pipeline, if any.
func (app *App) Err() error {
	app.mutex.Lock()
	defer app.mutex.Unlock()
	return app.pipelineErr
}

// Stop para a aplicação. Safe to call more than once.
func (app *App) Stop() error {
	app.stopOnce.Do(func() {
		app.logger.Info("Stopping access monitor")

		app.cancel()
		if app.monitor != nil {
			if err := app.monitor.Stop(); err != nil {
				app.logger.WithError(err).Error("Failed to stop monitor")
			}
		}

		if app.httpServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
				app.logger.WithError(err).Error("Failed to shutdown HTTP server")
			}
			cancel()
		}

		app.wg.Wait()

		if err := app.dispatcher.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop dispatcher")
		}

		if app.metricsServer != nil {
			if err := app.metricsServer.Stop(); err != nil {
				app.logger.WithError(err).Error("Failed to stop metrics server")
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := app.tracing.Shutdown(shutdownCtx); err != nil {
			app.logger.WithError(err).Warn("Failed to shutdown tracing")
		}
		cancel()

		app.logger.WithField("uptime", time.Since(app.startTime).Round(time.Millisecond)).Info("Access monitor stopped")
	})
	return app.Err()
}

// Run starts the application and blocks until the input is exhausted or a
// termination signal arrives.
func (app *App) Run() error {
	if err := app.Start(); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		app.logger.WithField("signal", sig.String()).Info("Received shutdown signal")
	case <-app.done:
	}

	return app.Stop()
}
