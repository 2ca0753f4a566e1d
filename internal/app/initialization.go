// Package app initialization methods for component setup and configuration
package app

import (
	"fmt"
	"net/http"
	"time"

	"ssw-access-monitor/internal/aggregators"
	"ssw-access-monitor/internal/dispatcher"
	"ssw-access-monitor/internal/metrics"
	"ssw-access-monitor/internal/monitors"
	"ssw-access-monitor/internal/sinks"
	"ssw-access-monitor/pkg/tracing"
	"ssw-access-monitor/pkg/types"
	"ssw-access-monitor/pkg/validation"

	"github.com/gorilla/mux"
)

// Nomes dos agregadores registrados no dispatcher
const (
	AlertAggregatorName  = "high_traffic_alert"
	ReportAggregatorName = "traffic_report"
)

// initializeComponents builds every component in dependency order:
// tracing, core services, aggregators, sinks, the input monitor and
// finally the HTTP and metrics servers.
func (app *App) initializeComponents() error {
	if err := app.initTracing(); err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	app.initCoreServices()

	if err := app.initAggregators(); err != nil {
		return fmt.Errorf("failed to initialize aggregators: %w", err)
	}

	if err := app.initSinks(); err != nil {
		return fmt.Errorf("failed to initialize sinks: %w", err)
	}

	if err := app.initMonitor(); err != nil {
		return fmt.Errorf("failed to initialize monitor: %w", err)
	}

	app.initHTTPServer()
	app.initMetricsServer()
	return nil
}

func (app *App) initTracing() error {
	tm, err := tracing.NewTracingManager(app.config.Tracing, app.config.App, app.logger)
	if err != nil {
		return err
	}
	app.tracing = tm
	return nil
}

// initCoreServices creates the row validator and the dispatcher.
func (app *App) initCoreServices() {
	metrics.Register()

	app.validator = validation.NewRowValidator(app.config.Validation, app.logger)
	app.dispatcher = dispatcher.NewDispatcher(app.config.Dispatcher, app.validator, app.tracing.GetTracer(), app.logger)
}

// initAggregators registers the enabled aggregators. Registration order is
// invocation order: the report sees every clock advance before the alert.
func (app *App) initAggregators() error {
	app.aggregators = make([]types.Aggregator, 0, 2)

	if app.config.Report.Enabled {
		report, err := aggregators.NewTumblingReport(
			ReportAggregatorName,
			app.config.Report.WindowSeconds,
			app.config.Report.TopSections,
			app.logger,
		)
		if err != nil {
			return err
		}
		app.aggregators = append(app.aggregators, report)
	}

	if app.config.Alert.Enabled {
		alert, err := aggregators.NewThresholdAlert(
			AlertAggregatorName,
			app.config.Alert.WindowSeconds,
			app.config.Alert.AverageThreshold,
			app.logger,
		)
		if err != nil {
			return err
		}
		app.aggregators = append(app.aggregators, alert)
	}

	for _, aggregator := range app.aggregators {
		app.dispatcher.AddAggregator(aggregator)
	}
	return nil
}

// initSinks creates every enabled output destination and registers it with
// the dispatcher.
func (app *App) initSinks() error {
	app.sinks = make([]types.MessageSink, 0, 3)

	if app.config.Sinks.Console.Enabled {
		app.sinks = append(app.sinks, sinks.NewConsoleSink(app.output, app.logger))
	}

	if app.config.Sinks.LocalFile.Enabled {
		localFileSink, err := sinks.NewLocalFileSink(app.config.Sinks.LocalFile, app.logger)
		if err != nil {
			return fmt.Errorf("failed to create local file sink: %w", err)
		}
		app.sinks = append(app.sinks, localFileSink)
	}

	if app.config.Sinks.Kafka.Enabled {
		kafkaSink, err := sinks.NewKafkaSink(app.config.Sinks.Kafka, app.logger)
		if err != nil {
			return fmt.Errorf("failed to create kafka sink: %w", err)
		}
		app.sinks = append(app.sinks, kafkaSink)
	}

	if len(app.sinks) == 0 {
		return fmt.Errorf("no sinks enabled")
	}

	for _, sink := range app.sinks {
		app.dispatcher.AddSink(sink)
	}
	app.logger.WithField("sink_count", len(app.sinks)).Info("Sinks initialized")
	return nil
}

// initMonitor picks the stdin monitor for "-" and the file monitor otherwise.
func (app *App) initMonitor() error {
	input := app.config.Input
	if input.Path == "" || input.Path == "-" {
		app.monitor = monitors.NewStdinMonitor(app.input, input, app.logger)
		app.logger.Info("Stdin monitor initialized")
		return nil
	}

	fileMonitor, err := monitors.NewFileMonitor(input, app.logger)
	if err != nil {
		return err
	}
	app.monitor = fileMonitor
	app.logger.WithField("path", input.Path).Info("File monitor initialized")
	return nil
}

// initHTTPServer configures the API server. Nothing is created when the
// server is disabled.
func (app *App) initHTTPServer() {
	if !app.config.Server.Enabled {
		app.logger.Debug("HTTP server disabled in configuration")
		return
	}
	addr := fmt.Sprintf("%s:%d", app.config.Server.Host, app.config.Server.Port)
	app.httpServer = &http.Server{
		Addr:              addr,
		Handler:           app.newRouter(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       parseDurationSafe(app.config.Server.ReadTimeout, 10*time.Second),
		WriteTimeout:      parseDurationSafe(app.config.Server.WriteTimeout, 10*time.Second),
	}
	app.logger.WithField("addr", addr).Info("HTTP server initialized")
}

// newRouter builds the API router with every handler registered
func (app *App) newRouter() *mux.Router {
	router := mux.NewRouter()
	app.registerHandlers(router)
	return router
}

// initMetricsServer configures the Prometheus metrics server on its own port
func (app *App) initMetricsServer() {
	if !app.config.Metrics.Enabled {
		return
	}
	addr := fmt.Sprintf(":%d", app.config.Metrics.Port)
	app.metricsServer = metrics.NewMetricsServer(addr, app.config.Metrics.Path, app.logger)
}
