// Package app HTTP handlers for API endpoints and monitoring
package app

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"ssw-access-monitor/internal/metrics"
	"ssw-access-monitor/pkg/tracing"
	"ssw-access-monitor/pkg/types"

	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/v3/process"
)

// metricsMiddleware records response time for all HTTP endpoints
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if template, err := route.GetPathTemplate(); err == nil {
				path = template
			}
		}
		metrics.ObserveResponseTime(path, r.Method, time.Since(start))
	})
}

// registerHandlers configures HTTP routes and middleware.
//
// Endpoints:
//   - GET /health: dispatcher, sink and monitor health plus process stats
//   - GET /stats: dispatcher, validator and monitor counters
//   - GET /aggregators: per-aggregator snapshots (alert state, open report period)
//   - GET /config: effective configuration with secrets masked
func (app *App) registerHandlers(router *mux.Router) {
	router.Use(metricsMiddleware)
	if app.tracing.Enabled() {
		router.Use(tracing.TraceHandler(app.tracing.GetTracer(), "http"))
	}

	router.HandleFunc("/health", app.healthHandler).Methods(http.MethodGet)
	router.HandleFunc("/stats", app.statsHandler).Methods(http.MethodGet)
	router.HandleFunc("/aggregators", app.aggregatorsHandler).Methods(http.MethodGet)
	router.HandleFunc("/config", app.configHandler).Methods(http.MethodGet)
}

// healthHandler responde 200 quando tudo está saudável, 503 caso contrário
func (app *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := app.getHealth()

	status := http.StatusOK
	if health.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

func (app *App) getHealth() types.HealthStatus {
	health := types.HealthStatus{
		Status:     "healthy",
		Components: make(map[string]interface{}),
		Issues:     []string{},
		CheckTime:  time.Now(),
	}

	dispatcherHealthy := app.dispatcher.IsHealthy()
	health.Components["dispatcher"] = map[string]interface{}{
		"status":        getStatusString(dispatcherHealthy),
		"max_timestamp": app.dispatcher.MaxTimestamp(),
	}
	if !dispatcherHealthy {
		health.Status = "unhealthy"
		health.Issues = append(health.Issues, "dispatcher is not running or a sink is unhealthy")
	}

	sinkHealth := make(map[string]string, len(app.sinks))
	for _, sink := range app.sinks {
		sinkHealth[sink.Name()] = getStatusString(sink.IsHealthy())
	}
	health.Components["sinks"] = sinkHealth

	// A exhausted input is not a failure: the monitor just finished.
	monitorStatus := app.monitor.GetStatus()
	monitorState := "running"
	select {
	case <-app.done:
		monitorState = "finished"
	default:
		if !app.monitor.IsHealthy() {
			monitorState = "unhealthy"
			if health.Status == "healthy" {
				health.Status = "degraded"
			}
			health.Issues = append(health.Issues, "input monitor is not running")
		}
	}
	health.Components["monitor"] = map[string]interface{}{
		"status":     monitorState,
		"source":     monitorStatus.Source,
		"lines_read": monitorStatus.LinesRead,
	}

	health.Components["process"] = processStats()
	return health
}

// processStats coleta uso de recursos do próprio processo
func processStats() map[string]interface{} {
	stats := map[string]interface{}{
		"goroutines": runtime.NumGoroutine(),
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		stats["error"] = err.Error()
		return stats
	}
	if mem, err := proc.MemoryInfo(); err == nil {
		stats["rss_bytes"] = mem.RSS
		stats["vms_bytes"] = mem.VMS
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		stats["cpu_percent"] = cpu
	}
	if fds, err := proc.NumFDs(); err == nil {
		stats["open_fds"] = fds
	}
	if threads, err := proc.NumThreads(); err == nil {
		stats["threads"] = threads
	}
	return stats
}

func (app *App) statsHandler(w http.ResponseWriter, r *http.Request) {
	sinkStats := make(map[string]interface{}, len(app.sinks))
	for _, sink := range app.sinks {
		if reporter, ok := sink.(interface{ GetStats() map[string]interface{} }); ok {
			sinkStats[sink.Name()] = reporter.GetStats()
		}
	}

	uptime := time.Duration(0)
	if !app.startTime.IsZero() {
		uptime = time.Since(app.startTime)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"application": map[string]interface{}{
			"name":    app.config.App.Name,
			"version": app.config.App.Version,
			"uptime":  uptime.Round(time.Second).String(),
		},
		"dispatcher": app.dispatcher.GetStats(),
		"validator":  app.validator.GetStats(),
		"monitor":    app.monitor.GetStatus(),
		"sinks":      sinkStats,
	})
}

func (app *App) aggregatorsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"order":       app.dispatcher.Aggregators(),
		"aggregators": app.dispatcher.AggregatorStats(),
	})
}

// configHandler retorna a configuração efetiva, sem segredos
func (app *App) configHandler(w http.ResponseWriter, r *http.Request) {
	sanitized := *app.config
	if sanitized.Sinks.Kafka.Auth.Password != "" {
		sanitized.Sinks.Kafka.Auth.Password = "***"
	}
	writeJSON(w, http.StatusOK, sanitized)
}
