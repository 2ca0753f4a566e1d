package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const namespace = "access_monitor"

var (
	// Linhas recebidas das fontes de entrada
	LinesReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_received_total",
			Help:      "Total number of input rows read from a source",
		},
		[]string{"source"},
	)

	// Eventos descartados antes de chegar aos agregadores
	EventsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Total number of rows or events dropped, by reason",
		},
		[]string{"reason"},
	)

	// Eventos efetivamente contabilizados por agregador
	EventsCollectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_collected_total",
			Help:      "Total number of events accepted by an aggregator",
		},
		[]string{"aggregator"},
	)

	// Eventos atrasados demais para a janela
	LateEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "late_events_total",
			Help:      "Total number of events rejected by an aggregator as too late",
		},
		[]string{"aggregator"},
	)

	MessagesEmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_emitted_total",
			Help:      "Total number of messages emitted by aggregators",
		},
		[]string{"aggregator", "kind"},
	)

	MessagesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Total number of messages delivered to sinks",
		},
		[]string{"sink", "status"},
	)

	SinkSendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sink_send_duration_seconds",
			Help:      "Time spent delivering a batch of messages to a sink",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"sink"},
	)

	// Relógio de event-time do dispatcher
	ClockTimestamp = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "clock_timestamp_seconds",
		Help:      "Maximum event timestamp seen so far",
	})

	ClockJumpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clock_jumps_total",
			Help:      "Clock advances larger than an aggregator window",
		},
		[]string{"aggregator"},
	)

	SlidingWindowTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sliding_window_hits",
			Help:      "Hits currently inside the sliding window",
		},
		[]string{"aggregator"},
	)

	SlidingWindowAverage = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sliding_window_average",
			Help:      "Average hits per second over the sliding window",
		},
		[]string{"aggregator"},
	)

	AlertFiring = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alert_firing",
			Help:      "1 while the alert is firing, 0 otherwise",
		},
		[]string{"aggregator"},
	)

	ReportTotalHits = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "report_total_hits",
			Help:      "Total hits of the last completed report period",
		},
		[]string{"aggregator"},
	)

	// Counter para erros
	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of errors",
		},
		[]string{"component", "error_type"},
	)

	// Status de saúde dos componentes
	ComponentHealth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "component_health",
			Help:      "Health status of components (1 = healthy, 0 = unhealthy)",
		},
		[]string{"component_type", "component_name"},
	)

	// Tempo de resposta da API
	ResponseTimeSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_time_seconds",
			Help:      "Response time of API endpoints",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)
)

var registerOnce sync.Once

// Register adds every collector to the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			LinesReceivedTotal,
			EventsDroppedTotal,
			EventsCollectedTotal,
			LateEventsTotal,
			MessagesEmittedTotal,
			MessagesSentTotal,
			SinkSendDuration,
			ClockTimestamp,
			ClockJumpsTotal,
			SlidingWindowTotal,
			SlidingWindowAverage,
			AlertFiring,
			ReportTotalHits,
			ErrorsTotal,
			ComponentHealth,
			ResponseTimeSeconds,
		)
	})
}

// MetricsServer servidor HTTP para métricas Prometheus
type MetricsServer struct {
	server *http.Server
	logger *logrus.Logger
}

// NewMetricsServer cria um novo servidor de métricas
func NewMetricsServer(addr, path string, logger *logrus.Logger) *MetricsServer {
	Register()

	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return &MetricsServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start inicia o servidor de métricas
func (ms *MetricsServer) Start() error {
	ms.logger.WithField("addr", ms.server.Addr).Info("Starting metrics server")

	go func() {
		if err := ms.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ms.logger.WithError(err).Error("Metrics server error")
		}
	}()

	return nil
}

// Stop para o servidor de métricas
func (ms *MetricsServer) Stop() error {
	ms.logger.Info("Stopping metrics server")
	return ms.server.Close()
}

// Funções auxiliares para métricas comuns

// RecordLineReceived registra uma linha lida de uma fonte
func RecordLineReceived(source string) {
	LinesReceivedTotal.WithLabelValues(source).Inc()
}

// RecordEventDropped registra um evento descartado
func RecordEventDropped(reason string) {
	EventsDroppedTotal.WithLabelValues(reason).Inc()
}

// RecordEventCollected registra um evento aceito por um agregador
func RecordEventCollected(aggregator string) {
	EventsCollectedTotal.WithLabelValues(aggregator).Inc()
}

// RecordLateEvent registra um evento rejeitado por atraso
func RecordLateEvent(aggregator string) {
	LateEventsTotal.WithLabelValues(aggregator).Inc()
}

// RecordMessageEmitted registra uma mensagem produzida
func RecordMessageEmitted(aggregator, kind string) {
	MessagesEmittedTotal.WithLabelValues(aggregator, kind).Inc()
}

// RecordMessageSent registra uma mensagem entregue (ou não) a um sink
func RecordMessageSent(sink, status string) {
	MessagesSentTotal.WithLabelValues(sink, status).Inc()
}

// RecordSinkSendDuration registra a duração de envio para sink
func RecordSinkSendDuration(sink string, duration time.Duration) {
	SinkSendDuration.WithLabelValues(sink).Observe(duration.Seconds())
}

// SetClock atualiza o relógio de event-time
func SetClock(timestamp int64) {
	ClockTimestamp.Set(float64(timestamp))
}

// RecordClockJump registra um avanço maior que a janela
func RecordClockJump(aggregator string) {
	ClockJumpsTotal.WithLabelValues(aggregator).Inc()
}

// SetSlidingWindow atualiza total e média da janela deslizante
func SetSlidingWindow(aggregator string, total, average int64) {
	SlidingWindowTotal.WithLabelValues(aggregator).Set(float64(total))
	SlidingWindowAverage.WithLabelValues(aggregator).Set(float64(average))
}

// SetAlertFiring define se o alerta está disparado
func SetAlertFiring(aggregator string, firing bool) {
	var value float64
	if firing {
		value = 1
	}
	AlertFiring.WithLabelValues(aggregator).Set(value)
}

// SetReportTotalHits registra o total do último relatório
func SetReportTotalHits(aggregator string, total int64) {
	ReportTotalHits.WithLabelValues(aggregator).Set(float64(total))
}

// RecordError registra um erro
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// SetComponentHealth define o status de saúde de um componente
func SetComponentHealth(componentType, componentName string, healthy bool) {
	var value float64
	if healthy {
		value = 1
	}
	ComponentHealth.WithLabelValues(componentType, componentName).Set(value)
}

// ObserveResponseTime registra o tempo de resposta de um endpoint
func ObserveResponseTime(path, method string, duration time.Duration) {
	ResponseTimeSeconds.WithLabelValues(path, method).Observe(duration.Seconds())
}
