package types

import (
	"time"
)

// LogLine representa uma linha CSV de access log já decodificada
type LogLine struct {
	RemoteHost string `json:"remotehost"`
	RFC931     string `json:"rfc931"`
	AuthUser   string `json:"authuser"`
	Timestamp  int64  `json:"date"` // epoch seconds
	Request    string `json:"request"`
	StatusCode int    `json:"status"`
	Bytes      int    `json:"bytes"`
}

// Event is the only input the aggregators see. Built once per accepted LogLine.
type Event struct {
	Timestamp  int64  `json:"timestamp"`
	StatusCode int    `json:"status_code"`
	Section    string `json:"section"`
}

// Message kinds
const (
	MessageKindAlert  = "alert"
	MessageKindReport = "report"
)

// Message is a line of output produced by an aggregator.
// Text carries the exact rendered wording; the other fields are routing metadata.
type Message struct {
	Source    string `json:"source"`
	Kind      string `json:"kind"`
	Timestamp int64  `json:"timestamp"`
	Text      string `json:"text"`
}

// AlertStatus estado da máquina de histerese
type AlertStatus int

const (
	AlertNotFiring AlertStatus = iota
	AlertFiring
)

func (s AlertStatus) String() string {
	if s == AlertFiring {
		return "FIRING"
	}
	return "NOT_FIRING"
}

// MonitorStatus representa o status de um monitor
type MonitorStatus struct {
	Name          string    `json:"name"`
	Source        string    `json:"source"`
	IsRunning     bool      `json:"is_running"`
	IsHealthy     bool      `json:"is_healthy"`
	LinesRead     int64     `json:"lines_read"`
	RowsRejected  int64     `json:"rows_rejected"`
	ErrorCount    int64     `json:"error_count"`
	LastError     string    `json:"last_error,omitempty"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// DispatcherStats representa estatísticas do dispatcher
type DispatcherStats struct {
	LinesHandled      int64            `json:"lines_handled"`
	EventsCollected   int64            `json:"events_collected"`
	EventsDropped     map[string]int64 `json:"events_dropped"` // keyed by reason
	ClockAdvances     int64            `json:"clock_advances"`
	MaxTimestamp      int64            `json:"max_timestamp"`
	MessagesEmitted   int64            `json:"messages_emitted"`
	MessagesDelivered int64            `json:"messages_delivered"`
	SinkErrors        int64            `json:"sink_errors"`
	QueueSize         int              `json:"queue_size"`
	SinkDistribution  map[string]int64 `json:"sink_distribution"`
	LastProcessedTime time.Time        `json:"last_processed_time"`
	LastError         string           `json:"last_error,omitempty"`
}

// HealthStatus representa o status de saúde do sistema
type HealthStatus struct {
	Status     string                 `json:"status"` // "healthy", "degraded", "unhealthy"
	Components map[string]interface{} `json:"components"`
	Issues     []string               `json:"issues"`
	CheckTime  time.Time              `json:"check_time"`
}

// CircuitBreakerState represents the state of a circuit breaker
type CircuitBreakerState string

const (
	CircuitBreakerClosed   CircuitBreakerState = "closed"
	CircuitBreakerOpen     CircuitBreakerState = "open"
	CircuitBreakerHalfOpen CircuitBreakerState = "half_open"
)

// CircuitBreakerStats represents circuit breaker statistics
type CircuitBreakerStats struct {
	State         CircuitBreakerState `json:"state"`
	Failures      int64               `json:"failures"`
	Successes     int64               `json:"successes"`
	Requests      int64               `json:"requests"`
	LastFailure   time.Time           `json:"last_failure"`
	LastSuccess   time.Time           `json:"last_success"`
	NextRetryTime time.Time           `json:"next_retry_time"`
}
