// Package types - Configuration data structures
package types

// Config represents the application configuration loaded from YAML and environment.
type Config struct {
	App        AppConfig        `yaml:"app"`
	Server     ServerConfig     `yaml:"server"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Input      InputConfig      `yaml:"input"`
	Validation ValidationConfig `yaml:"validation"`
	Alert      AlertConfig      `yaml:"alert"`
	Report     ReportConfig     `yaml:"report"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Sinks      SinksConfig      `yaml:"sinks"`
}

// AppConfig contains general application settings.
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level"`  // trace, debug, info, warn, error
	LogFormat   string `yaml:"log_format"` // json or text
}

// ServerConfig contains the HTTP API settings.
type ServerConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ReadTimeout  string `yaml:"read_timeout"`
	WriteTimeout string `yaml:"write_timeout"`
}

// MetricsConfig contains Prometheus exporter settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// TracingConfig contains OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Exporter    string  `yaml:"exporter"` // otlp, jaeger
	Endpoint    string  `yaml:"endpoint"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// InputConfig selects the event source.
type InputConfig struct {
	Path         string `yaml:"path"`           // CSV file path, "-" for stdin
	Follow       bool   `yaml:"follow"`         // keep reading appended lines (tail -f)
	ReOpen       bool   `yaml:"reopen"`         // reopen on rotation, follow mode only
	Poll         bool   `yaml:"poll"`           // poll instead of inotify
	BufferSize   int    `yaml:"buffer_size"`    // lines buffered between reader and dispatcher
	MaxLineBytes int    `yaml:"max_line_bytes"` // longest accepted input line
}

// ValidationConfig contains row validation rules applied before parsing.
type ValidationConfig struct {
	Enabled               bool  `yaml:"enabled"`
	RejectNegative        bool  `yaml:"reject_negative"`          // negative epoch seconds
	MinStatusCode         int   `yaml:"min_status_code"`          // 0 disables the lower bound
	MaxStatusCode         int   `yaml:"max_status_code"`          // 0 disables the upper bound
	MaxForwardJumpSeconds int64 `yaml:"max_forward_jump_seconds"` // 0 disables the check
}

// AlertConfig configures the high-traffic threshold alert.
type AlertConfig struct {
	Enabled          bool `yaml:"enabled"`
	WindowSeconds    int  `yaml:"window_seconds"`
	AverageThreshold int  `yaml:"average_threshold"`
}

// ReportConfig configures the periodic summary report.
type ReportConfig struct {
	Enabled       bool `yaml:"enabled"`
	WindowSeconds int  `yaml:"window_seconds"`
	TopSections   int  `yaml:"top_sections"`
	FlushOnExit   bool `yaml:"flush_on_exit"` // emit the partial period when input ends
}

// DispatcherConfig contains core dispatcher settings.
type DispatcherConfig struct {
	SendTimeout     string `yaml:"send_timeout"`       // per-sink delivery timeout
	StopOnSinkError bool   `yaml:"stop_on_sink_error"` // abort processing on first sink failure
}

// SinksConfig groups every output destination.
type SinksConfig struct {
	Console   ConsoleSinkConfig   `yaml:"console"`
	LocalFile LocalFileSinkConfig `yaml:"local_file"`
	Kafka     KafkaSinkConfig     `yaml:"kafka"`
}

// ConsoleSinkConfig writes messages to stdout.
type ConsoleSinkConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LocalFileSinkConfig appends messages to a local file.
type LocalFileSinkConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Directory     string `yaml:"directory"`
	Filename      string `yaml:"filename"`
	OutputFormat  string `yaml:"output_format"` // text or json
	Compression   string `yaml:"compression"`   // none, gzip, zstd, lz4, snappy
	FlushInterval string `yaml:"flush_interval"`
}

// KafkaSinkConfig publishes messages to a Kafka topic.
type KafkaSinkConfig struct {
	Enabled         bool            `yaml:"enabled"`
	Brokers         []string        `yaml:"brokers"`
	Topic           string          `yaml:"topic"`
	Compression     string          `yaml:"compression"` // none, gzip, snappy, lz4, zstd
	RequiredAcks    int             `yaml:"required_acks"`
	MaxMessageBytes int             `yaml:"max_message_bytes"`
	RetryMax        int             `yaml:"retry_max"`
	Timeout         string          `yaml:"timeout"`
	QueueSize       int             `yaml:"queue_size"`
	Partitioning    string          `yaml:"partitioning"` // hash, round-robin, random
	Auth            KafkaAuthConfig `yaml:"auth"`
	TLS             TLSConfig       `yaml:"tls"`
}

// TLSConfig configuration for TLS connections
type TLSConfig struct {
	Enabled            bool   `yaml:"enabled"`
	CertFile           string `yaml:"cert_file"`
	KeyFile            string `yaml:"key_file"`
	CAFile             string `yaml:"ca_file"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// KafkaAuthConfig contains SASL settings.
type KafkaAuthConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Mechanism string `yaml:"mechanism"` // PLAIN, SCRAM-SHA-256, SCRAM-SHA-512
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
}
