package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"ssw-access-monitor/pkg/errors"
	"ssw-access-monitor/pkg/types"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// Valores padrão do monitor
const (
	DefaultAlertWindowSeconds    = 120
	DefaultAlertAverageThreshold = 10
	DefaultReportWindowSeconds   = 10
	DefaultReportTopSections     = 5
)

// DefaultConfig returns the configuration used when no file is given.
// Booleans that default to true live here so a YAML file can still turn
// them off.
func DefaultConfig() *types.Config {
	return &types.Config{
		App: types.AppConfig{
			Name:        "ssw-access-monitor",
			Version:     "v1.0.0",
			Environment: "production",
			LogLevel:    "info",
			LogFormat:   "text",
		},
		Server: types.ServerConfig{
			Enabled:      false,
			Host:         "0.0.0.0",
			Port:         8401,
			ReadTimeout:  "10s",
			WriteTimeout: "10s",
		},
		Metrics: types.MetricsConfig{
			Enabled: false,
			Port:    8001,
			Path:    "/metrics",
		},
		Tracing: types.TracingConfig{
			Enabled:     false,
			ServiceName: "ssw-access-monitor",
			Exporter:    "otlp",
			Endpoint:    "http://localhost:4318/v1/traces",
			SampleRate:  1.0,
		},
		Input: types.InputConfig{
			Path:         "-",
			BufferSize:   1024,
			MaxLineBytes: 64 * 1024,
		},
		Validation: types.ValidationConfig{
			Enabled:        true,
			RejectNegative: true,
		},
		Alert: types.AlertConfig{
			Enabled:          true,
			WindowSeconds:    DefaultAlertWindowSeconds,
			AverageThreshold: DefaultAlertAverageThreshold,
		},
		Report: types.ReportConfig{
			Enabled:       true,
			WindowSeconds: DefaultReportWindowSeconds,
			TopSections:   DefaultReportTopSections,
		},
		Dispatcher: types.DispatcherConfig{
			SendTimeout: "5s",
		},
		Sinks: types.SinksConfig{
			Console: types.ConsoleSinkConfig{Enabled: true},
		},
	}
}

// LoadConfig carrega a configuração a partir de arquivo YAML e variáveis de ambiente.
// A missing file is reported on stderr and the defaults are used; a file
// that exists but does not parse is an error.
func LoadConfig(configFile string) (*types.Config, error) {
	config := DefaultConfig()

	if configFile != "" {
		if err := loadConfigFile(configFile, config); err != nil {
			if !errors.HasCode(err, errors.CodeConfigNotFound) {
				return nil, err
			}
			fmt.Fprintf(os.Stderr, "Warning: config file %s not found, using defaults\n", configFile)
		}
	}

	applyDefaults(config)
	applyEnvironmentOverrides(config)

	return config, nil
}

// loadConfigFile carrega configuração de um arquivo YAML por cima de config
func loadConfigFile(filename string, config *types.Config) error {
	data, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return errors.New(errors.CodeConfigNotFound, "config", "LoadConfig", "config file not found").
			WithMetadata("path", filename)
	}
	if err != nil {
		return errors.WrapError(err, errors.CodeConfigInvalid, "config", "LoadConfig", "failed to read config file")
	}

	if err := yaml.UnmarshalStrict(data, config); err != nil {
		return errors.ConfigError("LoadConfig", "failed to parse config file").
			WithMetadata("path", filename).
			Wrap(err)
	}
	return nil
}

// applyDefaults fills string settings left empty by the file. Numeric
// settings are not touched here: an explicit 0 must reach ValidateConfig.
func applyDefaults(config *types.Config) {
	defaults := DefaultConfig()

	if config.App.Name == "" {
		config.App.Name = defaults.App.Name
	}
	if config.App.LogLevel == "" {
		config.App.LogLevel = defaults.App.LogLevel
	}
	if config.App.LogFormat == "" {
		config.App.LogFormat = defaults.App.LogFormat
	}
	if config.Server.Host == "" {
		config.Server.Host = defaults.Server.Host
	}
	if config.Metrics.Path == "" {
		config.Metrics.Path = defaults.Metrics.Path
	}
	if config.Tracing.ServiceName == "" {
		config.Tracing.ServiceName = config.App.Name
	}
	if config.Input.Path == "" {
		config.Input.Path = defaults.Input.Path
	}
	if config.Dispatcher.SendTimeout == "" {
		config.Dispatcher.SendTimeout = defaults.Dispatcher.SendTimeout
	}
	if config.Sinks.Kafka.Topic == "" {
		config.Sinks.Kafka.Topic = "access-monitor-messages"
	}
}

// applyEnvironmentOverrides aplica sobrescritas de variáveis de ambiente
func applyEnvironmentOverrides(config *types.Config) {
	// Aggregators
	config.Alert.WindowSeconds = getEnvInt("ALERT_WINDOW_SECONDS", config.Alert.WindowSeconds)
	config.Alert.AverageThreshold = getEnvInt("ALERT_AVERAGE_THRESHOLD", config.Alert.AverageThreshold)
	config.Report.WindowSeconds = getEnvInt("REPORT_WINDOW_SECONDS", config.Report.WindowSeconds)
	config.Report.TopSections = getEnvInt("REPORT_TOP_SECTIONS", config.Report.TopSections)

	// Input
	config.Input.Path = getEnvString("INPUT_PATH", config.Input.Path)
	config.Input.Follow = getEnvBool("INPUT_FOLLOW", config.Input.Follow)

	// Logging overrides
	config.App.LogLevel = getEnvString("LOG_LEVEL", config.App.LogLevel)
	config.App.LogFormat = getEnvString("LOG_FORMAT", config.App.LogFormat)

	// Server/API overrides
	if port := getEnvInt("API_PORT", 0); port != 0 {
		config.Server.Port = port
		config.Server.Enabled = true
	}
	config.Server.Enabled = getEnvBool("API_ENABLED", config.Server.Enabled)

	// Metrics overrides
	if port := getEnvInt("METRICS_PORT", 0); port != 0 {
		config.Metrics.Port = port
		config.Metrics.Enabled = true
	}
	config.Metrics.Enabled = getEnvBool("METRICS_ENABLED", config.Metrics.Enabled)

	// Tracing overrides
	config.Tracing.Enabled = getEnvBool("TRACING_ENABLED", config.Tracing.Enabled)
	config.Tracing.Endpoint = getEnvString("TRACING_ENDPOINT", config.Tracing.Endpoint)

	// Sinks overrides
	config.Sinks.Console.Enabled = getEnvBool("CONSOLE_SINK_ENABLED", config.Sinks.Console.Enabled)
	config.Sinks.LocalFile.Enabled = getEnvBool("LOCALFILE_SINK_ENABLED", config.Sinks.LocalFile.Enabled)
	config.Sinks.LocalFile.Directory = getEnvString("LOCALFILE_DIRECTORY", config.Sinks.LocalFile.Directory)
	if brokers := getEnvStringSlice("KAFKA_BROKERS", nil); len(brokers) > 0 {
		config.Sinks.Kafka.Brokers = brokers
		config.Sinks.Kafka.Enabled = true
	}
	config.Sinks.Kafka.Topic = getEnvString("KAFKA_TOPIC", config.Sinks.Kafka.Topic)
	config.Sinks.Kafka.Auth.Password = getEnvString("KAFKA_SASL_PASSWORD", config.Sinks.Kafka.Auth.Password)
}

// Funções auxiliares para variáveis de ambiente

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		return out
	}
	return defaultValue
}

// ValidateConfig valida a configuração
func ValidateConfig(config *types.Config) error {
	if config.Alert.Enabled {
		if config.Alert.WindowSeconds < 1 {
			return invalid("alert.window_seconds", config.Alert.WindowSeconds, "must be >= 1")
		}
		if config.Alert.AverageThreshold < 1 {
			return invalid("alert.average_threshold", config.Alert.AverageThreshold, "must be >= 1")
		}
	}
	if config.Report.Enabled {
		if config.Report.WindowSeconds < 1 {
			return invalid("report.window_seconds", config.Report.WindowSeconds, "must be >= 1")
		}
		if config.Report.TopSections < 1 {
			return invalid("report.top_sections", config.Report.TopSections, "must be >= 1")
		}
	}
	if !config.Alert.Enabled && !config.Report.Enabled {
		return errors.ConfigError("ValidateConfig", "at least one aggregator must be enabled")
	}

	if config.Server.Enabled && (config.Server.Port <= 0 || config.Server.Port > 65535) {
		return invalid("server.port", config.Server.Port, "invalid API port")
	}
	if config.Metrics.Enabled && (config.Metrics.Port <= 0 || config.Metrics.Port > 65535) {
		return invalid("metrics.port", config.Metrics.Port, "invalid metrics port")
	}
	if config.Server.Enabled && config.Metrics.Enabled && config.Server.Port == config.Metrics.Port {
		return invalid("metrics.port", config.Metrics.Port, "API and metrics cannot share a port")
	}
	if config.Tracing.Enabled && (config.Tracing.SampleRate < 0 || config.Tracing.SampleRate > 1) {
		return invalid("tracing.sample_rate", config.Tracing.SampleRate, "must be within [0, 1]")
	}

	if _, err := time.ParseDuration(config.Dispatcher.SendTimeout); err != nil {
		return invalid("dispatcher.send_timeout", config.Dispatcher.SendTimeout, "not a duration")
	}

	if config.Input.BufferSize < 0 || config.Input.MaxLineBytes < 0 {
		return errors.ConfigError("ValidateConfig", "input buffer sizes cannot be negative")
	}

	v := config.Validation
	if v.MinStatusCode > 0 && v.MaxStatusCode > 0 && v.MinStatusCode > v.MaxStatusCode {
		return invalid("validation.min_status_code", v.MinStatusCode, "greater than max_status_code")
	}
	if v.MaxForwardJumpSeconds < 0 {
		return invalid("validation.max_forward_jump_seconds", v.MaxForwardJumpSeconds, "cannot be negative")
	}

	if config.Sinks.LocalFile.Enabled && config.Sinks.LocalFile.Directory == "" {
		return errors.ConfigError("ValidateConfig", "local file directory cannot be empty when local file sink is enabled")
	}
	if config.Sinks.Kafka.Enabled && len(config.Sinks.Kafka.Brokers) == 0 {
		return errors.ConfigError("ValidateConfig", "kafka brokers cannot be empty when kafka sink is enabled")
	}

	// Verificar se pelo menos um sink está habilitado
	anyEnabled := config.Sinks.Console.Enabled ||
		config.Sinks.LocalFile.Enabled ||
		config.Sinks.Kafka.Enabled
	if !anyEnabled {
		return errors.ConfigError("ValidateConfig", "at least one sink must be enabled")
	}

	return nil
}

func invalid(field string, value interface{}, reason string) error {
	return errors.ConfigError("ValidateConfig", fmt.Sprintf("%s: %s", field, reason)).
		WithMetadata("field", field).
		WithMetadata("value", value)
}

// LogFields summarises the effective configuration for the startup log
func LogFields(config *types.Config) logrus.Fields {
	return logrus.Fields{
		"input":                   config.Input.Path,
		"follow":                  config.Input.Follow,
		"alert_enabled":           config.Alert.Enabled,
		"alert_window_seconds":    config.Alert.WindowSeconds,
		"alert_average_threshold": config.Alert.AverageThreshold,
		"report_enabled":          config.Report.Enabled,
		"report_window_seconds":   config.Report.WindowSeconds,
		"report_top_sections":     config.Report.TopSections,
		"console_sink":            config.Sinks.Console.Enabled,
		"local_file_sink":         config.Sinks.LocalFile.Enabled,
		"kafka_sink":              config.Sinks.Kafka.Enabled,
	}
}
