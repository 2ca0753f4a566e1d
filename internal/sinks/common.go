package sinks

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"ssw-access-monitor/internal/aggregators"
	"ssw-access-monitor/pkg/types"
)

// createTLSConfig creates a TLS configuration from config
func createTLSConfig(config types.TLSConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		InsecureSkipVerify: config.InsecureSkipVerify,
	}

	if config.CertFile != "" && config.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(config.CertFile, config.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load cert/key pair: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if config.CAFile != "" {
		caCert, err := os.ReadFile(config.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file: %w", err)
		}

		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsConfig.RootCAs = caCertPool
	}

	return tlsConfig, nil
}

// messageRecord is the structured form of a message written by the json
// file format and the Kafka sink.
type messageRecord struct {
	Source    string `json:"source"`
	Kind      string `json:"kind"`
	Timestamp int64  `json:"timestamp"`
	EventTime string `json:"event_time"`
	Text      string `json:"text"`
}

func newMessageRecord(msg types.Message) messageRecord {
	return messageRecord{
		Source:    msg.Source,
		Kind:      msg.Kind,
		Timestamp: msg.Timestamp,
		EventTime: aggregators.FormatTimestamp(msg.Timestamp),
		Text:      msg.Text,
	}
}
