package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"ssw-access-monitor/internal/metrics"
	"ssw-access-monitor/pkg/circuit"
	"ssw-access-monitor/pkg/errors"
	"ssw-access-monitor/pkg/types"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

// KafkaSink publishes every message as a JSON record keyed by the
// aggregator name, so alerts and reports of one aggregator stay ordered
// within a partition.
//
// Send blocks until the broker acknowledged (or rejected) the whole batch,
// which lets the circuit breaker see delivery failures.
type KafkaSink struct {
	config   types.KafkaSinkConfig
	logger   *logrus.Logger
	producer sarama.AsyncProducer
	breaker  *circuit.Breaker

	loopWg    sync.WaitGroup
	isRunning bool
	mutex     sync.RWMutex

	sentCount  int64
	errorCount int64
}

// NewKafkaSink cria um novo sink para Kafka
func NewKafkaSink(config types.KafkaSinkConfig, logger *logrus.Logger) (*KafkaSink, error) {
	if len(config.Brokers) == 0 {
		return nil, errors.ConfigError("NewKafkaSink", "kafka sink: no brokers configured")
	}

	saramaConfig, err := newSaramaConfig(config)
	if err != nil {
		return nil, err
	}

	producer, err := sarama.NewAsyncProducer(config.Brokers, saramaConfig)
	if err != nil {
		return nil, errors.WrapError(err, errors.CodeSinkUnavailable, "kafka_sink", "NewKafkaSink", "failed to create producer")
	}

	return newKafkaSinkWithProducer(config, producer, logger)
}

// newKafkaSinkWithProducer builds the sink around an existing producer.
func newKafkaSinkWithProducer(config types.KafkaSinkConfig, producer sarama.AsyncProducer, logger *logrus.Logger) (*KafkaSink, error) {
	if config.Topic == "" {
		return nil, errors.ConfigError("NewKafkaSink", "kafka sink: no topic configured")
	}

	breaker := circuit.NewBreaker(circuit.BreakerConfig{
		Name:             "kafka_sink",
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}, logger)
	breaker.OnStateChange(func(from, to types.CircuitBreakerState) {
		metrics.SetComponentHealth("sink", "kafka", to != types.CircuitBreakerOpen)
	})

	logger.WithFields(logrus.Fields{
		"brokers":     config.Brokers,
		"topic":       config.Topic,
		"compression": config.Compression,
	}).Info("Kafka sink initialized")

	return &KafkaSink{
		config:   config,
		logger:   logger,
		producer: producer,
		breaker:  breaker,
	}, nil
}

// newSaramaConfig translates the sink configuration into a producer config.
func newSaramaConfig(config types.KafkaSinkConfig) (*sarama.Config, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = sarama.RequiredAcks(config.RequiredAcks)

	// Configurar compressão
	switch strings.ToLower(config.Compression) {
	case "gzip":
		saramaConfig.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		saramaConfig.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		saramaConfig.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		saramaConfig.Producer.Compression = sarama.CompressionZSTD
	case "", "none":
		saramaConfig.Producer.Compression = sarama.CompressionNone
	default:
		return nil, errors.ConfigError("NewKafkaSink", fmt.Sprintf("unsupported compression %q", config.Compression))
	}

	if config.MaxMessageBytes > 0 {
		saramaConfig.Producer.MaxMessageBytes = config.MaxMessageBytes
	}
	if config.RetryMax > 0 {
		saramaConfig.Producer.Retry.Max = config.RetryMax
	}
	if config.QueueSize > 0 {
		saramaConfig.ChannelBufferSize = config.QueueSize
	}

	if config.Timeout != "" {
		timeout, err := time.ParseDuration(config.Timeout)
		if err != nil {
			return nil, errors.ConfigError("NewKafkaSink", fmt.Sprintf("invalid timeout %q", config.Timeout))
		}
		saramaConfig.Net.DialTimeout = timeout
		saramaConfig.Net.ReadTimeout = timeout
		saramaConfig.Net.WriteTimeout = timeout
	}

	// Configurar autenticação SASL
	if config.Auth.Enabled {
		mechanism, generator, err := saslMechanism(config.Auth.Mechanism)
		if err != nil {
			return nil, errors.ConfigError("NewKafkaSink", err.Error())
		}
		saramaConfig.Net.SASL.Enable = true
		saramaConfig.Net.SASL.User = config.Auth.Username
		saramaConfig.Net.SASL.Password = config.Auth.Password
		saramaConfig.Net.SASL.Mechanism = mechanism
		saramaConfig.Net.SASL.SCRAMClientGeneratorFunc = generator
	}

	// Configurar TLS
	if config.TLS.Enabled {
		tlsConfig, err := createTLSConfig(config.TLS)
		if err != nil {
			return nil, errors.ConfigError("NewKafkaSink", err.Error())
		}
		saramaConfig.Net.TLS.Enable = true
		saramaConfig.Net.TLS.Config = tlsConfig
	}

	// Configurar partitioner
	switch strings.ToLower(config.Partitioning) {
	case "", "hash":
		saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner
	case "round-robin":
		saramaConfig.Producer.Partitioner = sarama.NewRoundRobinPartitioner
	case "random":
		saramaConfig.Producer.Partitioner = sarama.NewRandomPartitioner
	default:
		return nil, errors.ConfigError("NewKafkaSink", fmt.Sprintf("unsupported partitioning %q", config.Partitioning))
	}

	return saramaConfig, nil
}

// Name returns the sink name
func (ks *KafkaSink) Name() string {
	return "kafka"
}

// Start inicia o loop de respostas do producer
func (ks *KafkaSink) Start(ctx context.Context) error {
	ks.mutex.Lock()
	defer ks.mutex.Unlock()

	if ks.isRunning {
		return fmt.Errorf("kafka sink already running")
	}
	ks.isRunning = true

	ks.loopWg.Add(1)
	go ks.handleProducerResponses()

	ks.logger.Info("Kafka sink started")
	return nil
}

// Stop closes the producer and waits for the outstanding responses.
func (ks *KafkaSink) Stop() error {
	ks.mutex.Lock()
	if !ks.isRunning {
		ks.mutex.Unlock()
		return nil
	}
	ks.isRunning = false
	ks.mutex.Unlock()

	ks.producer.AsyncClose()
	ks.loopWg.Wait()

	ks.logger.WithFields(logrus.Fields{
		"sent":   atomic.LoadInt64(&ks.sentCount),
		"errors": atomic.LoadInt64(&ks.errorCount),
	}).Info("Kafka sink stopped")
	return nil
}

// Send publishes messages in order and waits for their acknowledgements.
func (ks *KafkaSink) Send(ctx context.Context, messages []types.Message) error {
	ks.mutex.RLock()
	defer ks.mutex.RUnlock()

	if !ks.isRunning {
		return errors.New(errors.CodeSinkUnavailable, "kafka_sink", "Send", "sink not running")
	}
	if len(messages) == 0 {
		return nil
	}

	return ks.breaker.Execute(func() error {
		return ks.produce(ctx, messages)
	})
}

func (ks *KafkaSink) produce(ctx context.Context, messages []types.Message) error {
	acks := make(chan error, len(messages))

	queued := 0
	for _, msg := range messages {
		value, err := json.Marshal(newMessageRecord(msg))
		if err != nil {
			return errors.WrapError(err, errors.CodeSinkSendFailed, "kafka_sink", "Send", "failed to marshal message")
		}

		record := &sarama.ProducerMessage{
			Topic:    ks.config.Topic,
			Key:      sarama.StringEncoder(msg.Source),
			Value:    sarama.ByteEncoder(value),
			Metadata: acks,
		}

		select {
		case ks.producer.Input() <- record:
			queued++
		case <-ctx.Done():
			return errors.WrapError(ctx.Err(), errors.CodeSinkSendFailed, "kafka_sink", "Send", "timed out queueing messages").
				WithMetadata("queued", queued)
		}
	}

	var failed int
	var lastErr error
	for i := 0; i < queued; i++ {
		select {
		case err := <-acks:
			if err != nil {
				failed++
				lastErr = err
			}
		case <-ctx.Done():
			return errors.WrapError(ctx.Err(), errors.CodeSinkSendFailed, "kafka_sink", "Send", "timed out waiting for acknowledgements").
				WithMetadata("pending", queued-i)
		}
	}

	if failed > 0 {
		return errors.WrapError(lastErr, errors.CodeSinkSendFailed, "kafka_sink", "Send",
			fmt.Sprintf("kafka sink: %d/%d messages failed", failed, queued))
	}
	return nil
}

// handleProducerResponses routes every success and error back to the batch
// that produced it. Returns once both channels are closed by the producer.
func (ks *KafkaSink) handleProducerResponses() {
	defer ks.loopWg.Done()

	successes := ks.producer.Successes()
	producerErrors := ks.producer.Errors()

	for successes != nil || producerErrors != nil {
		select {
		case success, ok := <-successes:
			if !ok {
				successes = nil
				continue
			}
			atomic.AddInt64(&ks.sentCount, 1)
			ks.logger.WithFields(logrus.Fields{
				"topic":     success.Topic,
				"partition": success.Partition,
				"offset":    success.Offset,
			}).Trace("Message delivered to Kafka")
			ack(success, nil)

		case perr, ok := <-producerErrors:
			if !ok {
				producerErrors = nil
				continue
			}
			atomic.AddInt64(&ks.errorCount, 1)
			metrics.RecordError("kafka_sink", "produce_error")
			ks.logger.WithError(perr.Err).WithField("topic", perr.Msg.Topic).Error("Failed to produce message to Kafka")
			ack(perr.Msg, perr.Err)
		}
	}
}

func ack(msg *sarama.ProducerMessage, err error) {
	if msg == nil {
		return
	}
	if acks, ok := msg.Metadata.(chan error); ok {
		acks <- err
	}
}

// GetStats retorna estatísticas do sink
func (ks *KafkaSink) GetStats() map[string]interface{} {
	ks.mutex.RLock()
	defer ks.mutex.RUnlock()

	return map[string]interface{}{
		"running":         ks.isRunning,
		"topic":           ks.config.Topic,
		"sent_total":      atomic.LoadInt64(&ks.sentCount),
		"error_total":     atomic.LoadInt64(&ks.errorCount),
		"circuit_breaker": ks.breaker.GetStats(),
	}
}

// IsHealthy retorna o status de saúde do Kafka sink
func (ks *KafkaSink) IsHealthy() bool {
	ks.mutex.RLock()
	running := ks.isRunning
	ks.mutex.RUnlock()

	return running && !ks.breaker.IsOpen()
}
