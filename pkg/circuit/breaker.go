package circuit

import (
	"fmt"
	"sync"
	"time"

	"ssw-access-monitor/pkg/errors"
	"ssw-access-monitor/pkg/types"

	"github.com/sirupsen/logrus"
)

// BreakerConfig configuração do circuit breaker
type BreakerConfig struct {
	Name             string        `yaml:"name"`
	FailureThreshold int           `yaml:"failure_threshold"`   // Falhas consecutivas para abrir
	SuccessThreshold int           `yaml:"success_threshold"`   // Sucessos em half-open para fechar
	Timeout          time.Duration `yaml:"timeout"`             // Tempo no estado aberto
	HalfOpenMaxCalls int           `yaml:"half_open_max_calls"` // Chamadas simultâneas em half-open
}

// Breaker guards a sink delivery path. After FailureThreshold consecutive
// failures calls are rejected for Timeout; then a limited number of probe
// calls decide whether to close again.
type Breaker struct {
	config BreakerConfig
	logger *logrus.Logger
	now    func() time.Time

	state         types.CircuitBreakerState
	failures      int64
	successes     int64
	requests      int64
	lastFailure   time.Time
	lastSuccess   time.Time
	nextRetryTime time.Time

	halfOpenCalls     int
	halfOpenSuccesses int

	onStateChange func(from, to types.CircuitBreakerState)

	mu sync.RWMutex
}

// NewBreaker cria um novo circuit breaker
func NewBreaker(config BreakerConfig, logger *logrus.Logger) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.HalfOpenMaxCalls <= 0 {
		config.HalfOpenMaxCalls = config.SuccessThreshold
	}

	return &Breaker{
		config: config,
		logger: logger,
		now:    time.Now,
		state:  types.CircuitBreakerClosed,
	}
}

// Execute runs fn unless the breaker rejects the call. The lock is not held
// while fn runs.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.recordFailure()
		return err
	}
	b.recordSuccess()
	return nil
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.requests++

	if b.state == types.CircuitBreakerOpen {
		if b.now().Before(b.nextRetryTime) {
			return errors.New(errors.CodeSinkUnavailable, "circuit_breaker", "Execute",
				fmt.Sprintf("circuit breaker %s is open", b.config.Name)).
				WithMetadata("next_retry_time", b.nextRetryTime)
		}
		b.setState(types.CircuitBreakerHalfOpen)
		b.halfOpenCalls = 0
		b.halfOpenSuccesses = 0
	}

	if b.state == types.CircuitBreakerHalfOpen {
		if b.halfOpenCalls >= b.config.HalfOpenMaxCalls {
			return errors.New(errors.CodeSinkUnavailable, "circuit_breaker", "Execute",
				fmt.Sprintf("circuit breaker %s is half-open (max calls reached)", b.config.Name))
		}
		b.halfOpenCalls++
	}
	return nil
}

func (b *Breaker) recordFailure() {
	b.failures++
	b.lastFailure = b.now()

	// em half-open uma falha reabre imediatamente
	if b.state == types.CircuitBreakerHalfOpen ||
		(b.state == types.CircuitBreakerClosed && b.failures >= int64(b.config.FailureThreshold)) {
		b.trip()
	}
}

func (b *Breaker) recordSuccess() {
	b.successes++
	b.lastSuccess = b.now()

	switch b.state {
	case types.CircuitBreakerHalfOpen:
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.config.SuccessThreshold {
			b.setState(types.CircuitBreakerClosed)
			b.reset()
		}
	case types.CircuitBreakerClosed:
		b.failures = 0
	}
}

func (b *Breaker) trip() {
	b.setState(types.CircuitBreakerOpen)
	b.nextRetryTime = b.now().Add(b.config.Timeout)

	b.logger.WithFields(logrus.Fields{
		"breaker":         b.config.Name,
		"failures":        b.failures,
		"next_retry_time": b.nextRetryTime,
	}).Warn("Circuit breaker opened")
}

func (b *Breaker) reset() {
	b.failures = 0
	b.halfOpenCalls = 0
	b.halfOpenSuccesses = 0
	b.nextRetryTime = time.Time{}
}

func (b *Breaker) setState(newState types.CircuitBreakerState) {
	if b.state == newState {
		return
	}

	oldState := b.state
	b.state = newState

	if b.onStateChange != nil {
		b.onStateChange(oldState, newState)
	}

	b.logger.WithFields(logrus.Fields{
		"breaker":   b.config.Name,
		"old_state": oldState,
		"new_state": newState,
	}).Info("Circuit breaker state changed")
}

// State retorna o estado atual do circuit breaker
func (b *Breaker) State() types.CircuitBreakerState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// IsOpen verifica se o circuit breaker está aberto
func (b *Breaker) IsOpen() bool {
	return b.State() == types.CircuitBreakerOpen
}

// Reset força o fechamento do circuit breaker
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.setState(types.CircuitBreakerClosed)
	b.reset()
}

// GetStats retorna estatísticas do circuit breaker
func (b *Breaker) GetStats() types.CircuitBreakerStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return types.CircuitBreakerStats{
		State:         b.state,
		Failures:      b.failures,
		Successes:     b.successes,
		Requests:      b.requests,
		LastFailure:   b.lastFailure,
		LastSuccess:   b.lastSuccess,
		NextRetryTime: b.nextRetryTime,
	}
}

// OnStateChange registers fn to be called, under the breaker lock, on every transition.
func (b *Breaker) OnStateChange(fn func(from, to types.CircuitBreakerState)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onStateChange = fn
}
