package validation

import (
	"fmt"
	"sync"

	"ssw-access-monitor/pkg/types"

	"github.com/sirupsen/logrus"
)

// Motivos de rejeição
const (
	ReasonNegativeTimestamp = "negative_timestamp"
	ReasonStatusCodeRange   = "status_code_out_of_range"
	ReasonForwardJump       = "forward_jump"
)

// RowValidator rejeita linhas cujo conteúdo tornaria as janelas inconsistentes
type RowValidator struct {
	config types.ValidationConfig
	logger *logrus.Logger

	stats Stats
	mutex sync.RWMutex
}

// Stats estatísticas do validador
type Stats struct {
	TotalValidated int64            `json:"total_validated"`
	Valid          int64            `json:"valid"`
	Rejected       int64            `json:"rejected"`
	ByReason       map[string]int64 `json:"by_reason"`
}

// ValidationResult resultado da validação
type ValidationResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// NewRowValidator cria novo validador
func NewRowValidator(config types.ValidationConfig, logger *logrus.Logger) *RowValidator {
	return &RowValidator{
		config: config,
		logger: logger,
		stats:  Stats{ByReason: make(map[string]int64)},
	}
}

// Validate checks line against the configured rules. clock is the current
// event-time maximum, -1 before the first event.
func (rv *RowValidator) Validate(line types.LogLine, clock int64) ValidationResult {
	if !rv.config.Enabled {
		return ValidationResult{Valid: true}
	}

	result := rv.check(line, clock)

	rv.mutex.Lock()
	rv.stats.TotalValidated++
	if result.Valid {
		rv.stats.Valid++
	} else {
		rv.stats.Rejected++
		rv.stats.ByReason[result.Reason]++
	}
	rv.mutex.Unlock()

	if !result.Valid {
		rv.logger.WithFields(logrus.Fields{
			"reason":    result.Reason,
			"detail":    result.Detail,
			"timestamp": line.Timestamp,
			"status":    line.StatusCode,
		}).Debug("Row rejected by validator")
	}
	return result
}

func (rv *RowValidator) check(line types.LogLine, clock int64) ValidationResult {
	if rv.config.RejectNegative && line.Timestamp < 0 {
		return ValidationResult{
			Reason: ReasonNegativeTimestamp,
			Detail: fmt.Sprintf("timestamp %d is before the epoch", line.Timestamp),
		}
	}

	if (rv.config.MinStatusCode > 0 && line.StatusCode < rv.config.MinStatusCode) ||
		(rv.config.MaxStatusCode > 0 && line.StatusCode > rv.config.MaxStatusCode) {
		return ValidationResult{
			Reason: ReasonStatusCodeRange,
			Detail: fmt.Sprintf("status %d outside [%d, %d]", line.StatusCode, rv.config.MinStatusCode, rv.config.MaxStatusCode),
		}
	}

	// the first event sets the clock and cannot jump
	if rv.config.MaxForwardJumpSeconds > 0 && clock > -1 && line.Timestamp-clock > rv.config.MaxForwardJumpSeconds {
		return ValidationResult{
			Reason: ReasonForwardJump,
			Detail: fmt.Sprintf("timestamp %d is %ds ahead of clock %d", line.Timestamp, line.Timestamp-clock, clock),
		}
	}

	return ValidationResult{Valid: true}
}

// GetStats retorna cópia das estatísticas
func (rv *RowValidator) GetStats() Stats {
	rv.mutex.RLock()
	defer rv.mutex.RUnlock()

	byReason := make(map[string]int64, len(rv.stats.ByReason))
	for k, v := range rv.stats.ByReason {
		byReason[k] = v
	}
	stats := rv.stats
	stats.ByReason = byReason
	return stats
}
