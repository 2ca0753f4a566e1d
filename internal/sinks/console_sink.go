package sinks

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"ssw-access-monitor/pkg/errors"
	"ssw-access-monitor/pkg/types"

	"github.com/sirupsen/logrus"
)

// ConsoleSink prints every message text on its own line.
type ConsoleSink struct {
	writer io.Writer
	logger *logrus.Logger

	sent   int64
	failed int64
	mutex  sync.Mutex
}

// NewConsoleSink creates a console sink writing to w, or to stdout when w is nil.
func NewConsoleSink(w io.Writer, logger *logrus.Logger) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	return &ConsoleSink{writer: w, logger: logger}
}

// Name returns the sink name
func (cs *ConsoleSink) Name() string {
	return "console"
}

// Start inicia o sink
func (cs *ConsoleSink) Start(ctx context.Context) error {
	cs.logger.Debug("Console sink started")
	return nil
}

// Stop para o sink
func (cs *ConsoleSink) Stop() error {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()
	cs.logger.WithField("sent", cs.sent).Debug("Console sink stopped")
	return nil
}

// Send writes messages in order. The first write error aborts the batch.
func (cs *ConsoleSink) Send(ctx context.Context, messages []types.Message) error {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(cs.writer, msg.Text); err != nil {
			cs.failed++
			return errors.WrapError(err, errors.CodeSinkSendFailed, "console_sink", "Send", "write failed")
		}
		cs.sent++
	}
	return nil
}

// IsHealthy reports false once a write has failed.
func (cs *ConsoleSink) IsHealthy() bool {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()
	return cs.failed == 0
}

// GetStats retorna estatísticas do sink
func (cs *ConsoleSink) GetStats() map[string]interface{} {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()
	return map[string]interface{}{
		"sent_total":  cs.sent,
		"error_total": cs.failed,
	}
}
