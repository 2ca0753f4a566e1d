package monitors

import (
	"context"
	"strings"
	"sync"
	"time"

	"ssw-access-monitor/internal/metrics"
	"ssw-access-monitor/internal/processing"
	"ssw-access-monitor/pkg/errors"
	"ssw-access-monitor/pkg/types"

	"github.com/sirupsen/logrus"
)

const defaultBufferSize = 1024

// Drop reasons reported by the monitors
const (
	DropMalformedRow = "malformed_row"
	DropLineTooLong  = "line_too_long"
)

// lineSource holds what every monitor shares: the CSV decoder, the output
// channel and the status counters.
type lineSource struct {
	name    string
	source  string
	logger  *logrus.Logger
	decoder *processing.CSVDecoder

	out chan types.LogLine

	linesRead     int64
	rowsRejected  int64
	errorCount    int64
	lastError     string
	lastHeartbeat time.Time
	isRunning     bool
	mutex         sync.RWMutex
}

func newLineSource(name, source string, bufferSize int, logger *logrus.Logger) *lineSource {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &lineSource{
		name:    name,
		source:  source,
		logger:  logger,
		decoder: processing.NewCSVDecoder(),
		out:     make(chan types.LogLine, bufferSize),
	}
}

// emit decodes raw and publishes the row. It returns false once ctx is done.
func (ls *lineSource) emit(ctx context.Context, raw string) bool {
	metrics.RecordLineReceived(ls.name)

	line, err := ls.decoder.Decode(strings.TrimRight(raw, "\r"))

	ls.mutex.Lock()
	ls.linesRead++
	ls.lastHeartbeat = time.Now()
	if err != nil {
		ls.rowsRejected++
	}
	ls.mutex.Unlock()

	if err != nil {
		fields := logrus.Fields{"monitor": ls.name, "source": ls.source}
		if appErr, ok := errors.AsAppError(err); ok {
			for k, v := range appErr.ToMap() {
				fields[k] = v
			}
		}
		ls.logger.WithFields(fields).Warn("Skipping malformed input row")
		metrics.RecordEventDropped(DropMalformedRow)
		return true
	}
	if line == nil {
		return true
	}

	select {
	case ls.out <- *line:
		return true
	case <-ctx.Done():
		return false
	}
}

// dropOversized counts a row longer than the configured limit. The row is
// skipped and reading continues with the next line.
func (ls *lineSource) dropOversized(size, limit int) {
	metrics.RecordLineReceived(ls.name)

	ls.mutex.Lock()
	ls.linesRead++
	ls.rowsRejected++
	ls.lastHeartbeat = time.Now()
	ls.mutex.Unlock()

	metrics.RecordEventDropped(DropLineTooLong)
	ls.logger.WithFields(logrus.Fields{
		"monitor":    ls.name,
		"source":     ls.source,
		"line_bytes": size,
		"max_bytes":  limit,
	}).Warn("Skipping input row longer than the line limit")
}

func (ls *lineSource) recordError(err error) {
	ls.mutex.Lock()
	ls.errorCount++
	ls.lastError = err.Error()
	ls.mutex.Unlock()

	metrics.RecordError(ls.name, "read_error")
	ls.logger.WithError(err).WithFields(logrus.Fields{
		"monitor": ls.name,
		"source":  ls.source,
	}).Error("Input read error")
}

func (ls *lineSource) setRunning(running bool) {
	ls.mutex.Lock()
	ls.isRunning = running
	ls.mutex.Unlock()
	metrics.SetComponentHealth("monitor", ls.name, running)
}

// Lines returns the decoded rows channel
func (ls *lineSource) Lines() <-chan types.LogLine {
	return ls.out
}

// IsHealthy reports whether the reader goroutine is active
func (ls *lineSource) IsHealthy() bool {
	ls.mutex.RLock()
	defer ls.mutex.RUnlock()
	return ls.isRunning
}

// GetStatus retorna o status do monitor
func (ls *lineSource) GetStatus() types.MonitorStatus {
	ls.mutex.RLock()
	defer ls.mutex.RUnlock()

	return types.MonitorStatus{
		Name:          ls.name,
		Source:        ls.source,
		IsRunning:     ls.isRunning,
		IsHealthy:     ls.isRunning,
		LinesRead:     ls.linesRead,
		RowsRejected:  ls.rowsRejected,
		ErrorCount:    ls.errorCount,
		LastError:     ls.lastError,
		LastHeartbeat: ls.lastHeartbeat,
	}
}
