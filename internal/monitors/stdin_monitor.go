package monitors

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"ssw-access-monitor/pkg/types"

	"github.com/sirupsen/logrus"
)

const defaultMaxLineBytes = 64 * 1024

// StdinMonitor reads the access log CSV from a stream, os.Stdin by default.
// Lines is closed at EOF.
type StdinMonitor struct {
	*lineSource

	reader       io.Reader
	maxLineBytes int

	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	wg      sync.WaitGroup
	mutex   sync.Mutex
}

// NewStdinMonitor creates a monitor over r, or over os.Stdin when r is nil.
func NewStdinMonitor(r io.Reader, config types.InputConfig, logger *logrus.Logger) *StdinMonitor {
	if r == nil {
		r = os.Stdin
	}
	maxLineBytes := config.MaxLineBytes
	if maxLineBytes <= 0 {
		maxLineBytes = defaultMaxLineBytes
	}

	return &StdinMonitor{
		lineSource:   newLineSource("stdin_monitor", "stdin", config.BufferSize, logger),
		reader:       r,
		maxLineBytes: maxLineBytes,
	}
}

// Start inicia a goroutine de leitura
func (sm *StdinMonitor) Start(ctx context.Context) error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	if sm.started {
		return fmt.Errorf("stdin monitor already running")
	}
	sm.started = true
	sm.ctx, sm.cancel = context.WithCancel(ctx)
	sm.setRunning(true)

	sm.wg.Add(1)
	go sm.readLoop()

	sm.logger.Info("Stdin monitor started")
	return nil
}

func (sm *StdinMonitor) readLoop() {
	defer sm.wg.Done()
	defer close(sm.out)
	defer sm.setRunning(false)

	reader := bufio.NewReaderSize(sm.reader, min(4096, sm.maxLineBytes))
	var (
		line    []byte
		size    int
		tooLong bool
	)

	for {
		if sm.ctx.Err() != nil {
			return
		}

		chunk, isPrefix, err := reader.ReadLine()
		if err != nil {
			if err != io.EOF {
				sm.recordError(err)
				return
			}
			sm.logger.Info("Stdin exhausted")
			return
		}

		// Linhas acima do limite são descartadas até o próximo '\n'
		size += len(chunk)
		if size > sm.maxLineBytes {
			tooLong = true
			line = line[:0]
		} else {
			line = append(line, chunk...)
		}
		if isPrefix {
			continue
		}

		if tooLong {
			sm.dropOversized(size, sm.maxLineBytes)
		} else if !sm.emit(sm.ctx, string(line)) {
			return
		}
		line, size, tooLong = line[:0], 0, false
	}
}

// Stop cancels the reader. A read blocked on the stream only returns once
// the stream yields data or EOF, so Stop does not wait for it.
func (sm *StdinMonitor) Stop() error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	if sm.cancel != nil {
		sm.cancel()
	}
	return nil
}

// Wait blocks until the reader goroutine has returned.
func (sm *StdinMonitor) Wait() {
	sm.wg.Wait()
}
