package monitors

import (
	"context"
	"fmt"
	"sync"

	"ssw-access-monitor/pkg/types"

	"github.com/nxadm/tail"
	"github.com/sirupsen/logrus"
)

// FileMonitor reads the access log CSV from a file. Without Follow the
// file is read once and Lines is closed at EOF; with Follow new rows are
// picked up as they are appended, like tail -f.
type FileMonitor struct {
	*lineSource

	config types.InputConfig
	tailer *tail.Tail

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mutex  sync.Mutex
}

// NewFileMonitor cria um novo monitor de arquivo
func NewFileMonitor(config types.InputConfig, logger *logrus.Logger) (*FileMonitor, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("file monitor: no input path configured")
	}

	return &FileMonitor{
		lineSource: newLineSource("file_monitor", config.Path, config.BufferSize, logger),
		config:     config,
	}, nil
}

// Start opens the file and starts the reader goroutine.
func (fm *FileMonitor) Start(ctx context.Context) error {
	fm.mutex.Lock()
	defer fm.mutex.Unlock()

	if fm.tailer != nil {
		return fmt.Errorf("file monitor already running")
	}

	tailer, err := tail.TailFile(fm.config.Path, tail.Config{
		Follow:      fm.config.Follow,
		ReOpen:      fm.config.Follow && fm.config.ReOpen,
		Poll:        fm.config.Poll,
		MustExist:   !fm.config.Follow,
		MaxLineSize: fm.config.MaxLineBytes,
		Logger:      tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	fm.tailer = tailer

	fm.ctx, fm.cancel = context.WithCancel(ctx)
	fm.setRunning(true)

	fm.wg.Add(1)
	go fm.readLoop()

	fm.logger.WithFields(logrus.Fields{
		"path":   fm.config.Path,
		"follow": fm.config.Follow,
		"reopen": fm.config.ReOpen,
		"poll":   fm.config.Poll,
	}).Info("File monitor started")
	return nil
}

func (fm *FileMonitor) readLoop() {
	defer fm.wg.Done()
	defer close(fm.out)
	defer fm.setRunning(false)

	for {
		select {
		case <-fm.ctx.Done():
			return
		case line, ok := <-fm.tailer.Lines:
			if !ok {
				if err := fm.tailer.Wait(); err != nil {
					fm.recordError(err)
				}
				fm.logger.WithField("path", fm.config.Path).Info("Input file exhausted")
				return
			}
			if line.Err != nil {
				fm.recordError(line.Err)
				continue
			}
			if !fm.emit(fm.ctx, line.Text) {
				return
			}
		}
	}
}

// Stop para a leitura e libera o arquivo
func (fm *FileMonitor) Stop() error {
	fm.mutex.Lock()
	defer fm.mutex.Unlock()

	if fm.tailer == nil || fm.cancel == nil {
		return nil
	}

	fm.cancel()
	fm.wg.Wait()

	// o tailer pode estar bloqueado entregando uma linha
	tailer := fm.tailer
	go func() {
		for range tailer.Lines {
		}
	}()
	err := tailer.Stop()
	// watches inotify só existem em follow sem poll
	if fm.config.Follow && !fm.config.Poll {
		tailer.Cleanup()
	}
	fm.cancel = nil

	status := fm.GetStatus()
	fm.logger.WithFields(logrus.Fields{
		"path":          fm.config.Path,
		"lines_read":    status.LinesRead,
		"rows_rejected": status.RowsRejected,
	}).Info("File monitor stopped")
	return err
}
