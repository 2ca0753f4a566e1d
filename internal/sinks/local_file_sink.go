package sinks

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"ssw-access-monitor/internal/metrics"
	"ssw-access-monitor/pkg/compression"
	"ssw-access-monitor/pkg/errors"
	"ssw-access-monitor/pkg/types"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/sirupsen/logrus"
)

const (
	outputFormatText = "text"
	outputFormatJSON = "json"

	// Uso de disco a partir do qual o sink emite aviso no Start
	diskUsageWarnPercent = 90.0
)

// LocalFileSink appends messages to a single file, as plain text or as
// JSON lines, optionally compressed. Writes go through a buffer that
// is flushed at the end of every Send and on a periodic ticker.
type LocalFileSink struct {
	config types.LocalFileSinkConfig
	logger *logrus.Logger

	path          string
	flushInterval time.Duration
	algorithm     compression.Algorithm

	file   *os.File
	codec  compression.Writer
	writer *bufio.Writer

	written int64
	failed  int64

	ctx       context.Context
	cancel    context.CancelFunc
	loopWg    sync.WaitGroup
	isRunning bool
	mutex     sync.Mutex
}

// NewLocalFileSink cria um novo sink para arquivos locais
func NewLocalFileSink(config types.LocalFileSinkConfig, logger *logrus.Logger) (*LocalFileSink, error) {
	if config.Directory == "" {
		config.Directory = "."
	}
	if config.Filename == "" {
		config.Filename = "access-monitor.log"
	}
	config.OutputFormat = strings.ToLower(config.OutputFormat)
	if config.OutputFormat == "" {
		config.OutputFormat = outputFormatText
	}
	if config.OutputFormat != outputFormatText && config.OutputFormat != outputFormatJSON {
		return nil, errors.ConfigError("NewLocalFileSink", fmt.Sprintf("unsupported output format %q", config.OutputFormat))
	}

	flushInterval := 5 * time.Second
	if config.FlushInterval != "" {
		interval, err := time.ParseDuration(config.FlushInterval)
		if err != nil || interval <= 0 {
			return nil, errors.ConfigError("NewLocalFileSink", fmt.Sprintf("invalid flush interval %q", config.FlushInterval))
		}
		flushInterval = interval
	}

	algorithm, err := compression.ParseAlgorithm(config.Compression)
	if err != nil {
		return nil, errors.ConfigError("NewLocalFileSink", err.Error())
	}

	filename := config.Filename
	if ext := algorithm.Extension(); ext != "" && !strings.HasSuffix(filename, ext) {
		filename += ext
	}

	return &LocalFileSink{
		config:        config,
		logger:        logger,
		path:          filepath.Join(config.Directory, filename),
		flushInterval: flushInterval,
		algorithm:     algorithm,
	}, nil
}

// Name returns the sink name
func (lfs *LocalFileSink) Name() string {
	return "local_file"
}

// Path returns the file the sink writes to
func (lfs *LocalFileSink) Path() string {
	return lfs.path
}

// Start creates the directory, opens the file for appending and starts the flush loop.
func (lfs *LocalFileSink) Start(ctx context.Context) error {
	lfs.mutex.Lock()
	defer lfs.mutex.Unlock()

	if lfs.isRunning {
		return fmt.Errorf("local file sink already running")
	}

	if err := os.MkdirAll(lfs.config.Directory, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	lfs.checkDiskSpace()

	file, err := os.OpenFile(lfs.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open output file: %w", err)
	}

	codec, err := compression.NewWriter(lfs.algorithm, file, 0)
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to create %s writer: %w", lfs.algorithm, err)
	}
	lfs.file = file
	lfs.codec = codec
	lfs.writer = bufio.NewWriter(codec)

	lfs.ctx, lfs.cancel = context.WithCancel(context.Background())
	lfs.isRunning = true

	lfs.loopWg.Add(1)
	go lfs.flushLoop()

	lfs.logger.WithFields(logrus.Fields{
		"path":     lfs.path,
		"format":   lfs.config.OutputFormat,
		"compression": lfs.algorithm,
	}).Info("Local file sink started")
	return nil
}

// checkDiskSpace avisa quando o volume de destino está quase cheio
func (lfs *LocalFileSink) checkDiskSpace() {
	usage, err := disk.Usage(lfs.config.Directory)
	if err != nil {
		lfs.logger.WithError(err).Debug("Unable to read disk usage")
		return
	}
	if usage.UsedPercent >= diskUsageWarnPercent {
		lfs.logger.WithFields(logrus.Fields{
			"directory":    lfs.config.Directory,
			"used_percent": usage.UsedPercent,
			"free_bytes":   usage.Free,
		}).Warn("Output volume almost full")
	}
}

// Stop flushes buffered data, finishes the compressed stream and closes the file.
func (lfs *LocalFileSink) Stop() error {
	lfs.mutex.Lock()
	if !lfs.isRunning {
		lfs.mutex.Unlock()
		return nil
	}
	lfs.isRunning = false
	lfs.cancel()
	lfs.mutex.Unlock()

	lfs.loopWg.Wait()

	lfs.mutex.Lock()
	defer lfs.mutex.Unlock()

	var firstErr error
	if err := lfs.writer.Flush(); err != nil {
		firstErr = err
	}
	if err := lfs.codec.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := lfs.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	lfs.logger.WithFields(logrus.Fields{
		"path":    lfs.path,
		"written": lfs.written,
		"errors":  lfs.failed,
	}).Info("Local file sink stopped")
	return firstErr
}

// Send writes every message and flushes the buffer.
func (lfs *LocalFileSink) Send(ctx context.Context, messages []types.Message) error {
	lfs.mutex.Lock()
	defer lfs.mutex.Unlock()

	if !lfs.isRunning {
		return errors.New(errors.CodeSinkUnavailable, "local_file_sink", "Send", "sink not running")
	}

	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := lfs.writeMessage(msg); err != nil {
			lfs.failed++
			return errors.WrapError(err, errors.CodeSinkSendFailed, "local_file_sink", "Send", "write failed").
				WithMetadata("path", lfs.path)
		}
		lfs.written++
	}

	if err := lfs.flushLocked(); err != nil {
		lfs.failed++
		return errors.WrapError(err, errors.CodeSinkSendFailed, "local_file_sink", "Send", "flush failed").
			WithMetadata("path", lfs.path)
	}
	return nil
}

func (lfs *LocalFileSink) writeMessage(msg types.Message) error {
	if lfs.config.OutputFormat == outputFormatJSON {
		data, err := json.Marshal(newMessageRecord(msg))
		if err != nil {
			return err
		}
		if _, err := lfs.writer.Write(data); err != nil {
			return err
		}
		return lfs.writer.WriteByte('\n')
	}

	if _, err := lfs.writer.WriteString(msg.Text); err != nil {
		return err
	}
	return lfs.writer.WriteByte('\n')
}

// flushLocked pushes buffered bytes through the codec down to the file.
// Deve ser chamado com mutex adquirido.
func (lfs *LocalFileSink) flushLocked() error {
	if err := lfs.writer.Flush(); err != nil {
		return err
	}
	return lfs.codec.Flush()
}

// flushLoop garante flush periódico
func (lfs *LocalFileSink) flushLoop() {
	defer lfs.loopWg.Done()

	ticker := time.NewTicker(lfs.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-lfs.ctx.Done():
			return
		case <-ticker.C:
			lfs.mutex.Lock()
			if lfs.isRunning {
				if err := lfs.flushLocked(); err != nil {
					lfs.logger.WithError(err).Warn("Periodic flush of local file sink failed")
					metrics.RecordError("local_file_sink", "flush_error")
				}
			}
			lfs.mutex.Unlock()
		}
	}
}

// IsHealthy verifica se o sink está rodando
func (lfs *LocalFileSink) IsHealthy() bool {
	lfs.mutex.Lock()
	defer lfs.mutex.Unlock()
	return lfs.isRunning
}

// GetStats retorna estatísticas do sink
func (lfs *LocalFileSink) GetStats() map[string]interface{} {
	lfs.mutex.Lock()
	defer lfs.mutex.Unlock()
	stats := map[string]interface{}{
		"path":        lfs.path,
		"format":      lfs.config.OutputFormat,
		"compression": lfs.algorithm,
		"running":     lfs.isRunning,
		"sent_total":  lfs.written,
		"error_total": lfs.failed,
	}
	if lfs.codec != nil {
		stats["bytes_in"] = lfs.codec.BytesIn()
		stats["bytes_out"] = lfs.codec.BytesOut()
	}
	return stats
}
