package sinks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"

	"ssw-access-monitor/pkg/errors"
	"ssw-access-monitor/pkg/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testMessages() []types.Message {
	return []types.Message{
		{Source: "report", Kind: types.MessageKindReport, Timestamp: 3, Text: "REPORT - FROM 1970-01-01 00:00:01Z TO 1970-01-01 00:00:03Z EXCLUSIVE\nTOTAL HITS: 2 \n"},
		{Source: "alert", Kind: types.MessageKindAlert, Timestamp: 3, Text: "FIRING: High traffic generated an alert"},
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, fmt.Errorf("broken pipe")
}

func TestConsoleSinkWritesMessagesInOrder(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, newTestLogger())
	require.NoError(t, sink.Start(context.Background()))

	require.NoError(t, sink.Send(context.Background(), testMessages()))

	assert.Equal(t, "REPORT - FROM 1970-01-01 00:00:01Z TO 1970-01-01 00:00:03Z EXCLUSIVE\nTOTAL HITS: 2 \n\n"+
		"FIRING: High traffic generated an alert\n", buf.String())
	assert.Equal(t, int64(2), sink.GetStats()["sent_total"])
	assert.True(t, sink.IsHealthy())
	require.NoError(t, sink.Stop())
}

func TestConsoleSinkWriteFailure(t *testing.T) {
	sink := NewConsoleSink(failingWriter{}, newTestLogger())

	err := sink.Send(context.Background(), testMessages())

	assert.True(t, errors.HasCode(err, errors.CodeSinkSendFailed))
	assert.False(t, sink.IsHealthy())
}

func TestConsoleSinkHonoursCancelledContext(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf, newTestLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, sink.Send(ctx, testMessages()), context.Canceled)
	assert.Empty(t, buf.String())
}

func TestConsoleSinkDefaultsToStdout(t *testing.T) {
	sink := NewConsoleSink(nil, newTestLogger())
	assert.NotNil(t, sink.writer)
	assert.Equal(t, "console", sink.Name())
}
