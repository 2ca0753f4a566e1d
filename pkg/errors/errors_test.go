package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorFormatting(t *testing.T) {
	err := InvalidArgument("window", "NewSlidingCounter", "capacity must be positive")

	assert.Equal(t, "[window:NewSlidingCounter] INVALID_ARGUMENT: capacity must be positive", err.Error())
	assert.True(t, err.IsCritical())
	assert.False(t, err.IsRecoverable())
}

func TestAppErrorWrapKeepsCause(t *testing.T) {
	cause := stderrors.New("boom")
	err := New(CodeSinkSendFailed, "sink", "Send", "write failed").Wrap(cause)

	assert.Contains(t, err.Error(), "boom")
	assert.True(t, stderrors.Is(err, cause))
}

func TestAsAppErrorThroughFmtWrap(t *testing.T) {
	inner := PreconditionFailed("dispatcher", "DisplayMessages", "no sink registered")
	wrapped := fmt.Errorf("display: %w", inner)

	appErr, ok := AsAppError(wrapped)
	require.True(t, ok)
	assert.Equal(t, CodePreconditionFailed, appErr.Code)
	assert.True(t, HasCode(wrapped, CodePreconditionFailed))
	assert.False(t, HasCode(wrapped, CodeInvalidArgument))
	assert.False(t, IsAppError(stderrors.New("plain")))
}

func TestToMapIncludesMetadata(t *testing.T) {
	err := ProcessingError("ParseRequest", "bad request line").
		WithMetadata("request", "GET")

	m := err.ToMap()
	assert.Equal(t, CodeProcessingInvalid, m["error_code"])
	assert.Equal(t, "GET", m["error_meta_request"])
	assert.Equal(t, string(SeverityLow), m["error_severity"])
	assert.True(t, err.IsRecoverable())
}

func TestWrapError(t *testing.T) {
	assert.Nil(t, WrapError(nil, CodeProcessingFailed, "c", "o", "m"))

	existing := ConfigError("validate", "bad")
	assert.Same(t, existing, WrapError(existing, CodeProcessingFailed, "c", "o", "m"))

	wrapped := WrapError(stderrors.New("io"), CodeSinkSendFailed, "sink", "Send", "failed")
	assert.Equal(t, CodeSinkSendFailed, wrapped.Code)
}
