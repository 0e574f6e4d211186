package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindRetryable(t *testing.T) {
	assert.True(t, KindTransient.Retryable())
	assert.False(t, KindBadRequest.Retryable())
	assert.False(t, KindNotFound.Retryable())
	assert.False(t, KindInternal.Retryable())
}

func TestErrorChaining(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Transient(CodeQueueIO, "broken pipe", cause).WithDetail("queue", "ingestion")

	require.Error(t, err)
	assert.Contains(t, err.Error(), CodeQueueIO)
	assert.Contains(t, err.Error(), "broken pipe")
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, cause, errors.Unwrap(err))
	assert.Equal(t, "ingestion", err.Details["queue"])
	assert.True(t, err.Retryable())
}

func TestErrorIsMatchesByCode(t *testing.T) {
	err1 := BadRequest(CodeDuplicateTrackingID, "tracking id in use", nil)
	err2 := BadRequest(CodeDuplicateTrackingID, "a different message", nil)
	err3 := BadRequest(CodeInvalidDimension, "bad dim", nil)

	assert.True(t, errors.Is(err1, err2))
	assert.False(t, errors.Is(err1, err3))
}

func TestIsRetryableAndIsBadRequest(t *testing.T) {
	transient := Transient(CodeRemoteTimeout, "timeout", nil)
	bad := BadRequest(CodeDatasetLocked, "locked", nil)
	nf := NotFound(CodeNotFound, "missing", nil)

	assert.True(t, IsRetryable(transient))
	assert.False(t, IsRetryable(bad))

	assert.True(t, IsBadRequest(bad))
	assert.False(t, IsBadRequest(transient))

	assert.True(t, IsNotFound(nf))
	assert.False(t, IsNotFound(bad))

	assert.False(t, IsRetryable(errors.New("plain")))
}
