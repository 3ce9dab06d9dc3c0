package utils

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsSnapshot(t *testing.T) {
	mc := NewMetricsCollector()
	mc.IncrementRequests()
	mc.IncrementRequests()
	mc.IncrementErrors()
	for i := 1; i <= 10; i++ {
		mc.AddOperationLatency("create_post", time.Duration(i)*time.Millisecond)
	}

	requests, errs, _, ops := mc.Snapshot()
	assert.Equal(t, uint64(2), requests)
	assert.Equal(t, uint64(1), errs)
	require.Contains(t, ops, "create_post")
	assert.Equal(t, 10, ops["create_post"].Count)
	assert.Equal(t, 10*time.Millisecond, ops["create_post"].Max)
}

func TestMetricsHandlerExportsCounters(t *testing.T) {
	mc := NewMetricsCollector()
	mc.IncrementRequests()
	mc.AddOperationLatency("toggle_like", time.Millisecond)
	mc.RecordOutcome("toggle_like", NewAppError(ErrInFlight, "busy", nil))
	mc.RecordOutcome("toggle_like", nil)

	rec := httptest.NewRecorder()
	mc.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	assert.Contains(t, string(body), "thoth_requests_total 1")
	assert.Contains(t, string(body), `thoth_operation_outcomes_total{operation="toggle_like",outcome="IN_FLIGHT"} 1`)
	assert.Contains(t, string(body), `operation="toggle_like"`)
}

func TestErrorCodeHelpers(t *testing.T) {
	wrapped := errors.Join(errors.New("context"), NewAppError(ErrNotFound, "post not found", nil))

	assert.True(t, IsErrorCode(wrapped, ErrNotFound))
	assert.False(t, IsErrorCode(wrapped, ErrDuplicate))
	assert.Equal(t, ErrDatabase, ErrorCode(errors.New("plain")))
	assert.Equal(t, 409, AppErrorToHTTPStatus(ErrInFlight))
	assert.Equal(t, 404, AppErrorToHTTPStatus(ErrNotFound))
	assert.True(t, IsAuthError(NewUnauthorizedError("no token")))
}
