package errors

import (
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want bool
	}{
		{name: "internal errors are retryable", err: ErrInternal, want: true},
		{name: "transient infra errors are retryable", err: ErrTransientInfra, want: true},
		{name: "timeouts are retryable", err: ErrTimeout, want: true},
		{name: "validation errors are not retryable", err: ErrValidation, want: false},
		{name: "not found is not retryable", err: ErrNotFound, want: false},
		{name: "exhausted delivery is not retryable", err: ErrDeliveryFailed, want: false},
		{name: "expired is not retryable", err: ErrExpired, want: false},
		{name: "configuration errors are not retryable", err: ErrConfiguration, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.IsRetryable())
			assert.Equal(t, !tt.want, tt.err.IsFatal())
		})
	}
}

func TestAsRetryableOverride(t *testing.T) {
	err := ErrValidation.AsRetryable()
	assert.True(t, err.IsRetryable())
	// the shared sentinel must stay untouched
	assert.False(t, ErrValidation.IsRetryable())
}

func TestWithCausePreservesCode(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := ErrTransientInfra.WithCause(cause)

	assert.Equal(t, ErrTransientInfra.Code, err.Code)
	assert.ErrorContains(t, err, "connection refused")
	assert.Equal(t, cause, err.Unwrap())
}

func TestWithDetailDoesNotMutateSentinel(t *testing.T) {
	first := ErrNotFound.WithDetail("message", "confirmation job conf_1_aaa not found")
	second := ErrNotFound.WithDetail("message", "confirmation job conf_2_bbb not found")

	assert.ErrorContains(t, first, "conf_1_aaa")
	assert.ErrorContains(t, second, "conf_2_bbb")
	assert.Empty(t, ErrNotFound.Details)
	assert.Empty(t, ErrNotFound.WithCause(fmt.Errorf("boom")).Details)
}

func TestWithDetailConcurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				err := ErrConflict.WithDetail("message", fmt.Sprintf("job %d-%d already exists", n, j))
				assert.ErrorContains(t, err, fmt.Sprintf("job %d-%d", n, j))
			}
		}(i)
	}
	wg.Wait()
}

func TestToHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, ToHTTPStatus(ErrNotFound))
	assert.Equal(t, http.StatusBadRequest, ToHTTPStatus(ErrValidation))
	assert.Equal(t, http.StatusGone, ToHTTPStatus(ErrExpired))
	assert.Equal(t, http.StatusInternalServerError, ToHTTPStatus(fmt.Errorf("plain error")))
}

func TestToErrorResponse(t *testing.T) {
	response := ToErrorResponse(ErrNotFound.WithDetail("message", "job conf_1_abc not found"))

	assert.Equal(t, "NOT_FOUND", response["error_code"])
	details, ok := response["details"].(map[string]interface{})
	assert.True(t, ok)
	assert.Equal(t, "job conf_1_abc not found", details["message"])
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(ErrTransientInfra.WithCause(fmt.Errorf("dial tcp"))))
	assert.True(t, IsTransient(ErrTimeout))
	assert.False(t, IsTransient(ErrValidation))
	assert.False(t, IsTransient(fmt.Errorf("plain")))
}

func TestRecoverPanic(t *testing.T) {
	assert.Nil(t, RecoverPanic(nil))

	err := RecoverPanic("worker blew up")
	assert.Error(t, err)
	appErr, ok := err.(*Error)
	assert.True(t, ok)
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.True(t, appErr.IsFatal())
}
