package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromStatus(t *testing.T) {
	tests := []struct {
		code int
		want ErrorType
	}{
		{429, ErrorTypeRateLimit},
		{404, ErrorTypeNotFound},
		{500, ErrorTypeServerError},
		{503, ErrorTypeServerError},
		{403, ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.code), func(t *testing.T) {
			err := FromStatus(tt.code)
			assert.Equal(t, tt.want, err.Type)
			assert.Equal(t, tt.code, err.Code)
		})
	}
}

func TestFilenameErrorMatchesSentinel(t *testing.T) {
	cause := stderrors.New("invalid URL escape")
	err := fmt.Errorf("attempt: %w", Filename(cause, "%zz"))

	assert.True(t, stderrors.Is(err, ErrFilenameExtractionFailed))
	assert.True(t, stderrors.Is(err, cause))
	assert.Equal(t, ErrorTypeFilename, TypeOf(err))

	other := New(ErrorTypeNetwork, "connection reset")
	assert.False(t, stderrors.Is(other, ErrFilenameExtractionFailed))
}

func TestIsRetryableStatusCode(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503} {
		assert.True(t, IsRetryableStatusCode(code), "status %d", code)
	}
	for _, code := range []int{200, 400, 403, 404} {
		assert.False(t, IsRetryableStatusCode(code), "status %d", code)
	}
}
