package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  *AppError
		want int
	}{
		{NewBadRequestError("bad"), http.StatusBadRequest},
		{NewValidationError("empty"), http.StatusBadRequest},
		{NewNotFoundError("Asset"), http.StatusNotFound},
		{NewAppError(CodeTooManyRequests, "slow down", ""), http.StatusTooManyRequests},
		{NewServiceUnavailableError("recommender", nil), http.StatusServiceUnavailable},
		{NewExternalServiceError("huggingface", assert.AnError), http.StatusBadGateway},
		{NewUpstreamStatusError("huggingface", http.StatusServiceUnavailable), http.StatusBadGateway},
		{NewSchemaMismatchError("recommender", "missing field"), http.StatusBadGateway},
		{NewInternalError(""), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.err.Code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.StatusCode())
		})
	}
}

func TestUpstreamStatusCarriesStatusAsMetadata(t *testing.T) {
	err := NewUpstreamStatusError("huggingface", http.StatusTooManyRequests)

	assert.Equal(t, CodeUpstreamStatus, err.Code)
	assert.Equal(t, http.StatusTooManyRequests, err.Metadata["status"])
	assert.Equal(t, http.StatusBadGateway, err.StatusCode())
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "ignored"))

	app := NewNotFoundError("Asset")
	assert.Same(t, app, Wrap(fmt.Errorf("context: %w", app), "ignored"))

	wrapped := Wrap(assert.AnError, "failed")
	assert.Equal(t, CodeInternal, wrapped.Code)
	assert.True(t, stderrors.Is(wrapped, assert.AnError))
}

func TestIsAndGetCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewSchemaMismatchError("recommender", "x"))

	assert.True(t, Is(err, CodeSchemaMismatch))
	assert.False(t, Is(err, CodeNotFound))
	assert.Equal(t, CodeSchemaMismatch, GetCode(err))
	assert.Equal(t, CodeInternal, GetCode(assert.AnError))
}

func TestToErrorResponse(t *testing.T) {
	err := NewExternalServiceError("huggingface", assert.AnError)

	resp := ToErrorResponse(err, "req-1")

	assert.False(t, resp.Success)
	assert.Equal(t, CodeExternalServiceError, resp.Error.Code)
	assert.Equal(t, "req-1", resp.Error.RequestID)
	require.NotEmpty(t, resp.Error.Timestamp)
	assert.NotContains(t, resp.Error.Details, "token")
}
