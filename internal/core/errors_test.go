package core

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatewayErrorStatusCodes(t *testing.T) {
	tests := []struct {
		name string
		err  *GatewayError
		want int
	}{
		{"model not found", NewModelNotFoundError("phi-3"), http.StatusNotFound},
		{"organization not found", NewOrganizationNotFoundError("anthropic"), http.StatusNotFound},
		{"validation", NewValidationError("model id is required"), http.StatusUnprocessableEntity},
		{"invalid request", NewInvalidRequestError("bad body", nil), http.StatusBadRequest},
		{"provider", NewProviderError("openai", 0, "boom", nil), http.StatusBadGateway},
		{"internal", NewInternalError("unknown deployment mode: banana"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.HTTPStatusCode())
		})
	}
}

func TestModelNotFoundMessageNamesModel(t *testing.T) {
	err := NewModelNotFoundError("phi-3")
	assert.Contains(t, err.Message, "phi-3")
}

func TestParseProviderErrorExtractsMessage(t *testing.T) {
	body := []byte(`{"error":{"message":"insufficient quota","type":"insufficient_quota"}}`)
	err := ParseProviderError("openai", http.StatusTooManyRequests, body, nil)
	require.Equal(t, ErrorTypeRateLimit, err.Type)
	assert.Equal(t, "insufficient quota", err.Message)
}

func TestParseProviderErrorFallsBackToRawBody(t *testing.T) {
	err := ParseProviderError("openai", http.StatusInternalServerError, []byte("gateway timeout"), nil)
	require.Equal(t, ErrorTypeProvider, err.Type)
	assert.Equal(t, "gateway timeout", err.Message)
	assert.Equal(t, http.StatusBadGateway, err.HTTPStatusCode())
}
