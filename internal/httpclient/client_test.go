package httpclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEnvDuration(t *testing.T) {
	assert.Equal(t, time.Minute, envDuration("HTTPCLIENT_TEST_UNSET", time.Minute))

	t.Setenv("HTTPCLIENT_TEST_SECS", "30")
	assert.Equal(t, 30*time.Second, envDuration("HTTPCLIENT_TEST_SECS", time.Minute))

	t.Setenv("HTTPCLIENT_TEST_GO", "1h30m")
	assert.Equal(t, 90*time.Minute, envDuration("HTTPCLIENT_TEST_GO", time.Minute))

	t.Setenv("HTTPCLIENT_TEST_BAD", "soon")
	assert.Equal(t, time.Minute, envDuration("HTTPCLIENT_TEST_BAD", time.Minute))
}

func TestNewDefaultHTTPClientHonorsTimeoutOverride(t *testing.T) {
	t.Setenv("HTTP_TIMEOUT", "5")
	client := NewDefaultHTTPClient()
	assert.Equal(t, 5*time.Second, client.Timeout)
}
