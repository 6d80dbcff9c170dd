package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, ModeStatic, cfg.Server.Mode)
	assert.Equal(t, "diskcache://.cache/registry.json", cfg.Discovery.RegistryURL)
	assert.Equal(t, "30s", cfg.Discovery.RegisterPeriod.String())
	assert.Equal(t, "2m0s", cfg.Discovery.RegisterFailPeriod.String())
	assert.Equal(t, "sqlite://data/modelgate.db", cfg.Storage.URL)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Endpoint)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Empty(t, cfg.Orgs)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("APP_TYPE", "agent")
	t.Setenv("STORAGE_URL", "postgres://localhost:5432/gate")
	t.Setenv("MODEL_REGISTER_PERIOD", "5s")
	t.Setenv("MODEL_ANNOUNCE", "gpt-4o-mini, llama-3-8b ,")
	t.Setenv("MODEL_ANNOUNCE_URL", "http://gateway:8080/v1/models/register")
	t.Setenv("METRICS_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, ModeAgent, cfg.Server.Mode)
	assert.Equal(t, "postgres://localhost:5432/gate", cfg.Storage.URL)
	assert.Equal(t, "5s", cfg.Discovery.RegisterPeriod.String())
	assert.Equal(t, []string{"gpt-4o-mini", "llama-3-8b"}, cfg.Discovery.Announce)
	assert.Equal(t, "http://gateway:8080/v1/models/register", cfg.Discovery.AnnounceURL)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadRejectsUnknownMode(t *testing.T) {
	t.Setenv("APP_TYPE", "cluster")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown APP_TYPE")
}

func TestLoadModeIsCaseInsensitive(t *testing.T) {
	t.Setenv("APP_TYPE", "AGENT")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ModeAgent, cfg.Server.Mode)
}

func TestLoadDiscoversOrganizations(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("MISTRAL_API_KEY", "ms-test")
	t.Setenv("MISTRAL_BASE_URL", "https://api.mistral.ai/v1")
	t.Setenv("LOCAL_BASE_URL", "http://localhost:11434/v1")

	cfg, err := Load()
	require.NoError(t, err)

	require.Len(t, cfg.Orgs, 3)
	assert.Equal(t, OrgConfig{APIKey: "sk-test"}, cfg.Orgs["openai"])
	assert.Equal(t, OrgConfig{APIKey: "ms-test", BaseURL: "https://api.mistral.ai/v1"}, cfg.Orgs["mistral"])
	assert.Equal(t, OrgConfig{BaseURL: "http://localhost:11434/v1"}, cfg.Orgs["local"])
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"a"}, splitList("a"))
	assert.Equal(t, []string{"a", "b"}, splitList(" a , b "))
	assert.Equal(t, []string{"a"}, splitList("a,,"))
}
