package organizations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelgate/internal/core"
)

func TestNormalizeAlias(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"OpenAI", "openai"},
		{"open-ai", "openai"},
		{"open_ai", "openai"},
		{"Deep Seek", "deepseek"},
		{"mistral.ai", "mistralai"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeAlias(tt.in), tt.in)
	}
}

func TestAliasesResolveToCanonicalOrg(t *testing.T) {
	// Every alias in an organization's alias table must resolve to the same
	// tag as the canonical name itself.
	for org, aliases := range orgAliases {
		canonical, ok := CanonicalOrg(org)
		require.True(t, ok, org)
		for _, alias := range aliases {
			got, ok := CanonicalOrg(alias)
			require.True(t, ok, alias)
			assert.Equal(t, canonical, got, alias)
		}
	}
}

func TestResolvePrefixedModel(t *testing.T) {
	r := NewResolverWithClients(
		NewClient(OrgAnthropic, nil, knownModels[OrgAnthropic]),
	)

	org, stripped, err := r.Resolve("anthropic/claude-3-haiku-20240307")
	require.NoError(t, err)
	assert.Equal(t, OrgAnthropic, org)
	assert.Equal(t, "claude-3-haiku-20240307", stripped)
}

func TestResolveByMembership(t *testing.T) {
	r := NewResolverWithClients(
		NewClient(OrgOpenAI, nil, []string{"gpt-4o-mini"}),
		NewClient(OrgDeepSeek, nil, []string{"deepseek-chat"}),
	)

	org, stripped, err := r.Resolve("deepseek-chat")
	require.NoError(t, err)
	assert.Equal(t, OrgDeepSeek, org)
	assert.Equal(t, "deepseek-chat", stripped)
}

func TestResolveUnknownModel(t *testing.T) {
	r := NewResolverWithClients(NewClient(OrgOpenAI, nil, []string{"gpt-4o-mini"}))

	_, _, err := r.Resolve("phi-3")
	require.Error(t, err)
	var gwErr *core.GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, core.ErrorTypeNotFound, gwErr.Type)
	assert.Contains(t, gwErr.Message, "phi-3")
}

func TestClientAbsentSlot(t *testing.T) {
	r := NewResolverWithClients(NewClient(OrgOpenAI, nil, []string{"gpt-4o-mini"}))

	// anthropic resolves by prefix even when its client was never built,
	// but routing to the absent slot must fail.
	org, _, err := r.Resolve("anthropic/claude-3-haiku-20240307")
	require.NoError(t, err)

	_, err = r.Client(org)
	var gwErr *core.GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, core.ErrorTypeNotFound, gwErr.Type)
}

func TestClientSupportsShortAndCaseInsensitiveNames(t *testing.T) {
	c := NewClient(OrgAnthropic, nil, []string{"claude-3-haiku-20240307"})

	assert.Equal(t, "claude-3-haiku-20240307", c.ResolveModelID("claude-3-haiku-20240307"))
	assert.Equal(t, "claude-3-haiku-20240307", c.ResolveModelID("Claude-3-Haiku-20240307"))
	assert.Equal(t, "claude-3-haiku-20240307", c.ResolveModelID("claude-3-haiku"))
	assert.Equal(t, "", c.ResolveModelID("claude-4"))
}

func TestEmptyModelSetAcceptsAnything(t *testing.T) {
	c := NewClient(OrgLocal, nil, nil)
	assert.True(t, c.Supports("whatever-7b"))
}
