// Package organizations maps inbound model identifiers to upstream
// organizations and their configured clients.
package organizations

import "strings"

// Canonical organization tags.
const (
	OrgOpenAI    = "openai"
	OrgAnthropic = "anthropic"
	OrgMistral   = "mistral"
	OrgGroq      = "groq"
	OrgDeepSeek  = "deepseek"
	OrgLocal     = "local"
)

// orgAliases maps each canonical organization to its accepted aliases.
// Matching is case/separator-insensitive, so "open-ai", "OpenAI" and "oai"
// all land on the same tag.
var orgAliases = map[string][]string{
	OrgOpenAI:    {"openai", "open-ai", "oai", "gpt"},
	OrgAnthropic: {"anthropic", "claude"},
	OrgMistral:   {"mistral", "mistral-ai", "mistralai"},
	OrgGroq:      {"groq"},
	OrgDeepSeek:  {"deepseek", "deep-seek"},
	OrgLocal:     {"local", "self-hosted", "selfhosted"},
}

// knownModels holds each organization's frozen supported-model set, used when
// an inbound identifier carries no organization prefix.
var knownModels = map[string][]string{
	OrgOpenAI: {
		"gpt-4o", "gpt-4o-mini", "gpt-4.1", "gpt-4.1-mini", "gpt-4-turbo",
		"gpt-3.5-turbo", "gpt-3.5-turbo-instruct", "o3-mini", "o4-mini",
		"text-embedding-3-small", "text-embedding-3-large", "text-embedding-ada-002",
		"omni-moderation-latest", "dall-e-3", "dall-e-2",
		"tts-1", "tts-1-hd", "whisper-1",
	},
	OrgAnthropic: {
		"claude-3-haiku-20240307", "claude-3-5-haiku-20241022",
		"claude-3-5-sonnet-20241022", "claude-3-7-sonnet-20250219",
		"claude-3-opus-20240229",
	},
	OrgMistral: {
		"mistral-small-latest", "mistral-medium-latest", "mistral-large-latest",
		"open-mistral-nemo", "codestral-latest", "mistral-embed",
	},
	OrgGroq: {
		"llama-3.1-8b-instant", "llama-3.3-70b-versatile",
		"mixtral-8x7b-32768", "gemma2-9b-it",
	},
	OrgDeepSeek: {
		"deepseek-chat", "deepseek-reasoner",
	},
}

// normalizedAliasTable is the inverse lookup built once at package init:
// normalized alias -> canonical organization tag.
var normalizedAliasTable = buildAliasTable()

func buildAliasTable() map[string]string {
	table := make(map[string]string)
	for org, aliases := range orgAliases {
		table[NormalizeAlias(org)] = org
		for _, a := range aliases {
			table[NormalizeAlias(a)] = org
		}
	}
	return table
}

// NormalizeAlias lowercases an organization alias and strips separator
// characters so that "Open-AI", "open_ai" and "openai" compare equal.
func NormalizeAlias(alias string) string {
	var b strings.Builder
	b.Grow(len(alias))
	for _, r := range strings.ToLower(alias) {
		switch r {
		case '-', '_', '.', ' ':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// CanonicalOrg resolves an alias to its canonical organization tag.
// The second return is false for unknown aliases.
func CanonicalOrg(alias string) (string, bool) {
	org, ok := normalizedAliasTable[NormalizeAlias(alias)]
	return org, ok
}

// Aliases returns the accepted aliases for a canonical organization tag,
// used to honor inbound query-parameter overrides.
func Aliases(org string) []string {
	return orgAliases[org]
}

// KnownOrgs returns every canonical organization tag.
func KnownOrgs() []string {
	orgs := make([]string, 0, len(orgAliases))
	for org := range orgAliases {
		orgs = append(orgs, org)
	}
	return orgs
}
