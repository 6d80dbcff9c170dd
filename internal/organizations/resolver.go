package organizations

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"modelgate/config"
	"modelgate/internal/core"
	"modelgate/internal/providers/openaicompat"
)

// orgDefaults carries the wiring needed to construct one organization's
// client: upstream base URL and auth conventions.
var orgDefaults = map[string]struct {
	baseURL      string
	authStyle    openaicompat.AuthStyle
	extraHeaders map[string]string
	// keyOptional marks organizations reachable without credentials
	// (self-hosted backends).
	keyOptional bool
}{
	OrgOpenAI:    {baseURL: "https://api.openai.com/v1"},
	OrgAnthropic: {baseURL: "https://api.anthropic.com/v1", authStyle: openaicompat.AuthAPIKeyHeader, extraHeaders: map[string]string{"anthropic-version": "2023-06-01"}},
	OrgMistral:   {baseURL: "https://api.mistral.ai/v1"},
	OrgGroq:      {baseURL: "https://api.groq.com/openai/v1"},
	OrgDeepSeek:  {baseURL: "https://api.deepseek.com/v1"},
	OrgLocal:     {baseURL: "http://localhost:8000/v1", keyOptional: true},
}

// Resolver classifies inbound model identifiers into organizations and maps
// each organization to its constructed client. Construction happens once at
// startup; an organization whose client could not be built stays resolvable
// but routes to OrganizationNotFound.
type Resolver struct {
	clients map[string]*Client
}

// NewResolver eagerly constructs a client for every known organization from
// configuration. Each organization is guarded independently: missing
// credentials are logged and leave an absent slot without aborting startup.
func NewResolver(orgs map[string]config.OrgConfig) *Resolver {
	r := &Resolver{clients: make(map[string]*Client)}

	names := make([]string, 0, len(orgs))
	for name := range orgs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		org, ok := CanonicalOrg(name)
		if !ok {
			slog.Warn("skipping unknown organization", "name", name)
			continue
		}
		client, err := buildClient(org, orgs[name])
		if err != nil {
			slog.Warn("organization client unavailable", "org", org, "error", err)
			continue
		}
		r.clients[org] = client
		slog.Info("organization client initialized", "org", org, "models", len(client.Models()))
	}

	return r
}

// NewResolverWithClients builds a resolver from pre-constructed clients (tests).
func NewResolverWithClients(clients ...*Client) *Resolver {
	r := &Resolver{clients: make(map[string]*Client, len(clients))}
	for _, c := range clients {
		r.clients[c.Org] = c
	}
	return r
}

func buildClient(org string, cfg config.OrgConfig) (*Client, error) {
	defaults, ok := orgDefaults[org]
	if !ok {
		return nil, fmt.Errorf("no defaults for organization %q", org)
	}

	if cfg.APIKey == "" && !defaults.keyOptional {
		return nil, fmt.Errorf("credentials not provided for %s", org)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaults.baseURL
	}

	provider := openaicompat.New(openaicompat.Options{
		Name:         org,
		BaseURL:      baseURL,
		APIKey:       cfg.APIKey,
		AuthStyle:    defaults.authStyle,
		ExtraHeaders: defaults.extraHeaders,
	})

	return NewClient(org, provider, knownModels[org]), nil
}

// Resolve classifies a raw model string. A namespace prefix matching a known
// organization alias wins ("anthropic/claude-3-haiku-20240307"); otherwise
// each configured client's frozen model set is searched for membership.
// Returns the canonical organization tag and the model with any prefix
// stripped, or ModelNotFound.
func (r *Resolver) Resolve(model string) (org string, stripped string, err error) {
	if prefix, rest, found := strings.Cut(model, "/"); found && rest != "" {
		if org, ok := CanonicalOrg(prefix); ok {
			return org, rest, nil
		}
	}

	orgs := make([]string, 0, len(r.clients))
	for name := range r.clients {
		orgs = append(orgs, name)
	}
	sort.Strings(orgs)
	for _, name := range orgs {
		if r.clients[name].Supports(model) {
			return name, model, nil
		}
	}

	return "", "", core.NewModelNotFoundError(model)
}

// Client returns the constructed client for a canonical organization tag, or
// OrganizationNotFound when that organization's slot is absent.
func (r *Resolver) Client(org string) (*Client, error) {
	client, ok := r.clients[org]
	if !ok {
		return nil, core.NewOrganizationNotFoundError(org)
	}
	return client, nil
}

// ClientForOrg resolves an organization alias (query-parameter override) to
// its client. Unknown aliases and absent slots both yield OrganizationNotFound.
func (r *Resolver) ClientForOrg(alias string) (*Client, error) {
	org, ok := CanonicalOrg(alias)
	if !ok {
		return nil, core.NewOrganizationNotFoundError(alias)
	}
	return r.Client(org)
}

// DefaultClient returns the first configured client in canonical-tag order.
// Used for endpoints whose body carries no model hint.
func (r *Resolver) DefaultClient() (*Client, error) {
	orgs := make([]string, 0, len(r.clients))
	for name := range r.clients {
		orgs = append(orgs, name)
	}
	if len(orgs) == 0 {
		return nil, core.NewOrganizationNotFoundError("default")
	}
	sort.Strings(orgs)
	return r.clients[orgs[0]], nil
}

// ClientForModel resolves a raw model string all the way to a client and the
// canonical upstream model id.
func (r *Resolver) ClientForModel(model string) (*Client, string, error) {
	org, stripped, err := r.Resolve(model)
	if err != nil {
		return nil, "", err
	}
	client, err := r.Client(org)
	if err != nil {
		return nil, "", err
	}
	if id := client.ResolveModelID(stripped); id != "" {
		return client, id, nil
	}
	return client, stripped, nil
}

// CatalogModels returns the static catalog: every configured client's frozen
// model set as model records owned by the organization, sorted by id.
func (r *Resolver) CatalogModels(created int64) []core.Model {
	var models []core.Model
	for org, client := range r.clients {
		for _, id := range client.Models() {
			models = append(models, core.Model{
				ID:      id,
				Object:  "model",
				OwnedBy: org,
				Created: created,
			})
		}
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models
}
