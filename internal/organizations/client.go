package organizations

import (
	"strings"

	"modelgate/internal/core"
)

// Client pairs an organization's provider handle with its frozen
// supported-model set.
type Client struct {
	Org      string
	Provider core.Provider

	models map[string]struct{}
	// ordered ids retained for catalog listings
	modelIDs []string
}

// NewClient builds a Client with a frozen model set.
func NewClient(org string, provider core.Provider, models []string) *Client {
	set := make(map[string]struct{}, len(models))
	ids := make([]string, 0, len(models))
	for _, m := range models {
		if _, dup := set[m]; dup {
			continue
		}
		set[m] = struct{}{}
		ids = append(ids, m)
	}
	return &Client{Org: org, Provider: provider, models: set, modelIDs: ids}
}

// Models returns the client's supported model ids in registration order.
func (c *Client) Models() []string {
	out := make([]string, len(c.modelIDs))
	copy(out, c.modelIDs)
	return out
}

// Supports reports whether the client serves the given model name, accepting
// the exact id, a short name (id prefix up to a "-" boundary), or a
// case-insensitive spelling of either.
func (c *Client) Supports(model string) bool {
	return c.ResolveModelID(model) != ""
}

// ResolveModelID maps an inbound model name to the canonical catalog id,
// or "" when the client does not serve it.
func (c *Client) ResolveModelID(model string) string {
	// A client with no frozen set (self-hosted backends) accepts any id and
	// lets the upstream validate it.
	if len(c.models) == 0 {
		return model
	}
	if _, ok := c.models[model]; ok {
		return model
	}

	lower := strings.ToLower(model)
	for _, id := range c.modelIDs {
		idLower := strings.ToLower(id)
		if idLower == lower {
			return id
		}
		// Short name: "claude-3-haiku" selects "claude-3-haiku-20240307".
		if strings.HasPrefix(idLower, lower+"-") {
			return id
		}
	}
	return ""
}
