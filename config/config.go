// Package config provides configuration management for the application.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Deployment modes selected by APP_TYPE.
const (
	ModeStatic = "static"
	ModeAgent  = "agent"
)

// Config holds the application configuration
type Config struct {
	Server    ServerConfig
	Discovery DiscoveryConfig
	Storage   StorageConfig
	Metrics   MetricsConfig
	Logging   LoggingConfig
	Orgs      map[string]OrgConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
	// Mode is the deployment mode: "static" routes through the configured
	// organization catalog, "agent" routes through the discovery registry.
	Mode string
}

// DiscoveryConfig holds model discovery and heartbeat configuration
type DiscoveryConfig struct {
	// RegistryURL selects the registry store backing by scheme
	// (sqlite/postgres/mysql relational, diskcache/local/file/fs embedded, redis).
	RegistryURL string

	// RegisterPeriod is the heartbeat interval and the freshness window used
	// when routing in agent mode.
	RegisterPeriod time.Duration

	// RegisterFailPeriod is the longer sleep after a failed heartbeat.
	RegisterFailPeriod time.Duration

	// Announce lists model ids this process serves and should announce.
	Announce []string

	// AnnounceURL is the gateway registration endpoint heartbeats POST to.
	AnnounceURL string

	// AnnounceBaseURL is advertised as owned_by so peers can route back here.
	AnnounceBaseURL string
}

// StorageConfig holds assistants/threads/runs persistence configuration
type StorageConfig struct {
	// URL selects the store backing by scheme
	// (sqlite/postgres/mysql/mongodb, or "memory" for tests and dev).
	URL string
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled  bool
	Endpoint string
}

// LoggingConfig holds log output configuration
type LoggingConfig struct {
	// Format is "json" or "pretty"
	Format string
}

// OrgConfig holds one upstream organization's credentials
type OrgConfig struct {
	APIKey  string
	BaseURL string
}

// knownOrgEnvs maps organization names to their environment variables.
// This list is the authoritative source for organization auto-discovery.
var knownOrgEnvs = []struct {
	name       string
	apiKeyEnv  string
	baseURLEnv string
}{
	{"openai", "OPENAI_API_KEY", "OPENAI_BASE_URL"},
	{"anthropic", "ANTHROPIC_API_KEY", "ANTHROPIC_BASE_URL"},
	{"mistral", "MISTRAL_API_KEY", "MISTRAL_BASE_URL"},
	{"groq", "GROQ_API_KEY", "GROQ_BASE_URL"},
	{"deepseek", "DEEPSEEK_API_KEY", "DEEPSEEK_BASE_URL"},
	{"local", "LOCAL_API_KEY", "LOCAL_BASE_URL"},
}

// Load reads configuration from the environment (and an optional .env file).
func Load() (*Config, error) {
	v := viper.New()

	// Load .env file if present (optional, won't fail if not found)
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig()

	v.SetDefault("PORT", "8080")
	v.SetDefault("APP_TYPE", ModeStatic)
	v.SetDefault("MODELGATE_REGISTRY_URL", "diskcache://.cache/registry.json")
	v.SetDefault("MODEL_REGISTER_PERIOD", "30s")
	v.SetDefault("MODEL_REGISTER_FAIL_PERIOD", "120s")
	v.SetDefault("STORAGE_URL", "sqlite://data/modelgate.db")
	v.SetDefault("METRICS_ENABLED", false)
	v.SetDefault("METRICS_ENDPOINT", "/metrics")
	v.SetDefault("LOG_FORMAT", "json")

	v.AutomaticEnv()

	mode := strings.ToLower(v.GetString("APP_TYPE"))
	switch mode {
	case ModeStatic, ModeAgent:
	default:
		return nil, fmt.Errorf("unknown APP_TYPE: %q (valid: static, agent)", mode)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: v.GetString("PORT"),
			Mode: mode,
		},
		Discovery: DiscoveryConfig{
			RegistryURL:        v.GetString("MODELGATE_REGISTRY_URL"),
			RegisterPeriod:     v.GetDuration("MODEL_REGISTER_PERIOD"),
			RegisterFailPeriod: v.GetDuration("MODEL_REGISTER_FAIL_PERIOD"),
			Announce:           splitList(v.GetString("MODEL_ANNOUNCE")),
			AnnounceURL:        v.GetString("MODEL_ANNOUNCE_URL"),
			AnnounceBaseURL:    v.GetString("MODEL_ANNOUNCE_BASE_URL"),
		},
		Storage: StorageConfig{
			URL: v.GetString("STORAGE_URL"),
		},
		Metrics: MetricsConfig{
			Enabled:  v.GetBool("METRICS_ENABLED"),
			Endpoint: v.GetString("METRICS_ENDPOINT"),
		},
		Logging: LoggingConfig{
			Format: v.GetString("LOG_FORMAT"),
		},
		Orgs: make(map[string]OrgConfig, len(knownOrgEnvs)),
	}

	for _, org := range knownOrgEnvs {
		apiKey := v.GetString(org.apiKeyEnv)
		baseURL := v.GetString(org.baseURLEnv)
		if apiKey == "" && baseURL == "" {
			continue
		}
		cfg.Orgs[org.name] = OrgConfig{APIKey: apiKey, BaseURL: baseURL}
	}

	return cfg, nil
}

// splitList parses a comma-separated env value into trimmed entries.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
