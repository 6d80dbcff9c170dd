// Package app provides centralized dependency management and lifecycle
// control for the gateway server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"modelgate/config"
	"modelgate/internal/assistants"
	"modelgate/internal/core"
	"modelgate/internal/organizations"
	"modelgate/internal/providers/openaicompat"
	"modelgate/internal/registry"
	"modelgate/internal/server"
)

// App holds all subsystems. The caller must call Shutdown to release
// resources.
type App struct {
	config *config.Config

	registryStore registry.Store
	discovery     *registry.Service
	resolver      *organizations.Resolver
	store         assistants.Store
	engine        *assistants.Engine
	server        *server.Server

	// stopPublisher cancels the heartbeat goroutines, nil when announcing
	// is not configured.
	stopPublisher context.CancelFunc

	shutdownMu sync.Mutex
	shutdown   bool
}

// New wires up every subsystem from the loaded configuration.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	app := &App{config: cfg}

	registryStore, err := registry.Open(ctx, cfg.Discovery.RegistryURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry store: %w", err)
	}
	app.registryStore = registryStore
	app.discovery = registry.NewService(registryStore, registryTTL(cfg))

	app.resolver = organizations.NewResolver(cfg.Orgs)
	if cfg.Server.Mode == config.ModeStatic && len(cfg.Orgs) == 0 {
		slog.Warn("no organizations configured; static mode has nothing to route to")
	}

	store, err := assistants.Open(ctx, cfg.Storage.URL)
	if err != nil {
		closeErr := registryStore.Close()
		if closeErr != nil {
			return nil, fmt.Errorf("failed to open assistants store: %w (also: registry close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to open assistants store: %w", err)
	}
	app.store = store

	app.engine = assistants.NewEngine(store, app.chatResolver())

	app.server = server.New(server.Deps{
		Mode:        cfg.Server.Mode,
		Resolver:    app.resolver,
		Discovery:   app.discovery,
		FreshWindow: cfg.Discovery.RegisterPeriod,
		Store:       store,
		Engine:      app.engine,
	}, &server.Config{
		MetricsEnabled:  cfg.Metrics.Enabled,
		MetricsEndpoint: cfg.Metrics.Endpoint,
	})

	app.startPublisher()
	app.logStartupInfo()
	return app, nil
}

// registryTTL is the eviction window handed to cache backings. A record must
// survive one failed heartbeat cycle, so the longer fail period wins.
func registryTTL(cfg *config.Config) time.Duration {
	if cfg.Discovery.RegisterFailPeriod > 0 {
		return cfg.Discovery.RegisterFailPeriod + cfg.Discovery.RegisterPeriod
	}
	return 2 * cfg.Discovery.RegisterPeriod
}

// chatResolver builds the engine's model-to-client mapping for the active
// deployment mode. Agent mode picks uniformly at random among fresh
// announcers, the same policy the proxy handlers use.
func (a *App) chatResolver() assistants.ChatResolver {
	if a.config.Server.Mode == config.ModeAgent {
		window := a.config.Discovery.RegisterPeriod
		return func(model string) (core.ChatClient, string, error) {
			candidates, err := a.discovery.Fresh(context.Background(), model, window)
			if err != nil {
				return nil, "", err
			}
			if len(candidates) == 0 {
				return nil, "", core.NewModelNotFoundError(model)
			}
			target := candidates[rand.IntN(len(candidates))]
			provider := openaicompat.New(openaicompat.Options{
				Name:    "agent",
				BaseURL: target.OwnedBy,
			})
			return provider, model, nil
		}
	}

	return func(model string) (core.ChatClient, string, error) {
		client, modelID, err := a.resolver.ClientForModel(model)
		if err != nil {
			return nil, "", err
		}
		return client.Provider, modelID, nil
	}
}

// startPublisher launches heartbeat goroutines when this process announces
// models to a gateway.
func (a *App) startPublisher() {
	d := a.config.Discovery
	if len(d.Announce) == 0 || d.AnnounceURL == "" {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.stopPublisher = cancel

	pub := &registry.Publisher{
		RegisterURL: d.AnnounceURL,
		BaseURL:     d.AnnounceBaseURL,
		Period:      d.RegisterPeriod,
		FailPeriod:  d.RegisterFailPeriod,
	}
	pub.Start(ctx, d.Announce)
}

func (a *App) logStartupInfo() {
	slog.Info("modelgate initialized",
		"mode", a.config.Server.Mode,
		"registry", a.config.Discovery.RegistryURL,
		"storage", a.config.Storage.URL,
		"announced_models", len(a.config.Discovery.Announce),
		"metrics", a.config.Metrics.Enabled,
	)
}

// Start runs the HTTP server. Blocks until the server stops.
func (a *App) Start() error {
	return a.server.Start(":" + a.config.Server.Port)
}

// Server exposes the HTTP server for tests.
func (a *App) Server() *server.Server {
	return a.server
}

// Shutdown releases all resources in reverse initialization order. Safe to
// call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	defer a.shutdownMu.Unlock()
	if a.shutdown {
		return nil
	}
	a.shutdown = true

	var errs []error

	if a.stopPublisher != nil {
		a.stopPublisher()
	}
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}
	if a.engine != nil {
		// Let in-flight runs reach a terminal state before the store closes.
		a.engine.Wait()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("assistants store close: %w", err))
		}
	}
	if a.registryStore != nil {
		if err := a.registryStore.Close(); err != nil {
			errs = append(errs, fmt.Errorf("registry store close: %w", err))
		}
	}

	return errors.Join(errs...)
}
