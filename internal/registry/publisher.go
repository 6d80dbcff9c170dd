package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"modelgate/internal/core"
	"modelgate/internal/httpclient"
)

// Publisher announces locally served models to a gateway's registration
// endpoint. Each model gets its own goroutine posting a fresh record every
// Period; any failure is logged and answered with a longer FailPeriod sleep.
// The loop is unbounded with a fixed two-tier interval and stops only when
// the context is cancelled. Failures never affect other models' publishers.
type Publisher struct {
	// RegisterURL is the gateway endpoint, e.g. http://gateway:8080/v1/models/register.
	RegisterURL string
	// BaseURL is advertised as owned_by so the gateway can route back here.
	BaseURL string
	// Period is the heartbeat interval.
	Period time.Duration
	// FailPeriod is the sleep after a failed announcement.
	FailPeriod time.Duration
	// HTTPClient defaults to the shared pooled client.
	HTTPClient *http.Client
}

// Start spawns one announcement loop per model and returns immediately.
func (p *Publisher) Start(ctx context.Context, models []string) {
	client := p.HTTPClient
	if client == nil {
		client = httpclient.NewDefaultHTTPClient()
	}
	for _, model := range models {
		go p.run(ctx, client, model)
	}
}

// run is the per-model heartbeat loop.
func (p *Publisher) run(ctx context.Context, client *http.Client, model string) {
	slog.Info("model heartbeat started", "model", model, "register_url", p.RegisterURL, "period", p.Period)

	for {
		sleep := p.Period
		if err := p.announce(ctx, client, model); err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("model registration failed", "model", model, "error", err, "retry_in", p.FailPeriod)
			sleep = p.FailPeriod
		}

		select {
		case <-ctx.Done():
			slog.Info("model heartbeat stopped", "model", model)
			return
		case <-time.After(sleep):
		}
	}
}

// announce POSTs one model record to the registration endpoint.
func (p *Publisher) announce(ctx context.Context, client *http.Client, model string) error {
	rec := core.Model{
		ID:      model,
		Object:  "model",
		OwnedBy: p.BaseURL,
		Created: time.Now().Unix(),
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.RegisterURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("registration endpoint returned %d", resp.StatusCode)
	}
	return nil
}
