package scaling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/webforge/sla-sentinel/internal/config"
	"github.com/webforge/sla-sentinel/internal/types"
)

// NewControlPlane builds the control plane backend for the configured
// scaling setup: an HTTP plane when a URL is configured, otherwise a
// log-only plane so capacity changes stay observable in environments
// without an infrastructure API.
func NewControlPlane(cfg config.ScalingConfig, logger *zap.Logger) types.ControlPlane {
	if cfg.ControlPlaneURL != "" {
		return NewHTTPControlPlane(cfg.ControlPlaneURL, nil, logger)
	}
	return &LogControlPlane{logger: logger}
}

// capacityRequest is the wire format sent to the infrastructure API.
type capacityRequest struct {
	Resource types.ResourceType `json:"resource"`
	Target   int                `json:"target"`
}

// HTTPControlPlane applies capacity changes by POSTing to an
// infrastructure API endpoint.
type HTTPControlPlane struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewHTTPControlPlane creates an HTTP control plane. A nil client uses a
// dedicated client with a 30 second timeout.
func NewHTTPControlPlane(url string, client *http.Client, logger *zap.Logger) *HTTPControlPlane {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPControlPlane{
		url:    url,
		client: client,
		logger: logger,
	}
}

// SetCapacity requests a capacity change for a resource. Non-2xx
// responses are errors.
func (p *HTTPControlPlane) SetCapacity(ctx context.Context, resource types.ResourceType, target int) error {
	body, err := json.Marshal(capacityRequest{Resource: resource, Target: target})
	if err != nil {
		return fmt.Errorf("failed to encode capacity request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build capacity request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("capacity request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("control plane returned status %d", resp.StatusCode)
	}

	p.logger.Info("Capacity change applied",
		zap.String("resource", string(resource)),
		zap.Int("target", target))
	return nil
}

// LogControlPlane records capacity changes without applying them.
type LogControlPlane struct {
	logger *zap.Logger
}

// SetCapacity logs the requested change and succeeds.
func (p *LogControlPlane) SetCapacity(ctx context.Context, resource types.ResourceType, target int) error {
	p.logger.Info("Capacity change (log-only control plane)",
		zap.String("resource", string(resource)),
		zap.Int("target", target))
	return nil
}
