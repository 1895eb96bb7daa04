package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/smtp"
	"strings"

	"github.com/webforge/sla-sentinel/internal/config"
	"github.com/webforge/sla-sentinel/internal/types"
	"go.uber.org/zap"
)

// BuildNotifiers constructs the enabled channels from config.
func BuildNotifiers(cfg config.AlertingConfig, logger *zap.Logger) []types.Notifier {
	var notifiers []types.Notifier
	if cfg.Email.Enabled {
		notifiers = append(notifiers, NewEmailNotifier(cfg.Email))
	}
	if cfg.Webhook.Enabled {
		notifiers = append(notifiers, NewWebhookNotifier(cfg.Webhook, nil))
	}
	if cfg.Dashboard.Enabled {
		notifiers = append(notifiers, NewDashboardNotifier(cfg.Dashboard.BufferSize, logger))
	}
	return notifiers
}

// EmailNotifier sends alert summaries over SMTP.
type EmailNotifier struct {
	cfg config.EmailConfig
}

func NewEmailNotifier(cfg config.EmailConfig) *EmailNotifier {
	return &EmailNotifier{cfg: cfg}
}

func (n *EmailNotifier) Channel() types.AlertChannel { return types.ChannelEmail }

func (n *EmailNotifier) Send(ctx context.Context, payload types.AlertPayload) error {
	var body strings.Builder
	fmt.Fprintf(&body, "From: %s\r\n", n.cfg.From)
	fmt.Fprintf(&body, "To: %s\r\n", strings.Join(n.cfg.Recipients, ", "))
	fmt.Fprintf(&body, "Subject: SLA violation predicted: %s\r\n\r\n", payload.Prediction.ViolationType)
	fmt.Fprintf(&body, "%s\r\n\r\n", payload.Summary)
	fmt.Fprintf(&body, "Probability: %.2f\r\nConfidence: %.2f\r\nPredicted time: %s\r\n",
		payload.Prediction.Probability,
		payload.Prediction.ConfidenceScore,
		payload.Prediction.PredictedTime.Format("2006-01-02 15:04:05 MST"))
	for _, action := range payload.Prediction.RecommendedActions {
		fmt.Fprintf(&body, "- %s (%s)\r\n", action.Description, action.EstimatedImpact)
	}

	// smtp.SendMail takes no context, so the transaction runs over a
	// connection whose deadline is the context's. A hung server fails the
	// send instead of blocking the dispatch loop.
	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", n.cfg.SMTPAddr)
	if err != nil {
		return fmt.Errorf("smtp dial failed: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return fmt.Errorf("smtp deadline failed: %w", err)
		}
	}

	host := n.cfg.SMTPAddr
	if h, _, splitErr := net.SplitHostPort(n.cfg.SMTPAddr); splitErr == nil {
		host = h
	}
	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("smtp handshake failed: %w", err)
	}
	defer client.Close()

	if err := client.Mail(n.cfg.From); err != nil {
		return fmt.Errorf("smtp sender rejected: %w", err)
	}
	for _, rcpt := range n.cfg.Recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp recipient %q rejected: %w", rcpt, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data failed: %w", err)
	}
	if _, err := w.Write([]byte(body.String())); err != nil {
		return fmt.Errorf("smtp write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp write failed: %w", err)
	}
	return client.Quit()
}

// WebhookNotifier POSTs the alert payload as JSON.
type WebhookNotifier struct {
	cfg    config.WebhookConfig
	client *http.Client
}

// NewWebhookNotifier creates a webhook channel; a nil client uses
// http.DefaultClient. The per-send timeout comes from the dispatcher's
// context.
func NewWebhookNotifier(cfg config.WebhookConfig, client *http.Client) *WebhookNotifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebhookNotifier{cfg: cfg, client: client}
}

func (n *WebhookNotifier) Channel() types.AlertChannel { return types.ChannelWebhook }

func (n *WebhookNotifier) Send(ctx context.Context, payload types.AlertPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal alert payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range n.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// DashboardNotifier publishes alerts to an in-process feed consumed by the
// dashboard layer. Publishing never blocks: when the buffer is full the
// oldest event is dropped.
type DashboardNotifier struct {
	feed   chan types.AlertPayload
	logger *zap.Logger
}

func NewDashboardNotifier(bufferSize int, logger *zap.Logger) *DashboardNotifier {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &DashboardNotifier{
		feed:   make(chan types.AlertPayload, bufferSize),
		logger: logger.Named("dashboard-feed"),
	}
}

func (n *DashboardNotifier) Channel() types.AlertChannel { return types.ChannelDashboard }

func (n *DashboardNotifier) Send(ctx context.Context, payload types.AlertPayload) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for {
		select {
		case n.feed <- payload:
			return nil
		default:
			select {
			case dropped := <-n.feed:
				n.logger.Debug("Dropped oldest dashboard event",
					zap.String("workflow_id", dropped.WorkflowID))
			default:
			}
		}
	}
}

// Feed returns the alert event stream.
func (n *DashboardNotifier) Feed() <-chan types.AlertPayload {
	return n.feed
}
