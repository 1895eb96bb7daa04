package alerting

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/webforge/sla-sentinel/internal/config"
	"github.com/webforge/sla-sentinel/internal/types"
	"go.uber.org/zap"
)

type fakeNotifier struct {
	channel types.AlertChannel
	err     error
	block   bool
	calls   atomic.Int64
}

func (n *fakeNotifier) Channel() types.AlertChannel { return n.channel }

func (n *fakeNotifier) Send(ctx context.Context, _ types.AlertPayload) error {
	n.calls.Add(1)
	if n.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return n.err
}

func alertingConfig(suppression time.Duration) config.AlertingConfig {
	return config.AlertingConfig{
		ConfidenceThreshold: 0.70,
		SuppressionWindow:   suppression,
		ChannelTimeout:      100 * time.Millisecond,
	}
}

func prediction(vt types.ViolationType, confidence float64) types.SLAPrediction {
	return types.SLAPrediction{
		ViolationType:   vt,
		Probability:     confidence,
		ConfidenceScore: confidence,
		PredictedTime:   time.Now().Add(15 * time.Minute),
	}
}

func TestSendPredictionAlertsConfidenceGate(t *testing.T) {
	n := &fakeNotifier{channel: types.ChannelWebhook}
	d := NewDispatcher(alertingConfig(30*time.Minute), []types.Notifier{n}, zap.NewNop())

	results := d.SendPredictionAlerts(context.Background(), "wf-1", []types.SLAPrediction{
		prediction(types.ViolationBuildTime, 0.65),
	})
	if n.calls.Load() != 0 {
		t.Errorf("low-confidence prediction must not reach channels, got %d calls", n.calls.Load())
	}
	if results[types.ChannelWebhook] {
		t.Error("no delivery must be reported for a gated prediction")
	}
}

func TestSendPredictionAlertsSuppressionWindow(t *testing.T) {
	n := &fakeNotifier{channel: types.ChannelWebhook}
	d := NewDispatcher(alertingConfig(200*time.Millisecond), []types.Notifier{n}, zap.NewNop())
	preds := []types.SLAPrediction{prediction(types.ViolationBuildTime, 0.9)}

	d.SendPredictionAlerts(context.Background(), "wf-1", preds)
	d.SendPredictionAlerts(context.Background(), "wf-1", preds)
	if n.calls.Load() != 1 {
		t.Errorf("second alert within window must be suppressed, got %d calls", n.calls.Load())
	}

	// Distinct workflow and distinct violation type are separate keys.
	d.SendPredictionAlerts(context.Background(), "wf-2", preds)
	d.SendPredictionAlerts(context.Background(), "wf-1", []types.SLAPrediction{prediction(types.ViolationDeployTime, 0.9)})
	if n.calls.Load() != 3 {
		t.Errorf("distinct keys must not be suppressed, got %d calls", n.calls.Load())
	}

	time.Sleep(250 * time.Millisecond)
	d.SendPredictionAlerts(context.Background(), "wf-1", preds)
	if n.calls.Load() != 4 {
		t.Errorf("alert after window expiry must be delivered, got %d calls", n.calls.Load())
	}
}

func TestSendPredictionAlertsChannelIsolation(t *testing.T) {
	healthy := &fakeNotifier{channel: types.ChannelDashboard}
	failing := &fakeNotifier{channel: types.ChannelWebhook, err: errors.New("endpoint down")}
	d := NewDispatcher(alertingConfig(30*time.Minute), []types.Notifier{failing, healthy}, zap.NewNop())

	results := d.SendPredictionAlerts(context.Background(), "wf-1", []types.SLAPrediction{
		prediction(types.ViolationBuildTime, 0.9),
	})

	if results[types.ChannelWebhook] {
		t.Error("failing channel must report false")
	}
	if !results[types.ChannelDashboard] {
		t.Error("healthy channel must report true despite sibling failure")
	}
}

func TestSendPredictionAlertsChannelTimeout(t *testing.T) {
	blocked := &fakeNotifier{channel: types.ChannelEmail, block: true}
	d := NewDispatcher(alertingConfig(30*time.Minute), []types.Notifier{blocked}, zap.NewNop())

	start := time.Now()
	results := d.SendPredictionAlerts(context.Background(), "wf-1", []types.SLAPrediction{
		prediction(types.ViolationBuildTime, 0.9),
	})
	if results[types.ChannelEmail] {
		t.Error("timed-out channel must report false")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("dispatch took %s, channel timeout not applied", elapsed)
	}
}

func TestSendPredictionAlertsEmailServerHang(t *testing.T) {
	// A server that accepts the connection but never speaks SMTP. The
	// channel timeout must bound the whole transaction, greeting included.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			conn, acceptErr := ln.Accept()
			if acceptErr != nil {
				return
			}
			go func(c net.Conn) {
				<-done
				c.Close()
			}(conn)
		}
	}()

	email := NewEmailNotifier(config.EmailConfig{
		SMTPAddr:   ln.Addr().String(),
		From:       "sentinel@example.com",
		Recipients: []string{"oncall@example.com"},
	})
	d := NewDispatcher(alertingConfig(30*time.Minute), []types.Notifier{email}, zap.NewNop())

	start := time.Now()
	results := d.SendPredictionAlerts(context.Background(), "wf-1", []types.SLAPrediction{
		prediction(types.ViolationBuildTime, 0.9),
	})
	if results[types.ChannelEmail] {
		t.Error("send against an unresponsive server must report false")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("dispatch took %s, channel timeout not applied to the smtp connection", elapsed)
	}
}

type recordingObserver struct {
	suppressed []types.ViolationType
	dispatched []map[types.AlertChannel]bool
}

func (r *recordingObserver) AlertSuppressed(_ context.Context, _ string, vt types.ViolationType) {
	r.suppressed = append(r.suppressed, vt)
}

func (r *recordingObserver) AlertDispatched(_ context.Context, _ string, _ types.ViolationType, outcomes map[types.AlertChannel]bool) {
	r.dispatched = append(r.dispatched, outcomes)
}

func TestSendPredictionAlertsObserver(t *testing.T) {
	healthy := &fakeNotifier{channel: types.ChannelDashboard}
	failing := &fakeNotifier{channel: types.ChannelWebhook, err: errors.New("endpoint down")}
	obs := &recordingObserver{}
	d := NewDispatcher(alertingConfig(30*time.Minute), []types.Notifier{healthy, failing}, zap.NewNop())
	d.SetObserver(obs)

	preds := []types.SLAPrediction{prediction(types.ViolationBuildTime, 0.9)}
	d.SendPredictionAlerts(context.Background(), "wf-1", preds)

	if len(obs.dispatched) != 1 {
		t.Fatalf("dispatched notifications = %d, want 1", len(obs.dispatched))
	}
	outcomes := obs.dispatched[0]
	if !outcomes[types.ChannelDashboard] || outcomes[types.ChannelWebhook] {
		t.Errorf("outcomes = %v, want dashboard delivered and webhook failed", outcomes)
	}

	// A repeat inside the suppression window reports suppression instead.
	d.SendPredictionAlerts(context.Background(), "wf-1", preds)
	if len(obs.suppressed) != 1 || obs.suppressed[0] != types.ViolationBuildTime {
		t.Errorf("suppressed = %v, want one build_time entry", obs.suppressed)
	}
	if len(obs.dispatched) != 1 {
		t.Errorf("suppressed prediction must not report outcomes, got %d", len(obs.dispatched))
	}

	// Gated predictions notify nobody.
	d.SendPredictionAlerts(context.Background(), "wf-1", []types.SLAPrediction{
		prediction(types.ViolationDeployTime, 0.5),
	})
	if len(obs.suppressed) != 1 || len(obs.dispatched) != 1 {
		t.Errorf("confidence-gated prediction must not reach the observer, suppressed=%d dispatched=%d",
			len(obs.suppressed), len(obs.dispatched))
	}
}

func TestSendPredictionAlertsBreakerShortCircuits(t *testing.T) {
	failing := &fakeNotifier{channel: types.ChannelWebhook, err: errors.New("endpoint down")}
	d := NewDispatcher(alertingConfig(time.Millisecond), []types.Notifier{failing}, zap.NewNop())

	// Default breaker opens after 3 consecutive failures; the tiny
	// suppression window lets every dispatch through the rate limiter.
	for i := 0; i < 6; i++ {
		d.SendPredictionAlerts(context.Background(), "wf-1", []types.SLAPrediction{
			prediction(types.ViolationBuildTime, 0.9),
		})
		time.Sleep(3 * time.Millisecond)
	}

	if calls := failing.calls.Load(); calls != 3 {
		t.Errorf("open breaker must stop channel calls at 3, got %d", calls)
	}
	stats := d.ChannelStats()
	if stats[types.ChannelWebhook].State.String() != "open" {
		t.Errorf("breaker state = %s, want open", stats[types.ChannelWebhook].State)
	}
}

func TestWebhookNotifier(t *testing.T) {
	var received atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content type = %q", r.Header.Get("Content-Type"))
		}
		if r.Header.Get("X-Token") != "secret" {
			t.Errorf("custom header missing")
		}
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	n := NewWebhookNotifier(config.WebhookConfig{
		URL:     server.URL,
		Headers: map[string]string{"X-Token": "secret"},
	}, server.Client())

	payload := types.AlertPayload{WorkflowID: "wf-1", Prediction: prediction(types.ViolationBuildTime, 0.9)}
	if err := n.Send(context.Background(), payload); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if received.Load() != 1 {
		t.Errorf("server received %d requests, want 1", received.Load())
	}
}

func TestWebhookNotifierErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	n := NewWebhookNotifier(config.WebhookConfig{URL: server.URL}, server.Client())
	if err := n.Send(context.Background(), types.AlertPayload{}); err == nil {
		t.Fatal("expected error for non-2xx status")
	}
}

func TestDashboardNotifierDropsOldest(t *testing.T) {
	n := NewDashboardNotifier(2, zap.NewNop())

	for i, wf := range []string{"wf-1", "wf-2", "wf-3"} {
		err := n.Send(context.Background(), types.AlertPayload{WorkflowID: wf})
		if err != nil {
			t.Fatalf("Send(%d) error = %v", i, err)
		}
	}

	first := <-n.Feed()
	if first.WorkflowID != "wf-2" {
		t.Errorf("oldest surviving event = %q, want wf-2 after wf-1 dropped", first.WorkflowID)
	}
}

func TestBuildNotifiers(t *testing.T) {
	cfg := config.AlertingConfig{
		Webhook:   config.WebhookConfig{Enabled: true, URL: "http://example.invalid/hook"},
		Dashboard: config.DashboardConfig{Enabled: true, BufferSize: 8},
	}
	notifiers := BuildNotifiers(cfg, zap.NewNop())
	if len(notifiers) != 2 {
		t.Fatalf("built %d notifiers, want 2", len(notifiers))
	}
	channels := map[types.AlertChannel]bool{}
	for _, n := range notifiers {
		channels[n.Channel()] = true
	}
	if !channels[types.ChannelWebhook] || !channels[types.ChannelDashboard] {
		t.Errorf("channels = %v", channels)
	}
}
