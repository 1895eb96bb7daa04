package types

import (
	"context"
	"time"
)

// SampleStore is the historical sample store consumed by feature extraction
// and threshold optimization. Implementations return samples ordered by
// timestamp ascending.
type SampleStore interface {
	// QuerySamples returns samples for a workflow and violation type
	// observed at or after since.
	QuerySamples(ctx context.Context, workflowID string, violationType ViolationType, since time.Time) ([]PerformanceSample, error)

	// CountViolations returns the number of samples exceeding threshold
	// for the given workflow and violation type since the cutoff.
	CountViolations(ctx context.Context, workflowID string, violationType ViolationType, threshold float64, since time.Time) (int, error)
}

// StateProvider reports current operational system state.
type StateProvider interface {
	SystemState(ctx context.Context) (SystemState, error)
}

// ModelStore persists versioned classifier artifacts. Implementations must
// write atomically: a reader never observes a partially written artifact.
type ModelStore interface {
	Load(ctx context.Context, version string) ([]byte, error)
	Save(ctx context.Context, version string, artifact []byte) error
	LatestVersion(ctx context.Context) (string, error)
}

// AlertPayload is the message handed to notification transports.
type AlertPayload struct {
	WorkflowID string        `json:"workflow_id"`
	Prediction SLAPrediction `json:"prediction"`
	Summary    string        `json:"summary"`
	IssuedAt   time.Time     `json:"issued_at"`
}

// Notifier is a single notification transport (email sender, webhook
// client, dashboard feed). Send returns an error on delivery failure; the
// dispatcher isolates failures per channel.
type Notifier interface {
	Channel() AlertChannel
	Send(ctx context.Context, payload AlertPayload) error
}

// ControlPlane applies capacity changes to infrastructure resources.
type ControlPlane interface {
	SetCapacity(ctx context.Context, resource ResourceType, target int) error
}

// AuditSink records emitted predictions, executed scaling decisions and
// completed experiment results for later inspection. Failures to audit are
// logged, never fatal to the operation being audited.
type AuditSink interface {
	RecordPrediction(ctx context.Context, workflowID string, prediction SLAPrediction) error
	RecordScalingDecision(ctx context.Context, decision ScalingDecision) error
	RecordTestResult(ctx context.Context, testID string, result []byte) error
}

// Scheduler runs named recurring tasks. The core depends on this interface
// rather than any particular task runtime; tasks stop when the returned
// cancel function is called or the scheduler shuts down.
type Scheduler interface {
	Every(name string, interval time.Duration, fn func(context.Context)) (cancel func())
}
