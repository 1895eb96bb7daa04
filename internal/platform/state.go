// Package platform tracks the operational state of the delivery platform
// the prediction engine runs against. State is pushed in by whatever feeds
// the system (ingest pipeline, status poller) and read by feature
// extraction as a point-in-time snapshot.
package platform

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/webforge/sla-sentinel/internal/types"
)

// StateTracker is a push-based implementation of types.StateProvider.
// Writers report workflow starts/finishes and utilization gauges; readers
// get a consistent snapshot. Snapshots older than the staleness window
// fall back to neutral utilization so a dead feed cannot pin stale load
// values into every feature vector.
type StateTracker struct {
	logger *zap.Logger
	mu     sync.RWMutex

	activeWorkflows   map[string]struct{}
	cpuUsage          float64
	memoryUsage       float64
	dbConnectionUsage float64
	updatedAt         time.Time

	staleness time.Duration
}

// DefaultStaleness is how long utilization gauges stay trusted without an
// update.
const DefaultStaleness = 5 * time.Minute

// NewStateTracker creates a state tracker with neutral initial state.
func NewStateTracker(logger *zap.Logger) *StateTracker {
	return &StateTracker{
		logger:          logger,
		activeWorkflows: make(map[string]struct{}),
		staleness:       DefaultStaleness,
	}
}

// WorkflowStarted records that a workflow began executing.
func (st *StateTracker) WorkflowStarted(workflowID string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.activeWorkflows[workflowID] = struct{}{}
}

// WorkflowFinished records that a workflow stopped executing. Unknown IDs
// are ignored.
func (st *StateTracker) WorkflowFinished(workflowID string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.activeWorkflows, workflowID)
}

// SetUtilization updates the utilization gauges. Values are ratios in
// [0,1]; callers own any unit conversion.
func (st *StateTracker) SetUtilization(cpu, memory, dbConnections float64) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.cpuUsage = cpu
	st.memoryUsage = memory
	st.dbConnectionUsage = dbConnections
	st.updatedAt = time.Now()
}

// SystemState returns the current snapshot.
func (st *StateTracker) SystemState(ctx context.Context) (types.SystemState, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	state := types.SystemState{
		ActiveWorkflows:   len(st.activeWorkflows),
		CPUUsage:          st.cpuUsage,
		MemoryUsage:       st.memoryUsage,
		DBConnectionUsage: st.dbConnectionUsage,
	}

	if !st.updatedAt.IsZero() && time.Since(st.updatedAt) > st.staleness {
		st.logger.Warn("Utilization gauges are stale, reporting neutral values",
			zap.Time("last_update", st.updatedAt))
		state.CPUUsage = 0
		state.MemoryUsage = 0
		state.DBConnectionUsage = 0
	}

	return state, nil
}

// Static is a fixed-state provider for local runs and tests.
type Static struct {
	State types.SystemState
}

// SystemState returns the configured snapshot.
func (s Static) SystemState(ctx context.Context) (types.SystemState, error) {
	return s.State, nil
}
