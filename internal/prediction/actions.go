package prediction

import (
	"fmt"

	"github.com/webforge/sla-sentinel/internal/types"
)

// Rule thresholds for action recommendation. Matching is deterministic for a
// given (violation type, probability, feature vector) input.
const (
	scaleOutProbability      = 0.8
	investigationViolations  = 3
	offHoursDeferProbability = 0.6
)

// recommendActions derives mitigation suggestions by simple rule matching
// over the prediction context. Recommendations are ordered most actionable
// first.
func recommendActions(vt types.ViolationType, probability float64, fv types.FeatureVector) []types.ActionRecommendation {
	var actions []types.ActionRecommendation

	if probability > scaleOutProbability {
		switch vt {
		case types.ViolationBuildTime:
			actions = append(actions, types.ActionRecommendation{
				ActionID:        "scale_build_agents",
				Description:     "Provision additional build agents before the predicted violation window",
				Confidence:      probability,
				EstimatedImpact: "reduces build queue wait by 40-60%",
			})
		case types.ViolationTestExecution:
			actions = append(actions, types.ActionRecommendation{
				ActionID:        "scale_worker_nodes",
				Description:     "Add test worker nodes to parallelize the suite",
				Confidence:      probability,
				EstimatedImpact: "reduces test wall-clock time roughly linearly with workers",
			})
		case types.ViolationDeployTime:
			actions = append(actions, types.ActionRecommendation{
				ActionID:        "scale_api_instances",
				Description:     "Pre-warm additional API instances ahead of the rollout",
				Confidence:      probability,
				EstimatedImpact: "avoids rolling-deploy capacity dips",
			})
		case types.ViolationAgentResponse:
			actions = append(actions, types.ActionRecommendation{
				ActionID:        "expand_db_pool",
				Description:     "Raise the database connection pool ceiling",
				Confidence:      probability,
				EstimatedImpact: "removes connection-wait latency under load",
			})
		case types.ViolationPRReviewTime:
			actions = append(actions, types.ActionRecommendation{
				ActionID:        "rebalance_reviewers",
				Description:     "Reassign pending reviews to available reviewers",
				Confidence:      probability * 0.8,
				EstimatedImpact: "depends on reviewer availability",
			})
		case types.ViolationTaskComplete:
			actions = append(actions, types.ActionRecommendation{
				ActionID:        "split_task",
				Description:     "Break the task into smaller independently completable units",
				Confidence:      probability * 0.8,
				EstimatedImpact: "depends on task structure",
			})
		}
	}

	if fv.RecentViolationCount > investigationViolations {
		actions = append(actions, types.ActionRecommendation{
			ActionID: "root_cause_investigation",
			Description: fmt.Sprintf("Investigate recurring %s violations (%d in the recent window)",
				vt, int(fv.RecentViolationCount)),
			Confidence:      0.9,
			EstimatedImpact: "addresses the underlying cause rather than symptoms",
		})
	}

	if fv.CurrentLoad > 0.9 {
		actions = append(actions, types.ActionRecommendation{
			ActionID:        "shed_noncritical_load",
			Description:     "Defer non-critical scheduled workflows until load subsides",
			Confidence:      0.75,
			EstimatedImpact: "frees capacity for SLA-bound workflows",
		})
	}

	if probability > offHoursDeferProbability && (fv.HourOfDay < 6 || fv.HourOfDay > 20) {
		actions = append(actions, types.ActionRecommendation{
			ActionID:        "defer_to_business_hours",
			Description:     "Queue the workflow for business hours when operators are available",
			Confidence:      0.6,
			EstimatedImpact: "trades latency for supervised execution",
		})
	}

	return actions
}
