package subscription

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/simplesurance/depflow/internal/store"
)

// EventType is the lifecycle moment a DependencyFlowEvent records.
type EventType string

const (
	EventCreated   EventType = "Created"
	EventUpdated   EventType = "Updated"
	EventCompleted EventType = "Completed"
	EventDeleted   EventType = "Deleted"
	EventFired     EventType = "Fired"
)

// EventReason is the cause of a DependencyFlowEvent.
type EventReason string

const (
	ReasonNew                 EventReason = "New"
	ReasonAutomaticallyMerged EventReason = "AutomaticallyMerged"
	ReasonManuallyMerged      EventReason = "ManuallyMerged"
	ReasonManuallyClosed      EventReason = "ManuallyClosed"
	ReasonFailedUpdate        EventReason = "FailedUpdate"
	ReasonAutomaticallyClosed EventReason = "AutomaticallyClosed"
)

// MergePolicyCheckResult is the state of the merge policies of a pull
// request when an event happened.
type MergePolicyCheckResult string

const (
	MergePolicyNoPolicies      MergePolicyCheckResult = "NoPolicies"
	MergePolicyPendingPolicies MergePolicyCheckResult = "PendingPolicies"
	MergePolicyFailedPolicies  MergePolicyCheckResult = "FailedPolicies"
	MergePolicyFailedToMerge   MergePolicyCheckResult = "FailedToMerge"
	MergePolicyMerged          MergePolicyCheckResult = "Merged"
)

// FlowTypePR is the flow type of updates delivered via pull requests.
const FlowTypePR = "PR"

// ComposeReason returns the reason that is stored in a DependencyFlowEvent.
// New and AutomaticallyMerged are unambiguous on their own, all other
// reasons are suffixed with the merge policy result.
func ComposeReason(reason EventReason, policy MergePolicyCheckResult) string {
	if reason == ReasonNew || reason == ReasonAutomaticallyMerged {
		return string(reason)
	}

	return string(reason) + string(policy)
}

// UpdateMode selects which changes an asset update applies.
type UpdateMode int

const (
	// UpdateModeDependencies only updates dependency versions.
	UpdateModeDependencies UpdateMode = iota
	// UpdateModeDependenciesAndSources additionally flows the sources of
	// the build.
	UpdateModeDependenciesAndSources
)

func (m UpdateMode) String() string {
	switch m {
	case UpdateModeDependencies:
		return "Dependencies"
	case UpdateModeDependenciesAndSources:
		return "DependenciesAndSources"
	default:
		return fmt.Sprintf("UpdateMode(%d)", int(m))
	}
}

// Asset is the name and version of a build output.
type Asset struct {
	Name    string
	Version string
}

// RoutingKey returns the key of the pull request workflow that receives the
// updates of sub.
// Batchable subscriptions targeting the same branch share one workflow,
// every other subscription has its own.
func RoutingKey(sub *store.Subscription) string {
	if sub.PolicyObject.Batchable {
		return sub.TargetRepository + "|" + sub.TargetBranch
	}

	return sub.ID.String()
}

// Store persists the state of subscriptions.
type Store interface {
	Subscription(ctx context.Context, id uuid.UUID) (*store.Subscription, error)
	SetLastAppliedBuild(ctx context.Context, subscriptionID uuid.UUID, buildID int) error
	BuildWithAssets(ctx context.Context, id int) (*store.Build, error)
	UpsertSubscriptionUpdate(ctx context.Context, upd *store.SubscriptionUpdate) error
	AddDependencyFlowEvent(ctx context.Context, ev *store.DependencyFlowEvent) error
}

// PullRequestWorkflow applies asset updates to a pull request.
type PullRequestWorkflow interface {
	UpdateAssets(ctx context.Context, subscriptionID uuid.UUID, mode UpdateMode, buildID int, repoURL, commit string, assets []Asset) error
}

// PullRequestWorkflowLookup returns the workflow for a routing key.
type PullRequestWorkflowLookup interface {
	Lookup(routingKey string) PullRequestWorkflow
}

// PullRequestWorkflowLookupFunc is a function that implements
// PullRequestWorkflowLookup.
type PullRequestWorkflowLookupFunc func(routingKey string) PullRequestWorkflow

func (f PullRequestWorkflowLookupFunc) Lookup(routingKey string) PullRequestWorkflow {
	return f(routingKey)
}
