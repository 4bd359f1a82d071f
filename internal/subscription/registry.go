package subscription

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Executor runs fn exclusively for key.
// Calls for different keys can run concurrently.
type Executor interface {
	Do(ctx context.Context, key string, fn func(context.Context) error) error
}

// Registry runs the operations of subscriptions, one at a time per
// subscription.
type Registry struct {
	executor    Executor
	store       Store
	prWorkflows PullRequestWorkflowLookup
	logger      *zap.Logger
}

func NewRegistry(executor Executor, s Store, prWorkflows PullRequestWorkflowLookup) *Registry {
	return &Registry{
		executor:    executor,
		store:       s,
		prWorkflows: prWorkflows,
		logger:      zap.L().Named(loggerName),
	}
}

func executorKey(id uuid.UUID) string {
	return "subscription:" + id.String()
}

func (r *Registry) do(ctx context.Context, id uuid.UUID, fn func(context.Context, *Actor) error) error {
	return r.executor.Do(ctx, executorKey(id), func(ctx context.Context) error {
		return fn(ctx, newActor(id, r.store, r.prWorkflows, r.logger))
	})
}

// Update runs Actor.Update for the subscription.
func (r *Registry) Update(ctx context.Context, id uuid.UUID, buildID int) error {
	return r.do(ctx, id, func(ctx context.Context, a *Actor) error {
		return a.Update(ctx, buildID)
	})
}

// UpdateForMergedPullRequest runs Actor.UpdateForMergedPullRequest for the
// subscription.
func (r *Registry) UpdateForMergedPullRequest(ctx context.Context, id uuid.UUID, buildID int) (bool, error) {
	var result bool

	err := r.do(ctx, id, func(ctx context.Context, a *Actor) error {
		var err error
		result, err = a.UpdateForMergedPullRequest(ctx, buildID)
		return err
	})

	return result, err
}

// AddDependencyFlowEvent runs Actor.AddDependencyFlowEvent for the
// subscription.
func (r *Registry) AddDependencyFlowEvent(
	ctx context.Context,
	id uuid.UUID,
	buildID int,
	eventType EventType,
	reason EventReason,
	policy MergePolicyCheckResult,
	flowType string,
	url string,
) (bool, error) {
	var result bool

	err := r.do(ctx, id, func(ctx context.Context, a *Actor) error {
		var err error
		result, err = a.AddDependencyFlowEvent(ctx, buildID, eventType, reason, policy, flowType, url)
		return err
	})

	return result, err
}

// RunAction runs Actor.RunAction for the subscription.
func (r *Registry) RunAction(ctx context.Context, id uuid.UUID, method, arguments string) (string, error) {
	var result string

	err := r.do(ctx, id, func(ctx context.Context, a *Actor) error {
		var err error
		result, err = a.RunAction(ctx, method, arguments)
		return err
	})

	return result, err
}
