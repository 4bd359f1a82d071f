// Package subscription implements the workflow that turns build
// notifications into pull request updates for subscriptions.
package subscription

//go:generate mockgen -destination=mocks/subscription.go -package=mocks . Store,PullRequestWorkflow,PullRequestWorkflowLookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/simplesurance/depflow/internal/logfields"
	"github.com/simplesurance/depflow/internal/store"
)

const loggerName = "subscription"

const (
	methodUpdate     = "Update"
	updateResultSent = "Update Sent"
)

// Actor runs the operations of one subscription.
// An Actor must only be used by one go-routine at a time, Registry ensures
// that.
type Actor struct {
	id          uuid.UUID
	store       Store
	prWorkflows PullRequestWorkflowLookup
	logger      *zap.Logger
	now         func() time.Time
}

func newActor(id uuid.UUID, s Store, prWorkflows PullRequestWorkflowLookup, logger *zap.Logger) *Actor {
	return &Actor{
		id:          id,
		store:       s,
		prWorkflows: prWorkflows,
		logger:      logger.With(logfields.SubscriptionID(id)),
		now:         time.Now,
	}
}

// Update applies the assets of a build to the subscription and records the
// outcome in the SubscriptionUpdate of the subscription.
// The error of the update is returned after the outcome was recorded.
func (a *Actor) Update(ctx context.Context, buildID int) error {
	action := fmt.Sprintf("Updating subscription for build %d", buildID)

	start := time.Now()
	err := a.update(ctx, buildID)
	metrics.ObserveAction(methodUpdate, err == nil, time.Since(start))

	if err != nil {
		args, marshalErr := json.Marshal([]int{buildID})
		if marshalErr != nil {
			return errors.Join(err, fmt.Errorf("marshaling action arguments failed: %w", marshalErr))
		}

		if trackErr := a.TrackFailedAction(ctx, action, err.Error(), methodUpdate, string(args)); trackErr != nil {
			return errors.Join(err, trackErr)
		}

		return err
	}

	return a.TrackSuccessfulAction(ctx, action, updateResultSent)
}

func (a *Actor) update(ctx context.Context, buildID int) error {
	logger := a.logger.With(logfields.BuildID(buildID))

	sub, err := a.store.Subscription(ctx, a.id)
	if err != nil {
		return fmt.Errorf("loading subscription failed: %w", err)
	}

	// a failed event must not prevent the update
	if _, err := a.AddDependencyFlowEvent(ctx, buildID, EventFired, ReasonNew, MergePolicyPendingPolicies, FlowTypePR, ""); err != nil {
		logger.Warn("recording dependency flow event failed",
			logfields.Event("dependency_flow_event_recording_failed"),
			zap.String("dependency_flow_event", string(EventFired)),
			zap.Error(err),
		)
	}

	build, err := a.store.BuildWithAssets(ctx, buildID)
	if err != nil {
		return fmt.Errorf("loading build failed: %w", err)
	}

	routingKey := RoutingKey(sub)
	logger = logger.With(logfields.RoutingKey(routingKey))

	workflow := a.prWorkflows.Lookup(routingKey)
	if workflow == nil {
		return fmt.Errorf("no pull request workflow exists for routing key %q", routingKey)
	}

	mode := UpdateModeDependencies
	if sub.SourceEnabled {
		mode = UpdateModeDependenciesAndSources
	}

	assets := make([]Asset, 0, len(build.Assets))
	for _, asset := range build.Assets {
		assets = append(assets, Asset{Name: asset.Name, Version: asset.Version})
	}

	logger.Debug("dispatching asset update",
		logfields.Event("subscription_update_dispatched"),
		zap.Stringer("update_mode", mode),
		zap.Int("asset_count", len(assets)),
	)

	err = workflow.UpdateAssets(ctx, a.id, mode, buildID, build.Repository(), build.Commit, assets)
	if err != nil {
		return fmt.Errorf("updating assets failed: %w", err)
	}

	logger.Info("subscription updated", logfields.Event("subscription_updated"))

	return nil
}

// UpdateForMergedPullRequest sets the last applied build of the
// subscription.
// If the subscription does not exist anymore, false is returned.
func (a *Actor) UpdateForMergedPullRequest(ctx context.Context, buildID int) (bool, error) {
	logger := a.logger.With(logfields.BuildID(buildID))

	if _, err := a.store.Subscription(ctx, a.id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logger.Info("subscription does not exist anymore, ignoring merged pull request",
				logfields.Event("subscription_not_found"),
			)
			return false, nil
		}

		return false, fmt.Errorf("loading subscription failed: %w", err)
	}

	if err := a.store.SetLastAppliedBuild(ctx, a.id, buildID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logger.Info("subscription was deleted, ignoring merged pull request",
				logfields.Event("subscription_not_found"),
			)
			return false, nil
		}

		return false, fmt.Errorf("setting last applied build failed: %w", err)
	}

	logger.Debug("last applied build updated", logfields.Event("subscription_last_applied_build_updated"))

	return true, nil
}

// AddDependencyFlowEvent records a dependency flow event for the
// subscription. url is optional.
// If the subscription does not exist, no event is recorded and false is
// returned.
func (a *Actor) AddDependencyFlowEvent(
	ctx context.Context,
	buildID int,
	eventType EventType,
	reason EventReason,
	policy MergePolicyCheckResult,
	flowType string,
	url string,
) (bool, error) {
	sub, err := a.store.Subscription(ctx, a.id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			a.logger.Info("subscription does not exist anymore, not recording dependency flow event",
				logfields.BuildID(buildID),
				logfields.Event("subscription_not_found"),
				zap.String("dependency_flow_event", string(eventType)),
			)
			return false, nil
		}

		return false, fmt.Errorf("loading subscription failed: %w", err)
	}

	ev := store.DependencyFlowEvent{
		SourceRepository: sub.SourceRepository,
		TargetRepository: sub.TargetRepository,
		ChannelID:        sub.ChannelID,
		BuildID:          buildID,
		Timestamp:        a.now().UTC(),
		Event:            string(eventType),
		Reason:           ComposeReason(reason, policy),
		FlowType:         flowType,
	}
	if url != "" {
		ev.URL = &url
	}

	if err := a.store.AddDependencyFlowEvent(ctx, &ev); err != nil {
		return false, fmt.Errorf("storing dependency flow event failed: %w", err)
	}

	metrics.CountFlowEvent(eventType, ev.Reason)

	return true, nil
}

// TrackSuccessfulAction records that action succeeded with result.
func (a *Actor) TrackSuccessfulAction(ctx context.Context, action, result string) error {
	err := a.store.UpsertSubscriptionUpdate(ctx, &store.SubscriptionUpdate{
		SubscriptionID: a.id,
		Action:         action,
		Success:        true,
		ErrorMessage:   result,
	})
	if err != nil {
		return fmt.Errorf("recording successful action failed: %w", err)
	}

	return nil
}

// TrackFailedAction records that action failed.
// method and arguments describe the call that can be used to rerun the
// action via RunAction.
func (a *Actor) TrackFailedAction(ctx context.Context, action, result, method, arguments string) error {
	err := a.store.UpsertSubscriptionUpdate(ctx, &store.SubscriptionUpdate{
		SubscriptionID: a.id,
		Action:         action,
		Success:        false,
		ErrorMessage:   result,
		Method:         &method,
		Arguments:      &arguments,
	})
	if err != nil {
		return fmt.Errorf("recording failed action failed: %w", err)
	}

	a.logger.Info("action failed",
		logfields.Action(action),
		logfields.Event("subscription_action_failed"),
		zap.String("error", result),
	)

	return nil
}

// RunAction runs the action method with its JSON encoded arguments, as they
// are recorded by TrackFailedAction.
func (a *Actor) RunAction(ctx context.Context, method, arguments string) (string, error) {
	switch method {
	case methodUpdate:
		var args []int
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return "", fmt.Errorf("parsing arguments of %s failed: %w", method, err)
		}

		if len(args) != 1 {
			return "", fmt.Errorf("%s expects 1 argument, got %d", method, len(args))
		}

		if err := a.Update(ctx, args[0]); err != nil {
			return "", err
		}

		return updateResultSent, nil

	default:
		return "", fmt.Errorf("unknown action method: %q", method)
	}
}
