package pullrequest

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/simplesurance/depflow/internal/gitrepo"
	"github.com/simplesurance/depflow/internal/logfields"
	"github.com/simplesurance/depflow/internal/store"
	"github.com/simplesurance/depflow/internal/subscription"
)

// CheckPullRequests fetches the state of all in-progress pull requests.
// For merged pull requests the contained builds are recorded as the last
// applied build of their subscriptions. Merged and closed pull requests are
// completed: a Completed dependency flow event is recorded per contained
// update and the pull request is not in-progress anymore.
//
// Checking continues when a pull request fails, all errors are returned.
func (r *Registry) CheckPullRequests(ctx context.Context) error {
	prs, err := r.store.InProgressPullRequests(ctx)
	if err != nil {
		return fmt.Errorf("listing in-progress pull requests failed: %w", err)
	}

	metrics.SetInProgress(len(prs))

	var errs []error

	for _, pr := range prs {
		if ctx.Err() != nil {
			return errors.Join(append(errs, ctx.Err())...)
		}

		if err := r.checkPullRequest(ctx, pr.RoutingKey); err != nil {
			r.logger.Warn("checking pull request failed",
				logfields.Event("pull_request_check_failed"),
				logfields.RoutingKey(pr.RoutingKey),
				logfields.PullRequest(pr.URL),
				zap.Error(err),
			)

			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (r *Registry) checkPullRequest(ctx context.Context, routingKey string) error {
	var pr *store.InProgressPullRequest
	var status *gitrepo.PullRequestStatus

	// subscription operations are run after the pull request was
	// released, a subscription update can wait for the pull request
	// workflow while holding its subscription
	err := r.executor.Do(ctx, executorKey(routingKey), func(ctx context.Context) error {
		var err error

		pr, err = r.store.InProgressPullRequest(ctx, routingKey)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}

			return err
		}

		clt, err := r.remotes.GetRemoteClient(ctx, pr.TargetRepository)
		if err != nil {
			return err
		}

		status, err = clt.GetPullRequestStatus(ctx, pr.URL)
		if err != nil {
			return fmt.Errorf("retrieving status of %s failed: %w", pr.URL, err)
		}

		if status.State == gitrepo.PullRequestStateOpen {
			return nil
		}

		return r.store.DeleteInProgressPullRequest(ctx, routingKey)
	})
	if err != nil {
		return err
	}

	if pr == nil || status.State == gitrepo.PullRequestStateOpen {
		return nil
	}

	return r.complete(ctx, pr, status)
}

func (r *Registry) complete(ctx context.Context, pr *store.InProgressPullRequest, status *gitrepo.PullRequestStatus) error {
	logger := r.logger.With(
		logfields.RoutingKey(pr.RoutingKey),
		logfields.PullRequest(pr.URL),
		zap.Stringer("pull_request_state", status.State),
	)

	reason, policy := completionReason(status)
	if status.State == gitrepo.PullRequestStateMerged {
		metrics.OperationInc(operationMerged)
	} else {
		metrics.OperationInc(operationClosed)
	}

	var errs []error

	for _, upd := range pr.ContainedUpdates {
		if status.State == gitrepo.PullRequestStateMerged {
			found, err := r.subs.UpdateForMergedPullRequest(ctx, upd.SubscriptionID, upd.BuildID)
			if err != nil {
				errs = append(errs, fmt.Errorf("recording applied build %d of subscription %s failed: %w", upd.BuildID, upd.SubscriptionID, err))
				continue
			}

			if !found {
				logger.Info("subscription of merged pull request does not exist anymore",
					logfields.Event("merged_pull_request_subscription_missing"),
					logfields.SubscriptionID(upd.SubscriptionID),
				)
				continue
			}
		}

		_, err := r.subs.AddDependencyFlowEvent(
			ctx, upd.SubscriptionID, upd.BuildID,
			subscription.EventCompleted, reason, policy,
			subscription.FlowTypePR, pr.URL,
		)
		if err != nil {
			errs = append(errs, fmt.Errorf("recording completion of subscription %s failed: %w", upd.SubscriptionID, err))
		}
	}

	logger.Info("pull request completed",
		logfields.Event("pull_request_completed"),
		zap.Int("contained_update_count", len(pr.ContainedUpdates)),
	)

	return errors.Join(errs...)
}

// completionReason returns the reason and merge policy result of the
// Completed event of a pull request with status.
func completionReason(status *gitrepo.PullRequestStatus) (subscription.EventReason, subscription.MergePolicyCheckResult) {
	if status.State == gitrepo.PullRequestStateMerged {
		switch status.MergePolicy {
		case gitrepo.MergePolicyStateSucceeded:
			return subscription.ReasonAutomaticallyMerged, subscription.MergePolicyMerged
		case gitrepo.MergePolicyStatePending:
			return subscription.ReasonManuallyMerged, subscription.MergePolicyPendingPolicies
		case gitrepo.MergePolicyStateFailed:
			return subscription.ReasonManuallyMerged, subscription.MergePolicyFailedPolicies
		default:
			return subscription.ReasonManuallyMerged, subscription.MergePolicyNoPolicies
		}
	}

	switch status.MergePolicy {
	case gitrepo.MergePolicyStateSucceeded:
		return subscription.ReasonManuallyClosed, subscription.MergePolicyFailedToMerge
	case gitrepo.MergePolicyStatePending:
		return subscription.ReasonManuallyClosed, subscription.MergePolicyPendingPolicies
	case gitrepo.MergePolicyStateFailed:
		return subscription.ReasonManuallyClosed, subscription.MergePolicyFailedPolicies
	default:
		return subscription.ReasonManuallyClosed, subscription.MergePolicyNoPolicies
	}
}
