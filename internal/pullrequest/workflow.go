package pullrequest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/simplesurance/depflow/internal/dependency"
	"github.com/simplesurance/depflow/internal/gitrepo"
	"github.com/simplesurance/depflow/internal/logfields"
	"github.com/simplesurance/depflow/internal/prdescription"
	"github.com/simplesurance/depflow/internal/remote"
	"github.com/simplesurance/depflow/internal/store"
	"github.com/simplesurance/depflow/internal/subscription"
)

// Workflow applies the updates of the subscriptions of one routing key to
// their pull request.
type Workflow struct {
	routingKey string
	r          *Registry
	logger     *zap.Logger
}

func newWorkflow(routingKey string, r *Registry) *Workflow {
	return &Workflow{
		routingKey: routingKey,
		r:          r,
		logger:     r.logger.With(logfields.RoutingKey(routingKey)),
	}
}

// UpdateAssets updates the dependencies of the subscription target branch
// to the versions of assets and creates or updates the pull request of the
// workflow.
// When no declared dependency is produced by the build in a different
// version, nothing is changed.
func (w *Workflow) UpdateAssets(
	ctx context.Context,
	subscriptionID uuid.UUID,
	mode subscription.UpdateMode,
	buildID int,
	repoURL, commit string,
	assets []subscription.Asset,
) error {
	return w.r.executor.Do(ctx, executorKey(w.routingKey), func(ctx context.Context) error {
		return w.updateAssets(ctx, subscriptionID, mode, buildID, repoURL, commit, assets)
	})
}

func (w *Workflow) updateAssets(
	ctx context.Context,
	subscriptionID uuid.UUID,
	mode subscription.UpdateMode,
	buildID int,
	repoURL, commit string,
	assets []subscription.Asset,
) error {
	logger := w.logger.With(
		logfields.SubscriptionID(subscriptionID),
		logfields.BuildID(buildID),
	)

	sub, err := w.r.store.Subscription(ctx, subscriptionID)
	if err != nil {
		return fmt.Errorf("loading subscription failed: %w", err)
	}

	build, err := w.r.store.BuildWithAssets(ctx, buildID)
	if err != nil {
		return fmt.Errorf("loading build failed: %w", err)
	}

	logger = logger.With(
		logfields.Repository(sub.TargetRepository),
		logfields.TargetBranch(sub.TargetBranch),
	)

	if mode == subscription.UpdateModeDependenciesAndSources {
		logger.Info("flowing sources is not supported, only dependencies are updated",
			logfields.Event("source_flow_skipped"),
		)
	}

	fileMgr, err := w.r.remotes.GetDependencyFileManager(ctx, sub.TargetRepository)
	if err != nil {
		return fmt.Errorf("creating dependency file manager failed: %w", err)
	}

	current, err := fileMgr.ReadVersionDetails(ctx, sub.TargetBranch)
	if err != nil {
		return err
	}

	updates := computeUpdates(current, assets, repoURL, commit)
	if len(updates) == 0 {
		logger.Info("target branch is up to date with the build, no pull request changes required",
			logfields.Event("dependencies_up_to_date"),
		)

		return nil
	}

	files, err := w.updatedFiles(ctx, fileMgr, sub.TargetBranch, updates)
	if err != nil {
		return err
	}

	pr, err := w.r.store.InProgressPullRequest(ctx, w.routingKey)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("loading in-progress pull request failed: %w", err)
	}

	clt, err := w.r.remotes.GetRemoteClient(ctx, sub.TargetRepository)
	if err != nil {
		return err
	}

	var description string
	headBranch := w.r.newHeadBranch(sub.TargetBranch)
	if pr != nil {
		headBranch = pr.HeadBranch

		description, err = clt.GetPullRequestDescription(ctx, pr.URL)
		if err != nil {
			return fmt.Errorf("retrieving description of %s failed: %w", pr.URL, err)
		}
	}

	err = w.r.committer.Commit(ctx, sub.TargetRepository, headBranch, commitMessage(sub, build, updates), files)
	if err != nil {
		return fmt.Errorf("committing dependency updates failed: %w", err)
	}

	composer := prdescription.New(description)
	composer.ComposeSection(
		&prdescription.Update{SubscriptionID: sub.ID, SourceRepo: sub.SourceRepository},
		updates,
		files,
		&prdescription.Build{
			Number:            build.AzureDevOpsBuildNumber,
			DateProduced:      build.DateProduced,
			Commit:            build.Commit,
			AzureDevOpsBranch: build.AzureDevOpsBranch,
			GitHubBranch:      build.GitHubBranch,
		},
	)

	eventType := subscription.EventUpdated

	if pr == nil {
		url, err := clt.CreatePullRequest(ctx, sub.TargetRepository, &gitrepo.NewPullRequest{
			Title:       fmt.Sprintf("[%s] Update dependencies from %s", sub.TargetBranch, sub.SourceRepository),
			Description: composer.String(),
			HeadBranch:  headBranch,
			BaseBranch:  sub.TargetBranch,
		})
		if err != nil {
			return fmt.Errorf("creating pull request failed: %w", err)
		}

		pr = &store.InProgressPullRequest{
			RoutingKey:       w.routingKey,
			URL:              url,
			TargetRepository: sub.TargetRepository,
			TargetBranch:     sub.TargetBranch,
			HeadBranch:       headBranch,
			CreatedAt:        w.r.now(),
		}
		eventType = subscription.EventCreated
		metrics.OperationInc(operationCreated)
	} else {
		if err := clt.UpdatePullRequestDescription(ctx, pr.URL, composer.String()); err != nil {
			return fmt.Errorf("updating description of %s failed: %w", pr.URL, err)
		}

		metrics.OperationInc(operationUpdated)
	}

	pr.ContainedUpdates = withContainedUpdate(pr.ContainedUpdates, store.ContainedUpdate{
		SubscriptionID: sub.ID,
		BuildID:        buildID,
		SourceRepo:     sub.SourceRepository,
	})
	pr.UpdatedAt = w.r.now()

	if err := w.r.store.SaveInProgressPullRequest(ctx, pr); err != nil {
		return fmt.Errorf("storing in-progress pull request failed: %w", err)
	}

	logger.Info("dependency update pull request is up to date",
		logfields.Event("pull_request_"+strings.ToLower(string(eventType))),
		logfields.PullRequest(pr.URL),
		zap.Int("dependency_update_count", len(updates)),
	)

	policy := subscription.MergePolicyNoPolicies
	if len(sub.PolicyObject.MergePolicies) > 0 {
		policy = subscription.MergePolicyPendingPolicies
	}

	// the pull request exists, a failed audit record is only logged
	_, err = w.r.subs.AddDependencyFlowEvent(ctx, sub.ID, buildID, eventType, subscription.ReasonNew, policy, subscription.FlowTypePR, pr.URL)
	if err != nil {
		logger.Warn("recording dependency flow event failed",
			logfields.Event("dependency_flow_event_recording_failed"),
			zap.String("dependency_flow_event", string(eventType)),
			zap.Error(err),
		)
	}

	return nil
}

// updatedFiles returns the files of the target branch that are changed by
// updates.
func (w *Workflow) updatedFiles(
	ctx context.Context,
	fileMgr *remote.DependencyFileManager,
	branch string,
	updates []*dependency.Update,
) ([]*dependency.GitFile, error) {
	versionDetails, err := fileMgr.ReadFile(ctx, branch, dependency.VersionDetailsPath)
	if err != nil {
		return nil, err
	}

	updated, err := dependency.ApplyUpdates(versionDetails, updates)
	if err != nil {
		return nil, err
	}

	files := []*dependency.GitFile{{FilePath: dependency.VersionDetailsPath, Content: updated}}

	arcade, found := dependency.FindArcadeUpdate(updates)
	if !found {
		return files, nil
	}

	globalJSON, err := w.globalJSONUpdate(ctx, fileMgr, branch, arcade)
	if err != nil {
		return nil, err
	}

	if globalJSON != nil {
		files = append(files, globalJSON)
	}

	return files, nil
}

// globalJSONUpdate returns the global.json of the target branch with the
// .NET SDK versions that the new arcade version requires, nil if it
// does not change.
func (w *Workflow) globalJSONUpdate(
	ctx context.Context,
	fileMgr *remote.DependencyFileManager,
	branch string,
	arcade *dependency.Update,
) (*dependency.GitFile, error) {
	current, err := fileMgr.ReadFile(ctx, branch, dependency.GlobalJSONPath)
	if err != nil {
		if errors.Is(err, gitrepo.ErrFileNotFound) {
			return nil, nil
		}

		return nil, err
	}

	arcadeClt, err := w.r.remotes.GetRemoteClient(ctx, arcade.To.RepoURI)
	if err != nil {
		return nil, err
	}

	arcadeGlobalJSON, err := arcadeClt.GetFileContents(ctx, arcade.To.RepoURI, arcade.To.Commit, dependency.GlobalJSONPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s of arcade failed: %w", dependency.GlobalJSONPath, err)
	}

	arcadeVersions, err := dependency.ParseGlobalJSON(arcadeGlobalJSON)
	if err != nil {
		return nil, err
	}

	return dependency.UpdateGlobalJSON(current, arcadeVersions)
}

// computeUpdates returns an update for every dependency in current for that
// an asset with the same name but a different version exists.
func computeUpdates(current []*dependency.Detail, assets []subscription.Asset, repoURL, commit string) []*dependency.Update {
	var result []*dependency.Update

	for _, dep := range current {
		for _, asset := range assets {
			if !strings.EqualFold(asset.Name, dep.Name) || asset.Version == dep.Version {
				continue
			}

			result = append(result, &dependency.Update{
				From: *dep,
				To: dependency.Detail{
					Name:                         dep.Name,
					Version:                      asset.Version,
					Commit:                       commit,
					RepoURI:                      repoURL,
					CoherentParentDependencyName: dep.CoherentParentDependencyName,
					Type:                         dep.Type,
				},
			})

			break
		}
	}

	return result
}

func withContainedUpdate(updates []store.ContainedUpdate, upd store.ContainedUpdate) []store.ContainedUpdate {
	for i := range updates {
		if updates[i].SubscriptionID == upd.SubscriptionID {
			updates[i] = upd
			return updates
		}
	}

	return append(updates, upd)
}

func commitMessage(sub *store.Subscription, build *store.Build, updates []*dependency.Update) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Update dependencies from %s build %s\n\n", sub.SourceRepository, build.AzureDevOpsBuildNumber)
	for _, upd := range updates {
		sb.WriteString(upd.String() + "\n")
	}

	return sb.String()
}
