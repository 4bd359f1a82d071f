// Package pullrequest maintains the pull requests that deliver dependency
// updates to target repositories.
//
// Every routing key has one pull request workflow. Non-batchable
// subscriptions have their own workflow, batchable subscriptions that target
// the same branch share one, their updates are combined into one pull
// request with one description section per subscription.
package pullrequest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/simplesurance/depflow/internal/remote"
	"github.com/simplesurance/depflow/internal/store"
	"github.com/simplesurance/depflow/internal/subscription"
)

const loggerName = "pullrequest"

// RemoteFactory returns authenticated clients for repositories.
type RemoteFactory interface {
	GetRemoteClient(ctx context.Context, repoURL string) (remote.RepoClient, error)
	GetDependencyFileManager(ctx context.Context, repoURL string) (*remote.DependencyFileManager, error)
}

// Store persists subscriptions, builds and in-progress pull requests.
type Store interface {
	Subscription(ctx context.Context, id uuid.UUID) (*store.Subscription, error)
	BuildWithAssets(ctx context.Context, id int) (*store.Build, error)
	InProgressPullRequest(ctx context.Context, routingKey string) (*store.InProgressPullRequest, error)
	InProgressPullRequests(ctx context.Context) ([]*store.InProgressPullRequest, error)
	SaveInProgressPullRequest(ctx context.Context, pr *store.InProgressPullRequest) error
	DeleteInProgressPullRequest(ctx context.Context, routingKey string) error
}

// Subscriptions runs operations of subscriptions.
type Subscriptions interface {
	UpdateForMergedPullRequest(ctx context.Context, id uuid.UUID, buildID int) (bool, error)
	AddDependencyFlowEvent(
		ctx context.Context,
		id uuid.UUID,
		buildID int,
		eventType subscription.EventType,
		reason subscription.EventReason,
		policy subscription.MergePolicyCheckResult,
		flowType string,
		url string,
	) (bool, error)
}

// Registry provides the pull request workflows of all routing keys.
// Operations of one workflow are run one at a time by the executor.
type Registry struct {
	executor  subscription.Executor
	store     Store
	remotes   RemoteFactory
	committer Committer
	subs      Subscriptions
	logger    *zap.Logger

	now           func() time.Time
	newHeadBranch func(targetBranch string) string

	mu        sync.Mutex
	workflows map[string]*Workflow
}

func NewRegistry(
	executor subscription.Executor,
	s Store,
	remotes RemoteFactory,
	committer Committer,
	subs Subscriptions,
) *Registry {
	return &Registry{
		executor:  executor,
		store:     s,
		remotes:   remotes,
		committer: committer,
		subs:      subs,
		logger:    zap.L().Named(loggerName),
		now:       time.Now,
		newHeadBranch: func(targetBranch string) string {
			return fmt.Sprintf("depflow-%s-%s", targetBranch, uuid.NewString())
		},
		workflows: map[string]*Workflow{},
	}
}

func executorKey(routingKey string) string {
	return "pullrequest:" + routingKey
}

// Lookup returns the workflow of routingKey.
func (r *Registry) Lookup(routingKey string) subscription.PullRequestWorkflow {
	return r.workflow(routingKey)
}

func (r *Registry) workflow(routingKey string) *Workflow {
	r.mu.Lock()
	defer r.mu.Unlock()

	if wf, exists := r.workflows[routingKey]; exists {
		return wf
	}

	wf := newWorkflow(routingKey, r)
	r.workflows[routingKey] = wf

	return wf
}
