package pullrequest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/simplesurance/depflow/internal/gitrepo"
	"github.com/simplesurance/depflow/internal/logfields"
	"github.com/simplesurance/depflow/internal/remote"
)

const dryRunPullRequestMarker = "/pull/dry-run-"

// DryRemoteFactory is a RemoteFactory whose clients do not change pull
// requests.
// Creating pull requests and updating descriptions is simulated and always
// succeeds, descriptions are kept in memory. All read operations are
// forwarded to the clients of the wrapped factory.
type DryRemoteFactory struct {
	factory RemoteFactory
	logger  *zap.Logger

	mu           sync.Mutex
	descriptions map[string]string
	created      int
}

func NewDryRemoteFactory(factory RemoteFactory) *DryRemoteFactory {
	return &DryRemoteFactory{
		factory:      factory,
		logger:       zap.L().Named(loggerName).Named("dry_remote"),
		descriptions: map[string]string{},
	}
}

func (f *DryRemoteFactory) GetRemoteClient(ctx context.Context, repoURL string) (remote.RepoClient, error) {
	clt, err := f.factory.GetRemoteClient(ctx, repoURL)
	if err != nil {
		return nil, err
	}

	return &dryClient{RepoClient: clt, f: f}, nil
}

func (f *DryRemoteFactory) GetDependencyFileManager(ctx context.Context, repoURL string) (*remote.DependencyFileManager, error) {
	return f.factory.GetDependencyFileManager(ctx, repoURL)
}

type dryClient struct {
	remote.RepoClient
	f *DryRemoteFactory
}

func (c *dryClient) CreatePullRequest(_ context.Context, repoURL string, pr *gitrepo.NewPullRequest) (string, error) {
	c.f.mu.Lock()
	defer c.f.mu.Unlock()

	c.f.created++
	url := fmt.Sprintf("%s%s%d", strings.TrimSuffix(repoURL, "/"), dryRunPullRequestMarker, c.f.created)
	c.f.descriptions[url] = pr.Description

	c.f.logger.Info("simulated creating pull request",
		logfields.Event("dry_pull_request_created"),
		logfields.PullRequest(url),
		zap.String("title", pr.Title),
		zap.String("head_branch", pr.HeadBranch),
		zap.String("base_branch", pr.BaseBranch),
	)

	return url, nil
}

func (c *dryClient) UpdatePullRequestDescription(_ context.Context, prURL, description string) error {
	c.f.mu.Lock()
	defer c.f.mu.Unlock()

	c.f.descriptions[prURL] = description

	c.f.logger.Info("simulated updating pull request description",
		logfields.Event("dry_pull_request_updated"),
		logfields.PullRequest(prURL),
	)

	return nil
}

func (c *dryClient) GetPullRequestDescription(ctx context.Context, prURL string) (string, error) {
	c.f.mu.Lock()
	desc, exists := c.f.descriptions[prURL]
	c.f.mu.Unlock()

	if exists {
		return desc, nil
	}

	if strings.Contains(prURL, dryRunPullRequestMarker) {
		// simulated before the process was restarted
		return "", nil
	}

	return c.RepoClient.GetPullRequestDescription(ctx, prURL)
}

// GetPullRequestStatus reports simulated pull requests as open.
func (c *dryClient) GetPullRequestStatus(ctx context.Context, prURL string) (*gitrepo.PullRequestStatus, error) {
	if strings.Contains(prURL, dryRunPullRequestMarker) {
		return &gitrepo.PullRequestStatus{State: gitrepo.PullRequestStateOpen}, nil
	}

	return c.RepoClient.GetPullRequestStatus(ctx, prURL)
}
