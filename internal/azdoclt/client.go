// Package azdoclt provides an Azure DevOps git API client.
package azdoclt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"github.com/microsoft/azure-devops-go-api/azuredevops/v7"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/git"
	"go.uber.org/zap"

	"github.com/simplesurance/depflow/internal/flowerr"
	"github.com/simplesurance/depflow/internal/gitrepo"
	"github.com/simplesurance/depflow/internal/logfields"
	"github.com/simplesurance/depflow/internal/repourl"
	"github.com/simplesurance/depflow/internal/tokens"
)

const loggerName = "azure_devops_client"

var commitSHARe = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)

// GitClientFactory creates a git API client for an organization URL that
// sends authorization as Authorization header.
type GitClientFactory func(ctx context.Context, orgURL, authorization string) (git.Client, error)

func newGitClient(ctx context.Context, orgURL, authorization string) (git.Client, error) {
	conn := azuredevops.NewPatConnection(orgURL, "")
	conn.AuthorizationString = authorization

	return git.NewClient(ctx, conn)
}

// Client accesses the git repositories of one Azure DevOps organization.
// All methods return a flowerr.RetryableError when an operation can be retried.
type Client struct {
	orgURL       string
	newGitClient GitClientFactory
	logger       *zap.Logger

	mu            sync.Mutex
	authorization string
	gitClt        git.Client
	gitCltAuth    string
}

type Option func(*Client)

// WithGitClientFactory overwrites how the underlying git API client is
// created.
func WithGitClientFactory(f GitClientFactory) Option {
	return func(c *Client) {
		c.newGitClient = f
	}
}

// New returns a client for the organization of repoURL.
// repoURL must be a normalized dev.azure.com URL.
func New(repoURL string, opts ...Option) (*Client, error) {
	account, err := repourl.AzureDevOpsAccount(repoURL)
	if err != nil {
		return nil, err
	}

	clt := Client{
		orgURL:       "https://dev.azure.com/" + account,
		newGitClient: newGitClient,
		logger:       zap.L().Named(loggerName),
	}

	for _, opt := range opts {
		opt(&clt)
	}

	return &clt, nil
}

// SetCredential sets the credential that is used for subsequent requests.
func (c *Client) SetCredential(cred tokens.Credential) {
	var auth string

	switch cred.Kind {
	case tokens.KindAzureDevOpsPAT:
		auth = azuredevops.CreateBasicAuthHeaderValue("", cred.Token)
	case tokens.KindAzureDevOpsBearer:
		auth = "Bearer " + cred.Token
	}

	c.mu.Lock()
	c.authorization = auth
	c.mu.Unlock()
}

// client returns a git client that uses the current credential.
// The azure devops api client copies the authorization value when it is
// created, a new one is created whenever the credential changed.
func (c *Client) client(ctx context.Context) (git.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gitClt != nil && c.gitCltAuth == c.authorization {
		return c.gitClt, nil
	}

	clt, err := c.newGitClient(ctx, c.orgURL, c.authorization)
	if err != nil {
		return nil, wrapRetryableErrors(fmt.Errorf("creating azure devops git client for %s failed: %w", c.orgURL, err))
	}

	c.gitClt = clt
	c.gitCltAuth = c.authorization

	return clt, nil
}

func (c *Client) GetPullRequestDescription(ctx context.Context, prURL string) (string, error) {
	pr, err := c.pullRequest(ctx, prURL)
	if err != nil {
		return "", err
	}

	if pr.Description == nil {
		return "", nil
	}

	return *pr.Description, nil
}

func (c *Client) UpdatePullRequestDescription(ctx context.Context, prURL, description string) error {
	prID, err := repourl.ParseAzureDevOpsPullRequest(prURL)
	if err != nil {
		return err
	}

	clt, err := c.client(ctx)
	if err != nil {
		return err
	}

	_, err = clt.UpdatePullRequest(ctx, git.UpdatePullRequestArgs{
		GitPullRequestToUpdate: &git.GitPullRequest{Description: &description},
		RepositoryId:           &prID.Repository,
		PullRequestId:          &prID.ID,
		Project:                &prID.Project,
	})

	return wrapRetryableErrors(err)
}

// CreatePullRequest creates a pull request and returns its web URL.
func (c *Client) CreatePullRequest(ctx context.Context, repoURL string, newPR *gitrepo.NewPullRequest) (string, error) {
	account, project, repo, err := repourl.ParseAzureDevOps(repoURL)
	if err != nil {
		return "", err
	}

	clt, err := c.client(ctx)
	if err != nil {
		return "", err
	}

	pr, err := clt.CreatePullRequest(ctx, git.CreatePullRequestArgs{
		GitPullRequestToCreate: &git.GitPullRequest{
			Title:         &newPR.Title,
			Description:   &newPR.Description,
			SourceRefName: ptr(branchRef(newPR.HeadBranch)),
			TargetRefName: ptr(branchRef(newPR.BaseBranch)),
		},
		RepositoryId: &repo,
		Project:      &project,
	})
	if err != nil {
		return "", wrapRetryableErrors(err)
	}

	if pr.PullRequestId == nil {
		return "", errors.New("azure devops returned a pull request without id")
	}

	prURL := fmt.Sprintf("https://dev.azure.com/%s/%s/_git/%s/pullrequest/%d", account, project, repo, *pr.PullRequestId)

	c.logger.Debug("pull request created",
		logfields.Repository(repoURL),
		logfields.PullRequest(prURL),
		logfields.Event("azure_devops_pull_request_created"),
	)

	return prURL, nil
}

func (c *Client) GetPullRequestStatus(ctx context.Context, prURL string) (*gitrepo.PullRequestStatus, error) {
	pr, err := c.pullRequest(ctx, prURL)
	if err != nil {
		return nil, err
	}

	var result gitrepo.PullRequestStatus

	if pr.LastMergeSourceCommit != nil && pr.LastMergeSourceCommit.CommitId != nil {
		result.HeadCommit = *pr.LastMergeSourceCommit.CommitId
	}

	if pr.Status == nil {
		return nil, errors.New("azure devops returned a pull request without status")
	}

	switch *pr.Status {
	case git.PullRequestStatusValues.Completed:
		result.State = gitrepo.PullRequestStateMerged
		return &result, nil

	case git.PullRequestStatusValues.Abandoned:
		result.State = gitrepo.PullRequestStateClosed
		return &result, nil
	}

	result.State = gitrepo.PullRequestStateOpen
	result.MergePolicy = mergePolicyState(pr.MergeStatus)

	return &result, nil
}

func mergePolicyState(status *git.PullRequestAsyncStatus) gitrepo.MergePolicyState {
	if status == nil {
		return gitrepo.MergePolicyStateNone
	}

	switch *status {
	case git.PullRequestAsyncStatusValues.Succeeded:
		return gitrepo.MergePolicyStateSucceeded
	case git.PullRequestAsyncStatusValues.Queued:
		return gitrepo.MergePolicyStatePending
	case git.PullRequestAsyncStatusValues.Conflicts,
		git.PullRequestAsyncStatusValues.Failure,
		git.PullRequestAsyncStatusValues.RejectedByPolicy:
		return gitrepo.MergePolicyStateFailed
	default:
		return gitrepo.MergePolicyStateNone
	}
}

// GetFileContents returns the content of path at ref.
// ref is a commit SHA or a branch name.
func (c *Client) GetFileContents(ctx context.Context, repoURL, ref, path string) (string, error) {
	_, project, repo, err := repourl.ParseAzureDevOps(repoURL)
	if err != nil {
		return "", err
	}

	clt, err := c.client(ctx)
	if err != nil {
		return "", err
	}

	rd, err := clt.GetItemContent(ctx, git.GetItemContentArgs{
		RepositoryId:      &repo,
		Project:           &project,
		Path:              &path,
		VersionDescriptor: versionDescriptor(ref),
	})
	if err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("%s@%s: %w", path, ref, gitrepo.ErrFileNotFound)
		}

		return "", wrapRetryableErrors(err)
	}
	defer rd.Close()

	content, err := io.ReadAll(rd)
	if err != nil {
		return "", flowerr.NewRetryableAnytimeError(fmt.Errorf("reading content of %s failed: %w", path, err))
	}

	return string(content), nil
}

func (c *Client) CompareCommits(ctx context.Context, repoURL, base, head string) (*gitrepo.CommitComparison, error) {
	_, project, repo, err := repourl.ParseAzureDevOps(repoURL)
	if err != nil {
		return nil, err
	}

	clt, err := c.client(ctx)
	if err != nil {
		return nil, err
	}

	diff, err := clt.GetCommitDiffs(ctx, git.GetCommitDiffsArgs{
		RepositoryId: &repo,
		Project:      &project,
		Top:          ptr(1),
		BaseVersionDescriptor: &git.GitBaseVersionDescriptor{
			BaseVersion:     &base,
			BaseVersionType: &git.GitVersionTypeValues.Commit,
		},
		TargetVersionDescriptor: &git.GitTargetVersionDescriptor{
			TargetVersion:     &head,
			TargetVersionType: &git.GitVersionTypeValues.Commit,
		},
	})
	if err != nil {
		return nil, wrapRetryableErrors(err)
	}

	result := gitrepo.CommitComparison{
		HeadCommit: head,
		URL:        fmt.Sprintf("%s/branches?baseVersion=GC%s&targetVersion=GC%s&_a=files", repoURL, base, head),
	}

	if diff.CommonCommit != nil {
		result.BaseCommit = *diff.CommonCommit
	}
	if diff.AheadCount != nil {
		result.AheadBy = *diff.AheadCount
	}
	if diff.BehindCount != nil {
		result.BehindBy = *diff.BehindCount
	}

	return &result, nil
}

func (c *Client) pullRequest(ctx context.Context, prURL string) (*git.GitPullRequest, error) {
	prID, err := repourl.ParseAzureDevOpsPullRequest(prURL)
	if err != nil {
		return nil, err
	}

	clt, err := c.client(ctx)
	if err != nil {
		return nil, err
	}

	pr, err := clt.GetPullRequestById(ctx, git.GetPullRequestByIdArgs{
		PullRequestId: &prID.ID,
		Project:       &prID.Project,
	})
	if err != nil {
		return nil, wrapRetryableErrors(err)
	}

	return pr, nil
}

func versionDescriptor(ref string) *git.GitVersionDescriptor {
	if commitSHARe.MatchString(ref) {
		return &git.GitVersionDescriptor{
			Version:     &ref,
			VersionType: &git.GitVersionTypeValues.Commit,
		}
	}

	return &git.GitVersionDescriptor{
		Version:     ptr(strings.TrimPrefix(ref, "refs/heads/")),
		VersionType: &git.GitVersionTypeValues.Branch,
	}
}

func branchRef(branch string) string {
	if strings.HasPrefix(branch, "refs/") {
		return branch
	}

	return "refs/heads/" + branch
}

func statusCode(err error) int {
	var wrappedErr azuredevops.WrappedError
	if errors.As(err, &wrappedErr) && wrappedErr.StatusCode != nil {
		return *wrappedErr.StatusCode
	}

	var wrappedErrPtr *azuredevops.WrappedError
	if errors.As(err, &wrappedErrPtr) && wrappedErrPtr.StatusCode != nil {
		return *wrappedErrPtr.StatusCode
	}

	return 0
}

func isNotFound(err error) bool {
	return statusCode(err) == http.StatusNotFound
}

func wrapRetryableErrors(err error) error {
	if err == nil {
		return nil
	}

	code := statusCode(err)
	if code == http.StatusTooManyRequests || (code >= 500 && code < 600) {
		return flowerr.NewRetryableAnytimeError(err)
	}

	return err
}

func ptr[T any](v T) *T {
	return &v
}
