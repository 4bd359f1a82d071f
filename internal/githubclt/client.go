// Package githubclt provides a github API client.
package githubclt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/gregjones/httpcache"
	"github.com/shurcooL/githubv4"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/simplesurance/depflow/internal/flowerr"
	"github.com/simplesurance/depflow/internal/gitrepo"
	"github.com/simplesurance/depflow/internal/logfields"
	"github.com/simplesurance/depflow/internal/repourl"
	"github.com/simplesurance/depflow/internal/tokens"
)

const DefaultHTTPClientTimeout = time.Minute

const loggerName = "github_client"

// tokenSource returns the token that was set last via set.
type tokenSource struct {
	token atomic.Pointer[oauth2.Token]
}

func (s *tokenSource) Token() (*oauth2.Token, error) {
	tok := s.token.Load()
	if tok == nil {
		return nil, errors.New("no github token set")
	}

	return tok, nil
}

func (s *tokenSource) set(cred tokens.Credential) {
	s.token.Store(&oauth2.Token{AccessToken: cred.Token, Expiry: cred.ExpiresAt})
}

type options struct {
	restURL    string
	graphQLURL string
	cache      httpcache.Cache
	transport  http.RoundTripper
}

type Option func(*options)

// WithEndpoints configures the URLs of the REST and GraphQL APIs,
// for GitHub Enterprise servers.
func WithEndpoints(restURL, graphQLURL string) Option {
	return func(o *options) {
		o.restURL = restURL
		o.graphQLURL = graphQLURL
	}
}

// WithResponseCache configures a cache for HTTP responses.
// The cache can be shared between clients, cached responses are revalidated
// with conditional requests.
func WithResponseCache(cache httpcache.Cache) Option {
	return func(o *options) {
		o.cache = cache
	}
}

// WithTransport sets the transport that sends the HTTP requests.
func WithTransport(tr http.RoundTripper) Option {
	return func(o *options) {
		o.transport = tr
	}
}

// New returns a new github api client.
// The client is unauthenticated until SetCredential is called.
func New(opts ...Option) (*Client, error) {
	o := options{transport: http.DefaultTransport}
	for _, opt := range opts {
		opt(&o)
	}

	clt := Client{
		tokenSrc: &tokenSource{},
		logger:   zap.L().Named(loggerName),
	}

	var transport http.RoundTripper = &oauth2.Transport{
		Source: clt.tokenSrc,
		Base:   o.transport,
	}

	if o.cache != nil {
		transport = &httpcache.Transport{
			Transport:           transport,
			Cache:               o.cache,
			MarkCachedResponses: true,
		}
	}

	httpClient := &http.Client{
		Transport: transport,
		Timeout:   DefaultHTTPClientTimeout,
	}

	clt.restClt = github.NewClient(httpClient)
	clt.graphQLClt = githubv4.NewClient(httpClient)

	if o.restURL != "" {
		var err error

		clt.restClt, err = clt.restClt.WithEnterpriseURLs(o.restURL, o.restURL)
		if err != nil {
			return nil, fmt.Errorf("configuring github api url failed: %w", err)
		}
	}

	if o.graphQLURL != "" {
		clt.graphQLClt = githubv4.NewEnterpriseClient(o.graphQLURL, httpClient)
	}

	return &clt, nil
}

// Client is an github API client.
// All methods return a flowerr.RetryableError when an operation can be retried.
// This can be e.g. the case when the API ratelimit is exceeded.
type Client struct {
	restClt    *github.Client
	graphQLClt *githubv4.Client
	tokenSrc   *tokenSource
	logger     *zap.Logger
}

// SetCredential sets the installation token that is used for subsequent
// requests.
func (clt *Client) SetCredential(cred tokens.Credential) {
	clt.tokenSrc.set(cred)
}

// GetPullRequestDescription returns the body of a pull request.
func (clt *Client) GetPullRequestDescription(ctx context.Context, prURL string) (string, error) {
	pr, err := repourl.ParseGitHubPullRequest(prURL)
	if err != nil {
		return "", err
	}

	ghPR, _, err := clt.restClt.PullRequests.Get(ctx, pr.Owner, pr.Repository, pr.Number)
	if err != nil {
		return "", clt.wrapRetryableErrors(err)
	}

	return ghPR.GetBody(), nil
}

// UpdatePullRequestDescription replaces the body of a pull request.
func (clt *Client) UpdatePullRequestDescription(ctx context.Context, prURL, description string) error {
	pr, err := repourl.ParseGitHubPullRequest(prURL)
	if err != nil {
		return err
	}

	_, _, err = clt.restClt.PullRequests.Edit(ctx, pr.Owner, pr.Repository, pr.Number, &github.PullRequest{
		Body: &description,
	})

	return clt.wrapRetryableErrors(err)
}

// CreatePullRequest creates a pull request and returns its URL.
func (clt *Client) CreatePullRequest(ctx context.Context, repoURL string, newPR *gitrepo.NewPullRequest) (string, error) {
	owner, repo, err := repourl.ParseGitHub(repoURL)
	if err != nil {
		return "", err
	}

	pr, _, err := clt.restClt.PullRequests.Create(ctx, owner, repo, &github.NewPullRequest{
		Title: &newPR.Title,
		Body:  &newPR.Description,
		Head:  &newPR.HeadBranch,
		Base:  &newPR.BaseBranch,
	})
	if err != nil {
		return "", clt.wrapRetryableErrors(err)
	}

	clt.logger.Debug("pull request created",
		logfields.Repository(repoURL),
		logfields.PullRequest(pr.GetHTMLURL()),
		logfields.Event("github_pull_request_created"),
	)

	return pr.GetHTMLURL(), nil
}

// GetPullRequestStatus returns the state of a pull request.
// For open pull requests the merge policy state is derived from the CI
// status of the head commit.
func (clt *Client) GetPullRequestStatus(ctx context.Context, prURL string) (*gitrepo.PullRequestStatus, error) {
	pr, err := repourl.ParseGitHubPullRequest(prURL)
	if err != nil {
		return nil, err
	}

	ghPR, _, err := clt.restClt.PullRequests.Get(ctx, pr.Owner, pr.Repository, pr.Number)
	if err != nil {
		return nil, clt.wrapRetryableErrors(err)
	}

	result := gitrepo.PullRequestStatus{
		HeadCommit: ghPR.GetHead().GetSHA(),
		UpdatedAt:  ghPR.GetUpdatedAt().Time,
	}

	if ghPR.GetState() == "closed" {
		if ghPR.GetMerged() {
			result.State = gitrepo.PullRequestStateMerged
		} else {
			result.State = gitrepo.PullRequestStateClosed
		}

		return &result, nil
	}

	result.State = gitrepo.PullRequestStateOpen

	checks, err := clt.MergeChecks(ctx, pr.Owner, pr.Repository, pr.Number)
	if err != nil {
		return nil, fmt.Errorf("retrieving merge checks failed: %w", err)
	}

	result.MergePolicy = checks.PolicyState()

	return &result, nil
}

// GetFileContents returns the content of a file at ref.
// If the file does not exist gitrepo.ErrFileNotFound is returned.
func (clt *Client) GetFileContents(ctx context.Context, repoURL, ref, path string) (string, error) {
	owner, repo, err := repourl.ParseGitHub(repoURL)
	if err != nil {
		return "", err
	}

	file, _, resp, err := clt.restClt.Repositories.GetContents(ctx, owner, repo, path, &github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return "", fmt.Errorf("%s@%s: %w", path, ref, gitrepo.ErrFileNotFound)
		}

		return "", clt.wrapRetryableErrors(err)
	}

	if file == nil {
		return "", fmt.Errorf("%s@%s is a directory", path, ref)
	}

	return file.GetContent()
}

// CompareCommits compares head with base.
func (clt *Client) CompareCommits(ctx context.Context, repoURL, base, head string) (*gitrepo.CommitComparison, error) {
	owner, repo, err := repourl.ParseGitHub(repoURL)
	if err != nil {
		return nil, err
	}

	cmp, _, err := clt.restClt.Repositories.CompareCommits(ctx, owner, repo, base, head, &github.ListOptions{PerPage: 1})
	if err != nil {
		return nil, clt.wrapRetryableErrors(err)
	}

	if cmp.AheadBy == nil || cmp.BehindBy == nil {
		return nil, flowerr.NewRetryableAnytimeError(errors.New("github returned a nil AheadBy or BehindBy field"))
	}

	return &gitrepo.CommitComparison{
		BaseCommit: cmp.GetMergeBaseCommit().GetSHA(),
		HeadCommit: head,
		AheadBy:    cmp.GetAheadBy(),
		BehindBy:   cmp.GetBehindBy(),
		URL:        cmp.GetHTMLURL(),
	}, nil
}

func (clt *Client) wrapRetryableErrors(err error) error {
	switch v := err.(type) {
	case *github.RateLimitError:
		clt.logger.Info(
			"rate limit exceeded",
			logfields.Event("github_api_rate_limit_exceeded"),
			zap.Int("github_api_rate_limit", v.Rate.Limit),
			zap.Time("github_api_rate_limit_reset_time", v.Rate.Reset.Time),
		)

		return flowerr.NewRetryableError(err, v.Rate.Reset.Time)

	case *github.ErrorResponse:
		if v.Response.StatusCode >= 500 && v.Response.StatusCode < 600 {
			return flowerr.NewRetryableAnytimeError(err)
		}
	}

	return err
}

var graphQlHTTPStatusErrRe = regexp.MustCompile(`^non-200 OK status code: ([0-9]+) .*`)

func (clt *Client) wrapGraphQLRetryableErrors(err error) error {
	matches := graphQlHTTPStatusErrRe.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return err
	}

	errcode, atoiErr := strconv.Atoi(matches[1])
	if atoiErr != nil {
		clt.logger.Info(
			"parsing http code from error string failed",
			zap.Error(atoiErr),
			zap.String("error_string", err.Error()),
			zap.String("http_errcode", matches[1]),
		)
		return err
	}

	if errcode >= 500 && errcode < 600 {
		return flowerr.NewRetryableAnytimeError(err)
	}

	return err
}
