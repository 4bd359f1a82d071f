// Package remote creates authenticated clients for remote git repositories.
package remote

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gregjones/httpcache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/simplesurance/depflow/internal/azdoclt"
	"github.com/simplesurance/depflow/internal/flowerr"
	"github.com/simplesurance/depflow/internal/githubclt"
	"github.com/simplesurance/depflow/internal/gitrepo"
	"github.com/simplesurance/depflow/internal/localclt"
	"github.com/simplesurance/depflow/internal/logfields"
	"github.com/simplesurance/depflow/internal/repourl"
	"github.com/simplesurance/depflow/internal/tokens"
)

const loggerName = "remote"

// DefaultTemporaryRepositorySubdir is the directory below os.TempDir() that
// is used as temporary repository root when none is configured.
var DefaultTemporaryRepositorySubdir = filepath.Join("depflow", "repos")

// RepoClient is a client for one git hosting provider.
type RepoClient interface {
	GetPullRequestDescription(ctx context.Context, prURL string) (string, error)
	UpdatePullRequestDescription(ctx context.Context, prURL, description string) error
	CreatePullRequest(ctx context.Context, repoURL string, pr *gitrepo.NewPullRequest) (string, error)
	GetPullRequestStatus(ctx context.Context, prURL string) (*gitrepo.PullRequestStatus, error)
	GetFileContents(ctx context.Context, repoURL, ref, path string) (string, error)
	CompareCommits(ctx context.Context, repoURL, base, head string) (*gitrepo.CommitComparison, error)
	SetCredential(tokens.Credential)
}

// TokenResolver resolves the credential of a repository.
type TokenResolver interface {
	ResolveToken(ctx context.Context, repoURL string, installationID int64) (tokens.Credential, error)
}

// InstallationLookup returns the GitHub App installation id of a
// repository, 0 if the app is not installed.
type InstallationLookup interface {
	InstallationID(ctx context.Context, repoURL string) (int64, error)
}

type Config struct {
	// TemporaryRepositoryRoot is the directory in that repository
	// working directories are created. If empty a directory below
	// os.TempDir() is used.
	TemporaryRepositoryRoot string
	// GitHubAPIURL and GitHubGraphQLURL are only set for GitHub
	// Enterprise servers.
	GitHubAPIURL     string
	GitHubGraphQLURL string
}

type clientConstructors struct {
	github      func() (RepoClient, error)
	azureDevOps func(repoURL string) (RepoClient, error)
	local       func() RepoClient
}

// Factory returns clients for repository URLs.
// Clients are cached for the lifetime of the Factory per provider and
// normalized URL. Concurrent first requests for the same repository
// construct only one client.
type Factory struct {
	cfg           Config
	tokens        TokenResolver
	installations InstallationLookup
	logger        *zap.Logger

	newClient clientConstructors

	clients      sync.Map
	constructing singleflight.Group
}

func NewFactory(cfg Config, tokenResolver TokenResolver, installations InstallationLookup) *Factory {
	f := Factory{
		cfg:           cfg,
		tokens:        tokenResolver,
		installations: installations,
		logger:        zap.L().Named(loggerName),
	}

	responseCache := httpcache.NewMemoryCache()

	f.newClient = clientConstructors{
		github: func() (RepoClient, error) {
			opts := []githubclt.Option{githubclt.WithResponseCache(responseCache)}
			if cfg.GitHubAPIURL != "" {
				opts = append(opts, githubclt.WithEndpoints(cfg.GitHubAPIURL, cfg.GitHubGraphQLURL))
			}

			return githubclt.New(opts...)
		},
		azureDevOps: func(repoURL string) (RepoClient, error) {
			return azdoclt.New(repoURL)
		},
		local: func() RepoClient {
			return localclt.New()
		},
	}

	return &f
}

// TemporaryRepositoryRoot returns the configured temporary repository
// root or the default directory below os.TempDir().
func (f *Factory) TemporaryRepositoryRoot() string {
	if f.cfg.TemporaryRepositoryRoot != "" {
		return f.cfg.TemporaryRepositoryRoot
	}

	return filepath.Join(os.TempDir(), DefaultTemporaryRepositorySubdir)
}

// GetRemoteClient returns a client for repoURL that is authenticated with a
// freshly resolved credential.
//
// repoURL is normalized before it is used as cache key or for the token
// lookup. For GitHub repositories without an app installation a
// flowerr.NoInstallationError is returned without requesting a token.
func (f *Factory) GetRemoteClient(ctx context.Context, repoURL string) (RepoClient, error) {
	normalizedURL := repourl.Normalize(repoURL)
	tempRoot := f.TemporaryRepositoryRoot()
	repoType := repourl.ParseType(normalizedURL)

	logger := f.logger.With(
		logfields.Repository(normalizedURL),
		logfields.RepositoryType(repoType.String()),
	)

	if repoType == repourl.Unknown {
		return nil, &flowerr.UnsupportedRepositoryTypeError{RepositoryURL: repoURL}
	}

	var installationID int64
	if repoType == repourl.GitHub {
		var err error

		installationID, err = f.installations.InstallationID(ctx, normalizedURL)
		if err != nil {
			return nil, fmt.Errorf("looking up github app installation failed: %w", err)
		}

		if installationID == 0 {
			return nil, &flowerr.NoInstallationError{RepositoryURL: normalizedURL}
		}
	}

	cred, err := f.tokens.ResolveToken(ctx, normalizedURL, installationID)
	if err != nil {
		return nil, fmt.Errorf("resolving token for %s failed: %w", normalizedURL, err)
	}

	clt, err := f.cachedClient(repoType, normalizedURL)
	if err != nil {
		return nil, err
	}

	clt.SetCredential(cred)

	logger.Debug("remote client ready",
		logfields.Event("remote_client_ready"),
		zap.String("credential_kind", cred.Kind.String()),
		zap.String("temporary_repository_root", tempRoot),
	)

	return clt, nil
}

func (f *Factory) cachedClient(repoType repourl.Type, normalizedURL string) (RepoClient, error) {
	key := repoType.String() + "|" + normalizedURL

	if clt, exists := f.clients.Load(key); exists {
		return clt.(RepoClient), nil
	}

	clt, err, _ := f.constructing.Do(key, func() (any, error) {
		if clt, exists := f.clients.Load(key); exists {
			return clt, nil
		}

		clt, err := f.construct(repoType, normalizedURL)
		if err != nil {
			return nil, err
		}

		f.clients.Store(key, clt)

		f.logger.Debug("remote client created",
			logfields.Repository(normalizedURL),
			logfields.RepositoryType(repoType.String()),
			logfields.Event("remote_client_created"),
		)

		return clt, nil
	})
	if err != nil {
		return nil, fmt.Errorf("creating %s client for %s failed: %w", repoType, normalizedURL, err)
	}

	return clt.(RepoClient), nil
}

func (f *Factory) construct(repoType repourl.Type, normalizedURL string) (RepoClient, error) {
	switch repoType {
	case repourl.GitHub:
		return f.newClient.github()
	case repourl.AzureDevOps:
		return f.newClient.azureDevOps(normalizedURL)
	case repourl.Local:
		return f.newClient.local(), nil
	default:
		return nil, &flowerr.UnsupportedRepositoryTypeError{RepositoryURL: normalizedURL}
	}
}

// GetDependencyFileManager returns a DependencyFileManager for repoURL.
func (f *Factory) GetDependencyFileManager(ctx context.Context, repoURL string) (*DependencyFileManager, error) {
	clt, err := f.GetRemoteClient(ctx, repoURL)
	if err != nil {
		return nil, err
	}

	return NewDependencyFileManager(clt, repoURL), nil
}

// WorkingDirectory returns the directory below the temporary repository
// root that is used for repoURL.
func (f *Factory) WorkingDirectory(repoURL string) string {
	name := repourl.Normalize(repoURL)
	for _, prefix := range []string{"https://", "http://", "file://"} {
		name = strings.TrimPrefix(name, prefix)
	}

	name = strings.Trim(strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(name), "_")

	return filepath.Join(f.TemporaryRepositoryRoot(), name)
}
