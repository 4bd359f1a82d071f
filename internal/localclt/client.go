// Package localclt provides read access to repositories on the local
// filesystem.
package localclt

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/simplesurance/depflow/internal/gitrepo"
	"github.com/simplesurance/depflow/internal/logfields"
	"github.com/simplesurance/depflow/internal/tokens"
)

const loggerName = "local_client"

// Client reads files from the working tree of local repositories.
// Pull request operations are not supported.
type Client struct {
	logger *zap.Logger
}

func New() *Client {
	return &Client{logger: zap.L().Named(loggerName)}
}

// SetCredential does nothing, local repositories require no
// authentication.
func (*Client) SetCredential(tokens.Credential) {}

// GetFileContents returns the content of path in the working tree of the
// repository. ref is ignored.
func (c *Client) GetFileContents(_ context.Context, repoURL, ref, path string) (string, error) {
	dir, err := repositoryPath(repoURL)
	if err != nil {
		return "", err
	}

	if !filepath.IsLocal(filepath.FromSlash(path)) {
		return "", fmt.Errorf("path %q is outside of the repository", path)
	}

	if ref != "" {
		c.logger.Debug("reading file from working tree, ignoring ref",
			logfields.Repository(repoURL),
			zap.String("ref", ref),
		)
	}

	content, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(path)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%s: %w", path, gitrepo.ErrFileNotFound)
		}

		return "", err
	}

	return string(content), nil
}

func (*Client) GetPullRequestDescription(context.Context, string) (string, error) {
	return "", gitrepo.ErrNotSupported
}

func (*Client) UpdatePullRequestDescription(context.Context, string, string) error {
	return gitrepo.ErrNotSupported
}

func (*Client) CreatePullRequest(context.Context, string, *gitrepo.NewPullRequest) (string, error) {
	return "", gitrepo.ErrNotSupported
}

func (*Client) GetPullRequestStatus(context.Context, string) (*gitrepo.PullRequestStatus, error) {
	return nil, gitrepo.ErrNotSupported
}

func (*Client) CompareCommits(context.Context, string, string, string) (*gitrepo.CommitComparison, error) {
	return nil, gitrepo.ErrNotSupported
}

func repositoryPath(repoURL string) (string, error) {
	if !strings.HasPrefix(repoURL, "file://") {
		return repoURL, nil
	}

	u, err := url.Parse(repoURL)
	if err != nil {
		return "", fmt.Errorf("parsing repository url %q failed: %w", repoURL, err)
	}

	return filepath.FromSlash(u.Path), nil
}
