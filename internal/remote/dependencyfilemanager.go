package remote

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/simplesurance/depflow/internal/dependency"
	"github.com/simplesurance/depflow/internal/logfields"
	"github.com/simplesurance/depflow/internal/repourl"
)

// DependencyFileManager reads the dependency files of a repository.
type DependencyFileManager struct {
	clt     RepoClient
	repoURL string
	logger  *zap.Logger
}

// NewDependencyFileManager returns a DependencyFileManager that reads the
// files of repoURL with clt.
func NewDependencyFileManager(clt RepoClient, repoURL string) *DependencyFileManager {
	return &DependencyFileManager{
		clt:     clt,
		repoURL: repourl.Normalize(repoURL),
		logger:  zap.L().Named(loggerName).Named("dependency_file_manager"),
	}
}

// ReadVersionDetails returns the dependencies that are declared in the
// version details file of branch.
func (m *DependencyFileManager) ReadVersionDetails(ctx context.Context, branch string) ([]*dependency.Detail, error) {
	content, err := m.clt.GetFileContents(ctx, m.repoURL, branch, dependency.VersionDetailsPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s of %s@%s failed: %w", dependency.VersionDetailsPath, m.repoURL, branch, err)
	}

	deps, err := dependency.ParseVersionDetails(content)
	if err != nil {
		return nil, fmt.Errorf("parsing %s of %s@%s failed: %w", dependency.VersionDetailsPath, m.repoURL, branch, err)
	}

	m.logger.Debug("read version details",
		logfields.Repository(m.repoURL),
		logfields.TargetBranch(branch),
		zap.Int("dependency_count", len(deps)),
	)

	return deps, nil
}

// ReadFile returns the content of path at branch.
func (m *DependencyFileManager) ReadFile(ctx context.Context, branch, path string) (string, error) {
	return m.clt.GetFileContents(ctx, m.repoURL, branch, path)
}
