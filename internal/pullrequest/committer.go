package pullrequest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/simplesurance/depflow/internal/dependency"
	"github.com/simplesurance/depflow/internal/logfields"
)

// Committer commits files to a branch of a remote repository.
// The branch is created if it does not exist.
type Committer interface {
	Commit(ctx context.Context, repoURL, branch, message string, files []*dependency.GitFile) error
}

// DryCommitter is a Committer that does not push changes to the remote
// repository.
// The files are written into the working directory of the repository
// instead, one subdirectory per branch.
type DryCommitter struct {
	workingDirectory func(repoURL string) string
	logger           *zap.Logger
}

// NewDryCommitter returns a DryCommitter. workingDirectory returns the
// directory in that the files of a repository are written.
func NewDryCommitter(workingDirectory func(repoURL string) string) *DryCommitter {
	return &DryCommitter{
		workingDirectory: workingDirectory,
		logger:           zap.L().Named(loggerName).Named("dry_committer"),
	}
}

func (c *DryCommitter) Commit(_ context.Context, repoURL, branch, message string, files []*dependency.GitFile) error {
	dir := filepath.Join(c.workingDirectory(repoURL), strings.ReplaceAll(branch, "/", "_"))

	for _, f := range files {
		if !filepath.IsLocal(f.FilePath) {
			return fmt.Errorf("file path %q is not relative to the repository root", f.FilePath)
		}

		path := filepath.Join(dir, filepath.FromSlash(f.FilePath))

		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}

		if err := os.WriteFile(path, []byte(f.Content), 0o644); err != nil {
			return err
		}
	}

	c.logger.Info("simulated commit, changes were written to the working directory",
		logfields.Event("dry_commit"),
		logfields.Repository(repoURL),
		zap.String("branch", branch),
		zap.String("commit_message", message),
		zap.String("directory", dir),
		zap.Int("file_count", len(files)),
	)

	return nil
}
