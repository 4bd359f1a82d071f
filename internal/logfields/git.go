package logfields

import "go.uber.org/zap"

func PullRequest(val string) zap.Field {
	return zap.String("git.pull_request", val)
}

func Repository(val string) zap.Field {
	return zap.String("git.repository", val)
}

func RepositoryType(val string) zap.Field {
	return zap.String("git.repository_type", val)
}

func TargetBranch(val string) zap.Field {
	return zap.String("git.target_branch", val)
}

func Commit(val string) zap.Field {
	return zap.String("git.commit", val)
}

func InstallationID(val int64) zap.Field {
	return zap.Int64("github.installation_id", val)
}
