// Package gitrepo contains the provider independent values that are
// exchanged with remote repository clients.
package gitrepo

import (
	"errors"
	"time"
)

var (
	// ErrFileNotFound is returned when a file does not exist at the
	// requested revision.
	ErrFileNotFound = errors.New("file not found")
	// ErrNotSupported is returned by clients for operations their
	// provider does not support.
	ErrNotSupported = errors.New("operation not supported by repository provider")
)

// PullRequestState is the lifecycle state of a pull request.
type PullRequestState int

const (
	PullRequestStateOpen PullRequestState = iota
	PullRequestStateMerged
	PullRequestStateClosed
)

func (s PullRequestState) String() string {
	switch s {
	case PullRequestStateOpen:
		return "open"
	case PullRequestStateMerged:
		return "merged"
	case PullRequestStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MergePolicyState summarizes the checks that guard merging a pull request.
type MergePolicyState int

const (
	MergePolicyStateNone MergePolicyState = iota
	MergePolicyStatePending
	MergePolicyStateFailed
	MergePolicyStateSucceeded
)

// PullRequestStatus is the current state of a pull request.
type PullRequestStatus struct {
	State       PullRequestState
	HeadCommit  string
	MergePolicy MergePolicyState
	UpdatedAt   time.Time
}

// NewPullRequest describes a pull request that is created.
type NewPullRequest struct {
	Title       string
	Description string
	HeadBranch  string
	BaseBranch  string
}

// CommitComparison is the result of comparing two revisions.
type CommitComparison struct {
	BaseCommit string
	HeadCommit string
	AheadBy    int
	BehindBy   int
	URL        string
}
