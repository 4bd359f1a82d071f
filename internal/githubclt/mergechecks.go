package githubclt

import (
	"context"
	"errors"
	"fmt"

	"github.com/shurcooL/githubv4"

	"github.com/simplesurance/depflow/internal/gitrepo"
)

// CheckState is the state of a check run or a commit status.
type CheckState int

const (
	CheckPending CheckState = iota
	CheckSucceeded
	CheckFailed
)

func (s CheckState) String() string {
	switch s {
	case CheckPending:
		return "pending"
	case CheckSucceeded:
		return "succeeded"
	case CheckFailed:
		return "failed"
	default:
		return "invalid"
	}
}

// Check is a check run or commit status of a pull request head commit.
type Check struct {
	Name     string
	State    CheckState
	Required bool
}

// MergeChecks are the review decision and the checks of the head commit of
// a pull request.
type MergeChecks struct {
	HeadCommit     string
	ReviewDecision githubv4.PullRequestReviewDecision
	Checks         []*Check
}

var checkRunStates = map[githubv4.CheckStatusState]CheckState{
	githubv4.CheckStatusStateInProgress: CheckPending,
	githubv4.CheckStatusStatePending:    CheckPending,
	githubv4.CheckStatusStateQueued:     CheckPending,
	githubv4.CheckStatusStateRequested:  CheckPending,
	githubv4.CheckStatusStateWaiting:    CheckPending,
}

var checkRunConclusions = map[githubv4.CheckConclusionState]CheckState{
	githubv4.CheckConclusionStateActionRequired: CheckPending,
	githubv4.CheckConclusionStateNeutral:        CheckSucceeded,
	githubv4.CheckConclusionStateSkipped:        CheckSucceeded,
	githubv4.CheckConclusionStateSuccess:        CheckSucceeded,
	githubv4.CheckConclusionStateCancelled:      CheckFailed,
	githubv4.CheckConclusionStateFailure:        CheckFailed,
	githubv4.CheckConclusionStateStale:          CheckFailed,
	githubv4.CheckConclusionStateStartupFailure: CheckFailed,
	githubv4.CheckConclusionStateTimedOut:       CheckFailed,
}

var commitStatusStates = map[githubv4.StatusState]CheckState{
	githubv4.StatusStateExpected: CheckPending,
	githubv4.StatusStatePending:  CheckPending,
	githubv4.StatusStateSuccess:  CheckSucceeded,
	githubv4.StatusStateError:    CheckFailed,
	githubv4.StatusStateFailure:  CheckFailed,
}

func checkRunState(status githubv4.CheckStatusState, conclusion githubv4.CheckConclusionState) (CheckState, error) {
	if state, exists := checkRunStates[status]; exists {
		return state, nil
	}

	if status != githubv4.CheckStatusStateCompleted {
		return 0, fmt.Errorf("unsupported check run status: %q", status)
	}

	state, exists := checkRunConclusions[conclusion]
	if !exists {
		return 0, fmt.Errorf("unsupported check run conclusion: %q", conclusion)
	}

	return state, nil
}

func commitStatusState(state githubv4.StatusState) (CheckState, error) {
	result, exists := commitStatusStates[state]
	if !exists {
		return 0, fmt.Errorf("unsupported commit status state: %q", state)
	}

	return result, nil
}

// PolicyState evaluates the merge policies of the pull request.
// Failed optional checks are ignored, pending optional checks delay the
// merge. A pull request without checks and without a review requirement
// has no merge policies.
func (m *MergeChecks) PolicyState() gitrepo.MergePolicyState {
	var pending, failed bool

	for _, c := range m.Checks {
		switch c.State {
		case CheckPending:
			pending = true
		case CheckFailed:
			if c.Required {
				failed = true
			}
		}
	}

	switch {
	case failed, m.ReviewDecision == githubv4.PullRequestReviewDecisionChangesRequested:
		return gitrepo.MergePolicyStateFailed
	case pending, m.ReviewDecision == githubv4.PullRequestReviewDecisionReviewRequired:
		return gitrepo.MergePolicyStatePending
	case len(m.Checks) == 0 && m.ReviewDecision == "":
		return gitrepo.MergePolicyStateNone
	default:
		return gitrepo.MergePolicyStateSucceeded
	}
}

type checkRunNode struct {
	Name       string
	Conclusion githubv4.CheckConclusionState
	Status     githubv4.CheckStatusState
}

type statusContextNode struct {
	Context string
	State   githubv4.StatusState
}

type mergeChecksQuery struct {
	Repository struct {
		PullRequest struct {
			ReviewDecision githubv4.PullRequestReviewDecision
			BaseRef        struct {
				BranchProtectionRule struct {
					RequiredStatusCheckContexts []string
				}
			}
			Commits struct {
				Nodes []struct {
					Commit struct {
						Oid               string
						StatusCheckRollup struct {
							Contexts struct {
								PageInfo struct {
									EndCursor   string
									HasNextPage bool
								}
								Nodes []struct {
									CheckRun      checkRunNode      `graphql:"... on CheckRun"`
									StatusContext statusContextNode `graphql:"... on StatusContext"`
								}
							} `graphql:"contexts(first: 100, after: $after)"`
						}
					}
				}
			} `graphql:"commits(last: 1)"`
		} `graphql:"pullRequest(number: $number)"`
	} `graphql:"repository(owner: $owner, name: $name)"`
}

// errHeadCommitChanged is returned when new commits are pushed to the pull
// request while the checks are paginated.
var errHeadCommitChanged = errors.New("head commit changed during pagination")

// maxMergeChecksAttempts limits how often the pagination is restarted
// because the head commit changed.
const maxMergeChecksAttempts = 3

// MergeChecks returns the review decision and the checks of the head
// commit of a pull request.
// Required checks that have not been reported yet are returned as
// pending.
func (clt *Client) MergeChecks(ctx context.Context, owner, repo string, prNumber int) (*MergeChecks, error) {
	var err error

	for i := 0; i < maxMergeChecksAttempts; i++ {
		var result *MergeChecks

		result, err = clt.queryMergeChecks(ctx, owner, repo, prNumber)
		if err == nil {
			return result, nil
		}

		if !errors.Is(err, errHeadCommitChanged) {
			return nil, clt.wrapGraphQLRetryableErrors(err)
		}
	}

	return nil, err
}

func (clt *Client) queryMergeChecks(ctx context.Context, owner, repo string, prNumber int) (*MergeChecks, error) {
	var result MergeChecks
	var required []string
	checks := map[string]*Check{}

	vars := map[string]any{
		"owner":  githubv4.String(owner),
		"name":   githubv4.String(repo),
		"number": githubv4.Int(prNumber),
		"after":  (*githubv4.String)(nil),
	}

	for {
		var q mergeChecksQuery

		if err := clt.graphQLClt.Query(ctx, &q, vars); err != nil {
			return nil, err
		}

		pr := q.Repository.PullRequest
		if len(pr.Commits.Nodes) == 0 {
			return nil, errors.New("pull request has no commits")
		}

		commit := pr.Commits.Nodes[0].Commit
		if result.HeadCommit == "" {
			result.HeadCommit = commit.Oid
			result.ReviewDecision = pr.ReviewDecision
			required = pr.BaseRef.BranchProtectionRule.RequiredStatusCheckContexts
		} else if result.HeadCommit != commit.Oid {
			return nil, errHeadCommitChanged
		}

		for _, node := range commit.StatusCheckRollup.Contexts.Nodes {
			var name string
			var state CheckState
			var err error

			switch {
			case node.CheckRun.Name != "":
				name = node.CheckRun.Name
				state, err = checkRunState(node.CheckRun.Status, node.CheckRun.Conclusion)
			case node.StatusContext.Context != "":
				name = node.StatusContext.Context
				state, err = commitStatusState(node.StatusContext.State)
			default:
				continue
			}

			if err != nil {
				return nil, fmt.Errorf("check %q: %w", name, err)
			}

			checks[name] = &Check{Name: name, State: state}
		}

		pageInfo := commit.StatusCheckRollup.Contexts.PageInfo
		if !pageInfo.HasNextPage {
			break
		}

		if pageInfo.EndCursor == "" {
			return nil, errors.New("retrieving checks failed, next page exists but end cursor is empty")
		}

		vars["after"] = githubv4.String(pageInfo.EndCursor)
	}

	for _, name := range required {
		if c, exists := checks[name]; exists {
			c.Required = true
			continue
		}

		checks[name] = &Check{Name: name, State: CheckPending, Required: true}
	}

	result.Checks = make([]*Check, 0, len(checks))
	for _, c := range checks {
		result.Checks = append(result.Checks, c)
	}

	return &result, nil
}
