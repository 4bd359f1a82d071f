package githubclt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/shurcooL/githubv4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simplesurance/depflow/internal/gitrepo"
)

func TestPolicyState(t *testing.T) {
	tcs := []struct {
		name     string
		checks   MergeChecks
		expected gitrepo.MergePolicyState
	}{
		{
			name:     "noChecksAndNoReviews",
			checks:   MergeChecks{},
			expected: gitrepo.MergePolicyStateNone,
		},
		{
			name: "approvedAndSuccessful",
			checks: MergeChecks{
				ReviewDecision: githubv4.PullRequestReviewDecisionApproved,
				Checks:         []*Check{{Name: "build", State: CheckSucceeded, Required: true}},
			},
			expected: gitrepo.MergePolicyStateSucceeded,
		},
		{
			name:     "pendingOptionalCheck",
			checks:   MergeChecks{Checks: []*Check{{Name: "build", State: CheckPending}}},
			expected: gitrepo.MergePolicyStatePending,
		},
		{
			name: "failedOptionalCheckIsIgnored",
			checks: MergeChecks{Checks: []*Check{
				{Name: "optional", State: CheckFailed},
				{Name: "build", State: CheckSucceeded, Required: true},
			}},
			expected: gitrepo.MergePolicyStateSucceeded,
		},
		{
			name: "failedRequiredCheck",
			checks: MergeChecks{Checks: []*Check{
				{Name: "optional", State: CheckPending},
				{Name: "build", State: CheckFailed, Required: true},
			}},
			expected: gitrepo.MergePolicyStateFailed,
		},
		{
			name:     "changesRequested",
			checks:   MergeChecks{ReviewDecision: githubv4.PullRequestReviewDecisionChangesRequested},
			expected: gitrepo.MergePolicyStateFailed,
		},
		{
			name:     "reviewRequired",
			checks:   MergeChecks{ReviewDecision: githubv4.PullRequestReviewDecisionReviewRequired},
			expected: gitrepo.MergePolicyStatePending,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.checks.PolicyState())
		})
	}
}

type graphQLRequest struct {
	Variables map[string]any `json:"variables"`
}

func mergeChecksResponse(oid string, hasNextPage bool, nodes string) string {
	return fmt.Sprintf(`{"data": {"repository": {"pullRequest": {
  "reviewDecision": "APPROVED",
  "baseRef": {"branchProtectionRule": {"requiredStatusCheckContexts": ["build", "deploy"]}},
  "commits": {"nodes": [{"commit": {
    "oid": %q,
    "statusCheckRollup": {"contexts": {
      "pageInfo": {"endCursor": "cursor1", "hasNextPage": %t},
      "nodes": [%s]
    }}
  }}]}
}}}}`, oid, hasNextPage, nodes)
}

func TestMergeChecksPaginates(t *testing.T) {
	clt := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req graphQLRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")

		if req.Variables["after"] == nil {
			_, _ = w.Write([]byte(mergeChecksResponse("abc", true,
				`{"name": "build", "status": "COMPLETED", "conclusion": "SUCCESS"}`)))
			return
		}

		_, _ = w.Write([]byte(mergeChecksResponse("abc", false,
			`{"context": "license/cla", "state": "FAILURE"}`)))
	}))

	checks, err := clt.MergeChecks(context.Background(), "dotnet", "sdk", 5)
	require.NoError(t, err)

	assert.Equal(t, "abc", checks.HeadCommit)
	assert.Equal(t, githubv4.PullRequestReviewDecisionApproved, checks.ReviewDecision)
	assert.ElementsMatch(t, []*Check{
		{Name: "build", State: CheckSucceeded, Required: true},
		{Name: "license/cla", State: CheckFailed},
		{Name: "deploy", State: CheckPending, Required: true},
	}, checks.Checks)

	assert.Equal(t, gitrepo.MergePolicyStatePending, checks.PolicyState())
}

func TestMergeChecksHeadCommitChanges(t *testing.T) {
	var requests atomic.Int32

	clt := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(mergeChecksResponse(fmt.Sprintf("sha%d", n), true, "")))
	}))

	_, err := clt.MergeChecks(context.Background(), "dotnet", "sdk", 5)
	require.ErrorIs(t, err, errHeadCommitChanged)
	assert.EqualValues(t, 2*maxMergeChecksAttempts, requests.Load())
}
