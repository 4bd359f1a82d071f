package pullrequest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/simplesurance/depflow/internal/dependency"
	"github.com/simplesurance/depflow/internal/gitrepo"
	"github.com/simplesurance/depflow/internal/store"
	"github.com/simplesurance/depflow/internal/subscription"
)

func TestComputeUpdates(t *testing.T) {
	current := []*dependency.Detail{
		{Name: "Pkg.A", Version: "1.0.0", Commit: "bbbbbbbbbb", RepoURI: sourceRepo, Type: dependency.TypeProduct},
		{Name: "Pkg.B", Version: "2.0.0", Commit: "cccccccccc", CoherentParentDependencyName: "Pkg.A", Type: dependency.TypeProduct},
		{Name: "Pkg.C", Version: "3.0.0", Type: dependency.TypeToolset},
	}

	updates := computeUpdates(current, []subscription.Asset{
		{Name: "pkg.a", Version: "1.1.0"},
		{Name: "Pkg.B", Version: "2.0.0"},
		{Name: "Pkg.Other", Version: "9.0.0"},
	}, sourceRepo, "aaaaaaaaaa")

	require.Len(t, updates, 1)
	assert.Equal(t, *current[0], updates[0].From)
	assert.Equal(t, dependency.Detail{
		Name:    "Pkg.A",
		Version: "1.1.0",
		Commit:  "aaaaaaaaaa",
		RepoURI: sourceRepo,
		Type:    dependency.TypeProduct,
	}, updates[0].To)
}

func TestCompletionReason(t *testing.T) {
	tcs := []struct {
		state          gitrepo.PullRequestState
		policy         gitrepo.MergePolicyState
		expectedReason string
	}{
		{gitrepo.PullRequestStateMerged, gitrepo.MergePolicyStateSucceeded, "AutomaticallyMerged"},
		{gitrepo.PullRequestStateMerged, gitrepo.MergePolicyStateNone, "ManuallyMergedNoPolicies"},
		{gitrepo.PullRequestStateMerged, gitrepo.MergePolicyStateFailed, "ManuallyMergedFailedPolicies"},
		{gitrepo.PullRequestStateMerged, gitrepo.MergePolicyStatePending, "ManuallyMergedPendingPolicies"},
		{gitrepo.PullRequestStateClosed, gitrepo.MergePolicyStateSucceeded, "ManuallyClosedFailedToMerge"},
		{gitrepo.PullRequestStateClosed, gitrepo.MergePolicyStateNone, "ManuallyClosedNoPolicies"},
		{gitrepo.PullRequestStateClosed, gitrepo.MergePolicyStatePending, "ManuallyClosedPendingPolicies"},
	}

	for _, tc := range tcs {
		t.Run(tc.expectedReason, func(t *testing.T) {
			reason, policy := completionReason(&gitrepo.PullRequestStatus{State: tc.state, MergePolicy: tc.policy})
			assert.Equal(t, tc.expectedReason, subscription.ComposeReason(reason, policy))
		})
	}
}

func TestWithContainedUpdate(t *testing.T) {
	idA, idB := uuid.New(), uuid.New()

	updates := withContainedUpdate(nil, store.ContainedUpdate{SubscriptionID: idA, BuildID: 1})
	updates = withContainedUpdate(updates, store.ContainedUpdate{SubscriptionID: idB, BuildID: 2})
	updates = withContainedUpdate(updates, store.ContainedUpdate{SubscriptionID: idA, BuildID: 3})

	assert.Equal(t, []store.ContainedUpdate{
		{SubscriptionID: idA, BuildID: 3},
		{SubscriptionID: idB, BuildID: 2},
	}, updates)
}

func TestDryCommitterWritesFiles(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	dir := t.TempDir()
	c := NewDryCommitter(func(string) string { return dir })

	err := c.Commit(context.Background(), targetRepo, "depflow/main", "msg", []*dependency.GitFile{
		{FilePath: dependency.VersionDetailsPath, Content: "<Dependencies/>"},
	})
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(dir, "depflow_main", "eng", "Version.Details.xml"))
	require.NoError(t, err)
	assert.Equal(t, "<Dependencies/>", string(content))

	err = c.Commit(context.Background(), targetRepo, "main", "msg", []*dependency.GitFile{
		{FilePath: "../escape", Content: "x"},
	})
	assert.Error(t, err)
}

func TestDryRemoteFactory(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	f := NewDryRemoteFactory(&fakeRemoteFactory{clt: env.clt})

	clt, err := f.GetRemoteClient(ctx, targetRepo)
	require.NoError(t, err)

	url, err := clt.CreatePullRequest(ctx, targetRepo, &gitrepo.NewPullRequest{Description: "desc"})
	require.NoError(t, err)
	assert.Equal(t, targetRepo+"/pull/dry-run-1", url)
	assert.Empty(t, env.clt.created)

	desc, err := clt.GetPullRequestDescription(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, "desc", desc)

	require.NoError(t, clt.UpdatePullRequestDescription(ctx, url, "new"))
	desc, err = clt.GetPullRequestDescription(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, "new", desc)

	status, err := clt.GetPullRequestStatus(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, gitrepo.PullRequestStateOpen, status.State)

	content, err := clt.GetFileContents(ctx, targetRepo, "main", dependency.VersionDetailsPath)
	require.NoError(t, err)
	assert.Equal(t, targetVersionDetails, content)
}

func TestHTTPHandlerList(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.prs.HTTPHandlerList(rec, httptest.NewRequest(http.MethodGet, "/pullrequests", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no dependency update pull requests in progress\n", rec.Body.String())

	subID := uuid.New()
	require.NoError(t, env.store.SaveInProgressPullRequest(ctx, &store.InProgressPullRequest{
		RoutingKey:       subID.String(),
		URL:              targetRepo + "/pull/1",
		TargetRepository: targetRepo,
		TargetBranch:     "main",
		HeadBranch:       "depflow-main-1",
		ContainedUpdates: []store.ContainedUpdate{{SubscriptionID: subID, BuildID: 42, SourceRepo: sourceRepo}},
		CreatedAt:        time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		UpdatedAt:        time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC),
	}))

	rec = httptest.NewRecorder()
	env.prs.HTTPHandlerList(rec, httptest.NewRequest(http.MethodGet, "/pullrequests", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "Target: "+targetRepo+" main\n")
	assert.Contains(t, rec.Body.String(), "PR: "+targetRepo+"/pull/1\tHead: depflow-main-1")
	assert.Contains(t, rec.Body.String(), "Subscription: "+subID.String())
	assert.Contains(t, rec.Body.String(), "Source: "+sourceRepo+"\n")
}
