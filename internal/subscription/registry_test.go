package subscription_test

import (
	"context"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/simplesurance/depflow/internal/actor"
	"github.com/simplesurance/depflow/internal/store"
	"github.com/simplesurance/depflow/internal/subscription"
	"github.com/simplesurance/depflow/internal/subscription/mocks"
)

type testEnv struct {
	store     *mocks.MockStore
	lookup    *mocks.MockPullRequestWorkflowLookup
	workflow  *mocks.MockPullRequestWorkflow
	registry  *subscription.Registry
	subID     uuid.UUID
	sub       *store.Subscription
	buildID   int
	build     *store.Build
	upserted  []*store.SubscriptionUpdate
	addedEvts []*store.DependencyFlowEvent
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	mockctrl := gomock.NewController(t)

	env := testEnv{
		store:    mocks.NewMockStore(mockctrl),
		lookup:   mocks.NewMockPullRequestWorkflowLookup(mockctrl),
		workflow: mocks.NewMockPullRequestWorkflow(mockctrl),
		subID:    uuid.New(),
		buildID:  42,
	}

	env.sub = &store.Subscription{
		ID:               env.subID,
		ChannelID:        2,
		SourceRepository: "https://github.com/dotnet/foo",
		TargetRepository: "https://github.com/dotnet/bar",
		TargetBranch:     "main",
		Enabled:          true,
	}

	env.build = &store.Build{
		ID:               env.buildID,
		Commit:           "aaaaaaaaaa",
		GitHubRepository: "https://github.com/dotnet/foo",
		GitHubBranch:     "main",
		Assets: []store.Asset{
			{ID: 1, Name: "Pkg.A", Version: "1.1.0", Locations: []store.AssetLocation{{Location: "https://feed"}}},
		},
	}

	env.registry = subscription.NewRegistry(actor.NewHost(), env.store, env.lookup)

	return &env
}

func (env *testEnv) expectSubscription() *gomock.Call {
	return env.store.EXPECT().Subscription(gomock.Any(), env.subID).Return(env.sub, nil)
}

func (env *testEnv) expectEvent() *gomock.Call {
	return env.store.EXPECT().AddDependencyFlowEvent(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, ev *store.DependencyFlowEvent) error {
			env.addedEvts = append(env.addedEvts, ev)
			return nil
		})
}

func (env *testEnv) expectUpsert() *gomock.Call {
	return env.store.EXPECT().UpsertSubscriptionUpdate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, upd *store.SubscriptionUpdate) error {
			env.upserted = append(env.upserted, upd)
			return nil
		})
}

func TestUpdate(t *testing.T) {
	env := newTestEnv(t)

	gomock.InOrder(
		env.expectSubscription(),
		env.expectSubscription(),
		env.expectEvent(),
		env.store.EXPECT().BuildWithAssets(gomock.Any(), env.buildID).Return(env.build, nil),
		env.lookup.EXPECT().Lookup(env.subID.String()).Return(env.workflow),
		env.workflow.EXPECT().UpdateAssets(
			gomock.Any(),
			env.subID,
			subscription.UpdateModeDependencies,
			env.buildID,
			"https://github.com/dotnet/foo",
			"aaaaaaaaaa",
			[]subscription.Asset{{Name: "Pkg.A", Version: "1.1.0"}},
		).Return(nil),
		env.expectUpsert(),
	)

	err := env.registry.Update(context.Background(), env.subID, env.buildID)
	require.NoError(t, err)

	require.Len(t, env.addedEvts, 1)
	ev := env.addedEvts[0]
	assert.Equal(t, "Fired", ev.Event)
	assert.Equal(t, "New", ev.Reason)
	assert.Equal(t, "PR", ev.FlowType)
	assert.Equal(t, env.buildID, ev.BuildID)
	assert.Equal(t, 2, ev.ChannelID)
	assert.Equal(t, env.sub.SourceRepository, ev.SourceRepository)
	assert.Equal(t, env.sub.TargetRepository, ev.TargetRepository)
	assert.Nil(t, ev.URL)
	assert.False(t, ev.Timestamp.IsZero())

	require.Len(t, env.upserted, 1)
	upd := env.upserted[0]
	assert.Equal(t, env.subID, upd.SubscriptionID)
	assert.True(t, upd.Success)
	assert.Equal(t, "Updating subscription for build 42", upd.Action)
	assert.Equal(t, "Update Sent", upd.ErrorMessage)
	assert.Nil(t, upd.Method)
	assert.Nil(t, upd.Arguments)
}

func TestUpdateBatchableSourceEnabled(t *testing.T) {
	env := newTestEnv(t)
	env.sub.SourceEnabled = true
	env.sub.PolicyObject.Batchable = true
	env.build.GitHubRepository = ""
	env.build.AzureDevOpsRepository = "https://dev.azure.com/dnceng/internal/_git/foo"

	env.expectSubscription().Times(2)
	env.expectEvent()
	env.store.EXPECT().BuildWithAssets(gomock.Any(), env.buildID).Return(env.build, nil)
	env.lookup.EXPECT().Lookup("https://github.com/dotnet/bar|main").Return(env.workflow)
	env.workflow.EXPECT().UpdateAssets(
		gomock.Any(),
		env.subID,
		subscription.UpdateModeDependenciesAndSources,
		env.buildID,
		"https://dev.azure.com/dnceng/internal/_git/foo",
		"aaaaaaaaaa",
		gomock.Any(),
	).Return(nil)
	env.expectUpsert()

	require.NoError(t, env.registry.Update(context.Background(), env.subID, env.buildID))
}

func TestUpdateFailureIsRecorded(t *testing.T) {
	env := newTestEnv(t)
	updateErr := errors.New("push rejected")

	env.expectSubscription().Times(2)
	env.expectEvent()
	env.store.EXPECT().BuildWithAssets(gomock.Any(), env.buildID).Return(env.build, nil)
	env.lookup.EXPECT().Lookup(gomock.Any()).Return(env.workflow)
	env.workflow.EXPECT().UpdateAssets(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(updateErr)
	env.expectUpsert()

	err := env.registry.Update(context.Background(), env.subID, env.buildID)
	require.ErrorIs(t, err, updateErr)

	require.Len(t, env.upserted, 1)
	upd := env.upserted[0]
	assert.False(t, upd.Success)
	assert.Equal(t, "Updating subscription for build 42", upd.Action)
	assert.Contains(t, upd.ErrorMessage, "push rejected")
	require.NotNil(t, upd.Method)
	assert.Equal(t, "Update", *upd.Method)
	require.NotNil(t, upd.Arguments)
	assert.Equal(t, "[42]", *upd.Arguments)
}

func TestUpdateMissingSubscriptionFails(t *testing.T) {
	env := newTestEnv(t)

	env.store.EXPECT().Subscription(gomock.Any(), env.subID).Return(nil, &store.NotFoundError{Search: "test"})
	env.expectUpsert()

	err := env.registry.Update(context.Background(), env.subID, env.buildID)
	require.ErrorIs(t, err, store.ErrNotFound)

	require.Len(t, env.upserted, 1)
	assert.False(t, env.upserted[0].Success)
}

func TestUpdateContinuesWhenFiredEventFails(t *testing.T) {
	env := newTestEnv(t)

	env.expectSubscription().Times(2)
	env.store.EXPECT().AddDependencyFlowEvent(gomock.Any(), gomock.Any()).Return(errors.New("insert failed"))
	env.store.EXPECT().BuildWithAssets(gomock.Any(), env.buildID).Return(env.build, nil)
	env.lookup.EXPECT().Lookup(gomock.Any()).Return(env.workflow)
	env.workflow.EXPECT().UpdateAssets(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil)
	env.expectUpsert()

	require.NoError(t, env.registry.Update(context.Background(), env.subID, env.buildID))
	require.Len(t, env.upserted, 1)
	assert.True(t, env.upserted[0].Success)
}

func TestUpdateForMergedPullRequest(t *testing.T) {
	env := newTestEnv(t)

	env.expectSubscription()
	env.store.EXPECT().SetLastAppliedBuild(gomock.Any(), env.subID, env.buildID).Return(nil)

	ok, err := env.registry.UpdateForMergedPullRequest(context.Background(), env.subID, env.buildID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUpdateForMergedPullRequestMissingSubscription(t *testing.T) {
	env := newTestEnv(t)

	env.store.EXPECT().Subscription(gomock.Any(), env.subID).Return(nil, &store.NotFoundError{Search: "test"})

	ok, err := env.registry.UpdateForMergedPullRequest(context.Background(), env.subID, env.buildID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAddDependencyFlowEvent(t *testing.T) {
	env := newTestEnv(t)

	env.expectSubscription()
	env.expectEvent()

	ok, err := env.registry.AddDependencyFlowEvent(
		context.Background(),
		env.subID,
		env.buildID,
		subscription.EventCompleted,
		subscription.ReasonManuallyMerged,
		subscription.MergePolicyFailedPolicies,
		subscription.FlowTypePR,
		"https://github.com/dotnet/bar/pull/1",
	)
	require.NoError(t, err)
	assert.True(t, ok)

	require.Len(t, env.addedEvts, 1)
	assert.Equal(t, "Completed", env.addedEvts[0].Event)
	assert.Equal(t, "ManuallyMergedFailedPolicies", env.addedEvts[0].Reason)
	require.NotNil(t, env.addedEvts[0].URL)
	assert.Equal(t, "https://github.com/dotnet/bar/pull/1", *env.addedEvts[0].URL)
}

func TestAddDependencyFlowEventMissingSubscription(t *testing.T) {
	env := newTestEnv(t)

	env.store.EXPECT().Subscription(gomock.Any(), env.subID).Return(nil, &store.NotFoundError{Search: "test"})

	ok, err := env.registry.AddDependencyFlowEvent(
		context.Background(),
		env.subID,
		env.buildID,
		subscription.EventCompleted,
		subscription.ReasonNew,
		subscription.MergePolicyNoPolicies,
		subscription.FlowTypePR,
		"",
	)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunAction(t *testing.T) {
	env := newTestEnv(t)

	env.expectSubscription().Times(2)
	env.expectEvent()
	env.store.EXPECT().BuildWithAssets(gomock.Any(), 7).Return(env.build, nil)
	env.lookup.EXPECT().Lookup(gomock.Any()).Return(env.workflow)
	env.workflow.EXPECT().UpdateAssets(gomock.Any(), env.subID, gomock.Any(), 7, gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil)
	env.expectUpsert()

	result, err := env.registry.RunAction(context.Background(), env.subID, "Update", "[7]")
	require.NoError(t, err)
	assert.Equal(t, "Update Sent", result)
}

func TestRunActionInvalid(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.registry.RunAction(context.Background(), env.subID, "Delete", "[]")
	require.Error(t, err)

	_, err = env.registry.RunAction(context.Background(), env.subID, "Update", "not json")
	require.Error(t, err)

	_, err = env.registry.RunAction(context.Background(), env.subID, "Update", "[1, 2]")
	require.Error(t, err)
}
