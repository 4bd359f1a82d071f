package githubclt

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gregjones/httpcache"
	"github.com/shurcooL/githubv4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/simplesurance/depflow/internal/flowerr"
	"github.com/simplesurance/depflow/internal/gitrepo"
	"github.com/simplesurance/depflow/internal/tokens"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	clt, err := New(
		WithEndpoints(srv.URL+"/api/v3/", srv.URL+"/api/graphql"),
		WithTransport(srv.Client().Transport),
		WithResponseCache(httpcache.NewMemoryCache()),
	)
	require.NoError(t, err)

	clt.SetCredential(tokens.Credential{Kind: tokens.KindGitHubInstallation, Token: "ghs_test"})

	return clt
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	assert.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestWrapRetryableErrorsGraphql(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	// is the same then in vendor/github.com/shurcooL/graphql/graphql.go do()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(503)
	}))

	t.Cleanup(srv.Close)

	clt := Client{
		logger:     zap.L(),
		graphQLClt: githubv4.NewEnterpriseClient(srv.URL, srv.Client()),
	}

	s, err := clt.MergeChecks(context.Background(), "test", "test", 123)
	require.Error(t, err)
	assert.Nil(t, s)

	var retryableErr *flowerr.RetryableError
	assert.ErrorAs(t, err, &retryableErr)
}

func TestWrapRetryableErrorsGraphqlWithNonStatusErr(t *testing.T) {
	err := errors.New("error")
	wrappedErr := (&Client{}).wrapGraphQLRetryableErrors(err)
	assert.Equal(t, err, wrappedErr)
}

func TestRequestsAreAuthenticatedWithTheLastCredential(t *testing.T) {
	var authHdrs []string

	clt := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHdrs = append(authHdrs, r.Header.Get("Authorization"))
		writeJSON(t, w, map[string]any{"number": 1, "body": "desc"})
	}))

	_, err := clt.GetPullRequestDescription(context.Background(), "https://github.com/dotnet/sdk/pull/1")
	require.NoError(t, err)

	clt.SetCredential(tokens.Credential{Kind: tokens.KindGitHubInstallation, Token: "ghs_renewed"})

	_, err = clt.GetPullRequestDescription(context.Background(), "https://github.com/dotnet/sdk/pull/2")
	require.NoError(t, err)

	assert.Equal(t, []string{"Bearer ghs_test", "Bearer ghs_renewed"}, authHdrs)
}

func TestGetAndUpdatePullRequestDescription(t *testing.T) {
	var updatedBody string

	clt := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/repos/dotnet/sdk/pulls/12", r.URL.Path)

		switch r.Method {
		case http.MethodGet:
			writeJSON(t, w, map[string]any{"number": 12, "body": "old description"})

		case http.MethodPatch:
			var req map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			updatedBody, _ = req["body"].(string)
			writeJSON(t, w, map[string]any{"number": 12, "body": updatedBody})

		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	}))

	desc, err := clt.GetPullRequestDescription(context.Background(), "https://github.com/dotnet/sdk/pull/12")
	require.NoError(t, err)
	assert.Equal(t, "old description", desc)

	err = clt.UpdatePullRequestDescription(context.Background(), "https://github.com/dotnet/sdk/pull/12", "new description")
	require.NoError(t, err)
	assert.Equal(t, "new description", updatedBody)
}

func TestCreatePullRequest(t *testing.T) {
	clt := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v3/repos/dotnet/sdk/pulls", r.URL.Path)

		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "main", req["base"])
		assert.Equal(t, "depflow-update", req["head"])
		assert.Equal(t, "title", req["title"])

		w.WriteHeader(http.StatusCreated)
		writeJSON(t, w, map[string]any{"number": 3, "html_url": "https://github.com/dotnet/sdk/pull/3"})
	}))

	url, err := clt.CreatePullRequest(context.Background(), "https://github.com/dotnet/sdk", &gitrepo.NewPullRequest{
		Title:       "title",
		Description: "body",
		HeadBranch:  "depflow-update",
		BaseBranch:  "main",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/dotnet/sdk/pull/3", url)
}

func TestGetPullRequestStatusClosed(t *testing.T) {
	tcs := []struct {
		name     string
		merged   bool
		expected gitrepo.PullRequestState
	}{
		{name: "merged", merged: true, expected: gitrepo.PullRequestStateMerged},
		{name: "closed", merged: false, expected: gitrepo.PullRequestStateClosed},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			clt := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(t, w, map[string]any{
					"number": 5,
					"state":  "closed",
					"merged": tc.merged,
					"head":   map[string]any{"sha": "abc"},
				})
			}))

			status, err := clt.GetPullRequestStatus(context.Background(), "https://github.com/dotnet/sdk/pull/5")
			require.NoError(t, err)
			assert.Equal(t, tc.expected, status.State)
			assert.Equal(t, "abc", status.HeadCommit)
		})
	}
}

func TestGetFileContents(t *testing.T) {
	content := "<Dependencies></Dependencies>"

	clt := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/repos/dotnet/sdk/contents/eng/Version.Details.xml":
			assert.Equal(t, "main", r.URL.Query().Get("ref"))
			writeJSON(t, w, map[string]any{
				"type":     "file",
				"encoding": "base64",
				"path":     "eng/Version.Details.xml",
				"content":  base64.StdEncoding.EncodeToString([]byte(content)),
			})

		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"message": "Not Found"}`)
		}
	}))

	got, err := clt.GetFileContents(context.Background(), "https://github.com/dotnet/sdk", "main", "eng/Version.Details.xml")
	require.NoError(t, err)
	assert.Equal(t, content, got)

	_, err = clt.GetFileContents(context.Background(), "https://github.com/dotnet/sdk", "main", "global.json")
	require.ErrorIs(t, err, gitrepo.ErrFileNotFound)
}

func TestCompareCommits(t *testing.T) {
	clt := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/repos/dotnet/sdk/compare/bbb...aaa", r.URL.Path)
		writeJSON(t, w, map[string]any{
			"ahead_by":          2,
			"behind_by":         1,
			"html_url":          "https://github.com/dotnet/sdk/compare/bbb...aaa",
			"merge_base_commit": map[string]any{"sha": "ccc"},
		})
	}))

	cmp, err := clt.CompareCommits(context.Background(), "https://github.com/dotnet/sdk", "bbb", "aaa")
	require.NoError(t, err)
	assert.Equal(t, 2, cmp.AheadBy)
	assert.Equal(t, 1, cmp.BehindBy)
	assert.Equal(t, "ccc", cmp.BaseCommit)
	assert.Equal(t, "aaa", cmp.HeadCommit)
}

func TestServerErrorsAreRetryable(t *testing.T) {
	clt := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := clt.GetPullRequestDescription(context.Background(), "https://github.com/dotnet/sdk/pull/1")

	var retryableErr *flowerr.RetryableError
	assert.ErrorAs(t, err, &retryableErr)
}

func TestInvalidPullRequestURL(t *testing.T) {
	clt := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("unexpected request")
	}))

	_, err := clt.GetPullRequestDescription(context.Background(), "https://github.com/dotnet/sdk")
	require.Error(t, err)
}
