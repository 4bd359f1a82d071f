package prdescription

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/simplesurance/depflow/internal/dependency"
)

func newGoldie(t *testing.T) *goldie.Goldie {
	t.Helper()

	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func dep(name, fromVersion, toVersion, fromCommit, toCommit, repo string) *dependency.Update {
	return &dependency.Update{
		From: dependency.Detail{Name: name, Version: fromVersion, Commit: fromCommit, RepoURI: repo},
		To:   dependency.Detail{Name: name, Version: toVersion, Commit: toCommit, RepoURI: repo},
	}
}

func testBuild() *Build {
	return &Build{
		Number:       "20240115.3",
		DateProduced: time.Date(2024, 1, 15, 14, 30, 5, 0, time.UTC),
		Commit:       "aaaaaaaaaa",
		GitHubBranch: "main",
	}
}

func TestComposeSubscriptionSection(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	update := Update{
		SubscriptionID: uuid.MustParse("7f3b5c9e-1d2a-4e6f-8a9b-0c1d2e3f4a5b"),
		SourceRepo:     "https://github.com/dotnet/foo",
	}

	c := New("")
	c.ComposeSection(
		&update,
		[]*dependency.Update{dep("Pkg.A", "1.0.0", "1.1.0", "bbbbbbbbbb", "aaaaaaaaaa", "https://github.com/dotnet/foo")},
		nil,
		testBuild(),
	)

	newGoldie(t).Assert(t, "subscription_section", []byte(c.String()))
	assert.Contains(t, c.String(), "## From https://github.com/dotnet/foo\n")
	assert.Contains(t, c.String(), "https://github.com/dotnet/foo/compare/bbbbbbb...aaaaaaa")
	assert.Equal(t, 2, c.NextReferenceID())
}

func TestComposeSubscriptionSectionMultipleDependencies(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	update := Update{
		SubscriptionID: uuid.MustParse("0b7e5f0e-6a65-4c3f-9a1d-2f4e8c9b7a10"),
		SourceRepo:     "https://github.com/dotnet/foo",
	}
	build := Build{
		Number:            "20240301.1",
		DateProduced:      time.Date(2024, 3, 1, 10, 5, 7, 0, time.FixedZone("CET", 3600)),
		Commit:            "2222222222bbbb",
		AzureDevOpsBranch: "refs/heads/main",
		GitHubBranch:      "main",
	}
	committedFiles := []*dependency.GitFile{
		{FilePath: dependency.VersionDetailsPath},
		{
			FilePath: "global.json",
			Metadata: map[string]string{
				dependency.MetadataSdkVersionUpdate:  "8.0.100",
				dependency.MetadataToolsDotNetUpdate: "8.0.100",
			},
		},
	}

	c := New("Intro text\n\n[3]: https://example.com/old\n")
	require.Equal(t, 4, c.NextReferenceID())

	c.ComposeSection(
		&update,
		[]*dependency.Update{
			dep("Pkg.A", "1.0.0", "1.1.0", "1111111111aaaa", "2222222222bbbb", "https://github.com/dotnet/foo"),
			dep("Pkg.B", "1.0.0", "1.1.0", "1111111111aaaa", "2222222222bbbb", "https://github.com/dotnet/foo"),
			dep("Pkg.C", "3.0", "3.1", "abc", "def", "https://dev.azure.com/dnceng/internal/_git/bar"),
			dep("Pkg.D", "0.1", "0.2", "", "9999999999", "https://github.com/dotnet/baz"),
		},
		committedFiles,
		&build,
	)

	newGoldie(t).Assert(t, "multiple_dependencies", []byte(c.String()))
	// the failed link of Pkg.D still consumes a reference
	assert.Equal(t, 7, c.NextReferenceID())
}

func TestComposeCoherencySection(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	d := dep("Pkg.B", "2.0.0", "2.1.0", "1", "2", "https://github.com/dotnet/bar")
	d.To.CoherentParentDependencyName = "Pkg.A"

	c := New("")
	c.ComposeSection(&Update{IsCoherencyUpdate: true}, []*dependency.Update{d}, nil, nil)

	newGoldie(t).Assert(t, "coherency_section", []byte(c.String()))
	assert.Equal(t, 1, c.NextReferenceID())
}

func TestComposeReplacesSectionInPlace(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	subA := &Update{SubscriptionID: uuid.New(), SourceRepo: "https://github.com/dotnet/a"}
	subB := &Update{SubscriptionID: uuid.New(), SourceRepo: "https://github.com/dotnet/b"}
	beginA, endA := SubscriptionSectionMarkers(subA.SubscriptionID)
	beginB, _ := SubscriptionSectionMarkers(subB.SubscriptionID)

	c := New("This pull request updates the following dependencies\n\n")
	c.ComposeSection(subA, []*dependency.Update{dep("Pkg.A", "1.0.0", "1.1.0", "a1", "a2", subA.SourceRepo)}, nil, testBuild())
	c.ComposeSection(subB, []*dependency.Update{dep("Pkg.B", "1.0.0", "1.1.0", "b1", "b2", subB.SourceRepo)}, nil, testBuild())
	c.ComposeSection(subA, []*dependency.Update{dep("Pkg.A", "1.0.0", "1.2.0", "a1", "a3", subA.SourceRepo)}, nil, testBuild())

	desc := c.String()

	assert.Equal(t, 1, strings.Count(desc, beginA))
	assert.Equal(t, 1, strings.Count(desc, endA))
	assert.Equal(t, 1, strings.Count(desc, beginB))
	assert.Less(t, strings.Index(desc, beginA), strings.Index(desc, beginB))
	assert.True(t, strings.HasPrefix(desc, "This pull request updates the following dependencies\n\n"+beginA))

	assert.Contains(t, desc, "  - **Pkg.A**: [from 1.0.0 to 1.2.0][3]\n")
	assert.NotContains(t, desc, "[from 1.0.0 to 1.1.0][1]")
	assert.Contains(t, desc, "[3]: https://github.com/dotnet/a/compare/a1...a3\n")
	assert.Equal(t, 4, c.NextReferenceID())
}

func TestComposeAppendsWhenEndMarkerMissing(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	sub := &Update{SubscriptionID: uuid.New(), SourceRepo: "https://github.com/dotnet/a"}
	begin, _ := SubscriptionSectionMarkers(sub.SubscriptionID)
	initial := begin + "\nleftover without end marker\n"

	c := New(initial)
	c.ComposeSection(sub, nil, nil, testBuild())

	assert.True(t, strings.HasPrefix(c.String(), initial))
	assert.Equal(t, 2, strings.Count(c.String(), begin))
}

func TestComposeDeduplicatesLinks(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	sub := &Update{SubscriptionID: uuid.New(), SourceRepo: "https://github.com/dotnet/a"}

	c := New("")
	c.ComposeSection(sub, []*dependency.Update{
		dep("Pkg.A", "1.0.0", "1.1.0", "1234567890", "0987654321", sub.SourceRepo),
		dep("Pkg.B", "2.0.0", "2.1.0", "1234567890", "0987654321", sub.SourceRepo),
	}, nil, testBuild())

	desc := c.String()
	assert.Contains(t, desc, "  - **Pkg.A**: [from 1.0.0 to 1.1.0][1]\n")
	assert.Contains(t, desc, "  - **Pkg.B**: [from 2.0.0 to 2.1.0][1]\n")
	assert.Equal(t, 1, strings.Count(desc, "\n[1]: "))
	assert.NotContains(t, desc, "[2]: ")
	assert.Equal(t, 2, c.NextReferenceID())
}

func TestStartingReferenceID(t *testing.T) {
	tcs := []struct {
		description string
		expected    int
	}{
		{"", 1},
		{"[7]: http://x", 8},
		{"text\n[2]: http://a\n[11]: http://b\n[5]: http://c\n", 12},
		{"[12]:", 1},
		{" [5]: http://x", 1},
		{"see [3] for details", 1},
	}

	for _, tc := range tcs {
		assert.Equal(t, tc.expected, New(tc.description).NextReferenceID(), tc.description)
	}
}

func TestBranchFallsBackToGitHubBranch(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	sub := &Update{SubscriptionID: uuid.New(), SourceRepo: "https://github.com/dotnet/a"}

	b := testBuild()
	c := New("")
	c.ComposeSection(sub, nil, nil, b)
	assert.Contains(t, c.String(), "- **Branch**: main\n")

	b.GitHubBranch = ""
	c = New("")
	c.ComposeSection(sub, nil, nil, b)
	assert.NotContains(t, c.String(), "- **Branch**:")
}
