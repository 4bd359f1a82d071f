package dependency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyUpdates(t *testing.T) {
	updated, err := ApplyUpdates(versionDetails, []*Update{
		{
			From: Detail{Name: "Pkg.A", Version: "1.0.0", Commit: "bbbbbbbbbb"},
			To: Detail{
				Name:    "pkg.a",
				Version: "1.1.0",
				Commit:  "aaaaaaaaaa",
				RepoURI: "https://github.com/dotnet/foo",
			},
		},
	})
	require.NoError(t, err)

	deps, err := ParseVersionDetails(updated)
	require.NoError(t, err)
	require.Len(t, deps, 3)

	assert.Equal(t, "1.1.0", deps[0].Version)
	assert.Equal(t, "aaaaaaaaaa", deps[0].Commit)
	assert.Equal(t, "https://github.com/dotnet/foo", deps[0].RepoURI)

	assert.Equal(t, "2.0.0", deps[1].Version)
	assert.Equal(t, "cccccccccc", deps[1].Commit)
	assert.Equal(t, "Pkg.A", deps[1].CoherentParentDependencyName)

	assert.Contains(t, updated, `<Dependency Name="Pkg.A" Version="1.1.0">`)
}

func TestApplyUpdatesKeepsCoherentParentAttribute(t *testing.T) {
	updated, err := ApplyUpdates(versionDetails, []*Update{
		{To: Detail{Name: "Pkg.B", Version: "2.1.0", Commit: "eeeeeeeeee"}},
	})
	require.NoError(t, err)

	assert.Contains(t, updated, `<Dependency Name="Pkg.B" Version="2.1.0" CoherentParentDependency="Pkg.A">`)
	assert.Contains(t, updated, "<Sha>eeeeeeeeee</Sha>")
	assert.Contains(t, updated, "<Uri>https://dev.azure.com/dnceng/internal/_git/bar</Uri>")
}

func TestApplyUpdatesUnknownDependency(t *testing.T) {
	_, err := ApplyUpdates(versionDetails, []*Update{
		{To: Detail{Name: "Pkg.A", Version: "1.1.0"}},
		{To: Detail{Name: "Pkg.Missing", Version: "1.0.0"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Pkg.Missing")
	assert.NotContains(t, err.Error(), "Pkg.A")
}
