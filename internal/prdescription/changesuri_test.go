package prdescription

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simplesurance/depflow/internal/flowerr"
)

func TestChangesURIGitHub(t *testing.T) {
	uri, err := ChangesURI("https://github.com/dotnet/runtime", "abc1234567", "def9876543")
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/dotnet/runtime/compare/abc1234...def9876", uri)
}

func TestChangesURIAzureDevOps(t *testing.T) {
	uri, err := ChangesURI("https://dev.azure.com/dnceng/internal/_git/repo", "abc1234567", "def9876543")
	require.NoError(t, err)
	assert.Equal(t,
		"https://dev.azure.com/dnceng/internal/_git/repo/branches?baseVersion=GCabc1234&targetVersion=GCdef9876&_a=files",
		uri,
	)
}

func TestChangesURIShortSHAsAreNotPadded(t *testing.T) {
	uri, err := ChangesURI("https://github.com/dotnet/runtime", "abc", "1234567")
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/dotnet/runtime/compare/abc...1234567", uri)
}

func TestChangesURIRejectsEmptyArguments(t *testing.T) {
	tcs := []struct {
		repo, from, to string
		arg            string
	}{
		{"", "a", "b", "repoURI"},
		{"https://github.com/dotnet/runtime", "", "b", "from"},
		{"https://github.com/dotnet/runtime", "a", "", "to"},
	}

	for _, tc := range tcs {
		_, err := ChangesURI(tc.repo, tc.from, tc.to)

		var argErr *flowerr.InvalidArgumentError
		require.ErrorAs(t, err, &argErr)
		assert.Equal(t, tc.arg, argErr.Argument)
	}
}
