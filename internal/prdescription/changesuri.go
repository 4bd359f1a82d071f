package prdescription

import (
	"fmt"
	"strings"

	"github.com/simplesurance/depflow/internal/flowerr"
)

const shortSHALen = 7

func shortSHA(sha string) string {
	if len(sha) > shortSHALen {
		return sha[:shortSHALen]
	}

	return sha
}

// ChangesURI returns a link that shows the changes between the commits from
// and to of a repository.
// For GitHub repositories a compare link is returned, for all others an
// Azure DevOps branch diff link.
// If an argument is empty a flowerr.InvalidArgumentError is returned.
func ChangesURI(repoURI, from, to string) (string, error) {
	switch {
	case repoURI == "":
		return "", &flowerr.InvalidArgumentError{Argument: "repoURI"}
	case from == "":
		return "", &flowerr.InvalidArgumentError{Argument: "from"}
	case to == "":
		return "", &flowerr.InvalidArgumentError{Argument: "to"}
	}

	fromSHA := shortSHA(from)
	toSHA := shortSHA(to)

	if strings.Contains(repoURI, "github.com") {
		return fmt.Sprintf("%s/compare/%s...%s", repoURI, fromSHA, toSHA), nil
	}

	return fmt.Sprintf("%s/branches?baseVersion=GC%s&targetVersion=GC%s&_a=files", repoURI, fromSHA, toSHA), nil
}
