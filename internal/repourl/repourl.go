// Package repourl classifies and canonicalizes git repository URLs.
package repourl

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/simplesurance/depflow/internal/flowerr"
)

// Type is the hosting provider of a repository.
type Type int

const (
	Unknown Type = iota
	GitHub
	AzureDevOps
	Local
)

var typeStrings = [...]string{
	Unknown:     "unknown",
	GitHub:      "github",
	AzureDevOps: "azure_devops",
	Local:       "local",
}

func (t Type) String() string {
	if int(t) >= len(typeStrings) || t < 0 {
		return fmt.Sprintf("unsupported Type value: %d", t)
	}

	return typeStrings[t]
}

var (
	legacyAzureDevOpsRe  = regexp.MustCompile(`^https://([a-zA-Z0-9]+)\.visualstudio\.com/(?:DefaultCollection/)?(.*)$`)
	azureDevOpsAccountRe = regexp.MustCompile(`^https://dev\.azure\.com/([a-zA-Z0-9]+)/`)
)

// ParseType classifies repoURL by its host.
// Absolute filesystem paths and file:// URLs are Local repositories.
func ParseType(repoURL string) Type {
	if filepath.IsAbs(repoURL) {
		return Local
	}

	u, err := url.Parse(repoURL)
	if err != nil {
		return Unknown
	}

	switch u.Scheme {
	case "file":
		return Local
	case "https", "http":
	default:
		return Unknown
	}

	host := strings.ToLower(u.Hostname())
	switch {
	case host == "github.com", host == "www.github.com":
		return GitHub
	case host == "dev.azure.com", strings.HasSuffix(host, ".visualstudio.com"):
		return AzureDevOps
	default:
		return Unknown
	}
}

// Normalize canonicalizes repoURL.
// User information is removed, legacy {account}.visualstudio.com URLs are
// rewritten to the dev.azure.com form and trailing slashes are dropped.
// For GitHub URLs a ".git" suffix is removed.
// Local paths are returned unchanged.
func Normalize(repoURL string) string {
	u, err := url.Parse(repoURL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") {
		return repoURL
	}

	if u.User != nil {
		repoURL = strings.Replace(repoURL, u.User.String()+"@", "", 1)
	}

	if m := legacyAzureDevOpsRe.FindStringSubmatch(repoURL); m != nil {
		repoURL = "https://dev.azure.com/" + m[1] + "/" + m[2]
	}

	repoURL = strings.TrimRight(repoURL, "/")

	if ParseType(repoURL) == GitHub {
		repoURL = strings.TrimSuffix(repoURL, ".git")
	}

	return repoURL
}

// AzureDevOpsAccount returns the account name of a dev.azure.com repository
// URL. Legacy URLs must be normalized first.
func AzureDevOpsAccount(repoURL string) (string, error) {
	m := azureDevOpsAccountRe.FindStringSubmatch(repoURL)
	if m == nil {
		return "", &flowerr.InvalidRepositoryURLError{
			RepositoryURL: repoURL,
			Reason:        "not a valid azure devops repository url",
		}
	}

	return m[1], nil
}

func pathSegments(repoURL string) ([]string, error) {
	u, err := url.Parse(repoURL)
	if err != nil {
		return nil, &flowerr.InvalidRepositoryURLError{RepositoryURL: repoURL, Reason: err.Error()}
	}

	return strings.Split(strings.Trim(u.Path, "/"), "/"), nil
}

// ParseGitHub returns the owner and name of a github.com repository URL.
func ParseGitHub(repoURL string) (owner, repo string, err error) {
	segs, err := pathSegments(repoURL)
	if err != nil {
		return "", "", err
	}

	if len(segs) != 2 || segs[0] == "" || segs[1] == "" {
		return "", "", &flowerr.InvalidRepositoryURLError{
			RepositoryURL: repoURL,
			Reason:        "expected https://github.com/<owner>/<repository>",
		}
	}

	return segs[0], strings.TrimSuffix(segs[1], ".git"), nil
}

// ParseAzureDevOps returns the account, project and repository name of a
// https://dev.azure.com/<account>/<project>/_git/<repository> URL.
func ParseAzureDevOps(repoURL string) (account, project, repo string, err error) {
	segs, err := pathSegments(repoURL)
	if err != nil {
		return "", "", "", err
	}

	if len(segs) != 4 || segs[2] != "_git" {
		return "", "", "", &flowerr.InvalidRepositoryURLError{
			RepositoryURL: repoURL,
			Reason:        "expected https://dev.azure.com/<account>/<project>/_git/<repository>",
		}
	}

	return segs[0], segs[1], segs[3], nil
}

// GitHubPullRequest identifies a pull request on github.com.
type GitHubPullRequest struct {
	Owner      string
	Repository string
	Number     int
}

// ParseGitHubPullRequest parses web (https://github.com/o/r/pull/1) and API
// (https://api.github.com/repos/o/r/pulls/1) pull request URLs.
func ParseGitHubPullRequest(prURL string) (*GitHubPullRequest, error) {
	segs, err := pathSegments(prURL)
	if err != nil {
		return nil, err
	}

	if len(segs) == 5 && segs[0] == "repos" && segs[3] == "pulls" {
		segs = segs[1:]
	}

	if len(segs) != 4 || (segs[2] != "pull" && segs[2] != "pulls") {
		return nil, &flowerr.InvalidRepositoryURLError{RepositoryURL: prURL, Reason: "not a github pull request url"}
	}

	nr, err := strconv.Atoi(segs[3])
	if err != nil {
		return nil, &flowerr.InvalidRepositoryURLError{RepositoryURL: prURL, Reason: "pull request number is not an integer"}
	}

	return &GitHubPullRequest{Owner: segs[0], Repository: segs[1], Number: nr}, nil
}

// AzureDevOpsPullRequest identifies a pull request on dev.azure.com.
type AzureDevOpsPullRequest struct {
	Account    string
	Project    string
	Repository string
	ID         int
}

// ParseAzureDevOpsPullRequest parses web
// (https://dev.azure.com/a/p/_git/r/pullrequest/1) and API
// (https://dev.azure.com/a/p/_apis/git/repositories/r/pullRequests/1) pull
// request URLs.
func ParseAzureDevOpsPullRequest(prURL string) (*AzureDevOpsPullRequest, error) {
	segs, err := pathSegments(prURL)
	if err != nil {
		return nil, err
	}

	var result AzureDevOpsPullRequest
	var idStr string

	switch {
	case len(segs) == 6 && segs[2] == "_git" && strings.EqualFold(segs[4], "pullrequest"):
		result = AzureDevOpsPullRequest{Account: segs[0], Project: segs[1], Repository: segs[3]}
		idStr = segs[5]

	case len(segs) == 8 && segs[2] == "_apis" && segs[3] == "git" && strings.EqualFold(segs[6], "pullrequests"):
		result = AzureDevOpsPullRequest{Account: segs[0], Project: segs[1], Repository: segs[5]}
		idStr = segs[7]

	default:
		return nil, &flowerr.InvalidRepositoryURLError{RepositoryURL: prURL, Reason: "not an azure devops pull request url"}
	}

	id, err := strconv.Atoi(idStr)
	if err != nil {
		return nil, &flowerr.InvalidRepositoryURLError{RepositoryURL: prURL, Reason: "pull request id is not an integer"}
	}
	result.ID = id

	return &result, nil
}
