// Package tokens resolves the credentials that are used to access remote
// git repositories.
package tokens

import "time"

// Kind identifies how a Credential is presented to a hosting provider.
type Kind int

const (
	// KindNone is used for repositories that do not require
	// authentication, like local repositories.
	KindNone Kind = iota
	// KindGitHubInstallation is a GitHub App installation access token.
	KindGitHubInstallation
	// KindAzureDevOpsPAT is a static Azure DevOps personal access token.
	KindAzureDevOpsPAT
	// KindAzureDevOpsBearer is an Entra ID access token of a managed
	// identity.
	KindAzureDevOpsBearer
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindGitHubInstallation:
		return "github_installation"
	case KindAzureDevOpsPAT:
		return "azure_devops_pat"
	case KindAzureDevOpsBearer:
		return "azure_devops_bearer"
	default:
		return "unknown"
	}
}

// Credential authenticates requests to a hosting provider.
type Credential struct {
	Kind  Kind
	Token string
	// ExpiresAt is zero if the credential does not expire.
	ExpiresAt time.Time
}

// Expired returns true if the credential expires before now+margin.
func (c *Credential) Expired(now time.Time, margin time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}

	return !c.ExpiresAt.After(now.Add(margin))
}
