package tokens

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"go.uber.org/zap"

	"github.com/simplesurance/depflow/internal/flowerr"
	"github.com/simplesurance/depflow/internal/logfields"
	"github.com/simplesurance/depflow/internal/repourl"
)

const loggerName = "tokens"

// AzureDevOpsScope is the Entra ID scope of the Azure DevOps resource.
const AzureDevOpsScope = "499b84ac-1321-427f-aa17-267ca6975798/.default"

const (
	// DefaultManagedIdentityAccount is the ManagedIdentities key that
	// applies to accounts without an own entry.
	DefaultManagedIdentityAccount = "default"
	// SystemAssignedManagedIdentity selects the system-assigned managed
	// identity instead of a user-assigned one.
	SystemAssignedManagedIdentity = "system"
)

// InstallationTokenSource creates GitHub App installation tokens.
type InstallationTokenSource interface {
	TokenForInstallation(ctx context.Context, installationID int64) (Credential, error)
}

// AzureDevOpsConfig configures the credentials of Azure DevOps accounts.
type AzureDevOpsConfig struct {
	// Tokens maps account names to personal access tokens.
	Tokens map[string]string
	// ManagedIdentities maps account names to the client id of a
	// user-assigned managed identity or to "system".
	ManagedIdentities map[string]string
}

// Resolver returns the credential for a repository URL.
type Resolver struct {
	github InstallationTokenSource
	azdo   AzureDevOpsConfig
	logger *zap.Logger

	newManagedIdentity func(clientID string) (azcore.TokenCredential, error)
	mu                 sync.Mutex
	managedIdentities  map[string]azcore.TokenCredential
}

// NewResolver returns a Resolver.
// github can be nil when no GitHub App is configured.
func NewResolver(github InstallationTokenSource, azdo AzureDevOpsConfig) *Resolver {
	return &Resolver{
		github:             github,
		azdo:               azdo,
		logger:             zap.L().Named(loggerName),
		newManagedIdentity: newManagedIdentityCredential,
		managedIdentities:  map[string]azcore.TokenCredential{},
	}
}

func newManagedIdentityCredential(clientID string) (azcore.TokenCredential, error) {
	if clientID == SystemAssignedManagedIdentity {
		return azidentity.NewManagedIdentityCredential(nil)
	}

	return azidentity.NewManagedIdentityCredential(&azidentity.ManagedIdentityCredentialOptions{
		ID: azidentity.ClientID(clientID),
	})
}

// ResolveToken returns the credential to access repoURL.
// repoURL must be normalized.
// installationID is only evaluated for GitHub repositories, 0 means that
// the GitHub App is not installed for the repository and a
// flowerr.NoInstallationError is returned.
func (r *Resolver) ResolveToken(ctx context.Context, repoURL string, installationID int64) (Credential, error) {
	switch repourl.ParseType(repoURL) {
	case repourl.GitHub:
		return r.resolveGitHub(ctx, repoURL, installationID)

	case repourl.AzureDevOps:
		return r.resolveAzureDevOps(ctx, repoURL)

	case repourl.Local:
		return Credential{Kind: KindNone}, nil

	default:
		return Credential{}, &flowerr.UnsupportedRepositoryTypeError{RepositoryURL: repoURL}
	}
}

func (r *Resolver) resolveGitHub(ctx context.Context, repoURL string, installationID int64) (Credential, error) {
	if installationID == 0 {
		return Credential{}, &flowerr.NoInstallationError{RepositoryURL: repoURL}
	}

	if r.github == nil {
		return Credential{}, errors.New("github app is not configured")
	}

	return r.github.TokenForInstallation(ctx, installationID)
}

func (r *Resolver) resolveAzureDevOps(ctx context.Context, repoURL string) (Credential, error) {
	account, err := repourl.AzureDevOpsAccount(repoURL)
	if err != nil {
		return Credential{}, err
	}

	if pat, exists := r.azdo.Tokens[account]; exists && pat != "" {
		return Credential{Kind: KindAzureDevOpsPAT, Token: pat}, nil
	}

	clientID, exists := r.azdo.ManagedIdentities[account]
	if !exists {
		clientID, exists = r.azdo.ManagedIdentities[DefaultManagedIdentityAccount]
	}
	if !exists || clientID == "" {
		return Credential{}, fmt.Errorf("azure devops account %q: %w", account, flowerr.ErrNoAzureDevOpsCredential)
	}

	cred, err := r.managedIdentity(clientID)
	if err != nil {
		return Credential{}, fmt.Errorf("creating managed identity credential for azure devops account %q failed: %w", account, err)
	}

	tok, err := cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{AzureDevOpsScope}})
	if err != nil {
		return Credential{}, fmt.Errorf("retrieving managed identity token for azure devops account %q failed: %w", account, err)
	}

	r.logger.Debug("retrieved azure devops managed identity token",
		logfields.Repository(repoURL),
		logfields.Event("azure_devops_managed_identity_token_retrieved"),
		zap.String("azure_devops_account", account),
	)

	return Credential{
		Kind:      KindAzureDevOpsBearer,
		Token:     tok.Token,
		ExpiresAt: tok.ExpiresOn,
	}, nil
}

func (r *Resolver) managedIdentity(clientID string) (azcore.TokenCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cred, exists := r.managedIdentities[clientID]; exists {
		return cred, nil
	}

	cred, err := r.newManagedIdentity(clientID)
	if err != nil {
		return nil, err
	}

	r.managedIdentities[clientID] = cred

	return cred, nil
}
