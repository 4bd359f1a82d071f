package tokens

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-github/v62/github"
	"go.uber.org/zap"

	"github.com/simplesurance/depflow/internal/logfields"
)

const (
	appJWTBackdate = 60 * time.Second
	appJWTValidity = 9 * time.Minute
	// installationTokenRefreshMargin is the remaining lifetime at that a
	// cached installation token is replaced.
	installationTokenRefreshMargin = 5 * time.Minute
)

// GitHubAppTokenProvider creates GitHub App installation access tokens.
type GitHubAppTokenProvider struct {
	appID      int64
	key        *rsa.PrivateKey
	apiURL     string
	httpClient *http.Client
	now        func() time.Time
	logger     *zap.Logger

	mu    sync.Mutex
	cache map[int64]Credential
}

type GitHubAppOption func(*GitHubAppTokenProvider)

// WithGitHubAPIURL sets the base URL of the GitHub REST API, it must end
// with "/api/v3/" for GitHub Enterprise servers.
func WithGitHubAPIURL(url string) GitHubAppOption {
	return func(p *GitHubAppTokenProvider) {
		p.apiURL = url
	}
}

func WithHTTPClient(clt *http.Client) GitHubAppOption {
	return func(p *GitHubAppTokenProvider) {
		p.httpClient = clt
	}
}

// NewGitHubAppTokenProvider returns a provider for the GitHub App with the
// given id. privateKeyPEM is the PEM encoded RSA private key of the app.
func NewGitHubAppTokenProvider(appID int64, privateKeyPEM []byte, opts ...GitHubAppOption) (*GitHubAppTokenProvider, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parsing github app private key failed: %w", err)
	}

	p := GitHubAppTokenProvider{
		appID:      appID,
		key:        key,
		httpClient: &http.Client{Timeout: time.Minute},
		now:        time.Now,
		logger:     zap.L().Named(loggerName).Named("github_app"),
		cache:      map[int64]Credential{},
	}

	for _, opt := range opts {
		opt(&p)
	}

	return &p, nil
}

func (p *GitHubAppTokenProvider) appJWT() (string, error) {
	now := p.now()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		Issuer:    strconv.FormatInt(p.appID, 10),
		IssuedAt:  jwt.NewNumericDate(now.Add(-appJWTBackdate)),
		ExpiresAt: jwt.NewNumericDate(now.Add(appJWTValidity)),
	})

	return token.SignedString(p.key)
}

func (p *GitHubAppTokenProvider) client(appJWT string) (*github.Client, error) {
	clt := github.NewClient(p.httpClient).WithAuthToken(appJWT)
	if p.apiURL == "" {
		return clt, nil
	}

	return clt.WithEnterpriseURLs(p.apiURL, p.apiURL)
}

// TokenForInstallation returns an access token for the installation.
// Tokens are cached and reused until they are close to expiring.
func (p *GitHubAppTokenProvider) TokenForInstallation(ctx context.Context, installationID int64) (Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cred, exists := p.cache[installationID]; exists && !cred.Expired(p.now(), installationTokenRefreshMargin) {
		return cred, nil
	}

	appJWT, err := p.appJWT()
	if err != nil {
		return Credential{}, fmt.Errorf("signing github app jwt failed: %w", err)
	}

	clt, err := p.client(appJWT)
	if err != nil {
		return Credential{}, fmt.Errorf("creating github client failed: %w", err)
	}

	tok, _, err := clt.Apps.CreateInstallationToken(ctx, installationID, nil)
	if err != nil {
		return Credential{}, fmt.Errorf("creating installation token for installation %d failed: %w", installationID, err)
	}

	cred := Credential{
		Kind:      KindGitHubInstallation,
		Token:     tok.GetToken(),
		ExpiresAt: tok.GetExpiresAt().Time,
	}
	p.cache[installationID] = cred

	p.logger.Debug("created github installation token",
		logfields.InstallationID(installationID),
		logfields.Event("github_installation_token_created"),
		zap.Time("expires_at", cred.ExpiresAt),
	)

	return cred, nil
}
