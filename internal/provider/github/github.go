// Package github receives the webhook events of the depflow GitHub App and
// keeps the installation ids of repositories up to date.
package github

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/go-github/v62/github"
	"go.uber.org/zap"

	"github.com/simplesurance/depflow/internal/logfields"
	"github.com/simplesurance/depflow/internal/repourl"
)

const loggerName = "github-event-provider"

const gitHubURL = "https://github.com/"

// InstallationStore persists the GitHub App installation id of repositories.
type InstallationStore interface {
	SetInstallationID(ctx context.Context, repositoryURL string, installationID int64) error
}

// Provider listens for github-webhook http-requests at a http-server handler,
// validates them and records installation changes of the GitHub App.
type Provider struct {
	logging       *zap.Logger
	webhookSecret []byte
	store         InstallationStore
}

type option func(*Provider)

func WithPayloadSecret(secret string) option {
	return func(p *Provider) {
		p.webhookSecret = []byte(secret)
	}
}

func New(store InstallationStore, opts ...option) *Provider {
	p := Provider{
		store: store,
	}

	for _, o := range opts {
		o(&p)
	}

	if p.logging == nil {
		p.logging = zap.L().Named(loggerName)
	}

	return &p
}

func (p *Provider) HTTPHandler(resp http.ResponseWriter, req *http.Request) {
	deliveryID := github.DeliveryID(req)
	hookType := github.WebHookType(req)

	logger := p.logging.With(
		logfields.EventProvider("github"),
		logfields.DeliveryID(deliveryID),
		zap.String("github.webhook_type", hookType),
	)

	logger.Debug("received a http request", logfields.Event("github_event_received"))

	payload, err := github.ValidatePayload(req, p.webhookSecret)
	if err != nil {
		logger.Info(
			"received invalid http request, payload validation failed",
			logfields.Event("github_http_request_validation_failed"),
			zap.Error(err),
		)
		http.Error(resp, err.Error(), http.StatusBadRequest)
		return
	}

	event, err := github.ParseWebHook(hookType, payload)
	if err != nil {
		logger.Info(
			"received invalid http request, parsing failed",
			logfields.Event("github_event_parsing_failed"),
			zap.Error(err),
		)
		http.Error(resp, err.Error(), http.StatusBadRequest)
		return
	}

	var changes map[string]int64

	switch event := event.(type) {
	case *github.InstallationEvent:
		changes = installationChanges(event)

	case *github.InstallationRepositoriesEvent:
		changes = installationRepositoriesChanges(event)

	default:
		logger.Debug("ignoring event, event type is unsupported",
			logfields.Event("github_unsupported_event_received"),
		)

		return
	}

	var errs []error
	for repoURL, installationID := range changes {
		if err := p.store.SetInstallationID(req.Context(), repoURL, installationID); err != nil {
			errs = append(errs, err)
			continue
		}

		logger.Info("recorded github app installation of repository",
			logfields.Event("github_installation_recorded"),
			logfields.Repository(repoURL),
			logfields.InstallationID(installationID),
		)
	}

	if err := errors.Join(errs...); err != nil {
		logger.Error(
			"recording github app installations failed",
			logfields.Event("github_installation_recording_failed"),
			zap.Error(err),
		)

		http.Error(resp, "storing installation failed", http.StatusInternalServerError)
		return
	}
}

func ownerURL(login string) string {
	return repourl.Normalize(gitHubURL + login)
}

func repositoryURL(repo *github.Repository) string {
	return repourl.Normalize(gitHubURL + repo.GetFullName())
}

// installationChanges returns the installation ids that have to be
// stored for the repositories of event. Removed installations are
// recorded with id 0.
func installationChanges(event *github.InstallationEvent) map[string]int64 {
	id := event.GetInstallation().GetID()

	switch event.GetAction() {
	case "created", "unsuspend", "new_permissions_accepted":
	case "deleted", "suspend":
		id = 0
	default:
		return nil
	}

	result := map[string]int64{}

	if login := event.GetInstallation().GetAccount().GetLogin(); login != "" {
		result[ownerURL(login)] = id
	}

	for _, repo := range event.Repositories {
		result[repositoryURL(repo)] = id
	}

	return result
}

func installationRepositoriesChanges(event *github.InstallationRepositoriesEvent) map[string]int64 {
	id := event.GetInstallation().GetID()
	result := map[string]int64{}

	for _, repo := range event.RepositoriesAdded {
		result[repositoryURL(repo)] = id
	}

	for _, repo := range event.RepositoriesRemoved {
		result[repositoryURL(repo)] = 0
	}

	return result
}
