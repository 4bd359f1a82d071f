// Package buildnotify receives "build produced" notifications via HTTP and
// forwards them as events to the event loop.
package buildnotify

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/simplesurance/depflow/internal/logfields"
	"github.com/simplesurance/depflow/internal/provider"
)

const loggerName = "build-notification-provider"

// ProviderName is the value of provider.Event.Provider for events of this
// provider.
const ProviderName = "build_notification"

const (
	// SecretHeader is the HTTP header that carries the shared secret.
	SecretHeader = "X-Depflow-Secret"
	// DeliveryIDHeader is an optional HTTP header that carries a unique
	// id of the notification. If it is missing an id is generated.
	DeliveryIDHeader = "X-Depflow-Delivery"
)

const maxPayloadSize = 64 * 1024

// Notification is the payload of a build notification request.
type Notification struct {
	SubscriptionID string `json:"subscription_id"`
	BuildID        int    `json:"build_id"`
}

// Provider listens for build notification http-requests at a http-server
// handler, validates and converts the requests to Events and forwards them
// to an event channel.
type Provider struct {
	logging *zap.Logger
	secret  []byte
	c       chan<- *provider.Event
}

type option func(*Provider)

// WithSharedSecret configures a secret that requests must send in the
// SecretHeader.
func WithSharedSecret(secret string) option {
	return func(p *Provider) {
		p.secret = []byte(secret)
	}
}

func New(eventChan chan<- *provider.Event, opts ...option) *Provider {
	p := Provider{
		c: eventChan,
	}

	for _, o := range opts {
		o(&p)
	}

	if p.logging == nil {
		p.logging = zap.L().Named(loggerName)
	}

	return &p
}

func (p *Provider) authorized(req *http.Request) bool {
	if len(p.secret) == 0 {
		return true
	}

	return subtle.ConstantTimeCompare([]byte(req.Header.Get(SecretHeader)), p.secret) == 1
}

func parseNotification(payload []byte) (uuid.UUID, int, error) {
	var n Notification

	if err := json.Unmarshal(payload, &n); err != nil {
		return uuid.Nil, 0, fmt.Errorf("unmarshaling payload failed: %w", err)
	}

	if n.SubscriptionID == "" {
		return uuid.Nil, 0, errors.New("missing field: subscription_id")
	}

	id, err := uuid.Parse(n.SubscriptionID)
	if err != nil {
		return uuid.Nil, 0, fmt.Errorf("subscription_id is invalid: %w", err)
	}

	if n.BuildID <= 0 {
		return uuid.Nil, 0, errors.New("build_id must be a positive number")
	}

	return id, n.BuildID, nil
}

func (p *Provider) HTTPHandler(resp http.ResponseWriter, req *http.Request) {
	deliveryID := req.Header.Get(DeliveryIDHeader)
	if deliveryID == "" {
		deliveryID = uuid.NewString()
	}

	logger := p.logging.With(
		logfields.EventProvider(ProviderName),
		logfields.DeliveryID(deliveryID),
	)

	logger.Debug("received a http request", logfields.Event("build_notification_received"))

	if !p.authorized(req) {
		logger.Info(
			"received unauthorized http request, shared secret mismatch",
			logfields.Event("build_notification_unauthorized"),
		)
		http.Error(resp, "invalid secret", http.StatusUnauthorized)
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(resp, req.Body, maxPayloadSize))
	if err != nil {
		logger.Info(
			"reading http request body failed",
			logfields.Event("build_notification_read_failed"),
			zap.Error(err),
		)
		http.Error(resp, err.Error(), http.StatusBadRequest)
		return
	}

	subscriptionID, buildID, err := parseNotification(payload)
	if err != nil {
		logger.Info(
			"received invalid http request, parsing failed",
			logfields.Event("build_notification_parsing_failed"),
			zap.Error(err),
		)
		http.Error(resp, err.Error(), http.StatusBadRequest)
		return
	}

	ev := provider.Event{
		JSON:           payload,
		Provider:       ProviderName,
		DeliveryID:     deliveryID,
		SubscriptionID: subscriptionID,
		BuildID:        buildID,
	}

	logger = logger.With(ev.LogFields()...)

	select {
	case p.c <- &ev:
		logger.Debug("event forwarded to channel",
			logfields.Event("build_notification_forwarded"),
		)

	default:
		logger.Warn(
			"event lost, forwarding event to channel failed",
			zap.String("error", "could not forward event to channel, send would have blocked"),
			logfields.Event("build_notification_forwarding_failed"),
		)

		http.Error(resp, "queue full", http.StatusServiceUnavailable)
		return
	}

	resp.WriteHeader(http.StatusAccepted)
}
