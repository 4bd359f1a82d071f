// Package provider contains the events that event providers forward to the
// event loop.
package provider

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/simplesurance/depflow/internal/logfields"
)

// Event notifies that a build was produced that has to be applied to a
// subscription.
type Event struct {
	// JSON is the payload of the event as received from the provider.
	JSON     []byte
	Provider string

	DeliveryID     string
	SubscriptionID uuid.UUID
	BuildID        int
}

func (e *Event) String() string {
	return fmt.Sprintf("build %d for subscription %s (deliveryID: %s)", e.BuildID, e.SubscriptionID, e.DeliveryID)
}

func (e *Event) LogFields() []zap.Field {
	fields := make([]zap.Field, 0, 4) // cap == max. size of fields we append

	fields = append(fields, logfields.EventProvider(e.Provider))

	if e.DeliveryID != "" {
		fields = append(fields, logfields.DeliveryID(e.DeliveryID))
	}

	if e.SubscriptionID != uuid.Nil {
		fields = append(fields, logfields.SubscriptionID(e.SubscriptionID))
	}

	if e.BuildID != 0 {
		fields = append(fields, logfields.BuildID(e.BuildID))
	}

	return fields
}
