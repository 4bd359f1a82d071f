package logfields

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func SubscriptionID(val uuid.UUID) zap.Field {
	return zap.Stringer("flow.subscription_id", val)
}

func BuildID(val int) zap.Field {
	return zap.Int("flow.build_id", val)
}

func RoutingKey(val string) zap.Field {
	return zap.String("flow.routing_key", val)
}

func Action(val string) zap.Field {
	return zap.String("flow.action", val)
}

func Dependency(val string) zap.Field {
	return zap.String("flow.dependency", val)
}
