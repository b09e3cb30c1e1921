package core

import (
	"context"

	"haul-truck-service/internal/messaging"
)

// Bus is the messaging surface the tasks need. The concrete client owns
// connection lifecycle and reconnection; tasks only subscribe and publish.
type Bus interface {
	Subscribe(topic string, handler messaging.Handler)
	Publish(ctx context.Context, topic string, qos byte, payload []byte) error
}
