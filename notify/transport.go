package notify

import "context"

// Transport delivers a batch of messages. A nil error means every message
// was accepted; any error means the batch as a whole failed.
type Transport interface {
	Send(ctx context.Context, msgs []Message) error
}
