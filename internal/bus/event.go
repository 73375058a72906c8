package bus

import "time"

// Event kinds published in this process. Subscribers filter by prefix,
// e.g. "provider." receives every provider lifecycle and message event.
const (
	KindProviderMessage    = "provider.message"
	KindProviderQR         = "provider.qr"
	KindProviderState      = "provider.state"
	KindProviderAuthFailed = "provider.auth_failed"

	KindChatUpdated = "chat.updated"
	KindChatCreated = "chat.created"
)

// Event is a domain event. Seq is assigned by the bus at publish time and is
// strictly increasing in publish order.
type Event struct {
	Kind      string
	Seq       uint64
	Timestamp time.Time
	Payload   any
}
