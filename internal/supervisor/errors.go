package supervisor

import (
	"errors"

	"github.com/turboflakes/skipper/internal/matrix"
	"github.com/turboflakes/skipper/internal/substrate"
)

// Kind decides how the supervisor recovers from a finished session.
type Kind int

const (
	// Other is any fault not covered below. It puts the agent on hold for
	// the configured error interval.
	Other Kind = iota
	// SubscriptionEnded is a stream closed by the node or the connection.
	SubscriptionEnded
	// NotificationFailed is a notification that could not be delivered.
	NotificationFailed
)

func (k Kind) String() string {
	switch k {
	case SubscriptionEnded:
		return "subscription_ended"
	case NotificationFailed:
		return "notification_failed"
	}
	return "other"
}

// Classify maps a subscription result to its recovery kind. A nil result
// means the stream finished without a reason and counts as
// SubscriptionEnded.
func Classify(err error) Kind {
	if err == nil {
		return SubscriptionEnded
	}
	var sinkErr *matrix.Error
	if errors.As(err, &sinkErr) {
		return NotificationFailed
	}
	if errors.Is(err, substrate.ErrSubscriptionEnded) {
		return SubscriptionEnded
	}
	return Other
}
