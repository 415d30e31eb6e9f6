package history

import (
	"context"
	"time"
)

// Event is one detected crash, exported to external analytics systems.
// ObservedBy is the session id of the primary that made the detection.
type Event struct {
	Result           string    `json:"result"`
	Reason           string    `json:"reason"`
	ProxiedSessionID string    `json:"proxiedSessionId"`
	PID              int       `json:"pid"`
	IsDebug          bool      `json:"isDebug"`
	ObservedBy       string    `json:"observedBy"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// Sink is a destination for crash events (analytics/statistics systems).
// Implementations must be safe for concurrent use. Delivery is best-effort;
// the monitor never retries a failed Send.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
