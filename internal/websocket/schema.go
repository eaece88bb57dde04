package websocket

// Events (server to client) on the attempt clock stream.

type Event string

const (
	EventTick      Event = "tick"
	EventFinalized Event = "finalized"
	EventError     Event = "error"
)

// TickResponse carries the remaining time for an open timed attempt.
type TickResponse struct {
	Event            Event  `json:"event"`
	RemainingSeconds int64  `json:"remaining_seconds"`
	Deadline         string `json:"deadline"`
}

// FinalizedResponse tells the client the attempt is closed. Sent both when
// the deadline is reached and when a submission lands mid-stream.
type FinalizedResponse struct {
	Event    Event    `json:"event"`
	GradedBy string   `json:"graded_by,omitempty"`
	Score    *float64 `json:"score,omitempty"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}
