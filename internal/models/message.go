package models

// Message is a single entry of a conversation as it travels between the browser, the relay and
// the Go client. Only ID, Role and Content are part of the wire format; the streaming fields are
// client-side bookkeeping for the AI message of a turn.
type Message struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`

	StreamingState string `json:"-"`
	Err            string `json:"-"`
}

const (
	StreamingStateStreaming = "streaming"
	StreamingStateEnded     = "ended"
)
