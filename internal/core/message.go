package core

import "time"

// Message is the domain model for a chat message. Seq is assigned by
// the room and increases monotonically within it.
type Message struct {
	Seq       uint64
	Room      string
	From      string
	Body      string
	CreatedAt time.Time
}
