package chain

import (
	"time"

	"github.com/google/uuid"
)

// MessageTransaction is the atomic unit of pending work: a free-form
// message awaiting inclusion in a block. Two submissions of the same
// message text are distinct transactions (distinct IDs).
type MessageTransaction struct {
	ID          string `json:"id"`
	Message     string `json:"message"`
	Timestamp   int64  `json:"timestamp"`
	SubmittedAt int64  `json:"submitted_at"`
}

// NewMessageTransaction mints a transaction with a fresh UUIDv4 and the
// current Unix-second timestamp for both Timestamp and SubmittedAt.
func NewMessageTransaction(message string) *MessageTransaction {
	now := time.Now().Unix()
	return &MessageTransaction{
		ID:          uuid.NewString(),
		Message:     message,
		Timestamp:   now,
		SubmittedAt: now,
	}
}
