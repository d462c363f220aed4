// Package domain contains core concepts of the relay.
// This file defines Message and related rules.
// Messages are immutable once created, except the Read flag.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message represents one chat message inside a conversation.
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	From           string
	To             string
	Text           string
	Read           bool
	CreatedAt      time.Time
}
