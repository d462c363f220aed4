package domain

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is the canonical pairing of two identities.
// At most one conversation exists per unordered participant pair.
type Conversation struct {
	ID            uuid.UUID
	Participants  [2]string
	LastMessage   string
	LastMessageAt time.Time
	CreatedAt     time.Time
}

// Member reports whether userID belongs to the participant pair.
func (c Conversation) Member(userID string) bool {
	return c.Participants[0] == userID || c.Participants[1] == userID
}

// Other returns the counterpart of userID, or "" if userID is not a member.
func (c Conversation) Other(userID string) string {
	switch userID {
	case c.Participants[0]:
		return c.Participants[1]
	case c.Participants[1]:
		return c.Participants[0]
	}
	return ""
}
