package server

import (
	"time"

	"chat-relay/domain"

	"github.com/samber/lo"
)

type userResponse struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"lastSeen"`
}

type conversationResponse struct {
	ID            string    `json:"id"`
	Participants  []string  `json:"participants"`
	LastMessage   string    `json:"lastMessage"`
	LastMessageAt time.Time `json:"lastMessageAt"`
}

type messageResponse struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	Text           string    `json:"text"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"createdAt"`
}

// toUserResponse strips the password hash from the stored record.
func toUserResponse(user domain.User) userResponse {
	return userResponse{
		ID:       user.ID,
		Name:     user.Name,
		Email:    user.Email,
		Online:   user.Online,
		LastSeen: user.LastSeen,
	}
}

func toUserResponses(users []domain.User) []userResponse {
	return lo.Map(users, func(item domain.User, _ int) userResponse {
		return toUserResponse(item)
	})
}

func toConversationResponse(convo domain.Conversation) conversationResponse {
	return conversationResponse{
		ID:            convo.ID.String(),
		Participants:  convo.Participants[:],
		LastMessage:   convo.LastMessage,
		LastMessageAt: convo.LastMessageAt,
	}
}

func toConversationResponses(convos []domain.Conversation) []conversationResponse {
	return lo.Map(convos, func(item domain.Conversation, _ int) conversationResponse {
		return toConversationResponse(item)
	})
}

func toMessageResponses(messages []domain.Message) []messageResponse {
	return lo.Map(messages, func(item domain.Message, _ int) messageResponse {
		return messageResponse{
			ID:             item.ID.String(),
			ConversationID: item.ConversationID.String(),
			From:           item.From,
			To:             item.To,
			Text:           item.Text,
			Read:           item.Read,
			CreatedAt:      item.CreatedAt,
		}
	})
}
