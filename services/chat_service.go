//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_chat_service.go -package=mocks
package services

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/relay"
	"chat-relay/repositories"

	"github.com/google/uuid"
)

type IChatService interface {
	Connected(session *relay.Session)
	Disconnected(session *relay.Session)
	ResolveConversation(userA, userB string) (domain.Conversation, error)
	SendMessage(fromID, toID, text string) (domain.Message, error)
	Typing(fromID, toID, conversationID string, start bool)
	MarkRead(readerID, conversationID string) (int, error)
	ListConversations(userID string) ([]domain.Conversation, error)
	ListMessages(userID, conversationID string, limit, skip int) (domain.Conversation, []domain.Message, error)
}

// ChatService owns the relay's business operations. Per-connection handlers
// call it concurrently; correctness comes from the registry's internal
// synchronization and from the store's transactional guarantees, not from
// execution order.
type ChatService struct {
	log           *slog.Logger
	registry      relay.IRegistry
	users         repositories.IUserRepository
	conversations repositories.IConversationRepository
	messages      repositories.IMessageRepository
}

func NewChatService(log *slog.Logger, registry relay.IRegistry,
	users repositories.IUserRepository,
	conversations repositories.IConversationRepository,
	messages repositories.IMessageRepository) *ChatService {
	return &ChatService{
		log:           log,
		registry:      registry,
		users:         users,
		conversations: conversations,
		messages:      messages,
	}
}

// Connected registers a live session. When it is the identity's first one,
// the user record flips to online and the transition is broadcast to every
// connected party, since any of them may be displaying this presence.
func (s *ChatService) Connected(session *relay.Session) {
	first := s.registry.Register(session)
	if !first {
		return
	}
	if err := s.users.SetPresence(session.UserID, true, time.Now().UTC()); err != nil {
		s.log.Error("presence online persist failed", "user_id", session.UserID, "error", err)
	}
	s.registry.Broadcast(relay.EventPresenceOnline, relay.PresenceOnlinePayload{UserID: session.UserID})
}

// Disconnected removes a session. The offline transition fires only when the
// last session of the identity is gone. A persistence failure is logged but
// never prevents the session from being removed.
func (s *ChatService) Disconnected(session *relay.Session) {
	last := s.registry.Unregister(session)
	if !last {
		return
	}
	lastSeen := time.Now().UTC()
	if err := s.users.SetPresence(session.UserID, false, lastSeen); err != nil {
		s.log.Error("presence offline persist failed", "user_id", session.UserID, "error", err)
	}
	s.registry.Broadcast(relay.EventPresenceOffline, relay.PresenceOfflinePayload{
		UserID:   session.UserID,
		LastSeen: lastSeen,
	})
}

// ResolveConversation returns the canonical conversation for an unordered
// pair of identities, creating it on first contact. The find, create,
// re-find sequence makes concurrent resolvers for the same pair converge on
// exactly one record: the store rejects a duplicate pair, and the loser
// re-reads the winner's record. The re-find is the only built-in retry,
// bounded to a single attempt.
func (s *ChatService) ResolveConversation(userA, userB string) (domain.Conversation, error) {
	if !validIdentity(userA) || !validIdentity(userB) || userA == userB {
		return domain.Conversation{}, errors.ErrInvalidParticipant
	}

	convo, err := s.conversations.FindByPair(userA, userB)
	if err == nil {
		return convo, nil
	}
	if err != errors.ErrConversationNotFound {
		return domain.Conversation{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}

	convo, createErr := s.conversations.Create(userA, userB)
	if createErr == nil {
		s.log.Info("conversation created", "conversation_id", convo.ID)
		return convo, nil
	}

	// A concurrent creator may have won the race; the winner's record is the
	// canonical one.
	convo, err = s.conversations.FindByPair(userA, userB)
	if err == nil {
		return convo, nil
	}
	return domain.Conversation{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, createErr)
}

// SendMessage persists a message and fans it out to every live session of
// both participants. The sender receives its own echo as the durable
// delivery confirmation; the distinct ack to the originating connection is
// emitted by the transport layer.
func (s *ChatService) SendMessage(fromID, toID, text string) (domain.Message, error) {
	if toID == "" || text == "" || !validIdentity(fromID) || !validIdentity(toID) {
		return domain.Message{}, errors.ErrInvalidInput
	}

	convo, err := s.ResolveConversation(fromID, toID)
	if err != nil {
		return domain.Message{}, err
	}

	message := domain.Message{
		ID:             uuid.New(),
		ConversationID: convo.ID,
		From:           fromID,
		To:             toID,
		Text:           text,
		Read:           false,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.messages.StoreMessage(message); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}

	// Summary fields are display data, last write wins. A committed message
	// is never rolled back because this update failed.
	if err := s.conversations.UpdateSummary(convo.ID, text, message.CreatedAt); err != nil {
		s.log.Warn("conversation summary update failed",
			"conversation_id", convo.ID, "error", err)
	}

	payload := toMessagePayload(message)
	s.registry.DeliverTo(toID, relay.EventMessageNew, payload)
	s.registry.DeliverTo(fromID, relay.EventMessageNew, payload)
	return message, nil
}

// Typing relays an ephemeral signal to the target's live sessions only.
// Nothing is persisted; an offline target drops the signal silently.
func (s *ChatService) Typing(fromID, toID, conversationID string, start bool) {
	if toID == "" {
		return
	}
	event := relay.EventTypingStop
	if start {
		event = relay.EventTypingStart
	}
	s.registry.DeliverTo(toID, event, relay.TypingEvent{
		From:           fromID,
		ConversationID: conversationID,
	})
}

// MarkRead bulk-flips read=true on every message of the conversation
// addressed to the reader and notifies the counterpart. A missing
// conversation is a no-op, not an error.
func (s *ChatService) MarkRead(readerID, conversationID string) (int, error) {
	if conversationID == "" {
		return 0, nil
	}
	id, err := uuid.Parse(conversationID)
	if err != nil {
		return 0, errors.ErrInvalidInput
	}

	convo, err := s.conversations.GetByID(id)
	if err == errors.ErrConversationNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	if !convo.Member(readerID) {
		return 0, errors.ErrNotParticipant
	}

	flipped, err := s.messages.MarkRead(id, readerID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}

	if other := convo.Other(readerID); other != "" {
		s.registry.DeliverTo(other, relay.EventMessageRead, relay.ReadEvent{
			ConversationID: convo.ID.String(),
			Reader:         readerID,
		})
	}
	return flipped, nil
}

// ListConversations returns the user's conversations, most recent first.
func (s *ChatService) ListConversations(userID string) ([]domain.Conversation, error) {
	return s.conversations.ListForUser(userID)
}

// ListMessages returns a page of a conversation's messages in chronological
// order, refusing callers that are not participants.
func (s *ChatService) ListMessages(userID, conversationID string, limit, skip int) (domain.Conversation, []domain.Message, error) {
	id, err := uuid.Parse(conversationID)
	if err != nil {
		return domain.Conversation{}, nil, errors.ErrInvalidInput
	}
	convo, err := s.conversations.GetByID(id)
	if err != nil {
		return domain.Conversation{}, nil, err
	}
	if !convo.Member(userID) {
		return domain.Conversation{}, nil, errors.ErrNotParticipant
	}
	messages, err := s.messages.ListMessages(id, limit, skip)
	if err != nil {
		return domain.Conversation{}, nil, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return convo, messages, nil
}

// validIdentity rejects keys that are empty or would corrupt the store's
// composite keys.
func validIdentity(id string) bool {
	return id != "" && !strings.Contains(id, ":")
}

func toMessagePayload(message domain.Message) relay.MessagePayload {
	return relay.MessagePayload{
		ID:             message.ID.String(),
		ConversationID: message.ConversationID.String(),
		From:           message.From,
		To:             message.To,
		Text:           message.Text,
		Read:           message.Read,
		CreatedAt:      message.CreatedAt,
	}
}
