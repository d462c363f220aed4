package repositories

import (
	"log/slog"
	"testing"
	"time"

	"chat-relay/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func testMessage(conversationID uuid.UUID, from, to, text string, at time.Time) domain.Message {
	return domain.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		From:           from,
		To:             to,
		Text:           text,
		CreatedAt:      at,
	}
}

func TestMessages_Listed_In_Chronological_Order(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	conversationID := uuid.New()

	// Given messages stored out of arrival order
	at := time.Now().UTC()
	m1 := testMessage(conversationID, "a1", "b1", "first", at)
	m2 := testMessage(conversationID, "a1", "b1", "second", at.Add(time.Second))
	m3 := testMessage(conversationID, "b1", "a1", "third", at.Add(2*time.Second))
	for _, m := range []domain.Message{m3, m1, m2} {
		req.NoError(repository.StoreMessage(m))
	}

	// Then a timestamp-ascending read returns them in creation order
	messages, err := repository.ListMessages(conversationID, 0, 0)
	req.NoError(err)
	req.Len(messages, 3)
	req.Equal([]string{"first", "second", "third"},
		[]string{messages[0].Text, messages[1].Text, messages[2].Text})
}

func TestMessages_Limit_And_Skip(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	conversationID := uuid.New()

	at := time.Now().UTC()
	for i, text := range []string{"one", "two", "three", "four"} {
		m := testMessage(conversationID, "a1", "b1", text, at.Add(time.Duration(i)*time.Second))
		req.NoError(repository.StoreMessage(m))
	}

	messages, err := repository.ListMessages(conversationID, 2, 1)
	req.NoError(err)
	req.Len(messages, 2)
	req.Equal("two", messages[0].Text)
	req.Equal("three", messages[1].Text)
}

func TestMessages_Scoped_To_Their_Conversation(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	convoA := uuid.New()
	convoB := uuid.New()

	at := time.Now().UTC()
	req.NoError(repository.StoreMessage(testMessage(convoA, "a1", "b1", "in A", at)))
	req.NoError(repository.StoreMessage(testMessage(convoB, "c1", "d1", "in B", at)))

	messages, err := repository.ListMessages(convoA, 0, 0)
	req.NoError(err)
	req.Len(messages, 1)
	req.Equal("in A", messages[0].Text)
}

func TestMarkRead_Flips_Only_Reader_Unread(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	conversationID := uuid.New()

	// Given two messages to b1 and one from b1
	at := time.Now().UTC()
	req.NoError(repository.StoreMessage(testMessage(conversationID, "a1", "b1", "hi", at)))
	req.NoError(repository.StoreMessage(testMessage(conversationID, "a1", "b1", "there", at.Add(time.Second))))
	req.NoError(repository.StoreMessage(testMessage(conversationID, "b1", "a1", "hey", at.Add(2*time.Second))))

	// When b1 marks the conversation read
	flipped, err := repository.MarkRead(conversationID, "b1")
	req.NoError(err)
	req.Equal(2, flipped)

	// Then only messages addressed to b1 are read
	messages, err := repository.ListMessages(conversationID, 0, 0)
	req.NoError(err)
	for _, m := range messages {
		req.Equal(m.To == "b1", m.Read)
	}
}

func TestMarkRead_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	conversationID := uuid.New()

	req.NoError(repository.StoreMessage(
		testMessage(conversationID, "a1", "b1", "hi", time.Now().UTC())))

	// First call flips the message, further calls find nothing unread
	flipped, err := repository.MarkRead(conversationID, "b1")
	req.NoError(err)
	req.Equal(1, flipped)

	flipped, err = repository.MarkRead(conversationID, "b1")
	req.NoError(err)
	req.Zero(flipped)

	flipped, err = repository.MarkRead(conversationID, "b1")
	req.NoError(err)
	req.Zero(flipped)
}
