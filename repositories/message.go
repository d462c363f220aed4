//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"chat-relay/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IMessageRepository interface {
	StoreMessage(message domain.Message) error
	ListMessages(conversationID uuid.UUID, limit, skip int) ([]domain.Message, error)
	MarkRead(conversationID uuid.UUID, readerID string) (int, error)
}

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) IMessageRepository {
	return &MessageRepository{db: db, log: log}
}

type diskMessage struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	Text           string    `json:"text"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"created_at"`
}

func messagePrefix(conversationID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("msg:%s:", conversationID))
}

// messageKey formats the storage key as "msg:{conversation}:{timestamp}:{uuid}":
//  1. 19-digit zero padding keeps lexicographical order chronological.
//  2. The UUID suffix disambiguates two messages landing on the same nanosecond.
func messageKey(message domain.Message) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s",
		message.ConversationID,
		message.CreatedAt.UnixNano(),
		message.ID,
	))
}

func (m MessageRepository) StoreMessage(message domain.Message) error {
	data, err := json.Marshal(fromMessage(message))
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(message), data)
	})
}

// ListMessages returns messages of a conversation in chronological order.
// The padded timestamp in the key makes a forward prefix scan sufficient.
// limit <= 0 means no limit; skip skips the oldest entries.
func (m MessageRepository) ListMessages(conversationID uuid.UUID, limit, skip int) ([]domain.Message, error) {
	var messages []domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(conversationID)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		skipped := 0
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if skipped < skip {
				skipped++
				continue
			}
			if limit > 0 && len(messages) == limit {
				break
			}
			var stored diskMessage
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &stored)
			})
			if err != nil {
				return err
			}
			messages = append(messages, toMessage(stored))
		}
		return nil
	})
	return messages, err
}

// MarkRead flips read=true on every unread message addressed to readerID in
// the conversation. All flips happen in one transaction, so the update is
// atomic over the snapshot taken at the start of the call; messages created
// afterwards are unaffected. Returns the number of messages flipped.
func (m MessageRepository) MarkRead(conversationID uuid.UUID, readerID string) (int, error) {
	flipped := 0
	err := m.db.Update(func(txn *badger.Txn) error {
		flipped = 0
		prefix := messagePrefix(conversationID)

		type pending struct {
			key  []byte
			data []byte
		}
		var updates []pending

		it := txn.NewIterator(badger.DefaultIteratorOptions)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var stored diskMessage
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &stored)
			})
			if err != nil {
				it.Close()
				return err
			}
			if stored.To != readerID || stored.Read {
				continue
			}
			stored.Read = true
			data, err := json.Marshal(stored)
			if err != nil {
				it.Close()
				return err
			}
			updates = append(updates, pending{key: it.Item().KeyCopy(nil), data: data})
		}
		// Writes happen after the iterator is released; mutating under an
		// open iterator is not allowed by Badger.
		it.Close()

		for _, u := range updates {
			if err := txn.Set(u.key, u.data); err != nil {
				return err
			}
		}
		flipped = len(updates)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return flipped, nil
}

func fromMessage(message domain.Message) diskMessage {
	return diskMessage{
		ID:             message.ID,
		ConversationID: message.ConversationID,
		From:           message.From,
		To:             message.To,
		Text:           message.Text,
		Read:           message.Read,
		CreatedAt:      message.CreatedAt,
	}
}

func toMessage(stored diskMessage) domain.Message {
	return domain.Message{
		ID:             stored.ID,
		ConversationID: stored.ConversationID,
		From:           stored.From,
		To:             stored.To,
		Text:           stored.Text,
		Read:           stored.Read,
		CreatedAt:      stored.CreatedAt,
	}
}
