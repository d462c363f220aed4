//go:generate go run go.uber.org/mock/mockgen -source=conversation.go -destination=../mocks/mock_conversation_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"chat-relay/domain"
	"chat-relay/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IConversationRepository interface {
	Create(userA, userB string) (domain.Conversation, error)
	FindByPair(userA, userB string) (domain.Conversation, error)
	GetByID(id uuid.UUID) (domain.Conversation, error)
	UpdateSummary(id uuid.UUID, lastMessage string, lastMessageAt time.Time) error
	ListForUser(userID string) ([]domain.Conversation, error)
}

type ConversationRepository struct {
	db *badger.DB
}

func NewConversationRepository(db *badger.DB) IConversationRepository {
	return &ConversationRepository{db: db}
}

type diskConversation struct {
	ID            uuid.UUID `json:"id"`
	Participants  [2]string `json:"participants"`
	LastMessage   string    `json:"last_message"`
	LastMessageAt time.Time `json:"last_message_at"`
	CreatedAt     time.Time `json:"created_at"`
}

// pairKey builds the uniqueness key for an unordered participant pair.
// Ids are sorted so that both insertion orders hit the same key.
func pairKey(userA, userB string) []byte {
	lo, hi := userA, userB
	if hi < lo {
		lo, hi = hi, lo
	}
	return []byte(fmt.Sprintf("convo:pair:%s:%s", lo, hi))
}

func convoIDKey(id uuid.UUID) []byte {
	return []byte("convo:id:" + id.String())
}

func convoUserKey(userID string, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("convo:user:%s:%s", userID, id))
}

// Create inserts the conversation for the pair, enforcing pair uniqueness.
// The pair key is checked inside the transaction that writes it; a concurrent
// creator either trips that check or makes the commit fail with Badger's
// conflict error. Both cases surface as ErrConversationExists so the caller
// can re-find the winner.
func (c ConversationRepository) Create(userA, userB string) (domain.Conversation, error) {
	convo := diskConversation{
		ID:            uuid.New(),
		Participants:  [2]string{userA, userB},
		LastMessage:   "",
		LastMessageAt: time.Now().UTC(),
		CreatedAt:     time.Now().UTC(),
	}
	data, err := json.Marshal(convo)
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("marshal failed: %w", err)
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		key := pairKey(userA, userB)
		if _, err := txn.Get(key); err == nil {
			return errors.ErrConversationExists
		}
		if err := txn.Set(key, []byte(convo.ID.String())); err != nil {
			return err
		}
		if err := txn.Set(convoIDKey(convo.ID), data); err != nil {
			return err
		}
		if err := txn.Set(convoUserKey(userA, convo.ID), []byte(convo.ID.String())); err != nil {
			return err
		}
		return txn.Set(convoUserKey(userB, convo.ID), []byte(convo.ID.String()))
	})
	switch {
	case err == nil:
		return toConversation(convo), nil
	case err == badger.ErrConflict:
		// Serializable-snapshot conflict: the concurrent creator won.
		return domain.Conversation{}, errors.ErrConversationExists
	default:
		return domain.Conversation{}, err
	}
}

// FindByPair returns the conversation whose participant set equals the pair,
// regardless of argument order.
func (c ConversationRepository) FindByPair(userA, userB string) (domain.Conversation, error) {
	var id uuid.UUID
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(pairKey(userA, userB))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			parsed, err := uuid.Parse(string(val))
			if err != nil {
				return err
			}
			id = parsed
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return domain.Conversation{}, errors.ErrConversationNotFound
	}
	if err != nil {
		return domain.Conversation{}, err
	}
	return c.GetByID(id)
}

func (c ConversationRepository) GetByID(id uuid.UUID) (domain.Conversation, error) {
	var stored diskConversation
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(convoIDKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &stored)
		})
	})
	if err == badger.ErrKeyNotFound {
		return domain.Conversation{}, errors.ErrConversationNotFound
	}
	if err != nil {
		return domain.Conversation{}, err
	}
	return toConversation(stored), nil
}

// UpdateSummary rewrites the last-message display fields. Last write wins.
func (c ConversationRepository) UpdateSummary(id uuid.UUID, lastMessage string, lastMessageAt time.Time) error {
	return c.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(convoIDKey(id))
		if err != nil {
			return err
		}
		var stored diskConversation
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &stored)
		}); err != nil {
			return err
		}
		stored.LastMessage = lastMessage
		stored.LastMessageAt = lastMessageAt
		data, err := json.Marshal(stored)
		if err != nil {
			return err
		}
		return txn.Set(convoIDKey(id), data)
	})
}

// ListForUser returns the user's conversations, most recent activity first.
func (c ConversationRepository) ListForUser(userID string) ([]domain.Conversation, error) {
	var ids []uuid.UUID
	err := c.db.View(func(txn *badger.Txn) error {
		prefix := []byte("convo:user:" + userID + ":")
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id, err := uuid.Parse(string(it.Item().Key()[len(prefix):]))
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	convos := make([]domain.Conversation, 0, len(ids))
	for _, id := range ids {
		convo, err := c.GetByID(id)
		if err != nil {
			return nil, err
		}
		convos = append(convos, convo)
	}
	sort.Slice(convos, func(i, j int) bool {
		return convos[i].LastMessageAt.After(convos[j].LastMessageAt)
	})
	return convos, nil
}

func toConversation(stored diskConversation) domain.Conversation {
	return domain.Conversation{
		ID:            stored.ID,
		Participants:  stored.Participants,
		LastMessage:   stored.LastMessage,
		LastMessageAt: stored.LastMessageAt,
		CreatedAt:     stored.CreatedAt,
	}
}
