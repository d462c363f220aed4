//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"time"

	"chat-relay/domain"
	"chat-relay/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IUserRepository interface {
	CreateUser(name, email, hashedPassword string) (domain.User, error)
	GetUserByEmail(email string) (domain.User, error)
	GetUserByID(id string) (domain.User, error)
	ListUsers(excludeID string) ([]domain.User, error)
	SetPresence(id string, online bool, lastSeen time.Time) error
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) IUserRepository {
	return &UserRepository{db: db}
}

// diskUser is the stored representation of a user.
type diskUser struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	Online       bool      `json:"online"`
	LastSeen     time.Time `json:"last_seen"`
	CreatedAt    time.Time `json:"created_at"`
}

func userIDKey(id string) []byte       { return []byte("user:id:" + id) }
func userEmailKey(email string) []byte { return []byte("user:email:" + email) }

// CreateUser persists a new user. The email index key is checked inside the
// same transaction that writes the document, so a duplicate email fails with
// ErrUserAlreadyExists instead of silently overwriting.
func (u UserRepository) CreateUser(name, email, hashedPassword string) (domain.User, error) {
	user := diskUser{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hashedPassword,
		LastSeen:     time.Now().UTC(),
		CreatedAt:    time.Now().UTC(),
	}
	data, err := json.Marshal(user)
	if err != nil {
		return domain.User{}, fmt.Errorf("marshal failed: %w", err)
	}

	err = u.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(userEmailKey(email)); err == nil {
			return errors.ErrUserAlreadyExists
		}
		if err := txn.Set(userEmailKey(email), []byte(user.ID)); err != nil {
			return err
		}
		return txn.Set(userIDKey(user.ID), data)
	})
	if err != nil {
		return domain.User{}, err
	}
	return toUser(user), nil
}

func (u UserRepository) GetUserByEmail(email string) (domain.User, error) {
	var id string
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userEmailKey(email))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			id = string(val)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return domain.User{}, errors.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	return u.GetUserByID(id)
}

func (u UserRepository) GetUserByID(id string) (domain.User, error) {
	var stored diskUser
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userIDKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &stored)
		})
	})
	if err == badger.ErrKeyNotFound {
		return domain.User{}, errors.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	return toUser(stored), nil
}

// ListUsers returns every user except excludeID, for the catalogue surface.
func (u UserRepository) ListUsers(excludeID string) ([]domain.User, error) {
	var users []domain.User
	err := u.db.View(func(txn *badger.Txn) error {
		prefix := []byte("user:id:")
		options := badger.DefaultIteratorOptions
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var stored diskUser
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &stored)
			})
			if err != nil {
				return err
			}
			if stored.ID == excludeID {
				continue
			}
			users = append(users, toUser(stored))
		}
		return nil
	})
	return users, err
}

// SetPresence flips the online flag and last-seen timestamp of a user.
// It is a read-modify-write inside one transaction.
func (u UserRepository) SetPresence(id string, online bool, lastSeen time.Time) error {
	return u.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(userIDKey(id))
		if err != nil {
			return err
		}
		var stored diskUser
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &stored)
		}); err != nil {
			return err
		}
		stored.Online = online
		stored.LastSeen = lastSeen
		data, err := json.Marshal(stored)
		if err != nil {
			return err
		}
		return txn.Set(userIDKey(id), data)
	})
}

func toUser(stored diskUser) domain.User {
	return domain.User{
		ID:           stored.ID,
		Name:         stored.Name,
		Email:        stored.Email,
		PasswordHash: stored.PasswordHash,
		Online:       stored.Online,
		LastSeen:     stored.LastSeen,
		CreatedAt:    stored.CreatedAt,
	}
}
