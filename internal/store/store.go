// Package store persists conversations and user records.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cycore-edu/cycore/backend/internal/model/chat"
)

// ErrCorruptRecord marks a stored conversation that could not be decoded.
var ErrCorruptRecord = errors.New("corrupt conversation record")

// User is the persisted identity record.
type User struct {
	ID          string
	DisplayName string
	CreatedAt   time.Time
	LastSeenAt  time.Time
}

// Repository defines the interface for persisting conversations per user.
type Repository interface {
	// LoadConversations returns the user's conversations oldest first.
	// Records that fail to decrypt or decode are skipped.
	LoadConversations(ctx context.Context, userID string) ([]chat.Conversation, error)

	// SaveConversations writes every non-empty conversation and deletes
	// the empty ones.
	SaveConversations(ctx context.Context, userID string, convs []chat.Conversation) error

	// DeleteConversation removes a single conversation.
	DeleteConversation(ctx context.Context, userID, conversationID string) error

	// GetUser retrieves a user record, or nil when none exists.
	GetUser(ctx context.Context, userID string) (*User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *User) error

	// Ping verifies backend connectivity.
	Ping(ctx context.Context) error

	// Close releases the backend connection.
	Close() error
}

type record struct {
	Name      string         `json:"name"`
	History   []chat.Message `json:"history"`
	CreatedAt time.Time      `json:"created_at"`
}

// codec turns conversations into sealed payloads and back.
type codec struct {
	cipher *Cipher
}

func (c codec) encode(conv chat.Conversation) ([]byte, error) {
	raw, err := json.Marshal(record{Name: conv.Name, History: conv.History, CreatedAt: conv.CreatedAt})
	if err != nil {
		return nil, fmt.Errorf("marshal conversation %s: %w", conv.ID, err)
	}
	return c.cipher.Seal(raw)
}

func (c codec) decode(id string, payload []byte) (chat.Conversation, error) {
	raw, err := c.cipher.Open(payload)
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("%w: %s: %v", ErrCorruptRecord, id, err)
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return chat.Conversation{}, fmt.Errorf("%w: %s: %v", ErrCorruptRecord, id, err)
	}
	for _, msg := range rec.History {
		if !msg.Role.Valid() {
			return chat.Conversation{}, fmt.Errorf("%w: %s: unknown role %q", ErrCorruptRecord, id, msg.Role)
		}
	}

	name := rec.Name
	if name == "" {
		name = chat.DefaultName
	}
	return chat.Conversation{ID: id, Name: name, History: rec.History, CreatedAt: rec.CreatedAt}, nil
}
