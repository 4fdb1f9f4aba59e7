// Package db is the conversation store.
//
// Store has two implementations chosen once at startup by Open:
//   - MemoryStore keeps everything in process memory and loses it on restart
//   - DocumentStore maps every operation onto a remote document database
package db

import (
	"context"

	"github.com/pkg/errors"

	"github.com/RichardoC/gemchat/internal/models"
)

var (
	// ErrNotFound means the conversation does not exist.
	ErrNotFound = errors.New("conversation not found")
	// ErrNotConfigured means the document store was selected but never initialized.
	ErrNotConfigured = errors.New("document store is not configured")
	// ErrUnavailable means the document store failed or could not be reached.
	ErrUnavailable = errors.New("document store unavailable")
)

const (
	DefaultConversationLimit = 50
	DefaultMessageLimit      = 100
)

// ConversationUpdate carries the mutable conversation fields. Nil fields are
// left unchanged; an empty update only refreshes UpdatedAt.
type ConversationUpdate struct {
	Title *string
}

type Store interface {
	CreateConversation(ctx context.Context, title, userID string) (*models.Conversation, error)
	// ListConversations returns the user's conversations, most recently
	// updated first.
	ListConversations(ctx context.Context, userID string, limit int) ([]models.Conversation, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	UpdateConversation(ctx context.Context, id string, update ConversationUpdate) (*models.Conversation, error)
	// DeleteConversation removes the conversation's messages, then the
	// conversation itself.
	DeleteConversation(ctx context.Context, id string) error

	// CreateMessage appends a message and touches the conversation's UpdatedAt.
	CreateMessage(ctx context.Context, conversationID string, role models.Role, content string) (*models.Message, error)
	// ListMessages returns messages oldest first. An unknown conversation
	// has no messages.
	ListMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error)

	// Remote reports whether an initialized document store backs this Store.
	Remote() bool
	Close() error
}

func conversationLimit(limit int) int {
	if limit <= 0 {
		return DefaultConversationLimit
	}
	return limit
}

func messageLimit(limit int) int {
	if limit <= 0 {
		return DefaultMessageLimit
	}
	return limit
}

func titleOrDefault(title string) string {
	if title == "" {
		return models.DefaultTitle
	}
	return title
}

func userOrDefault(userID string) string {
	if userID == "" {
		return models.DefaultUserID
	}
	return userID
}
