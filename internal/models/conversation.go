package models

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

const (
	DefaultTitle  = "New Chat"
	DefaultUserID = "guest"
)

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}

type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HistoryEntry is one turn in the shape the chat endpoint exchanges with
// clients: the text travels in Parts.
type HistoryEntry struct {
	Role  Role   `json:"role"`
	Parts string `json:"parts"`
}

// HistoryFromMessages maps persisted messages onto history entries, keeping order.
func HistoryFromMessages(messages []Message) []HistoryEntry {
	history := make([]HistoryEntry, 0, len(messages))
	for _, msg := range messages {
		history = append(history, HistoryEntry{Role: msg.Role, Parts: msg.Content})
	}
	return history
}
