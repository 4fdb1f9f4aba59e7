package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/RichardoC/gemchat/internal/models"
)

type memoryRecord struct {
	conversation models.Conversation
	messages     []models.Message
}

// MemoryStore implements Store with a map guarded by an RWMutex. Data is lost
// when the process exits.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*memoryRecord
	now           func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*memoryRecord),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) CreateConversation(ctx context.Context, title, userID string) (*models.Conversation, error) {
	now := s.now()
	conv := models.Conversation{
		ID:        uuid.NewString(),
		Title:     titleOrDefault(title),
		UserID:    userOrDefault(userID),
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.conversations[conv.ID] = &memoryRecord{conversation: conv}
	s.mu.Unlock()

	return &conv, nil
}

func (s *MemoryStore) ListConversations(ctx context.Context, userID string, limit int) ([]models.Conversation, error) {
	userID = userOrDefault(userID)

	s.mu.RLock()
	conversations := make([]models.Conversation, 0, len(s.conversations))
	for _, rec := range s.conversations {
		if rec.conversation.UserID == userID {
			conversations = append(conversations, rec.conversation)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(conversations, func(i, j int) bool {
		return conversations[i].UpdatedAt.After(conversations[j].UpdatedAt)
	})

	if limit = conversationLimit(limit); len(conversations) > limit {
		conversations = conversations[:limit]
	}
	return conversations, nil
}

func (s *MemoryStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	conv := rec.conversation
	return &conv, nil
}

func (s *MemoryStore) UpdateConversation(ctx context.Context, id string, update ConversationUpdate) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	if update.Title != nil {
		rec.conversation.Title = *update.Title
	}
	touch(&rec.conversation, s.now())

	conv := rec.conversation
	return &conv, nil
}

func (s *MemoryStore) DeleteConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; !ok {
		return ErrNotFound
	}
	// messages live inside the record, so this drops them too
	delete(s.conversations, id)
	return nil
}

func (s *MemoryStore) CreateMessage(ctx context.Context, conversationID string, role models.Role, content string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.conversations[conversationID]
	if !ok {
		return nil, ErrNotFound
	}

	now := s.now()
	msg := models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      now,
	}
	rec.messages = append(rec.messages, msg)
	touch(&rec.conversation, now)

	return &msg, nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.conversations[conversationID]
	if !ok {
		return []models.Message{}, nil
	}

	n := len(rec.messages)
	if limit = messageLimit(limit); n > limit {
		n = limit
	}
	messages := make([]models.Message, n)
	copy(messages, rec.messages[:n])
	return messages, nil
}

func (s *MemoryStore) Remote() bool {
	return false
}

func (s *MemoryStore) Close() error {
	return nil
}

// touch advances UpdatedAt to now, never moving it backwards.
func touch(conv *models.Conversation, now time.Time) {
	if now.After(conv.UpdatedAt) {
		conv.UpdatedAt = now
	}
}

var _ Store = (*MemoryStore)(nil)
