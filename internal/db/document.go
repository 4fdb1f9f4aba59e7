package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/RichardoC/gemchat/internal/docstore"
	"github.com/RichardoC/gemchat/internal/models"
)

// timeLayout is fixed width and always UTC so that lexical order of the
// stored strings matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// DocumentStore implements Store on top of a document database with one
// collection for conversations and one for messages. Messages point at their
// conversation through the conversationId attribute.
type DocumentStore struct {
	client        docstore.Client
	conversations string
	messages      string
	logger        *zap.Logger
	initErr       error
	now           func() time.Time
}

func NewDocumentStore(client docstore.Client, conversationsCollection, messagesCollection string, logger *zap.Logger) *DocumentStore {
	s := &DocumentStore{
		client:        client,
		conversations: conversationsCollection,
		messages:      messagesCollection,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
	if client == nil {
		s.initErr = ErrNotConfigured
	}
	return s
}

// newFailedDocumentStore returns a store whose every operation fails with
// ErrNotConfigured. initErr is only logged.
func newFailedDocumentStore(initErr error, logger *zap.Logger) *DocumentStore {
	return &DocumentStore{
		logger:  logger,
		initErr: initErr,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *DocumentStore) CreateConversation(ctx context.Context, title, userID string) (*models.Conversation, error) {
	if s.initErr != nil {
		return nil, ErrNotConfigured
	}

	now := formatTime(s.now())
	doc, err := s.client.CreateDocument(ctx, s.conversations, uuid.NewString(), map[string]any{
		"title":     titleOrDefault(title),
		"userId":    userOrDefault(userID),
		"createdAt": now,
		"updatedAt": now,
	})
	if err != nil {
		return nil, s.fail(ctx, "create conversation", err)
	}
	return conversationFromDocument(doc), nil
}

func (s *DocumentStore) ListConversations(ctx context.Context, userID string, limit int) ([]models.Conversation, error) {
	if s.initErr != nil {
		return nil, ErrNotConfigured
	}

	docs, err := s.client.ListDocuments(ctx, s.conversations, docstore.ListOptions{
		Filters:    []docstore.Filter{{Field: "userId", Value: userOrDefault(userID)}},
		OrderBy:    "updatedAt",
		Descending: true,
		Limit:      conversationLimit(limit),
	})
	if err != nil {
		return nil, s.fail(ctx, "list conversations", err)
	}

	conversations := make([]models.Conversation, 0, len(docs))
	for _, doc := range docs {
		conversations = append(conversations, *conversationFromDocument(doc))
	}
	return conversations, nil
}

func (s *DocumentStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	if s.initErr != nil {
		return nil, ErrNotConfigured
	}

	doc, err := s.client.GetDocument(ctx, s.conversations, id)
	if err != nil {
		return nil, s.fail(ctx, "get conversation", err)
	}
	return conversationFromDocument(doc), nil
}

func (s *DocumentStore) UpdateConversation(ctx context.Context, id string, update ConversationUpdate) (*models.Conversation, error) {
	if s.initErr != nil {
		return nil, ErrNotConfigured
	}

	current, err := s.client.GetDocument(ctx, s.conversations, id)
	if err != nil {
		return nil, s.fail(ctx, "get conversation", err)
	}

	data := map[string]any{"updatedAt": touchedAt(current, s.now())}
	if update.Title != nil {
		data["title"] = *update.Title
	}

	doc, err := s.client.UpdateDocument(ctx, s.conversations, id, data)
	if err != nil {
		return nil, s.fail(ctx, "update conversation", err)
	}
	return conversationFromDocument(doc), nil
}

// DeleteConversation has no atomic cascade to rely on. Messages go first so
// that an interruption leaves at worst an empty conversation behind.
func (s *DocumentStore) DeleteConversation(ctx context.Context, id string) error {
	if s.initErr != nil {
		return ErrNotConfigured
	}

	if err := s.deleteMessages(ctx, id); err != nil {
		return s.fail(ctx, "delete messages", err)
	}
	if err := s.client.DeleteDocument(ctx, s.conversations, id); err != nil {
		return s.fail(ctx, "delete conversation", err)
	}
	return nil
}

func (s *DocumentStore) deleteMessages(ctx context.Context, conversationID string) error {
	for {
		docs, err := s.client.ListDocuments(ctx, s.messages, docstore.ListOptions{
			Filters: []docstore.Filter{{Field: "conversationId", Value: conversationID}},
			Limit:   DefaultMessageLimit,
		})
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			return nil
		}

		var errs error
		for _, doc := range docs {
			err := s.client.DeleteDocument(ctx, s.messages, doc.ID)
			if err != nil && !errors.Is(err, docstore.ErrDocumentNotFound) {
				errs = multierr.Append(errs, err)
			}
		}
		if errs != nil {
			return errs
		}
	}
}

func (s *DocumentStore) CreateMessage(ctx context.Context, conversationID string, role models.Role, content string) (*models.Message, error) {
	if s.initErr != nil {
		return nil, ErrNotConfigured
	}

	conversation, err := s.client.GetDocument(ctx, s.conversations, conversationID)
	if err != nil {
		return nil, s.fail(ctx, "get conversation", err)
	}

	now := s.now()
	doc, err := s.client.CreateDocument(ctx, s.messages, uuid.NewString(), map[string]any{
		"conversationId": conversationID,
		"role":           string(role),
		"content":        content,
		"createdAt":      formatTime(now),
	})
	if err != nil {
		return nil, s.fail(ctx, "create message", err)
	}

	_, err = s.client.UpdateDocument(ctx, s.conversations, conversationID, map[string]any{
		"updatedAt": touchedAt(conversation, now),
	})
	if errors.Is(err, docstore.ErrDocumentNotFound) {
		// the conversation is gone; drop the message rather than orphan it
		if derr := s.client.DeleteDocument(ctx, s.messages, doc.ID); derr != nil {
			s.logger.Warn("failed to remove orphaned message",
				zap.String("messageId", doc.ID),
				zap.String("conversationId", conversationID),
				zap.Error(derr))
		}
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, s.fail(ctx, "touch conversation", err)
	}

	return messageFromDocument(doc), nil
}

func (s *DocumentStore) ListMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	if s.initErr != nil {
		return nil, ErrNotConfigured
	}

	docs, err := s.client.ListDocuments(ctx, s.messages, docstore.ListOptions{
		Filters: []docstore.Filter{{Field: "conversationId", Value: conversationID}},
		OrderBy: "createdAt",
		Limit:   messageLimit(limit),
	})
	if err != nil {
		return nil, s.fail(ctx, "list messages", err)
	}

	messages := make([]models.Message, 0, len(docs))
	for _, doc := range docs {
		messages = append(messages, *messageFromDocument(doc))
	}
	return messages, nil
}

func (s *DocumentStore) Remote() bool {
	return s.initErr == nil
}

func (s *DocumentStore) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// fail maps a driver error onto the store's error set. Driver details are
// logged here and never returned.
func (s *DocumentStore) fail(ctx context.Context, op string, err error) error {
	if errors.Is(err, docstore.ErrDocumentNotFound) {
		return ErrNotFound
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		// the caller gave up; the store itself did not fail
		s.logger.Debug("document store operation abandoned",
			zap.String("op", op),
			zap.Error(err))
		return errors.Wrap(ctxErr, op)
	}
	s.logger.Error("document store operation failed",
		zap.String("op", op),
		zap.Error(err))
	return errors.Wrap(ErrUnavailable, op)
}

func conversationFromDocument(doc docstore.Document) *models.Conversation {
	return &models.Conversation{
		ID:        doc.ID,
		Title:     doc.String("title"),
		UserID:    doc.String("userId"),
		CreatedAt: parseTime(doc.String("createdAt")),
		UpdatedAt: parseTime(doc.String("updatedAt")),
	}
}

func messageFromDocument(doc docstore.Document) *models.Message {
	return &models.Message{
		ID:             doc.ID,
		ConversationID: doc.String("conversationId"),
		Role:           models.Role(doc.String("role")),
		Content:        doc.String("content"),
		CreatedAt:      parseTime(doc.String("createdAt")),
	}
}

// touchedAt is the updatedAt value to write: now, unless the stored value is
// already later.
func touchedAt(doc docstore.Document, now time.Time) string {
	stored := doc.String("updatedAt")
	if parseTime(stored).After(now) {
		return stored
	}
	return formatTime(now)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime accepts the stored layout as well as Appwrite's datetime
// rendering. Unparseable values yield the zero time.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

var _ Store = (*DocumentStore)(nil)
