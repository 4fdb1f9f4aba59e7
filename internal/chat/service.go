// Package chat relays one user turn to the generative API and records the
// exchange in the conversation store.
package chat

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/RichardoC/gemchat/internal/db"
	"github.com/RichardoC/gemchat/internal/llm"
	"github.com/RichardoC/gemchat/internal/models"
)

// ErrValidation means the request is missing a required field.
var ErrValidation = errors.New("validation failed")

const (
	titleMaxRunes  = 50
	titleEllipsis  = "..."
	firstExchange  = 2
	persistWarning = "The reply could not be saved to this conversation."
)

// Generator produces the model's reply for an ordered history.
type Generator interface {
	Generate(ctx context.Context, history []models.HistoryEntry) (string, error)
}

type Service struct {
	store  db.Store
	gen    Generator
	logger *zap.Logger
}

func NewService(store db.Store, gen Generator, logger *zap.Logger) *Service {
	return &Service{store: store, gen: gen, logger: logger}
}

// Request is one user turn. A nil History means none was supplied; an
// empty non-nil History is used as is.
type Request struct {
	Message        string
	ConversationID string
	History        []models.HistoryEntry
}

type Result struct {
	Response string
	History  []models.HistoryEntry
	// Warning is set when the reply was produced but could not be persisted.
	Warning string
}

// Send answers a turn. Generation failures are replaced by a fallback reply;
// persistence failures only produce a warning. The returned error is
// ErrValidation or a store error raised while loading history.
func (s *Service) Send(ctx context.Context, req Request) (*Result, error) {
	if req.Message == "" {
		return nil, errors.Wrap(ErrValidation, "message is required")
	}

	history, err := s.history(ctx, req)
	if err != nil {
		return nil, err
	}
	history = append(history, models.HistoryEntry{Role: models.RoleUser, Parts: req.Message})

	reply, genErr := s.gen.Generate(ctx, history)
	switch {
	case errors.Is(genErr, llm.ErrEmptyResponse):
		s.logger.Warn("empty response from model",
			zap.String("conversationId", req.ConversationID))
		reply = llm.FallbackEmptyResponse
	case genErr != nil:
		s.logger.Error("failed to generate response",
			zap.Error(genErr),
			zap.String("conversationId", req.ConversationID))
		reply = llm.FallbackError
	}
	history = append(history, models.HistoryEntry{Role: models.RoleModel, Parts: reply})

	result := &Result{Response: reply, History: history}

	// an apology for a failed call is not part of the conversation
	if req.ConversationID != "" && (genErr == nil || errors.Is(genErr, llm.ErrEmptyResponse)) {
		if err := s.persist(ctx, req.ConversationID, req.Message, reply); err != nil {
			s.logger.Warn("failed to persist chat turn",
				zap.Error(err),
				zap.String("conversationId", req.ConversationID))
			result.Warning = persistWarning
		}
	}

	return result, nil
}

func (s *Service) history(ctx context.Context, req Request) ([]models.HistoryEntry, error) {
	if req.History != nil {
		history := make([]models.HistoryEntry, len(req.History), len(req.History)+2)
		copy(history, req.History)
		return history, nil
	}
	if req.ConversationID == "" {
		return []models.HistoryEntry{}, nil
	}

	messages, err := s.store.ListMessages(ctx, req.ConversationID, db.DefaultMessageLimit)
	if err != nil {
		return nil, errors.Wrap(err, "load history")
	}
	return models.HistoryFromMessages(messages), nil
}

func (s *Service) persist(ctx context.Context, conversationID, message, reply string) error {
	if _, err := s.store.CreateMessage(ctx, conversationID, models.RoleUser, message); err != nil {
		return errors.Wrap(err, "save user message")
	}
	if _, err := s.store.CreateMessage(ctx, conversationID, models.RoleModel, reply); err != nil {
		return errors.Wrap(err, "save model message")
	}

	messages, err := s.store.ListMessages(ctx, conversationID, firstExchange+1)
	if err != nil {
		return errors.Wrap(err, "count messages")
	}
	if len(messages) != firstExchange {
		return nil
	}

	title := Title(message)
	if _, err := s.store.UpdateConversation(ctx, conversationID, db.ConversationUpdate{Title: &title}); err != nil {
		return errors.Wrap(err, "set title")
	}
	return nil
}

// Title derives a conversation title from the first user message: at most
// 50 characters, with "..." appended when cut.
func Title(message string) string {
	runes := []rune(message)
	if len(runes) <= titleMaxRunes {
		return message
	}
	return string(runes[:titleMaxRunes]) + titleEllipsis
}
