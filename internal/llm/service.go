package llm

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/RichardoC/gemchat/internal/config"
	"github.com/RichardoC/gemchat/internal/models"
)

var (
	// ErrGenerationFailed means the generative API produced no usable reply.
	ErrGenerationFailed = errors.New("generation failed")
	// ErrEmptyResponse is the ErrGenerationFailed case where the call
	// succeeded but returned no text.
	ErrEmptyResponse = errors.Wrap(ErrGenerationFailed, "empty response")
)

// Replies shown to the user instead of a failed generation.
const (
	FallbackEmptyResponse = "I'm sorry, I couldn't generate a response."
	FallbackError         = "Sorry, I encountered an error. Please try again."
)

type Service struct {
	llm     llms.Model
	model   string
	timeout time.Duration
}

func New(ctx context.Context, cfg config.LLMConfig) (*Service, error) {
	var (
		llm llms.Model
		err error
	)
	switch cfg.Provider {
	case config.ProviderOpenAI:
		llm, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithBaseURL(cfg.OpenAIBaseURL),
			openai.WithModel(cfg.OpenAIModel),
		)
	default:
		llm, err = googleai.New(ctx,
			googleai.WithAPIKey(cfg.GeminiAPIKey),
			googleai.WithDefaultModel(cfg.GeminiModel),
		)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "initialize %s provider", cfg.Provider)
	}
	return NewWithModel(llm, cfg.Model(), cfg.Timeout), nil
}

// NewWithModel wraps an existing langchaingo model.
func NewWithModel(llm llms.Model, model string, timeout time.Duration) *Service {
	return &Service{llm: llm, model: model, timeout: timeout}
}

// Model returns the name of the model used for generation.
func (s *Service) Model() string {
	return s.model
}

// Generate sends the whole ordered history and returns a single completion.
// Errors wrap ErrGenerationFailed.
func (s *Service) Generate(ctx context.Context, history []models.HistoryEntry) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	resp, err := s.llm.GenerateContent(ctx, messageContent(history), llms.WithCandidateCount(1))
	if err != nil {
		return "", errors.Wrap(ErrGenerationFailed, err.Error())
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	text := resp.Choices[0].Content
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func messageContent(history []models.HistoryEntry) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(history))
	for _, entry := range history {
		messages = append(messages, llms.TextParts(messageType(entry.Role), entry.Parts))
	}
	return messages
}

func messageType(role models.Role) llms.ChatMessageType {
	switch role {
	case models.RoleModel, "assistant":
		return llms.ChatMessageTypeAI
	case "system":
		return llms.ChatMessageTypeSystem
	default:
		return llms.ChatMessageTypeHuman
	}
}
