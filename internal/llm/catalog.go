package llm

import (
	"context"

	"github.com/pkg/errors"
	"google.golang.org/genai"

	"github.com/RichardoC/gemchat/internal/models"
)

// ModelCatalog lists the models available to the configured API key.
type ModelCatalog struct {
	client  *genai.Client
	initErr error // reported on first use
}

func NewModelCatalog(ctx context.Context, apiKey string) *ModelCatalog {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return &ModelCatalog{initErr: errors.Wrap(err, "initialize Gemini client")}
	}
	return &ModelCatalog{client: client}
}

func (c *ModelCatalog) ListModels(ctx context.Context) ([]models.ModelInfo, error) {
	if c.initErr != nil {
		return nil, c.initErr
	}

	var list []models.ModelInfo
	for m, err := range c.client.Models.All(ctx) {
		if err != nil {
			return nil, errors.Wrap(err, "list models")
		}
		list = append(list, models.ModelInfo{
			Name:                       m.Name,
			DisplayName:                m.DisplayName,
			Description:                m.Description,
			Version:                    m.Version,
			InputTokenLimit:            m.InputTokenLimit,
			OutputTokenLimit:           m.OutputTokenLimit,
			SupportedGenerationMethods: m.SupportedActions,
		})
	}
	return list, nil
}
