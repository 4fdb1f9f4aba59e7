package db

import (
	"go.uber.org/zap"

	"github.com/RichardoC/gemchat/internal/config"
	"github.com/RichardoC/gemchat/internal/docstore"
)

// Open selects the backend for the lifetime of the process. The document
// store is used only when every Appwrite value is set; otherwise the
// in-memory store is returned. A document store whose client cannot be
// built still gets returned, failing every call with ErrNotConfigured.
func Open(cfg config.AppwriteConfig, logger *zap.Logger) Store {
	if !cfg.Complete() {
		logger.Warn("document store not configured, using in-memory storage")
		return NewMemoryStore()
	}

	client, err := docstore.Open(docstore.Config{
		Endpoint:   cfg.Endpoint,
		ProjectID:  cfg.ProjectID,
		APIKey:     cfg.APIKey,
		DatabaseID: cfg.DatabaseID,
	})
	if err != nil {
		logger.Error("failed to initialize document store",
			zap.Error(err),
			zap.String("endpoint", cfg.Endpoint))
		return newFailedDocumentStore(err, logger)
	}

	logger.Info("using document store",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("database", cfg.DatabaseID))
	return NewDocumentStore(client, cfg.ConversationsCollectionID, cfg.MessagesCollectionID, logger)
}
