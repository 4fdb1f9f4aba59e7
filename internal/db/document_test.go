package db

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/RichardoC/gemchat/internal/config"
	"github.com/RichardoC/gemchat/internal/docstore"
	"github.com/RichardoC/gemchat/internal/models"
)

// flakyClient wraps a real client and fails the selected operations.
type flakyClient struct {
	docstore.Client
	listErr    error
	updateErr  error
	failDelete map[string]bool
}

var errBackend = errors.New("dial tcp 10.0.0.1:443: i/o timeout")

func (c *flakyClient) ListDocuments(ctx context.Context, collection string, opts docstore.ListOptions) ([]docstore.Document, error) {
	if c.listErr != nil {
		return nil, c.listErr
	}
	return c.Client.ListDocuments(ctx, collection, opts)
}

func (c *flakyClient) UpdateDocument(ctx context.Context, collection, id string, data map[string]any) (docstore.Document, error) {
	if c.updateErr != nil {
		return docstore.Document{}, c.updateErr
	}
	return c.Client.UpdateDocument(ctx, collection, id, data)
}

func (c *flakyClient) DeleteDocument(ctx context.Context, collection, id string) error {
	if c.failDelete[collection] {
		return errBackend
	}
	return c.Client.DeleteDocument(ctx, collection, id)
}

func newFlakyDocumentStore(t *testing.T) (*DocumentStore, *flakyClient) {
	t.Helper()
	inner, err := docstore.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { inner.Close() })

	client := &flakyClient{Client: inner, failDelete: map[string]bool{}}
	return NewDocumentStore(client, "conversations", "messages", zaptest.NewLogger(t)), client
}

func TestDocumentStoreHidesBackendErrors(t *testing.T) {
	s, client := newFlakyDocumentStore(t)
	client.listErr = errBackend

	_, err := s.ListConversations(context.Background(), "u1", 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.NotContains(t, err.Error(), "10.0.0.1")
	assert.Equal(t, "list conversations: document store unavailable", err.Error())
}

func TestDocumentStoreCancelledCallerIsNotAnOutage(t *testing.T) {
	s, _ := newFlakyDocumentStore(t)
	core, logs := observer.New(zapcore.DebugLevel)
	s.logger = zap.New(core)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.ListMessages(ctx, "c1", 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, ErrUnavailable))
	assert.Zero(t, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.DebugLevel).Len())
}

func TestDocumentStoreBackendErrorIsLogged(t *testing.T) {
	s, client := newFlakyDocumentStore(t)
	core, logs := observer.New(zapcore.DebugLevel)
	s.logger = zap.New(core)
	client.listErr = errors.Wrap(context.DeadlineExceeded, "appwrite request")

	_, err := s.ListMessages(context.Background(), "c1", 0)
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestDocumentStoreDeleteStopsWhenMessagesFail(t *testing.T) {
	s, client := newFlakyDocumentStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "chat", "u1")
	require.NoError(t, err)
	_, err = s.CreateMessage(ctx, conv.ID, models.RoleUser, "hi")
	require.NoError(t, err)

	client.failDelete["messages"] = true
	err = s.DeleteConversation(ctx, conv.ID)
	assert.True(t, errors.Is(err, ErrUnavailable))

	// the conversation must outlive its messages, never the other way round
	_, err = s.GetConversation(ctx, conv.ID)
	assert.NoError(t, err)

	client.failDelete["messages"] = false
	require.NoError(t, s.DeleteConversation(ctx, conv.ID))
}

func TestDocumentStoreRemovesMessageWhenConversationVanishes(t *testing.T) {
	s, client := newFlakyDocumentStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "chat", "u1")
	require.NoError(t, err)

	// deleted between the lookup and the touch
	client.updateErr = errors.Wrap(docstore.ErrDocumentNotFound, "gone")
	_, err = s.CreateMessage(ctx, conv.ID, models.RoleUser, "hi")
	assert.True(t, errors.Is(err, ErrNotFound))

	messages, err := s.ListMessages(ctx, conv.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestDocumentStoreDeletesMoreThanOnePage(t *testing.T) {
	s, _ := newFlakyDocumentStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "long", "u1")
	require.NoError(t, err)
	for i := 0; i < DefaultMessageLimit+5; i++ {
		_, err := s.CreateMessage(ctx, conv.ID, models.RoleUser, "x")
		require.NoError(t, err)
	}

	require.NoError(t, s.DeleteConversation(ctx, conv.ID))

	messages, err := s.ListMessages(ctx, conv.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestDocumentStoreNotConfigured(t *testing.T) {
	s := newFailedDocumentStore(errors.New("bad endpoint"), zaptest.NewLogger(t))
	ctx := context.Background()

	assert.False(t, s.Remote())

	_, err := s.ListConversations(ctx, "u1", 0)
	assert.True(t, errors.Is(err, ErrNotConfigured))
	_, err = s.CreateConversation(ctx, "t", "u1")
	assert.True(t, errors.Is(err, ErrNotConfigured))
	_, err = s.CreateMessage(ctx, "c1", models.RoleUser, "hi")
	assert.True(t, errors.Is(err, ErrNotConfigured))
	assert.True(t, errors.Is(s.DeleteConversation(ctx, "c1"), ErrNotConfigured))
	assert.NoError(t, s.Close())
}

func TestOpenSelectsBackendFromConfig(t *testing.T) {
	logger := zaptest.NewLogger(t)
	full := config.AppwriteConfig{
		Endpoint:                  "sqlite://:memory:",
		ProjectID:                 "p",
		APIKey:                    "k",
		DatabaseID:                "d",
		ConversationsCollectionID: "conversations",
		MessagesCollectionID:      "messages",
	}

	s := Open(full, logger)
	defer s.Close()
	assert.IsType(t, &DocumentStore{}, s)
	assert.True(t, s.Remote())

	for _, blank := range []func(c *config.AppwriteConfig){
		func(c *config.AppwriteConfig) { c.ProjectID = "" },
		func(c *config.AppwriteConfig) { c.APIKey = "" },
		func(c *config.AppwriteConfig) { c.DatabaseID = "" },
		func(c *config.AppwriteConfig) { c.ConversationsCollectionID = "" },
		func(c *config.AppwriteConfig) { c.MessagesCollectionID = "" },
	} {
		cfg := full
		blank(&cfg)
		s := Open(cfg, logger)
		assert.IsType(t, &MemoryStore{}, s)
		assert.False(t, s.Remote())
	}
}

func TestOpenUnusableEndpoint(t *testing.T) {
	s := Open(config.AppwriteConfig{
		Endpoint:                  "ftp://example.com",
		ProjectID:                 "p",
		APIKey:                    "k",
		DatabaseID:                "d",
		ConversationsCollectionID: "conversations",
		MessagesCollectionID:      "messages",
	}, zaptest.NewLogger(t))

	assert.False(t, s.Remote())
	_, err := s.ListConversations(context.Background(), "guest", 0)
	assert.True(t, errors.Is(err, ErrNotConfigured))
}
