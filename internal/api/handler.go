package api

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/RichardoC/gemchat/internal/chat"
	"github.com/RichardoC/gemchat/internal/db"
	"github.com/RichardoC/gemchat/internal/models"
)

// ModelLister lists the models offered by the generative API.
type ModelLister interface {
	ListModels(ctx context.Context) ([]models.ModelInfo, error)
}

type Handler struct {
	store        db.Store
	chat         *chat.Service
	models       ModelLister
	currentModel string
	logger       *zap.Logger
}

func NewHandler(store db.Store, chatService *chat.Service, lister ModelLister, currentModel string, logger *zap.Logger) *Handler {
	return &Handler{
		store:        store,
		chat:         chatService,
		models:       lister,
		currentModel: currentModel,
		logger:       logger,
	}
}

type CreateConversationRequest struct {
	Title  string `json:"title"`
	UserID string `json:"userId"`
}

type UpdateConversationRequest struct {
	Title string `json:"title"`
}

type ChatRequest struct {
	Message        string                `json:"message"`
	ConversationID string                `json:"conversationId"`
	History        []models.HistoryEntry `json:"history"`
}

func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"appwriteEnabled": h.store.Remote(),
	})
}

func (h *Handler) ListConversations(c *gin.Context) {
	userID := c.DefaultQuery("userId", models.DefaultUserID)

	limit := db.DefaultConversationLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			badRequest(c, "Invalid limit")
			return
		}
		limit = n
	}

	conversations, err := h.store.ListConversations(c.Request.Context(), userID, limit)
	if err != nil {
		h.fail(c, err, "Failed to get conversations")
		return
	}

	h.logger.Debug("Retrieved conversations",
		zap.Int("count", len(conversations)),
		zap.String("userId", userID))

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"conversations": conversations,
	})
}

func (h *Handler) CreateConversation(c *gin.Context) {
	var req CreateConversationRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	conversation, err := h.store.CreateConversation(c.Request.Context(), req.Title, req.UserID)
	if err != nil {
		h.fail(c, err, "Failed to create conversation")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"conversation": conversation,
	})
}

func (h *Handler) GetConversation(c *gin.Context) {
	id := c.Param("id")

	var (
		conversation *models.Conversation
		messages     []models.Message
	)
	g, ctx := errgroup.WithContext(c.Request.Context())
	g.Go(func() error {
		var err error
		conversation, err = h.store.GetConversation(ctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		messages, err = h.store.ListMessages(ctx, id, db.DefaultMessageLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		h.fail(c, err, "Failed to get conversation")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"conversation": conversation,
		"messages":     messages,
	})
}

func (h *Handler) UpdateConversation(c *gin.Context) {
	var req UpdateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	if req.Title == "" {
		badRequest(c, "Title is required")
		return
	}

	conversation, err := h.store.UpdateConversation(c.Request.Context(), c.Param("id"), db.ConversationUpdate{Title: &req.Title})
	if err != nil {
		h.fail(c, err, "Failed to update conversation")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"conversation": conversation,
	})
}

func (h *Handler) DeleteConversation(c *gin.Context) {
	if err := h.store.DeleteConversation(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err, "Failed to delete conversation")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	if req.Message == "" {
		badRequest(c, "Message is required")
		return
	}

	result, err := h.chat.Send(c.Request.Context(), chat.Request{
		Message:        req.Message,
		ConversationID: req.ConversationID,
		History:        req.History,
	})
	if err != nil {
		h.fail(c, err, "An error occurred while processing your request")
		return
	}

	body := gin.H{
		"success":             true,
		"response":            result.Response,
		"conversationHistory": result.History,
	}
	if result.Warning != "" {
		body["warning"] = result.Warning
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) ListModels(c *gin.Context) {
	list, err := h.models.ListModels(c.Request.Context())
	if err != nil {
		h.fail(c, err, "Failed to fetch models")
		return
	}
	if list == nil {
		list = []models.ModelInfo{}
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"models":       list,
		"currentModel": h.currentModel,
	})
}

// fail writes the error envelope. Only the fixed message reaches the client.
func (h *Handler) fail(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		c.JSON(http.StatusNotFound, errorBody("Conversation not found"))
	case errors.Is(err, chat.ErrValidation):
		c.JSON(http.StatusBadRequest, errorBody(message))
	default:
		h.logger.Error(message,
			zap.Error(err),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path))
		c.JSON(http.StatusInternalServerError, errorBody(message))
	}
}

// bindOptionalJSON decodes the body when present; an empty body leaves v as is.
func bindOptionalJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "Invalid request body")
		return false
	}
	return true
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, errorBody(message))
}

func errorBody(message string) gin.H {
	return gin.H{"success": false, "error": message}
}
