package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter wires the JSON API under /api. When webDir is set, every other
// path is served from that directory.
func NewRouter(h *Handler, logger *zap.Logger, webDir string) *gin.Engine {
	r := gin.New()
	r.Use(RequestLogger(logger), Recovery(logger))

	api := r.Group("/api")
	api.GET("/status", h.Status)
	api.GET("/conversations", h.ListConversations)
	api.POST("/conversations", h.CreateConversation)
	api.GET("/conversations/:id", h.GetConversation)
	api.PATCH("/conversations/:id", h.UpdateConversation)
	api.DELETE("/conversations/:id", h.DeleteConversation)
	api.POST("/chat", h.Chat)
	api.GET("/models", h.ListModels)

	if webDir != "" {
		r.NoRoute(gin.WrapH(http.FileServer(http.Dir(webDir))))
	}

	return r
}

func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("clientIP", c.ClientIP()))
	}
}

// Recovery turns a handler panic into the standard 500 envelope.
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("panic while handling request",
			zap.Any("panic", recovered),
			zap.String("path", c.Request.URL.Path))
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody("Internal server error"))
	})
}
