package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ragchatgo/internal/ingest"
	"ragchatgo/internal/models"
	"ragchatgo/internal/service/rag"
	"ragchatgo/internal/session"
)

// Chat is the conversational surface the handlers expose.
type Chat interface {
	AddTurn(ctx context.Context, ns, sessionID, query string) (*models.TurnResult, error)
	GetHistory(ctx context.Context, ns, sessionID string) ([]models.Message, error)
	ClearHistory(ctx context.Context, ns, sessionID string) error
	ListNamespaces(ctx context.Context) ([]string, error)
	Ready(ctx context.Context) bool
}

// Ingestor is the document-management surface.
type Ingestor interface {
	AddFiles(ctx context.Context, ns string, paths []string) ([]ingest.Summary, error)
	DeleteSource(ctx context.Context, ns, source string) (int, error)
	ListSources(ctx context.Context, ns string) ([]ingest.Summary, error)
	Health(ctx context.Context) bool
}

// Handler wires HTTP routes to the chat and ingest services.
type Handler struct {
	chat        Chat
	ingest      Ingestor
	corsOrigins []string
}

// NewHandler constructs a Handler instance.
func NewHandler(chat Chat, ingestor Ingestor, corsOrigins []string) *Handler {
	return &Handler{chat: chat, ingest: ingestor, corsOrigins: corsOrigins}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	if len(h.corsOrigins) > 0 {
		router.Use(h.corsMiddleware())
	}
	api := router.Group("/api")
	api.GET("/health", h.health)
	api.GET("/namespaces", h.listNamespaces)

	api.POST("/chat/message", h.postMessageNewSession)
	api.POST("/chat/:session_id/message", h.postMessage)
	api.GET("/chat/:session_id/history", h.getHistory)
	api.DELETE("/chat/:session_id/history", h.clearHistory)

	api.GET("/documents", h.listDocuments)
	api.POST("/documents", h.addDocuments)
	api.DELETE("/documents/:source", h.deleteDocument)
}

func (h *Handler) corsMiddleware() gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	for _, origin := range h.corsOrigins {
		if origin == "*" {
			cfg.AllowAllOrigins = true
		}
	}
	if !cfg.AllowAllOrigins {
		cfg.AllowOrigins = h.corsOrigins
	}
	return cors.New(cfg)
}

type messageRequest struct {
	Content   string `json:"content"`
	Namespace string `json:"namespace"`
}

func (h *Handler) postMessage(c *gin.Context) {
	h.handleMessage(c, c.Param("session_id"))
}

// postMessageNewSession mints a fresh session id for clients that do not
// track one themselves.
func (h *Handler) postMessageNewSession(c *gin.Context) {
	h.handleMessage(c, uuid.NewString())
}

func (h *Handler) handleMessage(c *gin.Context, sessionID string) {
	if strings.TrimSpace(sessionID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session id is required"})
		return
	}
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}
	result, err := h.chat.AddTurn(c.Request.Context(), req.Namespace, sessionID, req.Content)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) getHistory(c *gin.Context) {
	sessionID := c.Param("session_id")
	ns := c.Query("namespace")
	messages, err := h.chat.GetHistory(c.Request.Context(), ns, sessionID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if messages == nil {
		messages = make([]models.Message, 0)
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"messages":   messages,
	})
}

func (h *Handler) clearHistory(c *gin.Context) {
	sessionID := c.Param("session_id")
	ns := c.Query("namespace")
	if err := h.chat.ClearHistory(c.Request.Context(), ns, sessionID); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listNamespaces(c *gin.Context) {
	namespaces, err := h.chat.ListNamespaces(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	if namespaces == nil {
		namespaces = make([]string, 0)
	}
	c.JSON(http.StatusOK, gin.H{"namespaces": namespaces})
}

type documentsRequest struct {
	Namespace string   `json:"namespace"`
	Paths     []string `json:"paths"`
}

func (h *Handler) addDocuments(c *gin.Context) {
	var req documentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if len(req.Paths) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "paths is required"})
		return
	}
	summaries, err := h.ingest.AddFiles(c.Request.Context(), req.Namespace, req.Paths)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if summaries == nil {
		summaries = make([]ingest.Summary, 0)
	}
	c.JSON(http.StatusCreated, gin.H{"documents": summaries})
}

func (h *Handler) listDocuments(c *gin.Context) {
	summaries, err := h.ingest.ListSources(c.Request.Context(), c.Query("namespace"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if summaries == nil {
		summaries = make([]ingest.Summary, 0)
	}
	c.JSON(http.StatusOK, gin.H{"documents": summaries})
}

func (h *Handler) deleteDocument(c *gin.Context) {
	source := c.Param("source")
	deleted, err := h.ingest.DeleteSource(c.Request.Context(), c.Query("namespace"), source)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"source": source, "deleted_chunks": deleted})
}

func (h *Handler) health(c *gin.Context) {
	ctx := c.Request.Context()
	sessions := h.chat.Ready(ctx)
	documents := h.ingest.Health(ctx)
	status := http.StatusOK
	if !sessions || !documents {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"sessions":  sessions,
		"documents": documents,
	})
}

// writeError maps backend failure categories to HTTP statuses. Dependency
// outages are gateway errors, everything else is a client error.
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "category": "store_unavailable"})
	case errors.Is(err, rag.ErrRetrievalUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "category": "retrieval_unavailable"})
	case errors.Is(err, rag.ErrSynthesisUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "category": "synthesis_unavailable"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}
