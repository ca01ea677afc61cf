package httpapi

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"docent/internal/knowledge"
	"docent/internal/transcript"
	"docent/pkg/logging"
)

const maxMessageRunes = 10000

// Answerer runs one full user turn.
type Answerer interface {
	Answer(ctx context.Context, conversationID, userMessage string) (string, error)
}

// Indexer exposes the knowledge repository's operational surface.
type Indexer interface {
	Ingest(ctx context.Context, sourceDir string) (knowledge.IngestReport, error)
	Collections() ([]string, error)
}

// TranscriptReader reads back a conversation's history.
type TranscriptReader interface {
	History(ctx context.Context, conversationID string) ([]transcript.Entry, error)
}

type Handler struct {
	Loop        Answerer
	Knowledge   Indexer
	Transcripts TranscriptReader
	Logger      logging.Logger
	DocsDir     string

	// conversationLocks serializes concurrent turns on the same
	// conversation; interleaved turns would garble the transcript.
	conversationLocks sync.Map
}

type ChatRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
}

type ChatResponse struct {
	ConversationID string `json:"conversation_id"`
	Answer         string `json:"answer"`
}

func RegisterRoutes(router gin.IRoutes, handler *Handler) {
	router.POST("/chat", handler.HandleChat)
	router.GET("/conversations/:id", handler.HandleGetConversation)
	router.POST("/knowledge/reindex", handler.HandleReindex)
	router.GET("/knowledge/collections", handler.HandleListCollections)
}

func (h *Handler) HandleChat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}
	if len([]rune(req.Message)) > maxMessageRunes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message too long"})
		return
	}

	conversationID := strings.TrimSpace(req.ConversationID)
	if conversationID == "" {
		conversationID = uuid.NewString()
	} else if _, err := uuid.Parse(conversationID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation_id"})
		return
	}

	lock, _ := h.conversationLocks.LoadOrStore(conversationID, &sync.Mutex{})
	mu := lock.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	answer, err := h.Loop.Answer(c.Request.Context(), conversationID, req.Message)
	if err != nil {
		h.Logger.WithError(err).WithField("conversation_id", conversationID).Error("Turn failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to produce an answer"})
		return
	}

	c.JSON(http.StatusOK, ChatResponse{
		ConversationID: conversationID,
		Answer:         answer,
	})
}

func (h *Handler) HandleGetConversation(c *gin.Context) {
	conversationID := c.Param("id")
	if _, err := uuid.Parse(conversationID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	entries, err := h.Transcripts.History(c.Request.Context(), conversationID)
	if err != nil {
		h.Logger.WithError(err).Error("Transcript read failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read conversation"})
		return
	}

	type entryResponse struct {
		Speaker   string `json:"speaker"`
		Content   string `json:"content"`
		CreatedAt string `json:"created_at"`
	}
	out := make([]entryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entryResponse{
			Speaker:   entry.Speaker,
			Content:   entry.Content,
			CreatedAt: entry.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"conversation_id": conversationID,
		"entries":         out,
	})
}

func (h *Handler) HandleReindex(c *gin.Context) {
	report, err := h.Knowledge.Ingest(c.Request.Context(), h.DocsDir)
	if err != nil {
		h.Logger.WithError(err).Error("Reindex failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reindex failed"})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) HandleListCollections(c *gin.Context) {
	names, err := h.Knowledge.Collections()
	if err != nil {
		h.Logger.WithError(err).Error("Collection listing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list collections"})
		return
	}
	if names == nil {
		names = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"collections": names})
}
