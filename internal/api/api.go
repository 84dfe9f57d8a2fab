package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vedaaanggshetty/Aura/internal/persona"
)

// Generator produces the decoded model output (prompt plus continuation)
// for an assembled prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Handler struct {
	generator Generator
	logger    *zap.SugaredLogger
}

func NewHandler(generator Generator, logger *zap.SugaredLogger) *Handler {
	return &Handler{generator: generator, logger: logger}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.OPTIONS("/*path", handlePreflight)

	apiGroup := router.Group("/api")
	apiGroup.POST("/chat", h.handleChat)
}

// HistoryEntry accepts either a bare JSON string or a structured
// {role, content} object. Bare strings are always user turns; they are
// never interpreted as persona turns.
type HistoryEntry struct {
	Role    string
	Content string

	fromString bool
}

func (e *HistoryEntry) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var content string
		if err := json.Unmarshal(trimmed, &content); err != nil {
			return err
		}
		e.Role = string(persona.RoleUser)
		e.Content = content
		e.fromString = true
		return nil
	}

	var structured struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(trimmed, &structured); err != nil {
		return err
	}

	e.Role = structured.Role
	e.Content = structured.Content
	e.fromString = false
	return nil
}

type chatRequest struct {
	Message string         `json:"message"`
	History []HistoryEntry `json:"history"`
}

func (h *Handler) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request payload", err)
		return
	}

	history := normalizeHistory(req.History)
	prompt := persona.Assemble(persona.Prompt, history, req.Message)

	decoded, err := h.generator.Generate(c.Request.Context(), prompt)
	if err != nil {
		h.logger.Warnf("chat generation failed: %v", err)
		writeError(c, http.StatusBadGateway, "chat generation failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"reply": persona.Extract(decoded)})
}

// normalizeHistory collapses the string-or-object union into the internal
// Turn representation. Blank bare-string entries are dropped; any role
// other than "user" is treated as the persona's.
func normalizeHistory(entries []HistoryEntry) []persona.Turn {
	turns := make([]persona.Turn, 0, len(entries))
	for _, entry := range entries {
		if entry.fromString && strings.TrimSpace(entry.Content) == "" {
			continue
		}

		role := persona.RoleAssistant
		if strings.ToLower(strings.TrimSpace(entry.Role)) == string(persona.RoleUser) {
			role = persona.RoleUser
		}

		turns = append(turns, persona.Turn{Role: role, Content: entry.Content})
	}
	return turns
}

func writeError(c *gin.Context, status int, message string, err error) {
	c.JSON(status, gin.H{
		"error":   message,
		"details": err.Error(),
	})
}
