package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/mdesk/internal/pkg/response"
	"github.com/xxxsen/mdesk/internal/service"
)

const defaultConversationPage = 20

type AssistantHandler struct {
	assistant *service.AssistantService
}

func NewAssistantHandler(assistant *service.AssistantService) *AssistantHandler {
	return &AssistantHandler{assistant: assistant}
}

func (h *AssistantHandler) Ask(c *gin.Context) {
	scope, ok := getScope(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}
	var req service.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Invalid(c, "invalid request")
		return
	}
	result, err := h.assistant.Ask(c.Request.Context(), scope, req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}

func (h *AssistantHandler) ListConversations(c *gin.Context) {
	scope, ok := getScope(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}
	limit, err := queryInt(c, "limit", defaultConversationPage)
	if err != nil {
		response.Invalid(c, "invalid limit")
		return
	}
	convs, err := h.assistant.ListConversations(c.Request.Context(), scope, limit)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"conversations": convs})
}

func (h *AssistantHandler) ListTurns(c *gin.Context) {
	scope, ok := getScope(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		response.Invalid(c, "invalid limit")
		return
	}
	turns, err := h.assistant.ListConversationTurns(c.Request.Context(), scope, c.Param("id"), limit)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"turns": turns})
}
