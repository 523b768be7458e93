package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chatty-relay/backend/internal/model"
	"github.com/chatty-relay/backend/internal/ws"
)

// ChatHandler posts and lists chat messages over plain HTTP.
type ChatHandler struct {
	service *ws.Service
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(service *ws.Service) *ChatHandler {
	return &ChatHandler{service: service}
}

// Send handles POST /chat. The message goes through the same path as one
// received on a persistent connection.
func (h *ChatHandler) Send(c *gin.Context) {
	var req model.ChatSubmission
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, CodeValidationError, "Invalid request body: "+err.Error())
		return
	}

	msg, err := h.service.Post(getIdentity(c), req.Content)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrMalformedMessage), errors.Is(err, model.ErrMessageTooLong):
			sendError(c, http.StatusBadRequest, CodeValidationError, err.Error())
		case errors.Is(err, model.ErrServiceClosed):
			sendError(c, http.StatusServiceUnavailable, CodeInternalError, err.Error())
		default:
			sendError(c, http.StatusInternalServerError, CodeInternalError, "Failed to send message: "+err.Error())
		}
		return
	}

	resp := success("Message sent")
	resp.Messages = []model.Message{msg}
	c.JSON(http.StatusOK, resp)
}

// Messages handles GET /messages and returns the history, oldest first.
func (h *ChatHandler) Messages(c *gin.Context) {
	resp := success("Messages retrieved")
	resp.Messages = h.service.History()
	c.JSON(http.StatusOK, resp)
}

// RegisterRoutes registers the chat routes on an authorized group.
func (h *ChatHandler) RegisterRoutes(r gin.IRouter) {
	r.POST("/chat", h.Send)
	r.GET("/messages", h.Messages)
}
