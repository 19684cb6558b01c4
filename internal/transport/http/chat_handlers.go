package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/groupsync-server/internal/core"
	"github.com/vovakirdan/groupsync-server/internal/proto"
	"github.com/vovakirdan/groupsync-server/internal/service/chat"
	"github.com/vovakirdan/groupsync-server/internal/store"
)

// ChatHandlers provides HTTP handlers for group chat endpoints.
type ChatHandlers struct {
	chat *chat.Service
	hub  *core.Hub
	log  *zerolog.Logger
}

// NewChatHandlers creates a new chat handlers instance.
func NewChatHandlers(chatService *chat.Service, hub *core.Hub, logger *zerolog.Logger) *ChatHandlers {
	return &ChatHandlers{
		chat: chatService,
		hub:  hub,
		log:  logger,
	}
}

// SendMessageRequest represents the send message request body.
type SendMessageRequest struct {
	Message     string `json:"message"`
	MessageType string `json:"messageType"`
	FileURL     string `json:"fileUrl"`
}

// EditMessageRequest represents the edit message request body.
type EditMessageRequest struct {
	Message string `json:"message"`
}

// ReactionRequest represents the toggle reaction request body.
type ReactionRequest struct {
	Emoji string `json:"emoji" binding:"required"`
}

// HistoryResponse is one page of group messages in chronological order.
type HistoryResponse struct {
	Messages    []proto.Message `json:"messages"`
	Total       int64           `json:"total"`
	TotalPages  int             `json:"totalPages"`
	CurrentPage int             `json:"currentPage"`
}

// DeleteMessageResponse confirms a deletion.
type DeleteMessageResponse struct {
	ID string `json:"_id"`
}

// OnlineUsersResponse is the presence snapshot of a group.
type OnlineUsersResponse = proto.OnlineUsersData

// History returns a page of group messages.
// GET /api/groups/:groupId/messages?page=&limit=
func (h *ChatHandlers) History(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	result, err := h.chat.History(c.Request.Context(), c.Param("groupId"), page, limit)
	if err != nil {
		h.log.Error().Err(err).Str("group_id", c.Param("groupId")).Msg("failed to load history")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to fetch messages"})
		return
	}

	c.JSON(http.StatusOK, HistoryResponse{
		Messages:    messagesToProto(result.Messages),
		Total:       result.Total,
		TotalPages:  result.TotalPages,
		CurrentPage: result.CurrentPage,
	})
}

// Send posts a message to a group.
// POST /api/groups/:groupId/messages
func (h *ChatHandlers) Send(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid send message request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	msg, err := h.chat.Send(c.Request.Context(), c.Param("groupId"), userID, chat.SendInput{
		Body:    req.Message,
		Kind:    store.MessageKind(req.MessageType),
		FileRef: req.FileURL,
	})
	if err != nil {
		h.writeChatError(c, err)
		return
	}

	c.JSON(http.StatusCreated, messageToProto(msg))
}

// Edit replaces the body of the caller's message.
// PUT /api/messages/:messageId
func (h *ChatHandlers) Edit(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid edit message request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	msg, err := h.chat.Edit(c.Request.Context(), c.Param("messageId"), userID, req.Message)
	if err != nil {
		h.writeChatError(c, err)
		return
	}

	c.JSON(http.StatusOK, messageToProto(msg))
}

// Delete removes the caller's message.
// DELETE /api/messages/:messageId
func (h *ChatHandlers) Delete(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	messageID := c.Param("messageId")
	if err := h.chat.Delete(c.Request.Context(), messageID, userID); err != nil {
		h.writeChatError(c, err)
		return
	}

	c.JSON(http.StatusOK, DeleteMessageResponse{ID: messageID})
}

// React toggles the caller's reaction on a message.
// POST /api/messages/:messageId/reactions
func (h *ChatHandlers) React(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req ReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	msg, err := h.chat.React(c.Request.Context(), c.Param("messageId"), userID, req.Emoji)
	if err != nil {
		h.writeChatError(c, err)
		return
	}

	c.JSON(http.StatusOK, messageToProto(msg))
}

// Online returns the current presence snapshot of a group.
// GET /api/groups/:groupId/online
func (h *ChatHandlers) Online(c *gin.Context) {
	snap, err := h.hub.OnlineUsers(c.Request.Context(), c.Param("groupId"))
	if err != nil {
		h.log.Error().Err(err).Msg("failed to read presence")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "presence unavailable"})
		return
	}
	c.JSON(http.StatusOK, onlineToProto(&snap))
}

func (h *ChatHandlers) writeChatError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, chat.ErrInvalidKind),
		errors.Is(err, chat.ErrInvalidReaction):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, chat.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}
