package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/groupsync-server/internal/proto"
	"github.com/vovakirdan/groupsync-server/internal/service/notifications"
)

// NotificationHandlers provides HTTP handlers for notifications and task assignment fan-out.
type NotificationHandlers struct {
	dispatcher *notifications.Dispatcher
	log        *zerolog.Logger
}

// NewNotificationHandlers creates a new notification handlers instance.
func NewNotificationHandlers(dispatcher *notifications.Dispatcher, logger *zerolog.Logger) *NotificationHandlers {
	return &NotificationHandlers{dispatcher: dispatcher, log: logger}
}

// NotificationListResponse lists the caller's notifications.
type NotificationListResponse struct {
	Notifications []proto.Notification `json:"notifications"`
	Unread        int                  `json:"unread"`
}

// MarkAllReadResponse reports how many notifications changed.
type MarkAllReadResponse struct {
	Updated int64 `json:"updated"`
}

// TaskAssignedResponse reports the notifications persisted for an assignment.
type TaskAssignedResponse struct {
	Notifications []proto.Notification `json:"notifications"`
}

// List returns the caller's notifications, newest first.
// GET /api/notifications
func (h *NotificationHandlers) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	list, err := h.dispatcher.List(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("failed to list notifications")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	unread := 0
	for _, n := range list {
		if !n.IsRead {
			unread++
		}
	}
	c.JSON(http.StatusOK, NotificationListResponse{Notifications: notificationsToProto(list), Unread: unread})
}

// MarkRead marks one of the caller's notifications as read.
// PUT /api/notifications/:id/read
func (h *NotificationHandlers) MarkRead(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	n, err := h.dispatcher.MarkRead(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		if errors.Is(err, notifications.ErrNotificationNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
			return
		}
		h.log.Error().Err(err).Str("notification_id", c.Param("id")).Msg("failed to mark notification read")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, notificationToProto(n))
}

// MarkAllRead marks every unread notification of the caller as read.
// PUT /api/notifications
func (h *NotificationHandlers) MarkAllRead(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	changed, err := h.dispatcher.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("failed to mark notifications read")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, MarkAllReadResponse{Updated: changed})
}

// AssignTask is called by the task layer after an assignment is saved. It persists one
// notification per assignee, toasts those online and re-emits task_assigned to everyone.
// POST /api/tasks/assignments
func (h *NotificationHandlers) AssignTask(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req proto.TaskAssignedData
	if err := c.ShouldBindJSON(&req); err != nil || len(req.AssignedTo) == 0 || req.TaskTitle == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "assignedTo and taskTitle are required"})
		return
	}
	if req.AssignedByID == "" {
		req.AssignedByID = userID
	}
	if req.AssignedBy == "" {
		req.AssignedBy = c.GetString(ContextKeyUsername)
	}

	saved := h.dispatcher.AnnounceTaskAssigned(c.Request.Context(), taskFromProto(req))
	c.JSON(http.StatusCreated, TaskAssignedResponse{Notifications: notificationsToProto(saved)})
}
