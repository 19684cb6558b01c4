package proto

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeUserJoin     = "user_join"
	InboundTypeJoinGroup    = "join_group"
	InboundTypeLeaveGroup   = "leave_group"
	InboundTypeTypingStart  = "typing_start"
	InboundTypeTypingStop   = "typing_stop"
	InboundTypeTaskAssigned = "task_assigned"

	EventOnlineUsersUpdate   = "online_users_update"
	EventNewMessage          = "new_message"
	EventMessageUpdated      = "message_updated"
	EventMessageDeleted      = "message_deleted"
	EventUserTyping          = "user_typing"
	EventUserStopTyping      = "user_stop_typing"
	EventTaskAssigned        = "task_assigned"
	EventNewTaskNotification = "new_task_notification"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	// DefaultUsername is used when user_join arrives in the bare string form.
	DefaultUsername = "User"
)

var errEmptyData = errors.New("data is required")

// UserJoinData announces the identity of a connection. The legacy form is a bare userId string.
type UserJoinData struct {
	UserID   string `json:"userId"`
	GroupID  string `json:"groupId,omitempty"`
	Username string `json:"username,omitempty"`
}

// UnmarshalJSON accepts either the object form or a bare userId string.
func (d *UserJoinData) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return errEmptyData
	}
	if b[0] == '"' {
		var userID string
		if err := json.Unmarshal(b, &userID); err != nil {
			return err
		}
		*d = UserJoinData{UserID: userID, Username: DefaultUsername}
		return nil
	}
	type plain UserJoinData
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*d = UserJoinData(p)
	return nil
}

// GroupData names a group room. It accepts a bare groupId string or {"groupId": ...}.
type GroupData struct {
	GroupID string `json:"groupId"`
}

// UnmarshalJSON accepts either the string or the object form.
func (d *GroupData) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return errEmptyData
	}
	if b[0] == '"' {
		return json.Unmarshal(b, &d.GroupID)
	}
	type plain GroupData
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*d = GroupData(p)
	return nil
}

// TypingData is sent by a client that started or stopped typing.
type TypingData struct {
	GroupID  string `json:"groupId"`
	UserID   string `json:"userId,omitempty"`
	Username string `json:"username,omitempty"`
}

// TaskAssignedData describes a task assignment, both inbound and re-emitted to everyone.
type TaskAssignedData struct {
	AssignedTo   []string `json:"assignedTo"`
	TaskTitle    string   `json:"taskTitle"`
	AssignedBy   string   `json:"assignedBy"`
	AssignedByID string   `json:"assignedById,omitempty"`
	TaskID       string   `json:"taskId,omitempty"`
	GroupID      string   `json:"groupId,omitempty"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// OnlineUser is one entry of an online_users_update.
type OnlineUser struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// OnlineUsersData is the presence snapshot of a group.
type OnlineUsersData struct {
	GroupID     string       `json:"groupId"`
	OnlineCount int          `json:"onlineCount"`
	OnlineUsers []OnlineUser `json:"onlineUsers"`
}

// Sender is the populated author of a message.
type Sender struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Reaction is one emoji attached to a message.
type Reaction struct {
	UserID string `json:"user"`
	Emoji  string `json:"emoji"`
}

// Message is the full message object broadcast on new_message and message_updated
// and returned by the REST surface.
type Message struct {
	ID          string     `json:"_id"`
	GroupID     string     `json:"group"`
	SenderID    string     `json:"senderId"`
	Sender      *Sender    `json:"sender"`
	Body        string     `json:"message"`
	MessageType string     `json:"messageType"`
	FileURL     string     `json:"fileUrl,omitempty"`
	Edited      bool       `json:"edited"`
	EditedAt    *time.Time `json:"editedAt,omitempty"`
	Reactions   []Reaction `json:"reactions"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// TypingEvent is relayed to the room minus the typist.
type TypingEvent struct {
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
}

// TaskNotificationData is the toast unicast to a present recipient.
type TaskNotificationData struct {
	TaskTitle      string `json:"taskTitle"`
	AssignedBy     string `json:"assignedBy"`
	Message        string `json:"message"`
	NotificationID string `json:"notificationId"`
}

// Notification is a persisted notification as returned by the REST surface.
type Notification struct {
	ID          string    `json:"_id"`
	RecipientID string    `json:"recipient"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	Type        string    `json:"type"`
	RelatedTask string    `json:"relatedTask,omitempty"`
	GroupID     string    `json:"group,omitempty"`
	CreatedBy   string    `json:"createdBy,omitempty"`
	IsRead      bool      `json:"isRead"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
