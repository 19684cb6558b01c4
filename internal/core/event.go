package core

import "github.com/vovakirdan/groupsync-server/internal/store"

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventOnlineUsers carries the presence snapshot of a group.
	EventOnlineUsers EventKind = iota
	// EventNewMessage notifies the room about a persisted message.
	EventNewMessage
	// EventMessageUpdated notifies the room about an edited or reacted message.
	EventMessageUpdated
	// EventMessageDeleted notifies the room that a message was removed.
	EventMessageDeleted
	// EventUserTyping tells the room that someone started typing.
	EventUserTyping
	// EventUserStopTyping tells the room that someone stopped typing.
	EventUserStopTyping
	// EventTaskAssigned is the server-wide re-emission of a task assignment.
	EventTaskAssigned
	// EventTaskNotification is the per-recipient toast for a persisted notification.
	EventTaskNotification
	// EventError notifies a client about a domain error.
	EventError
)

// Event is sent to clients to describe what happened in the system.
// A single Event may be shared by many recipients and must not be mutated after it is sent.
type Event struct {
	Kind         EventKind
	GroupID      string
	Online       *OnlineSnapshot
	Message      *store.Message
	MessageID    string
	Typing       *Typing
	Task         *TaskAssignment
	Notification *TaskNotification
	Error        *CoreError
}

// Typing identifies who is typing.
type Typing struct {
	UserID   string
	Username string
}

// TaskAssignment describes a task handed to one or more users.
type TaskAssignment struct {
	AssignedTo   []string
	TaskTitle    string
	AssignedBy   string
	AssignedByID string
	TaskID       string
	GroupID      string
}

// TaskNotification is the toast payload unicast to a present recipient.
type TaskNotification struct {
	TaskTitle      string
	AssignedBy     string
	Message        string
	NotificationID string
}

// OnlineUsersEvent wraps a presence snapshot.
func OnlineUsersEvent(snap OnlineSnapshot) *Event {
	return &Event{Kind: EventOnlineUsers, GroupID: snap.GroupID, Online: &snap}
}

// MessageEvent builds a new_message or message_updated event for msg's group.
func MessageEvent(kind EventKind, msg *store.Message) *Event {
	return &Event{Kind: kind, GroupID: msg.GroupID, Message: msg}
}

// MessageDeletedEvent builds a message_deleted event.
func MessageDeletedEvent(groupID, messageID string) *Event {
	return &Event{Kind: EventMessageDeleted, GroupID: groupID, MessageID: messageID}
}
