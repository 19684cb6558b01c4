package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist or does not match the ownership filter.
var ErrNotFound = errors.New("not found")

// User is the slice of a user account the real-time layer reads.
// Accounts are created and authenticated elsewhere.
type User struct {
	ID        string
	Username  string
	Email     string
	CreatedAt time.Time
}

// UserRef is the populated sender attached to messages.
type UserRef struct {
	ID       string
	Username string
	Email    string
}

// MessageKind defines what a chat message carries.
type MessageKind string

const (
	MessageKindText   MessageKind = "text"
	MessageKindFile   MessageKind = "file"
	MessageKindSystem MessageKind = "system"
)

// Valid reports whether k is a known message kind.
func (k MessageKind) Valid() bool {
	switch k {
	case MessageKindText, MessageKindFile, MessageKindSystem:
		return true
	default:
		return false
	}
}

// Reaction is one emoji a user attached to a message.
type Reaction struct {
	UserID string
	Emoji  string
}

// Message represents a persisted group chat message.
type Message struct {
	ID        string
	GroupID   string
	SenderID  string
	Sender    *UserRef // populated on reads, nil when the account is gone
	Body      string
	Kind      MessageKind
	FileRef   string
	Edited    bool
	EditedAt  *time.Time
	Reactions []Reaction
	CreatedAt time.Time
}

// Notification is a durable alert for one recipient.
type Notification struct {
	ID            string
	RecipientID   string
	Title         string
	Message       string
	Type          string
	RelatedTaskID string
	GroupID       string
	CreatedByID   string
	IsRead        bool
	CreatedAt     time.Time
}

// UserStore writes the user records message reads join against.
type UserStore interface {
	// CreateUser inserts a user record. Used by seeding and tests; accounts are owned by the CRUD layer.
	CreateUser(ctx context.Context, user *User) error
}

// MessageStore handles chat message persistence.
type MessageStore interface {
	// CreateMessage persists msg, assigning ID and CreatedAt, and populates the sender.
	CreateMessage(ctx context.Context, msg *Message) error

	// GetMessage retrieves a message by ID.
	GetMessage(ctx context.Context, id string) (*Message, error)

	// UpdateMessageBody replaces the body of a message owned by senderID and marks it edited.
	// Returns ErrNotFound when (id, senderID) matches nothing.
	UpdateMessageBody(ctx context.Context, id, senderID, body string, editedAt time.Time) (*Message, error)

	// DeleteMessage removes a message owned by senderID and returns what was removed.
	// Returns ErrNotFound when (id, senderID) matches nothing.
	DeleteMessage(ctx context.Context, id, senderID string) (*Message, error)

	// ToggleReaction adds the (userID, emoji) reaction or removes it when present.
	ToggleReaction(ctx context.Context, id, userID, emoji string) (*Message, error)

	// ListMessages returns up to limit messages of a group, newest first, skipping offset.
	ListMessages(ctx context.Context, groupID string, limit, offset int) ([]*Message, error)

	// CountMessages returns the number of messages in a group.
	CountMessages(ctx context.Context, groupID string) (int64, error)
}

// NotificationStore handles notification persistence.
type NotificationStore interface {
	// CreateNotification persists n, assigning ID and CreatedAt.
	CreateNotification(ctx context.Context, n *Notification) error

	// ListNotifications returns a recipient's notifications, newest first.
	ListNotifications(ctx context.Context, recipientID string) ([]*Notification, error)

	// MarkNotificationRead sets isRead on one notification of recipientID. Idempotent.
	MarkNotificationRead(ctx context.Context, id, recipientID string) (*Notification, error)

	// MarkAllNotificationsRead marks every unread notification of recipientID and returns how many changed.
	MarkAllNotificationsRead(ctx context.Context, recipientID string) (int64, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MessageStore
	NotificationStore

	// Close releases the underlying database connection.
	Close() error
}
