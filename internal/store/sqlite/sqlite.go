package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/groupsync-server/internal/store"
	"github.com/vovakirdan/groupsync-server/internal/utils"
)

//go:embed schema.sql
var schema string

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// New opens the SQLite database at dbPath and applies the embedded schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, ApplySchema)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply a custom schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// ApplySchema creates the tables and indexes if they do not exist yet.
func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser inserts a user, generating an ID when none is set.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *store.User) error {
	if user.ID == "" {
		user.ID = utils.NewID()
	}
	user.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO users (id, username, email, created_at)
		VALUES (?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, user.ID, user.Username, user.Email, user.CreatedAt); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// ==== MessageStore implementation ====

const selectMessage = `
	SELECT m.id, m.group_id, m.sender_id, m.body, m.kind, m.file_ref, m.edited, m.edited_at, m.created_at,
	       u.id, u.username, u.email
	FROM messages m
	LEFT JOIN users u ON u.id = m.sender_id
`

func scanMessage(row rowScanner) (*store.Message, error) {
	var (
		msg                           store.Message
		kind                          string
		editedAt                      sql.NullTime
		senderID, username, userEmail sql.NullString
	)
	if err := row.Scan(
		&msg.ID,
		&msg.GroupID,
		&msg.SenderID,
		&msg.Body,
		&kind,
		&msg.FileRef,
		&msg.Edited,
		&editedAt,
		&msg.CreatedAt,
		&senderID,
		&username,
		&userEmail,
	); err != nil {
		return nil, err
	}

	msg.Kind = store.MessageKind(kind)
	if editedAt.Valid {
		t := editedAt.Time
		msg.EditedAt = &t
	}
	if senderID.Valid {
		msg.Sender = &store.UserRef{ID: senderID.String, Username: username.String, Email: userEmail.String}
	}
	return &msg, nil
}

func (s *SQLiteStore) getMessage(ctx context.Context, q querier, id string) (*store.Message, error) {
	msg, err := scanMessage(q.QueryRowContext(ctx, selectMessage+` WHERE m.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query message: %w", err)
	}
	if err := loadReactions(ctx, q, []*store.Message{msg}); err != nil {
		return nil, err
	}
	return msg, nil
}

// CreateMessage persists a message and reloads it with its sender populated.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *store.Message) error {
	msg.ID = utils.NewID()
	msg.CreatedAt = time.Now().UTC()
	if msg.Kind == "" {
		msg.Kind = store.MessageKindText
	}

	query := `
		INSERT INTO messages (id, group_id, sender_id, body, kind, file_ref, edited, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)
	`
	if _, err := s.db.ExecContext(ctx, query,
		msg.ID, msg.GroupID, msg.SenderID, msg.Body, string(msg.Kind), msg.FileRef, msg.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	saved, err := s.getMessage(ctx, s.db, msg.ID)
	if err != nil {
		return fmt.Errorf("reload message: %w", err)
	}
	*msg = *saved
	return nil
}

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*store.Message, error) {
	return s.getMessage(ctx, s.db, id)
}

// UpdateMessageBody replaces the body of a message owned by senderID.
func (s *SQLiteStore) UpdateMessageBody(ctx context.Context, id, senderID, body string, editedAt time.Time) (*store.Message, error) {
	query := `
		UPDATE messages
		SET body = ?, edited = 1, edited_at = ?
		WHERE id = ? AND sender_id = ?
	`
	result, err := s.db.ExecContext(ctx, query, body, editedAt.UTC(), id, senderID)
	if err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("message %s of %s: %w", id, senderID, store.ErrNotFound)
	}
	return s.getMessage(ctx, s.db, id)
}

// DeleteMessage removes a message owned by senderID together with its reactions.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, id, senderID string) (*store.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	msg, err := s.getMessage(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != senderID {
		return nil, fmt.Errorf("message %s of %s: %w", id, senderID, store.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM message_reactions WHERE message_id = ?`, id); err != nil {
		return nil, fmt.Errorf("delete reactions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE id = ? AND sender_id = ?`, id, senderID); err != nil {
		return nil, fmt.Errorf("delete message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return msg, nil
}

// ToggleReaction adds or removes a (user, emoji) reaction on a message.
func (s *SQLiteStore) ToggleReaction(ctx context.Context, id, userID, emoji string) (*store.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM messages WHERE id = ?`, id).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query message: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`DELETE FROM message_reactions WHERE message_id = ? AND user_id = ? AND emoji = ?`,
		id, userID, emoji,
	)
	if err != nil {
		return nil, fmt.Errorf("remove reaction: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if removed == 0 {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO message_reactions (message_id, user_id, emoji, created_at) VALUES (?, ?, ?, ?)`,
			id, userID, emoji, time.Now().UTC(),
		); err != nil {
			return nil, fmt.Errorf("add reaction: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return s.getMessage(ctx, s.db, id)
}

// ListMessages returns a page of group messages, newest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, groupID string, limit, offset int) ([]*store.Message, error) {
	query := selectMessage + `
		WHERE m.group_id = ?
		ORDER BY m.created_at DESC, m.rowid DESC
		LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, query, groupID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	if err := loadReactions(ctx, s.db, messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// CountMessages returns the number of messages in a group.
func (s *SQLiteStore) CountMessages(ctx context.Context, groupID string) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE group_id = ?`, groupID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

func loadReactions(ctx context.Context, q querier, messages []*store.Message) error {
	if len(messages) == 0 {
		return nil
	}

	byID := make(map[string]*store.Message, len(messages))
	args := make([]any, 0, len(messages))
	for _, msg := range messages {
		byID[msg.ID] = msg
		args = append(args, msg.ID)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(args)), ",")
	query := `
		SELECT message_id, user_id, emoji
		FROM message_reactions
		WHERE message_id IN (` + placeholders + `)
		ORDER BY created_at, rowid
	`
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query reactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var messageID string
		var reaction store.Reaction
		if err := rows.Scan(&messageID, &reaction.UserID, &reaction.Emoji); err != nil {
			return fmt.Errorf("scan reaction: %w", err)
		}
		if msg, ok := byID[messageID]; ok {
			msg.Reactions = append(msg.Reactions, reaction)
		}
	}
	return rows.Err()
}

// ==== NotificationStore implementation ====

const selectNotification = `
	SELECT id, recipient_id, title, message, type, related_task_id, group_id, created_by_id, is_read, created_at
	FROM notifications
`

func scanNotification(row rowScanner) (*store.Notification, error) {
	var n store.Notification
	if err := row.Scan(
		&n.ID,
		&n.RecipientID,
		&n.Title,
		&n.Message,
		&n.Type,
		&n.RelatedTaskID,
		&n.GroupID,
		&n.CreatedByID,
		&n.IsRead,
		&n.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &n, nil
}

// CreateNotification persists a notification for one recipient.
func (s *SQLiteStore) CreateNotification(ctx context.Context, n *store.Notification) error {
	n.ID = utils.NewID()
	n.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO notifications (id, recipient_id, title, message, type, related_task_id, group_id, created_by_id, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query,
		n.ID, n.RecipientID, n.Title, n.Message, n.Type, n.RelatedTaskID, n.GroupID, n.CreatedByID, n.IsRead, n.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListNotifications returns a recipient's notifications, newest first.
func (s *SQLiteStore) ListNotifications(ctx context.Context, recipientID string) ([]*store.Notification, error) {
	query := selectNotification + `
		WHERE recipient_id = ?
		ORDER BY created_at DESC, rowid DESC
	`
	rows, err := s.db.QueryContext(ctx, query, recipientID)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*store.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// MarkNotificationRead marks one notification of recipientID as read.
func (s *SQLiteStore) MarkNotificationRead(ctx context.Context, id, recipientID string) (*store.Notification, error) {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE id = ? AND recipient_id = ?`, id, recipientID,
	); err != nil {
		return nil, fmt.Errorf("update notification: %w", err)
	}

	n, err := scanNotification(s.db.QueryRowContext(ctx, selectNotification+` WHERE id = ? AND recipient_id = ?`, id, recipientID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("notification %s of %s: %w", id, recipientID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query notification: %w", err)
	}
	return n, nil
}

// MarkAllNotificationsRead marks every unread notification of recipientID as read.
func (s *SQLiteStore) MarkAllNotificationsRead(ctx context.Context, recipientID string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE recipient_id = ? AND is_read = 0`, recipientID,
	)
	if err != nil {
		return 0, fmt.Errorf("update notifications: %w", err)
	}
	return result.RowsAffected()
}
