package chat

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/groupsync-server/internal/core"
	"github.com/vovakirdan/groupsync-server/internal/store"
)

// Common errors for chat operations.
var (
	ErrEmptyMessage    = errors.New("message cannot be empty")
	ErrMessageNotFound = errors.New("message not found or not owned by requester")
	ErrInvalidKind     = errors.New("invalid message type")
	ErrInvalidReaction = errors.New("invalid reaction")
)

const (
	maxHistoryLimit = 100
	maxEmojiRunes   = 16
)

// Broadcaster delivers an event to every connection joined to a group.
type Broadcaster interface {
	BroadcastToGroup(ctx context.Context, groupID string, ev *core.Event) error
}

// SendInput is a message a user wants to post.
type SendInput struct {
	Body    string
	Kind    store.MessageKind
	FileRef string
}

// HistoryPage is one page of a group's messages in chronological order.
type HistoryPage struct {
	Messages    []*store.Message
	CurrentPage int
	TotalPages  int
	Total       int64
}

// Service persists chat messages and broadcasts every change to the group room.
type Service struct {
	store    store.MessageStore
	rooms    Broadcaster
	logger   *zerolog.Logger
	pageSize int
}

// New creates a chat service.
func New(st store.MessageStore, rooms Broadcaster, logger *zerolog.Logger, pageSize int) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Service{store: st, rooms: rooms, logger: logger, pageSize: pageSize}
}

// Send persists a message and broadcasts new_message to the whole room, sender included.
func (s *Service) Send(ctx context.Context, groupID, senderID string, in SendInput) (*store.Message, error) {
	body := strings.TrimSpace(in.Body)
	if body == "" {
		return nil, ErrEmptyMessage
	}
	kind := in.Kind
	if kind == "" {
		kind = store.MessageKindText
	}
	if !kind.Valid() {
		return nil, ErrInvalidKind
	}

	msg := &store.Message{
		GroupID:  groupID,
		SenderID: senderID,
		Body:     body,
		Kind:     kind,
		FileRef:  strings.TrimSpace(in.FileRef),
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		s.logger.Error().Err(err).Str("group_id", groupID).Str("user_id", senderID).Msg("failed to save message")
		return nil, fmt.Errorf("save message: %w", err)
	}

	s.broadcast(ctx, core.MessageEvent(core.EventNewMessage, msg))
	return msg, nil
}

// Edit replaces the body of a message owned by requesterID and broadcasts message_updated.
func (s *Service) Edit(ctx context.Context, messageID, requesterID, body string) (*store.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyMessage
	}

	msg, err := s.store.UpdateMessageBody(ctx, messageID, requesterID, body, time.Now().UTC())
	if err != nil {
		return nil, s.mapStoreError(err, messageID, "edit message")
	}

	s.broadcast(ctx, core.MessageEvent(core.EventMessageUpdated, msg))
	return msg, nil
}

// Delete removes a message owned by requesterID and broadcasts message_deleted.
func (s *Service) Delete(ctx context.Context, messageID, requesterID string) error {
	msg, err := s.store.DeleteMessage(ctx, messageID, requesterID)
	if err != nil {
		return s.mapStoreError(err, messageID, "delete message")
	}

	s.broadcast(ctx, core.MessageDeletedEvent(msg.GroupID, msg.ID))
	return nil
}

// React toggles the (userID, emoji) reaction and broadcasts message_updated.
func (s *Service) React(ctx context.Context, messageID, userID, emoji string) (*store.Message, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || utf8.RuneCountInString(emoji) > maxEmojiRunes {
		return nil, ErrInvalidReaction
	}

	msg, err := s.store.ToggleReaction(ctx, messageID, userID, emoji)
	if err != nil {
		return nil, s.mapStoreError(err, messageID, "toggle reaction")
	}

	s.broadcast(ctx, core.MessageEvent(core.EventMessageUpdated, msg))
	return msg, nil
}

// History returns one page of groupID's messages. Page 1 holds the newest messages;
// each page is ordered oldest to newest.
func (s *Service) History(ctx context.Context, groupID string, page, limit int) (*HistoryPage, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = s.pageSize
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	messages, err := s.store.ListMessages(ctx, groupID, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	total, err := s.store.CountMessages(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	if messages == nil {
		messages = []*store.Message{}
	}

	return &HistoryPage{
		Messages:    messages,
		CurrentPage: page,
		TotalPages:  int(math.Ceil(float64(total) / float64(limit))),
		Total:       total,
	}, nil
}

func (s *Service) mapStoreError(err error, messageID, op string) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrMessageNotFound
	}
	s.logger.Error().Err(err).Str("message_id", messageID).Msg("failed to " + op)
	return fmt.Errorf("%s: %w", op, err)
}

// broadcast is best effort: the change is already persisted.
func (s *Service) broadcast(ctx context.Context, ev *core.Event) {
	if s.rooms == nil {
		return
	}
	if err := s.rooms.BroadcastToGroup(ctx, ev.GroupID, ev); err != nil {
		s.logger.Warn().Err(err).Str("group_id", ev.GroupID).Msg("failed to broadcast chat event")
	}
}
