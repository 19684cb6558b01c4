// Package notifications persists per-recipient notifications and pushes a toast
// to recipients that are currently connected.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/groupsync-server/internal/core"
	"github.com/vovakirdan/groupsync-server/internal/store"
)

// ErrNotificationNotFound is returned when a notification does not exist or belongs to someone else.
var ErrNotificationNotFound = errors.New("notification not found")

const (
	TypeTaskAssigned      = "task_assigned"
	TitleTaskAssigned     = "New Task Assigned"
	defaultConcurrency    = 8
	defaultPersistTimeout = 5 * time.Second
)

// Delivery reaches connected users.
type Delivery interface {
	SendToUser(ctx context.Context, userID string, ev *core.Event) bool
	BroadcastAll(ctx context.Context, ev *core.Event) error
}

// Template is the content shared by every notification of one fan-out.
type Template struct {
	Title         string
	Message       string
	Type          string
	RelatedTaskID string
	GroupID       string
	CreatedByID   string

	// Toast is unicast to present recipients; NotificationID is filled per recipient.
	Toast core.TaskNotification
}

// Dispatcher fans notifications out to recipients.
type Dispatcher struct {
	store          store.NotificationStore
	delivery       Delivery
	logger         *zerolog.Logger
	concurrency    int
	persistTimeout time.Duration
}

// New creates a dispatcher. delivery may be nil, in which case nothing is pushed.
func New(st store.NotificationStore, delivery Delivery, logger *zerolog.Logger, concurrency int, persistTimeout time.Duration) *Dispatcher {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if persistTimeout <= 0 {
		persistTimeout = defaultPersistTimeout
	}
	return &Dispatcher{
		store:          st,
		delivery:       delivery,
		logger:         logger,
		concurrency:    concurrency,
		persistTimeout: persistTimeout,
	}
}

// NotifyAll persists one notification per distinct recipient and unicasts the toast to
// those currently present. A failure for one recipient is logged and does not affect the
// others. The persisted notifications are returned in recipient order.
func (d *Dispatcher) NotifyAll(ctx context.Context, recipients []string, tmpl Template) []*store.Notification {
	ids := dedupe(recipients)
	results := make([]*store.Notification, len(ids))

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			results[i] = d.notifyOne(ctx, id, tmpl)
			return nil
		})
	}
	_ = g.Wait()

	saved := make([]*store.Notification, 0, len(results))
	for _, n := range results {
		if n != nil {
			saved = append(saved, n)
		}
	}
	d.logger.Info().
		Str("type", tmpl.Type).
		Int("recipients", len(ids)).
		Int("saved", len(saved)).
		Msg("notifications dispatched")
	return saved
}

func (d *Dispatcher) notifyOne(ctx context.Context, recipientID string, tmpl Template) *store.Notification {
	n := &store.Notification{
		RecipientID:   recipientID,
		Title:         tmpl.Title,
		Message:       tmpl.Message,
		Type:          tmpl.Type,
		RelatedTaskID: tmpl.RelatedTaskID,
		GroupID:       tmpl.GroupID,
		CreatedByID:   tmpl.CreatedByID,
	}

	pctx, cancel := context.WithTimeout(ctx, d.persistTimeout)
	err := d.store.CreateNotification(pctx, n)
	cancel()
	if err != nil {
		d.logger.Warn().Err(err).Str("user_id", recipientID).Msg("failed to save notification")
		return nil
	}

	if d.delivery == nil {
		return n
	}
	toast := tmpl.Toast
	toast.NotificationID = n.ID
	ev := &core.Event{Kind: core.EventTaskNotification, GroupID: n.GroupID, Notification: &toast}
	delivered := d.delivery.SendToUser(ctx, recipientID, ev)
	d.logger.Debug().
		Str("user_id", recipientID).
		Str("notification_id", n.ID).
		Bool("delivered", delivered).
		Msg("notification saved")
	return n
}

// NotifyTaskAssigned fans a task assignment out to its assignees.
func (d *Dispatcher) NotifyTaskAssigned(ctx context.Context, a core.TaskAssignment) []*store.Notification {
	return d.NotifyAll(ctx, a.AssignedTo, TaskAssignedTemplate(a))
}

// AnnounceTaskAssigned notifies the assignees and then re-emits task_assigned to every connection.
func (d *Dispatcher) AnnounceTaskAssigned(ctx context.Context, a core.TaskAssignment) []*store.Notification {
	saved := d.NotifyTaskAssigned(ctx, a)
	if d.delivery != nil {
		task := a
		if err := d.delivery.BroadcastAll(ctx, &core.Event{Kind: core.EventTaskAssigned, GroupID: a.GroupID, Task: &task}); err != nil {
			d.logger.Warn().Err(err).Str("task_id", a.TaskID).Msg("failed to announce task assignment")
		}
	}
	return saved
}

// TaskAssignedTemplate builds the notification content for a task assignment.
func TaskAssignedTemplate(a core.TaskAssignment) Template {
	return Template{
		Title:         TitleTaskAssigned,
		Message:       fmt.Sprintf(`You have been assigned to task: "%s" by %s`, a.TaskTitle, a.AssignedBy),
		Type:          TypeTaskAssigned,
		RelatedTaskID: a.TaskID,
		GroupID:       a.GroupID,
		CreatedByID:   a.AssignedByID,
		Toast: core.TaskNotification{
			TaskTitle:  a.TaskTitle,
			AssignedBy: a.AssignedBy,
			Message:    fmt.Sprintf(`New task assigned: "%s" by %s`, a.TaskTitle, a.AssignedBy),
		},
	}
}

// List returns the recipient's notifications, newest first.
func (d *Dispatcher) List(ctx context.Context, recipientID string) ([]*store.Notification, error) {
	list, err := d.store.ListNotifications(ctx, recipientID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	if list == nil {
		list = []*store.Notification{}
	}
	return list, nil
}

// MarkRead marks one of the recipient's notifications as read. Marking twice is not an error.
func (d *Dispatcher) MarkRead(ctx context.Context, id, recipientID string) (*store.Notification, error) {
	n, err := d.store.MarkNotificationRead(ctx, id, recipientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotificationNotFound
		}
		return nil, fmt.Errorf("mark notification read: %w", err)
	}
	return n, nil
}

// MarkAllRead marks every unread notification of the recipient and returns how many changed.
func (d *Dispatcher) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	changed, err := d.store.MarkAllNotificationsRead(ctx, recipientID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return changed, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
