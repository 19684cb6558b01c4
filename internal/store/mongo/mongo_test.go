package mongo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vovakirdan/groupsync-server/internal/store"
)

var _ store.Store = (*MongoStore)(nil)

// newTestStore connects to GROUPSYNC_TEST_MONGO_URI and uses a throwaway database.
func newTestStore(t *testing.T) *MongoStore {
	t.Helper()

	uri := os.Getenv("GROUPSYNC_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("GROUPSYNC_TEST_MONGO_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbName := fmt.Sprintf("groupsync_test_%s", primitive.NewObjectID().Hex())
	s, err := Open(ctx, uri, dbName)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.client.Database(dbName).Drop(ctx)
		_ = s.Close()
	})
	return s
}

func seedUser(t *testing.T, s *MongoStore, username string) string {
	t.Helper()

	u := &store.User{Username: username, Email: username + "@example.com"}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("failed to create user %s: %v", username, err)
	}
	return u.ID
}

func TestMongoMessageLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")
	group := primitive.NewObjectID().Hex()

	msg := &store.Message{GroupID: group, SenderID: alice, Body: "hello"}
	if err := s.CreateMessage(ctx, msg); err != nil {
		t.Fatalf("create message: %v", err)
	}
	if msg.Kind != store.MessageKindText || msg.Sender == nil || msg.Sender.Username != "alice" {
		t.Fatalf("unexpected created message: %+v", msg)
	}

	if _, err := s.UpdateMessageBody(ctx, msg.ID, bob, "hijacked", time.Now()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign edit, got %v", err)
	}
	updated, err := s.UpdateMessageBody(ctx, msg.ID, alice, "hello world", time.Now())
	if err != nil {
		t.Fatalf("update message: %v", err)
	}
	if updated.Body != "hello world" || !updated.Edited || updated.EditedAt == nil {
		t.Fatalf("unexpected updated message: %+v", updated)
	}

	reacted, err := s.ToggleReaction(ctx, msg.ID, bob, "🎉")
	if err != nil {
		t.Fatalf("add reaction: %v", err)
	}
	if len(reacted.Reactions) != 1 || reacted.Reactions[0].UserID != bob {
		t.Fatalf("unexpected reactions: %+v", reacted.Reactions)
	}
	unreacted, err := s.ToggleReaction(ctx, msg.ID, bob, "🎉")
	if err != nil {
		t.Fatalf("remove reaction: %v", err)
	}
	if len(unreacted.Reactions) != 0 {
		t.Fatalf("expected reaction to be removed, got %+v", unreacted.Reactions)
	}

	if _, err := s.DeleteMessage(ctx, msg.ID, bob); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign delete, got %v", err)
	}
	deleted, err := s.DeleteMessage(ctx, msg.ID, alice)
	if err != nil {
		t.Fatalf("delete message: %v", err)
	}
	if deleted.GroupID != group {
		t.Errorf("expected deleted message group %s, got %s", group, deleted.GroupID)
	}
	if _, err := s.GetMessage(ctx, msg.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected message to be gone, got %v", err)
	}
}

func TestMongoListMessagesNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "alice")
	group := primitive.NewObjectID().Hex()

	for _, body := range []string{"one", "two", "three"} {
		if err := s.CreateMessage(ctx, &store.Message{GroupID: group, SenderID: alice, Body: body}); err != nil {
			t.Fatalf("create message %s: %v", body, err)
		}
		// created_at has millisecond resolution in BSON.
		time.Sleep(2 * time.Millisecond)
	}

	page, err := s.ListMessages(ctx, group, 2, 0)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(page) != 2 || page[0].Body != "three" || page[1].Body != "two" {
		t.Fatalf("unexpected first page: %+v", page)
	}
	for _, m := range page {
		if m.Sender == nil || m.Sender.Email != "alice@example.com" {
			t.Fatalf("expected populated sender, got %+v", m.Sender)
		}
	}

	count, err := s.CountMessages(ctx, group)
	if err != nil {
		t.Fatalf("count messages: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 messages, got %d", count)
	}

	empty, err := s.ListMessages(ctx, "not-an-object-id", 10, 0)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty page for malformed group, got %v %v", empty, err)
	}
}

func TestMongoNotificationsReadState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")

	mine := &store.Notification{RecipientID: alice, Title: "New Task Assigned", Message: "mine", Type: "task_assigned", CreatedByID: bob}
	theirs := &store.Notification{RecipientID: bob, Title: "New Task Assigned", Message: "theirs", Type: "task_assigned"}
	for _, n := range []*store.Notification{mine, theirs} {
		if err := s.CreateNotification(ctx, n); err != nil {
			t.Fatalf("create notification: %v", err)
		}
	}

	if _, err := s.MarkNotificationRead(ctx, theirs.ID, alice); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for another recipient's notification, got %v", err)
	}
	read, err := s.MarkNotificationRead(ctx, mine.ID, alice)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if !read.IsRead || read.CreatedByID != bob {
		t.Fatalf("unexpected read notification: %+v", read)
	}

	changed, err := s.MarkAllNotificationsRead(ctx, bob)
	if err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	if changed != 1 {
		t.Fatalf("expected 1 notification to change, got %d", changed)
	}

	list, err := s.ListNotifications(ctx, alice)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(list) != 1 || !list[0].IsRead {
		t.Fatalf("unexpected notifications: %+v", list)
	}
}
