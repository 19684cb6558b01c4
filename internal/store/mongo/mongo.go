// Package mongo implements store.Store on MongoDB. Identifiers are ObjectIDs in the
// database and hex strings at the store boundary.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vovakirdan/groupsync-server/internal/store"
)

const (
	usersCollection         = "users"
	messagesCollection      = "messages"
	notificationsCollection = "notifications"

	disconnectTimeout = 5 * time.Second
)

// MongoStore implements store.Store for MongoDB.
type MongoStore struct {
	client        *mongo.Client
	users         *mongo.Collection
	messages      *mongo.Collection
	notifications *mongo.Collection
}

// Open connects to uri, verifies the connection and ensures indexes on dbName.
func Open(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s := New(client, client.Database(dbName))
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// New wraps an already connected database.
func New(client *mongo.Client, db *mongo.Database) *MongoStore {
	return &MongoStore{
		client:        client,
		users:         db.Collection(usersCollection),
		messages:      db.Collection(messagesCollection),
		notifications: db.Collection(notificationsCollection),
	}
}

// EnsureIndexes creates the query indexes. Each call is idempotent.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	if _, err := s.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_messages_group_created"),
		},
	}); err != nil {
		return fmt.Errorf("messages indexes: %w", err)
	}
	if _, err := s.notifications.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "recipient_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_notifications_recipient_created"),
		},
	}); err != nil {
		return fmt.Errorf("notifications indexes: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// ==== documents ====

type userDoc struct {
	ID        primitive.ObjectID `bson:"_id"`
	Username  string             `bson:"username"`
	Email     string             `bson:"email"`
	CreatedAt time.Time          `bson:"created_at"`
}

type reactionDoc struct {
	UserID primitive.ObjectID `bson:"user_id"`
	Emoji  string             `bson:"emoji"`
}

type messageDoc struct {
	ID        primitive.ObjectID `bson:"_id"`
	GroupID   primitive.ObjectID `bson:"group_id"`
	SenderID  primitive.ObjectID `bson:"sender_id"`
	Body      string             `bson:"body"`
	Kind      string             `bson:"kind"`
	FileRef   string             `bson:"file_ref,omitempty"`
	Edited    bool               `bson:"edited"`
	EditedAt  *time.Time         `bson:"edited_at,omitempty"`
	Reactions []reactionDoc      `bson:"reactions"`
	CreatedAt time.Time          `bson:"created_at"`
}

type notificationDoc struct {
	ID            primitive.ObjectID  `bson:"_id"`
	RecipientID   primitive.ObjectID  `bson:"recipient_id"`
	Title         string              `bson:"title"`
	Message       string              `bson:"message"`
	Type          string              `bson:"type"`
	RelatedTaskID *primitive.ObjectID `bson:"related_task_id,omitempty"`
	GroupID       *primitive.ObjectID `bson:"group_id,omitempty"`
	CreatedByID   *primitive.ObjectID `bson:"created_by_id,omitempty"`
	IsRead        bool                `bson:"is_read"`
	CreatedAt     time.Time           `bson:"created_at"`
}

func parseID(kind, hex string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("invalid %s id %q: %w", kind, hex, err)
	}
	return id, nil
}

func optionalID(kind, hex string) (*primitive.ObjectID, error) {
	if hex == "" {
		return nil, nil
	}
	id, err := parseID(kind, hex)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func hexOf(id *primitive.ObjectID) string {
	if id == nil {
		return ""
	}
	return id.Hex()
}

func (d messageDoc) toStore() *store.Message {
	msg := &store.Message{
		ID:        d.ID.Hex(),
		GroupID:   d.GroupID.Hex(),
		SenderID:  d.SenderID.Hex(),
		Body:      d.Body,
		Kind:      store.MessageKind(d.Kind),
		FileRef:   d.FileRef,
		Edited:    d.Edited,
		EditedAt:  d.EditedAt,
		CreatedAt: d.CreatedAt,
	}
	for _, r := range d.Reactions {
		msg.Reactions = append(msg.Reactions, store.Reaction{UserID: r.UserID.Hex(), Emoji: r.Emoji})
	}
	return msg
}

func (d notificationDoc) toStore() *store.Notification {
	return &store.Notification{
		ID:            d.ID.Hex(),
		RecipientID:   d.RecipientID.Hex(),
		Title:         d.Title,
		Message:       d.Message,
		Type:          d.Type,
		RelatedTaskID: hexOf(d.RelatedTaskID),
		GroupID:       hexOf(d.GroupID),
		CreatedByID:   hexOf(d.CreatedByID),
		IsRead:        d.IsRead,
		CreatedAt:     d.CreatedAt,
	}
}

// ==== UserStore implementation ====

// CreateUser inserts a user. An empty ID gets a fresh ObjectID.
func (s *MongoStore) CreateUser(ctx context.Context, user *store.User) error {
	id := primitive.NewObjectID()
	if user.ID != "" {
		parsed, err := parseID("user", user.ID)
		if err != nil {
			return err
		}
		id = parsed
	}

	doc := userDoc{ID: id, Username: user.Username, Email: user.Email, CreatedAt: time.Now().UTC()}
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	user.ID = id.Hex()
	user.CreatedAt = doc.CreatedAt
	return nil
}

// populateSenders resolves sender display fields with one query per batch.
func (s *MongoStore) populateSenders(ctx context.Context, docs []messageDoc) ([]*store.Message, error) {
	ids := make([]primitive.ObjectID, 0, len(docs))
	seen := make(map[primitive.ObjectID]struct{}, len(docs))
	for _, d := range docs {
		if _, ok := seen[d.SenderID]; ok {
			continue
		}
		seen[d.SenderID] = struct{}{}
		ids = append(ids, d.SenderID)
	}

	senders := make(map[primitive.ObjectID]*store.UserRef, len(ids))
	if len(ids) > 0 {
		cur, err := s.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
		if err != nil {
			return nil, fmt.Errorf("find senders: %w", err)
		}
		var users []userDoc
		if err := cur.All(ctx, &users); err != nil {
			return nil, fmt.Errorf("decode senders: %w", err)
		}
		for _, u := range users {
			senders[u.ID] = &store.UserRef{ID: u.ID.Hex(), Username: u.Username, Email: u.Email}
		}
	}

	messages := make([]*store.Message, 0, len(docs))
	for _, d := range docs {
		msg := d.toStore()
		msg.Sender = senders[d.SenderID]
		messages = append(messages, msg)
	}
	return messages, nil
}

func (s *MongoStore) populateOne(ctx context.Context, doc messageDoc) (*store.Message, error) {
	messages, err := s.populateSenders(ctx, []messageDoc{doc})
	if err != nil {
		return nil, err
	}
	return messages[0], nil
}

// ==== MessageStore implementation ====

// CreateMessage persists a message and populates its sender.
func (s *MongoStore) CreateMessage(ctx context.Context, msg *store.Message) error {
	groupID, err := parseID("group", msg.GroupID)
	if err != nil {
		return err
	}
	senderID, err := parseID("sender", msg.SenderID)
	if err != nil {
		return err
	}
	if msg.Kind == "" {
		msg.Kind = store.MessageKindText
	}

	doc := messageDoc{
		ID:        primitive.NewObjectID(),
		GroupID:   groupID,
		SenderID:  senderID,
		Body:      msg.Body,
		Kind:      string(msg.Kind),
		FileRef:   msg.FileRef,
		Reactions: []reactionDoc{},
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.messages.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	saved, err := s.populateOne(ctx, doc)
	if err != nil {
		return err
	}
	*msg = *saved
	return nil
}

// GetMessage retrieves a message by ID.
func (s *MongoStore) GetMessage(ctx context.Context, id string) (*store.Message, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("message %s: %w", id, store.ErrNotFound)
	}

	var doc messageDoc
	if err := s.messages.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("message %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("find message: %w", err)
	}
	return s.populateOne(ctx, doc)
}

// ownedFilter matches a message only when it belongs to senderID.
func ownedFilter(id, senderID string) (bson.M, bool) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, false
	}
	sid, err := primitive.ObjectIDFromHex(senderID)
	if err != nil {
		return nil, false
	}
	return bson.M{"_id": oid, "sender_id": sid}, true
}

// UpdateMessageBody replaces the body of a message owned by senderID.
func (s *MongoStore) UpdateMessageBody(ctx context.Context, id, senderID, body string, editedAt time.Time) (*store.Message, error) {
	filter, ok := ownedFilter(id, senderID)
	if !ok {
		return nil, fmt.Errorf("message %s of %s: %w", id, senderID, store.ErrNotFound)
	}

	stamp := editedAt.UTC()
	update := bson.M{"$set": bson.M{"body": body, "edited": true, "edited_at": stamp}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc messageDoc
	if err := s.messages.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("message %s of %s: %w", id, senderID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("update message: %w", err)
	}
	return s.populateOne(ctx, doc)
}

// DeleteMessage removes a message owned by senderID.
func (s *MongoStore) DeleteMessage(ctx context.Context, id, senderID string) (*store.Message, error) {
	filter, ok := ownedFilter(id, senderID)
	if !ok {
		return nil, fmt.Errorf("message %s of %s: %w", id, senderID, store.ErrNotFound)
	}

	var doc messageDoc
	if err := s.messages.FindOneAndDelete(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("message %s of %s: %w", id, senderID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("delete message: %w", err)
	}
	return s.populateOne(ctx, doc)
}

// ToggleReaction pulls the (user, emoji) reaction, pushing it instead when it was absent.
func (s *MongoStore) ToggleReaction(ctx context.Context, id, userID, emoji string) (*store.Message, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("message %s: %w", id, store.ErrNotFound)
	}
	uid, err := parseID("user", userID)
	if err != nil {
		return nil, err
	}
	reaction := reactionDoc{UserID: uid, Emoji: emoji}

	res, err := s.messages.UpdateByID(ctx, oid, bson.M{"$pull": bson.M{"reactions": reaction}})
	if err != nil {
		return nil, fmt.Errorf("pull reaction: %w", err)
	}
	if res.MatchedCount == 0 {
		return nil, fmt.Errorf("message %s: %w", id, store.ErrNotFound)
	}
	if res.ModifiedCount == 0 {
		if _, err := s.messages.UpdateByID(ctx, oid, bson.M{"$push": bson.M{"reactions": reaction}}); err != nil {
			return nil, fmt.Errorf("push reaction: %w", err)
		}
	}
	return s.GetMessage(ctx, id)
}

// ListMessages returns a page of group messages, newest first.
func (s *MongoStore) ListMessages(ctx context.Context, groupID string, limit, offset int) ([]*store.Message, error) {
	gid, err := primitive.ObjectIDFromHex(groupID)
	if err != nil {
		return nil, nil
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cur, err := s.messages.Find(ctx, bson.M{"group_id": gid}, opts)
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}
	var docs []messageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return s.populateSenders(ctx, docs)
}

// CountMessages returns the number of messages in a group.
func (s *MongoStore) CountMessages(ctx context.Context, groupID string) (int64, error) {
	gid, err := primitive.ObjectIDFromHex(groupID)
	if err != nil {
		return 0, nil
	}
	count, err := s.messages.CountDocuments(ctx, bson.M{"group_id": gid})
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

// ==== NotificationStore implementation ====

// CreateNotification persists a notification for one recipient.
func (s *MongoStore) CreateNotification(ctx context.Context, n *store.Notification) error {
	recipient, err := parseID("recipient", n.RecipientID)
	if err != nil {
		return err
	}
	taskID, err := optionalID("task", n.RelatedTaskID)
	if err != nil {
		return err
	}
	groupID, err := optionalID("group", n.GroupID)
	if err != nil {
		return err
	}
	createdBy, err := optionalID("creator", n.CreatedByID)
	if err != nil {
		return err
	}

	doc := notificationDoc{
		ID:            primitive.NewObjectID(),
		RecipientID:   recipient,
		Title:         n.Title,
		Message:       n.Message,
		Type:          n.Type,
		RelatedTaskID: taskID,
		GroupID:       groupID,
		CreatedByID:   createdBy,
		IsRead:        n.IsRead,
		CreatedAt:     time.Now().UTC(),
	}
	if _, err := s.notifications.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	n.ID = doc.ID.Hex()
	n.CreatedAt = doc.CreatedAt
	return nil
}

// ListNotifications returns a recipient's notifications, newest first.
func (s *MongoStore) ListNotifications(ctx context.Context, recipientID string) ([]*store.Notification, error) {
	rid, err := primitive.ObjectIDFromHex(recipientID)
	if err != nil {
		return nil, nil
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := s.notifications.Find(ctx, bson.M{"recipient_id": rid}, opts)
	if err != nil {
		return nil, fmt.Errorf("find notifications: %w", err)
	}
	var docs []notificationDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode notifications: %w", err)
	}

	notifications := make([]*store.Notification, 0, len(docs))
	for _, d := range docs {
		notifications = append(notifications, d.toStore())
	}
	return notifications, nil
}

// MarkNotificationRead marks one notification of recipientID as read.
func (s *MongoStore) MarkNotificationRead(ctx context.Context, id, recipientID string) (*store.Notification, error) {
	oid, err1 := primitive.ObjectIDFromHex(id)
	rid, err2 := primitive.ObjectIDFromHex(recipientID)
	if err1 != nil || err2 != nil {
		return nil, fmt.Errorf("notification %s of %s: %w", id, recipientID, store.ErrNotFound)
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc notificationDoc
	err := s.notifications.FindOneAndUpdate(ctx,
		bson.M{"_id": oid, "recipient_id": rid},
		bson.M{"$set": bson.M{"is_read": true}},
		opts,
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("notification %s of %s: %w", id, recipientID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("update notification: %w", err)
	}
	return doc.toStore(), nil
}

// MarkAllNotificationsRead marks every unread notification of recipientID as read.
func (s *MongoStore) MarkAllNotificationsRead(ctx context.Context, recipientID string) (int64, error) {
	rid, err := primitive.ObjectIDFromHex(recipientID)
	if err != nil {
		return 0, nil
	}
	res, err := s.notifications.UpdateMany(ctx,
		bson.M{"recipient_id": rid, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true}},
	)
	if err != nil {
		return 0, fmt.Errorf("update notifications: %w", err)
	}
	return res.ModifiedCount, nil
}
