package http

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/vovakirdan/groupsync-server/internal/config"
	"github.com/vovakirdan/groupsync-server/internal/core"
	"github.com/vovakirdan/groupsync-server/internal/proto"
)

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.ts.Client().Get(env.ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestWebSocketMessageLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := env.dial(t, ctx)
	connB := env.dial(t, ctx)

	send(t, ctx, connA, proto.InboundTypeUserJoin, proto.UserJoinData{UserID: "u-alice", Username: "alice"})
	send(t, ctx, connA, proto.InboundTypeJoinGroup, "g1")
	readOnline(t, ctx, connA, "g1", 1)

	send(t, ctx, connB, proto.InboundTypeUserJoin, proto.UserJoinData{UserID: "u-bob", Username: "bob"})
	send(t, ctx, connB, proto.InboundTypeJoinGroup, proto.GroupData{GroupID: "g1"})
	online := readOnline(t, ctx, connB, "g1", 2)
	if online.OnlineUsers[0].UserID != "u-alice" || online.OnlineUsers[1].Username != "bob" {
		t.Fatalf("unexpected snapshot: %+v", online)
	}

	tokenA := env.token(t, "u-alice", "alice")

	var sent proto.Message
	if status := env.do(t, http.MethodPost, "/api/groups/g1/messages", tokenA, SendMessageRequest{Message: "hello"}, &sent); status != http.StatusCreated {
		t.Fatalf("send: expected 201, got %d", status)
	}

	for name, conn := range map[string]*websocket.Conn{"A": connA, "B": connB} {
		var msg proto.Message
		readEvent(t, ctx, conn, proto.EventNewMessage, &msg)
		if msg.Body != "hello" || msg.Edited || msg.ID != sent.ID {
			t.Fatalf("%s: unexpected new_message: %+v", name, msg)
		}
		if msg.Sender == nil || msg.Sender.Username != "alice" || msg.Sender.Email != "alice@example.com" {
			t.Fatalf("%s: expected populated sender, got %+v", name, msg.Sender)
		}
	}

	// Bob cannot edit or delete Alice's message.
	tokenB := env.token(t, "u-bob", "bob")
	if status := env.do(t, http.MethodPut, "/api/messages/"+sent.ID, tokenB, EditMessageRequest{Message: "pwned"}, nil); status != http.StatusNotFound {
		t.Fatalf("foreign edit: expected 404, got %d", status)
	}
	if status := env.do(t, http.MethodDelete, "/api/messages/"+sent.ID, tokenB, nil, nil); status != http.StatusNotFound {
		t.Fatalf("foreign delete: expected 404, got %d", status)
	}

	if status := env.do(t, http.MethodPut, "/api/messages/"+sent.ID, tokenA, EditMessageRequest{Message: "hello world"}, nil); status != http.StatusOK {
		t.Fatalf("edit: expected 200, got %d", status)
	}
	for name, conn := range map[string]*websocket.Conn{"A": connA, "B": connB} {
		var msg proto.Message
		readEvent(t, ctx, conn, proto.EventMessageUpdated, &msg)
		if msg.Body != "hello world" || !msg.Edited || msg.EditedAt == nil {
			t.Fatalf("%s: unexpected message_updated: %+v", name, msg)
		}
	}

	if status := env.do(t, http.MethodDelete, "/api/messages/"+sent.ID, tokenA, nil, nil); status != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", status)
	}
	for name, conn := range map[string]*websocket.Conn{"A": connA, "B": connB} {
		var id string
		readEvent(t, ctx, conn, proto.EventMessageDeleted, &id)
		if id != sent.ID {
			t.Fatalf("%s: expected deleted id %s, got %s", name, sent.ID, id)
		}
	}

	var history HistoryResponse
	if status := env.do(t, http.MethodGet, "/api/groups/g1/messages", tokenA, nil, &history); status != http.StatusOK {
		t.Fatalf("history: expected 200, got %d", status)
	}
	if len(history.Messages) != 0 {
		t.Fatalf("expected deleted message to be gone from history, got %+v", history.Messages)
	}
}

func TestWebSocketDisconnectUpdatesPresence(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connD := env.dial(t, ctx)
	connC := env.dial(t, ctx)

	send(t, ctx, connD, proto.InboundTypeUserJoin, proto.UserJoinData{UserID: "u-d", GroupID: "g2", Username: "dave"})
	readOnline(t, ctx, connD, "g2", 1)
	send(t, ctx, connC, proto.InboundTypeUserJoin, proto.UserJoinData{UserID: "u-c", GroupID: "g2", Username: "carol"})
	readOnline(t, ctx, connD, "g2", 2)

	connC.Close(websocket.StatusNormalClosure, "bye")

	online := readOnline(t, ctx, connD, "g2", 1)
	for _, u := range online.OnlineUsers {
		if u.UserID == "u-c" {
			t.Fatalf("disconnected user still online: %+v", online)
		}
	}

	snap, err := env.hub.OnlineUsers(ctx, "g2")
	if err != nil {
		t.Fatalf("online users: %v", err)
	}
	if snap.Count != 1 || snap.Users[0].UserID != "u-d" {
		t.Fatalf("unexpected registry state: %+v", snap)
	}
}

func TestWebSocketLegacyUserJoin(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dial(t, ctx)
	send(t, ctx, conn, proto.InboundTypeUserJoin, "u-legacy")
	send(t, ctx, conn, proto.InboundTypeJoinGroup, "g1")

	online := readOnline(t, ctx, conn, "g1", 1)
	if online.OnlineUsers[0].UserID != "u-legacy" || online.OnlineUsers[0].Username != proto.DefaultUsername {
		t.Fatalf("unexpected legacy identity: %+v", online)
	}
}

func TestWebSocketRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dial(t, ctx)

	send(t, ctx, conn, proto.InboundTypeJoinGroup, "g1")
	if e := readError(t, ctx, conn); e.Code != core.ErrCodeNotIdentified {
		t.Fatalf("expected not_identified, got %+v", e)
	}

	send(t, ctx, conn, "shout", map[string]string{"text": "hi"})
	if e := readError(t, ctx, conn); e.Code != core.ErrCodeInvalidMessage {
		t.Fatalf("expected invalid_message, got %+v", e)
	}

	send(t, ctx, conn, proto.InboundTypeUserJoin, map[string]string{"groupId": "g1"})
	if e := readError(t, ctx, conn); e.Code != core.ErrCodeBadRequest {
		t.Fatalf("expected bad_request, got %+v", e)
	}
}

func TestWebSocketRateLimit(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.InboundRatePerMinute = 6 })
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dial(t, ctx)

	// Burst is one event for this rate; the second arrives too early.
	send(t, ctx, conn, proto.InboundTypeUserJoin, "u1")
	send(t, ctx, conn, proto.InboundTypeJoinGroup, "g1")
	if e := readError(t, ctx, conn); e.Code != core.ErrCodeRateLimited {
		t.Fatalf("expected rate_limited, got %+v", e)
	}
}

func TestTypingRelayExcludesSender(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := env.dial(t, ctx)
	connB := env.dial(t, ctx)

	send(t, ctx, connA, proto.InboundTypeUserJoin, proto.UserJoinData{UserID: "u-alice", GroupID: "g1", Username: "alice"})
	readOnline(t, ctx, connA, "g1", 1)
	send(t, ctx, connB, proto.InboundTypeUserJoin, proto.UserJoinData{UserID: "u-bob", GroupID: "g1", Username: "bob"})
	readOnline(t, ctx, connA, "g1", 2)

	send(t, ctx, connA, proto.InboundTypeTypingStart, proto.TypingData{GroupID: "g1", UserID: "u-alice", Username: "alice"})
	var typing proto.TypingEvent
	readEvent(t, ctx, connB, proto.EventUserTyping, &typing)
	if typing.UserID != "u-alice" || typing.Username != "alice" {
		t.Fatalf("unexpected typing payload: %+v", typing)
	}

	send(t, ctx, connA, proto.InboundTypeTypingStop, proto.TypingData{GroupID: "g1"})
	readEvent(t, ctx, connB, proto.EventUserStopTyping, &typing)
}
