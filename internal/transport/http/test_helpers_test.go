package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/groupsync-server/internal/auth"
	"github.com/vovakirdan/groupsync-server/internal/config"
	"github.com/vovakirdan/groupsync-server/internal/core"
	"github.com/vovakirdan/groupsync-server/internal/proto"
	"github.com/vovakirdan/groupsync-server/internal/service/chat"
	"github.com/vovakirdan/groupsync-server/internal/service/notifications"
	"github.com/vovakirdan/groupsync-server/internal/store"
	"github.com/vovakirdan/groupsync-server/internal/store/sqlite"
)

const testSecret = "test-secret"

type testEnv struct {
	ts    *httptest.Server
	store store.Store
	hub   *core.Hub
	cfg   config.Config
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	for _, u := range []store.User{
		{ID: "u-alice", Username: "alice", Email: "alice@example.com"},
		{ID: "u-bob", Username: "bob", Email: "bob@example.com"},
	} {
		if err := st.CreateUser(context.Background(), &u); err != nil {
			t.Fatalf("failed to seed user: %v", err)
		}
	}

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.JWTSecret = testSecret
	for _, m := range mutate {
		m(&cfg)
	}

	hub := core.NewHub(nil)
	dispatcher := notifications.New(st, hub, nil, cfg.NotifyConcurrency, cfg.PersistTimeout)
	hub.SetTaskNotifier(dispatcher)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	server := NewServer(Deps{
		Hub:           hub,
		Chat:          chat.New(st, hub, nil, cfg.HistoryPageSize),
		Notifications: dispatcher,
		Config:        cfg,
	})
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, store: st, hub: hub, cfg: cfg}
}

func (e *testEnv) token(t *testing.T, userID, username string) string {
	t.Helper()

	token, err := auth.GenerateToken(&auth.JWTConfig{Secret: []byte(testSecret), TTL: time.Hour}, userID, username, username+"@example.com")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	return token
}

// do sends an authenticated JSON request and decodes the response into out when non-nil.
func (e *testEnv) do(t *testing.T, method, path, token string, body any, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (e *testEnv) dial(t *testing.T, ctx context.Context) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

type wireOutbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s: %v", typ, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
		t.Fatalf("send %s: %v", typ, err)
	}
}

// readEvent skips frames until the named event arrives and decodes its data into out.
func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn, event string, out any) {
	t.Helper()

	for {
		var outbound wireOutbound
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if outbound.Type != proto.OutboundTypeEvent || outbound.Event != event {
			continue
		}
		if out != nil {
			if err := json.Unmarshal(outbound.Data, out); err != nil {
				t.Fatalf("decode %s: %v", event, err)
			}
		}
		return
	}
}

// readOnline waits for an online_users_update of groupID with the given count.
func readOnline(t *testing.T, ctx context.Context, conn *websocket.Conn, groupID string, count int) proto.OnlineUsersData {
	t.Helper()

	for {
		var data proto.OnlineUsersData
		readEvent(t, ctx, conn, proto.EventOnlineUsersUpdate, &data)
		if data.GroupID == groupID && data.OnlineCount == count {
			return data
		}
	}
}

func readError(t *testing.T, ctx context.Context, conn *websocket.Conn) *proto.Error {
	t.Helper()

	for {
		var outbound wireOutbound
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			t.Fatalf("waiting for error: %v", err)
		}
		if outbound.Type == proto.OutboundTypeError {
			return outbound.Error
		}
	}
}
