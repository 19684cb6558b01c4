package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/groupsync-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

type outbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func run() error {
	addr := flag.String("addr", "ws://localhost:5000/ws", "WebSocket address")
	user := flag.String("user", "smoke-user", "userId to announce with user_join")
	username := flag.String("username", "Smoke", "display name")
	group := flag.String("group", "smoke-group", "group to join")
	typing := flag.Bool("typing", true, "send typing_start/typing_stop after joining")
	timeout := flag.Duration("timeout", 10*time.Second, "how long to listen for events")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(typ string, data any) error {
		payload, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", typ, err)
		}
		if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
			return fmt.Errorf("send %s: %w", typ, err)
		}
		return nil
	}

	if err := send(proto.InboundTypeUserJoin, proto.UserJoinData{UserID: *user, GroupID: *group, Username: *username}); err != nil {
		return err
	}
	if *typing {
		if err := send(proto.InboundTypeTypingStart, proto.TypingData{GroupID: *group}); err != nil {
			return err
		}
		if err := send(proto.InboundTypeTypingStop, proto.TypingData{GroupID: *group}); err != nil {
			return err
		}
	}

	for {
		var out outbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				fmt.Println("listen window elapsed")
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		if out.Type == proto.OutboundTypeError && out.Error != nil {
			fmt.Printf("error: code=%s msg=%s\n", out.Error.Code, out.Error.Msg)
			continue
		}

		switch out.Event {
		case proto.EventOnlineUsersUpdate:
			var evt proto.OnlineUsersData
			if err := json.Unmarshal(out.Data, &evt); err != nil {
				return fmt.Errorf("unmarshal %s: %w", out.Event, err)
			}
			fmt.Printf("online: group=%s count=%d users=%v\n", evt.GroupID, evt.OnlineCount, evt.OnlineUsers)
		case proto.EventNewMessage, proto.EventMessageUpdated:
			var evt proto.Message
			if err := json.Unmarshal(out.Data, &evt); err != nil {
				return fmt.Errorf("unmarshal %s: %w", out.Event, err)
			}
			fmt.Printf("%s: id=%s body=%q edited=%v\n", out.Event, evt.ID, evt.Body, evt.Edited)
		case proto.EventNewTaskNotification:
			var evt proto.TaskNotificationData
			if err := json.Unmarshal(out.Data, &evt); err != nil {
				return fmt.Errorf("unmarshal %s: %w", out.Event, err)
			}
			fmt.Printf("notification: %s (id=%s)\n", evt.Message, evt.NotificationID)
		default:
			fmt.Printf("%s: %s\n", out.Event, string(out.Data))
		}
	}
}
