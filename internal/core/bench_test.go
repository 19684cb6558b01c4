package core

import (
	"context"
	"strconv"
	"testing"

	"github.com/vovakirdan/groupsync-server/internal/store"
)

func benchmarkRoomBroadcast(b *testing.B, recipients int) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(nil)
	go hub.Run(ctx)

	clients := make([]*Client, 0, recipients)
	for i := range recipients {
		c := NewClient("c"+strconv.Itoa(i), "client", 256)
		hub.RegisterClient(c)
		c.Commands <- &Command{Kind: CommandUserJoin, UserID: "u" + strconv.Itoa(i), GroupID: "bench"}
		clients = append(clients, c)
	}

	// Drain events for all but the first recipient to avoid channel backpressure.
	target := clients[0]
	for _, c := range clients[1:] {
		go func(cl *Client) {
			for range cl.Events {
			}
		}(c)
	}
	// Wait until the target sees the whole room.
	for {
		ev := <-target.Events
		if ev.Kind == EventOnlineUsers && ev.Online.Count == recipients {
			break
		}
	}

	msg := &store.Message{ID: "m", GroupID: "bench", Body: "payload", Kind: store.MessageKindText}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if err := hub.BroadcastToGroup(ctx, "bench", MessageEvent(EventNewMessage, msg)); err != nil {
			b.Fatal(err)
		}
		<-target.Events
	}
}

func BenchmarkRoomBroadcast_10(b *testing.B)  { benchmarkRoomBroadcast(b, 10) }
func BenchmarkRoomBroadcast_100(b *testing.B) { benchmarkRoomBroadcast(b, 100) }
func BenchmarkRoomBroadcast_500(b *testing.B) { benchmarkRoomBroadcast(b, 500) }
