package core

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/groupsync-server/internal/store"
)

// TaskNotifier fans a task assignment out to its recipients.
type TaskNotifier interface {
	NotifyTaskAssigned(ctx context.Context, a TaskAssignment) []*store.Notification
}

type clientCommand struct {
	client *Client
	cmd    *Command
}

// lifecycle carries register and disconnect on one channel so they are handled in
// the order the transport issued them.
type lifecycle struct {
	client     *Client
	disconnect bool
}

// Hub is the event router. A single goroutine (Run) owns the presence registry and
// the room multiplexer; every mutation reaches it through a channel.
type Hub struct {
	logger   *zerolog.Logger
	presence *Presence
	rooms    *Multiplexer
	clients  map[*Client]struct{}
	conns    map[string]*Client
	notifier TaskNotifier

	lifecycle chan lifecycle
	inbox     chan clientCommand
	ops       chan func()
	stopped   chan struct{}
}

// NewHub creates a hub. Call Run to start processing.
func NewHub(logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		logger:     logger,
		presence:   NewPresence(),
		rooms:      NewMultiplexer(logger),
		clients:    make(map[*Client]struct{}),
		conns:      make(map[string]*Client),
		lifecycle: make(chan lifecycle, 32),
		inbox:     make(chan clientCommand, 64),
		ops:       make(chan func(), 64),
		stopped:   make(chan struct{}),
	}
}

// SetTaskNotifier installs the task assignment fan-out. Call it before Run.
func (h *Hub) SetTaskNotifier(n TaskNotifier) {
	h.notifier = n
}

// Run processes hub events until ctx is cancelled. On return every client's
// Events channel is closed.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case ev := <-h.lifecycle:
			if ev.disconnect {
				h.handleDisconnect(ev.client)
			} else {
				h.handleRegister(ctx, ev.client)
			}
		case in := <-h.inbox:
			h.handleCommand(ctx, in.client, in.cmd)
		case op := <-h.ops:
			op()
		}
	}
}

// RegisterClient adds a connection to the hub and starts consuming its commands.
func (h *Hub) RegisterClient(c *Client) {
	select {
	case h.lifecycle <- lifecycle{client: c}:
	case <-h.stopped:
	}
}

// UnregisterClient runs the disconnect cleanup for c. Safe to call more than once.
func (h *Hub) UnregisterClient(c *Client) {
	select {
	case h.lifecycle <- lifecycle{client: c, disconnect: true}:
	case <-h.stopped:
	}
}

// BroadcastToGroup delivers ev to every connection joined to groupID.
func (h *Hub) BroadcastToGroup(ctx context.Context, groupID string, ev *Event) error {
	return h.submit(ctx, func() {
		n := h.rooms.Broadcast(groupID, ev, nil)
		h.logger.Debug().Str("group_id", groupID).Int("event", int(ev.Kind)).Int("recipients", n).Msg("group broadcast")
	})
}

// BroadcastAll delivers ev to every registered connection.
func (h *Hub) BroadcastAll(ctx context.Context, ev *Event) error {
	return h.submit(ctx, func() {
		for c := range h.clients {
			h.rooms.SendTo(c, ev)
		}
	})
}

// SendToUser unicasts ev to the active connection of userID. It reports whether
// the user was present and the event was queued.
func (h *Hub) SendToUser(ctx context.Context, userID string, ev *Event) bool {
	reply := make(chan bool, 1)
	err := h.submit(ctx, func() {
		connID, ok := h.presence.Lookup(userID)
		if !ok {
			reply <- false
			return
		}
		c, ok := h.conns[connID]
		if !ok {
			reply <- false
			return
		}
		reply <- h.rooms.SendTo(c, ev)
	})
	if err != nil {
		return false
	}
	select {
	case delivered := <-reply:
		return delivered
	case <-ctx.Done():
		return false
	case <-h.stopped:
		return false
	}
}

// OnlineUsers returns the current presence snapshot of groupID.
func (h *Hub) OnlineUsers(ctx context.Context, groupID string) (OnlineSnapshot, error) {
	reply := make(chan OnlineSnapshot, 1)
	if err := h.submit(ctx, func() { reply <- h.presence.Snapshot(groupID) }); err != nil {
		return OnlineSnapshot{}, err
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return OnlineSnapshot{}, ctx.Err()
	case <-h.stopped:
		return OnlineSnapshot{}, ErrHubStopped
	}
}

func (h *Hub) submit(ctx context.Context, op func()) error {
	select {
	case <-h.stopped:
		return ErrHubStopped
	default:
	}
	select {
	case h.ops <- op:
		return nil
	case <-h.stopped:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) handleRegister(ctx context.Context, c *Client) {
	if _, ok := h.clients[c]; ok || c.closed {
		return
	}
	h.clients[c] = struct{}{}
	h.conns[c.ID] = c
	h.logger.Debug().Str("conn_id", c.ID).Msg("client connected")
	go h.pump(ctx, c)
}

// pump forwards a client's commands into the hub loop until the client is closed.
func (h *Hub) pump(ctx context.Context, c *Client) {
	for {
		select {
		case cmd, ok := <-c.Commands:
			if !ok {
				return
			}
			if cmd == nil {
				continue
			}
			select {
			case h.inbox <- clientCommand{client: c, cmd: cmd}:
			case <-c.done:
				return
			case <-ctx.Done():
				return
			}
		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// handleDisconnect is the single cleanup path for a connection.
func (h *Hub) handleDisconnect(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	delete(h.conns, c.ID)

	h.rooms.LeaveAll(c)
	affected := h.presence.LeaveAll(c.ID)
	h.presence.Unregister(c.ID)
	c.close()

	for _, groupID := range affected {
		h.rooms.Broadcast(groupID, OnlineUsersEvent(h.presence.Snapshot(groupID)), nil)
	}
	h.logger.Debug().
		Str("conn_id", c.ID).
		Str("user_id", c.UserID).
		Strs("groups", affected).
		Msg("client disconnected")
}

func (h *Hub) handleCommand(ctx context.Context, c *Client, cmd *Command) {
	if _, ok := h.clients[c]; !ok {
		return
	}

	switch cmd.Kind {
	case CommandUserJoin:
		h.handleUserJoin(c, cmd)
	case CommandJoinGroup:
		h.handleJoinGroup(c, cmd)
	case CommandLeaveGroup:
		h.handleLeaveGroup(c, cmd)
	case CommandTypingStart, CommandTypingStop:
		h.handleTyping(c, cmd)
	case CommandTaskAssigned:
		h.handleTaskAssigned(ctx, c, cmd)
	default:
		h.rooms.SendTo(c, errorEvent(ErrCodeBadRequest, "unknown command"))
	}
}

func (h *Hub) handleUserJoin(c *Client, cmd *Command) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		h.rooms.SendTo(c, errorEvent(ErrCodeBadRequest, "userId is required"))
		return
	}

	prevUser, prevName := c.UserID, c.Name
	c.UserID = userID
	switch {
	case cmd.DisplayName != "":
		c.Name = cmd.DisplayName
	case c.Name == "":
		c.Name = DefaultDisplayName
	}
	h.presence.Register(userID, c.ID)
	h.logger.Debug().Str("conn_id", c.ID).Str("user_id", userID).Msg("user identified")

	if prevUser != "" && (prevUser != userID || prevName != c.Name) {
		for _, groupID := range h.presence.Retag(c.ID, userID, c.Name) {
			if groupID == cmd.GroupID {
				continue
			}
			h.rooms.Broadcast(groupID, OnlineUsersEvent(h.presence.Snapshot(groupID)), nil)
		}
	}

	if cmd.GroupID == "" {
		return
	}
	h.rooms.Join(c, cmd.GroupID)
	snap := h.presence.JoinRoom(cmd.GroupID, userID, c.Name, c.ID)
	h.rooms.Broadcast(cmd.GroupID, OnlineUsersEvent(snap), nil)
}

func (h *Hub) handleJoinGroup(c *Client, cmd *Command) {
	if c.UserID == "" {
		h.rooms.SendTo(c, errorEvent(ErrCodeNotIdentified, "send user_join before join_group"))
		return
	}
	if cmd.GroupID == "" {
		h.rooms.SendTo(c, errorEvent(ErrCodeBadRequest, "groupId is required"))
		return
	}

	h.rooms.Join(c, cmd.GroupID)
	snap := h.presence.JoinRoom(cmd.GroupID, c.UserID, c.Name, c.ID)
	h.rooms.SendTo(c, OnlineUsersEvent(snap))
	h.logger.Debug().Str("conn_id", c.ID).Str("group_id", cmd.GroupID).Int("online", snap.Count).Msg("joined group")
}

func (h *Hub) handleLeaveGroup(c *Client, cmd *Command) {
	if cmd.GroupID == "" {
		return
	}
	h.rooms.Leave(c, cmd.GroupID)
	h.presence.LeaveRoom(cmd.GroupID, c.ID)
	h.logger.Debug().Str("conn_id", c.ID).Str("group_id", cmd.GroupID).Msg("left group")
}

// handleTyping relays to the room minus the sender. Failures are never reported back.
func (h *Hub) handleTyping(c *Client, cmd *Command) {
	if cmd.GroupID == "" {
		return
	}
	typing := &Typing{UserID: cmd.UserID, Username: cmd.DisplayName}
	if typing.UserID == "" {
		typing.UserID = c.UserID
	}
	if typing.Username == "" {
		typing.Username = c.Name
	}

	kind := EventUserTyping
	if cmd.Kind == CommandTypingStop {
		kind = EventUserStopTyping
	}
	h.rooms.Broadcast(cmd.GroupID, &Event{Kind: kind, GroupID: cmd.GroupID, Typing: typing}, c)
}

// handleTaskAssigned hands persistence to the notifier off the loop.
func (h *Hub) handleTaskAssigned(ctx context.Context, c *Client, cmd *Command) {
	if cmd.Task == nil || len(cmd.Task.AssignedTo) == 0 {
		h.rooms.SendTo(c, errorEvent(ErrCodeBadRequest, "assignedTo is required"))
		return
	}
	if h.notifier == nil {
		h.logger.Warn().Str("conn_id", c.ID).Msg("task assignment ignored, no notifier configured")
		return
	}
	task := *cmd.Task
	task.AssignedTo = append([]string(nil), cmd.Task.AssignedTo...)
	go h.notifier.NotifyTaskAssigned(ctx, task)
}

func (h *Hub) shutdown() {
	for c := range h.clients {
		c.close()
	}
	h.clients = make(map[*Client]struct{})
	h.conns = make(map[string]*Client)
}
