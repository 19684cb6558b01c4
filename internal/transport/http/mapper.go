package http

import (
	"encoding/json"
	"strings"

	"github.com/vovakirdan/groupsync-server/internal/core"
	"github.com/vovakirdan/groupsync-server/internal/proto"
	"github.com/vovakirdan/groupsync-server/internal/store"
)

func badRequest(msg string) *proto.Error {
	return &proto.Error{Code: core.ErrCodeBadRequest, Msg: msg}
}

func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error) {
	switch inbound.Type {
	case proto.InboundTypeUserJoin:
		var join proto.UserJoinData
		if err := json.Unmarshal(inbound.Data, &join); err != nil {
			return nil, badRequest("invalid user_join payload")
		}
		if strings.TrimSpace(join.UserID) == "" {
			return nil, badRequest("userId is required")
		}
		return &core.Command{
			Kind:        core.CommandUserJoin,
			UserID:      join.UserID,
			GroupID:     join.GroupID,
			DisplayName: join.Username,
		}, nil
	case proto.InboundTypeJoinGroup, proto.InboundTypeLeaveGroup:
		var group proto.GroupData
		if err := json.Unmarshal(inbound.Data, &group); err != nil {
			return nil, badRequest("invalid group payload")
		}
		if group.GroupID == "" {
			return nil, badRequest("groupId is required")
		}
		kind := core.CommandJoinGroup
		if inbound.Type == proto.InboundTypeLeaveGroup {
			kind = core.CommandLeaveGroup
		}
		return &core.Command{Kind: kind, GroupID: group.GroupID}, nil
	case proto.InboundTypeTypingStart, proto.InboundTypeTypingStop:
		var typing proto.TypingData
		if err := json.Unmarshal(inbound.Data, &typing); err != nil {
			return nil, badRequest("invalid typing payload")
		}
		kind := core.CommandTypingStart
		if inbound.Type == proto.InboundTypeTypingStop {
			kind = core.CommandTypingStop
		}
		return &core.Command{
			Kind:        kind,
			GroupID:     typing.GroupID,
			UserID:      typing.UserID,
			DisplayName: typing.Username,
		}, nil
	case proto.InboundTypeTaskAssigned:
		var task proto.TaskAssignedData
		if err := json.Unmarshal(inbound.Data, &task); err != nil {
			return nil, badRequest("invalid task_assigned payload")
		}
		a := taskFromProto(task)
		return &core.Command{Kind: core.CommandTaskAssigned, Task: &a}, nil
	default:
		return nil, &proto.Error{Code: core.ErrCodeInvalidMessage, Msg: "unknown message type"}
	}
}

func taskFromProto(task proto.TaskAssignedData) core.TaskAssignment {
	return core.TaskAssignment{
		AssignedTo:   task.AssignedTo,
		TaskTitle:    task.TaskTitle,
		AssignedBy:   task.AssignedBy,
		AssignedByID: task.AssignedByID,
		TaskID:       task.TaskID,
		GroupID:      task.GroupID,
	}
}

func outboundEvent(name string, data any) proto.Outbound {
	return proto.Outbound{Type: proto.OutboundTypeEvent, Event: name, Data: data}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventOnlineUsers:
		return outboundEvent(proto.EventOnlineUsersUpdate, onlineToProto(event.Online))
	case core.EventNewMessage:
		return outboundEvent(proto.EventNewMessage, messageToProto(event.Message))
	case core.EventMessageUpdated:
		return outboundEvent(proto.EventMessageUpdated, messageToProto(event.Message))
	case core.EventMessageDeleted:
		return outboundEvent(proto.EventMessageDeleted, event.MessageID)
	case core.EventUserTyping:
		return outboundEvent(proto.EventUserTyping, proto.TypingEvent{UserID: event.Typing.UserID, Username: event.Typing.Username})
	case core.EventUserStopTyping:
		return outboundEvent(proto.EventUserStopTyping, proto.TypingEvent{UserID: event.Typing.UserID})
	case core.EventTaskAssigned:
		t := event.Task
		return outboundEvent(proto.EventTaskAssigned, proto.TaskAssignedData{
			AssignedTo:   t.AssignedTo,
			TaskTitle:    t.TaskTitle,
			AssignedBy:   t.AssignedBy,
			AssignedByID: t.AssignedByID,
			TaskID:       t.TaskID,
			GroupID:      t.GroupID,
		})
	case core.EventTaskNotification:
		n := event.Notification
		return outboundEvent(proto.EventNewTaskNotification, proto.TaskNotificationData{
			TaskTitle:      n.TaskTitle,
			AssignedBy:     n.AssignedBy,
			Message:        n.Message,
			NotificationID: n.NotificationID,
		})
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

func onlineToProto(snap *core.OnlineSnapshot) proto.OnlineUsersData {
	users := make([]proto.OnlineUser, 0, len(snap.Users))
	for _, u := range snap.Users {
		users = append(users, proto.OnlineUser{UserID: u.UserID, Username: u.DisplayName})
	}
	return proto.OnlineUsersData{GroupID: snap.GroupID, OnlineCount: snap.Count, OnlineUsers: users}
}

func messageToProto(msg *store.Message) proto.Message {
	out := proto.Message{
		ID:          msg.ID,
		GroupID:     msg.GroupID,
		SenderID:    msg.SenderID,
		Body:        msg.Body,
		MessageType: string(msg.Kind),
		FileURL:     msg.FileRef,
		Edited:      msg.Edited,
		EditedAt:    msg.EditedAt,
		Reactions:   make([]proto.Reaction, 0, len(msg.Reactions)),
		CreatedAt:   msg.CreatedAt,
	}
	if msg.Sender != nil {
		out.Sender = &proto.Sender{ID: msg.Sender.ID, Username: msg.Sender.Username, Email: msg.Sender.Email}
	}
	for _, r := range msg.Reactions {
		out.Reactions = append(out.Reactions, proto.Reaction{UserID: r.UserID, Emoji: r.Emoji})
	}
	return out
}

func messagesToProto(messages []*store.Message) []proto.Message {
	out := make([]proto.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, messageToProto(m))
	}
	return out
}

func notificationToProto(n *store.Notification) proto.Notification {
	return proto.Notification{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		Title:       n.Title,
		Message:     n.Message,
		Type:        n.Type,
		RelatedTask: n.RelatedTaskID,
		GroupID:     n.GroupID,
		CreatedBy:   n.CreatedByID,
		IsRead:      n.IsRead,
		CreatedAt:   n.CreatedAt,
	}
}

func notificationsToProto(list []*store.Notification) []proto.Notification {
	out := make([]proto.Notification, 0, len(list))
	for _, n := range list {
		out = append(out, notificationToProto(n))
	}
	return out
}
