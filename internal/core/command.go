package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandUserJoin announces the identity of a connection, optionally joining a group.
	CommandUserJoin CommandKind = iota
	// CommandJoinGroup subscribes the connection to a group room.
	CommandJoinGroup
	// CommandLeaveGroup unsubscribes the connection from a group room.
	CommandLeaveGroup
	// CommandTypingStart relays a typing indicator to the rest of the room.
	CommandTypingStart
	// CommandTypingStop clears a typing indicator for the rest of the room.
	CommandTypingStop
	// CommandTaskAssigned requests notification fan-out for a task assignment.
	CommandTaskAssigned
)

// Command represents an action requested by a client.
type Command struct {
	Kind        CommandKind
	UserID      string
	GroupID     string
	DisplayName string
	Task        *TaskAssignment
}
