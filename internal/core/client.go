package core

const (
	// DefaultClientBuffer is the event buffer used when NewClient gets a non-positive size.
	DefaultClientBuffer = 32
	// DefaultDisplayName is shown for users that announce themselves without a username.
	DefaultDisplayName = "User"
)

// Client is one open connection as seen by the core layer.
// UserID, Rooms and the closed flag belong to the hub goroutine.
type Client struct {
	ID       string
	Name     string
	UserID   string
	Commands chan *Command
	Events   chan *Event
	Rooms    map[string]struct{}

	done   chan struct{}
	closed bool
}

// NewClient constructs a client with initialized channels.
func NewClient(id, name string, buffer int) *Client {
	if buffer <= 0 {
		buffer = DefaultClientBuffer
	}
	return &Client{
		ID:       id,
		Name:     name,
		Commands: make(chan *Command, buffer),
		Events:   make(chan *Event, buffer),
		Rooms:    make(map[string]struct{}),
		done:     make(chan struct{}),
	}
}

// deliver performs a non-blocking send. It reports false when the buffer is full
// or the client is already closed.
func (c *Client) deliver(ev *Event) bool {
	if c.closed {
		return false
	}
	select {
	case c.Events <- ev:
		return true
	default:
		return false
	}
}

// close ends the client's lifetime. Only the hub goroutine calls it.
func (c *Client) close() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	close(c.Events)
}
