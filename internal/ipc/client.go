package ipc

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Common errors
var (
	ErrNotConnected = errors.New("ipc: not connected to daemon")
)

// Client is the front-end side of the connection, used by remapctl and by
// tests: it pushes configurations and focus updates and receives triggered
// actions.
type Client struct {
	mu         sync.Mutex
	conn       net.Conn
	socketPath string

	connected     atomic.Bool
	nextRequestID atomic.Uint32

	actions chan int
	done    chan struct{}
}

// NewClient creates a client for the given socket path.
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		actions:    make(chan int, 16),
		done:       make(chan struct{}),
	}
}

// Connect dials the daemon socket and starts the receive loop.
func (c *Client) Connect(timeout time.Duration) error {
	conn, err := net.DialTimeout("unix", c.socketPath, timeout)
	if err != nil {
		return fmt.Errorf("dial daemon: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(true)

	go c.readLoop(conn)
	return nil
}

// readLoop receives daemon messages until the connection drops.
func (c *Client) readLoop(conn net.Conn) {
	defer func() {
		c.connected.Store(false)
		close(c.done)
	}()
	for {
		msg, err := ReadMessage(conn)
		if err != nil {
			return
		}
		switch msg.Header.Type {
		case MsgTriggeredAction:
			var payload TriggeredActionPayload
			if err := Decode(msg.Payload, &payload); err == nil {
				select {
				case c.actions <- payload.Index:
				default:
					// slow consumer, drop
				}
			}
		case MsgPong:
		}
	}
}

// SendConfiguration pushes a compiled keymap document (JSON bytes).
func (c *Client) SendConfiguration(keymapJSON []byte) error {
	return c.send(NewMessage(MsgConfiguration, c.nextRequestID.Add(1), keymapJSON))
}

// SendActiveContexts pushes the focus-eligible context indices.
func (c *Client) SendActiveContexts(indices []int) error {
	payload, err := Encode(&ActiveContextsPayload{Indices: indices})
	if err != nil {
		return err
	}
	return c.send(NewMessage(MsgActiveContexts, c.nextRequestID.Add(1), payload))
}

// Ping sends a keep-alive probe.
func (c *Client) Ping() error {
	return c.send(NewMessage(MsgPing, c.nextRequestID.Add(1), nil))
}

// TriggeredActions streams command indices the daemon asks to run.
func (c *Client) TriggeredActions() <-chan int { return c.actions }

// Done is closed when the connection drops.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) send(msg *Message) error {
	if !c.connected.Load() {
		return ErrNotConnected
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return msg.Write(c.conn)
}

// Close drops the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}
