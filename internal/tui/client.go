package tui

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/chat-relay/backend/internal/eventbus"
	"github.com/gorilla/websocket"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
	writeTimeout       = 10 * time.Second
	pongTimeout        = 60 * time.Second
	pingInterval       = 30 * time.Second
)

var ErrNotConnected = errors.New("not connected")

// Client speaks the event bus frame protocol to a relay.
type Client struct {
	url      string
	codec    eventbus.Codec
	inbound  string
	outbound string

	mu      sync.Mutex
	writeMu sync.Mutex // serialises conn writes
	conn    *websocket.Conn
	pingCtx context.CancelFunc
}

// NewClient returns a client for the relay at url. It does not dial until
// Listen runs.
func NewClient(url string, codec eventbus.Codec, inbound, outbound string) *Client {
	return &Client{url: url, codec: codec, inbound: inbound, outbound: outbound}
}

// ConnectedMsg is sent once the connection is up and registered.
type ConnectedMsg struct{}

// DisconnectedMsg is sent when the connection drops.
type DisconnectedMsg struct{ Err error }

// NoticeMsg carries one decoded broadcast notice.
type NoticeMsg struct{ Notice Notice }

// ErrorMsg carries the body of a server err frame.
type ErrorMsg struct{ Reason string }

// Listen returns a command that dials and registers for broadcasts,
// retrying with backoff until it succeeds or ctx is done.
func (c *Client) Listen(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		delay := reconnectBaseDelay
		for {
			select {
			case <-ctx.Done():
				return nil
			default:
			}

			conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
			if err == nil {
				err = c.write(conn, eventbus.Frame{Type: eventbus.FrameRegister, Address: c.outbound})
				if err != nil {
					conn.Close()
				}
			}
			if err != nil {
				slog.Debug("ws dial failed", "url", c.url, "error", err, "retry", delay)
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(delay):
				}
				delay = min(delay*2, reconnectMaxDelay)
				continue
			}

			c.mu.Lock()
			if c.pingCtx != nil {
				c.pingCtx()
			}
			pingCtx, pingCancel := context.WithCancel(ctx)
			c.conn = conn
			c.pingCtx = pingCancel
			c.mu.Unlock()

			go c.pingLoop(pingCtx, conn)
			return ConnectedMsg{}
		}
	}
}

// ReadLoop returns a command that blocks until the next notice, error frame
// or disconnect. Start it again after each message it yields.
func (c *Client) ReadLoop() tea.Cmd {
	return func() tea.Msg {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return DisconnectedMsg{Err: ErrNotConnected}
		}

		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongTimeout))
			return nil
		})
		conn.SetReadDeadline(time.Now().Add(pongTimeout))

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				c.mu.Lock()
				if c.conn == conn {
					c.conn = nil
				}
				c.mu.Unlock()
				conn.Close()
				return DisconnectedMsg{Err: err}
			}

			f, err := eventbus.DecodeFrame(c.codec, data)
			if err != nil {
				slog.Debug("dropping undecodable frame", "error", err)
				continue
			}
			if msg := c.dispatch(f); msg != nil {
				return msg
			}
		}
	}
}

// Publish sends a chat message to the inbound address.
func (c *Client) Publish(text string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return c.write(conn, eventbus.Frame{Type: eventbus.FramePublish, Address: c.inbound, Body: text})
}

// Close drops the current connection, if any.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pingCtx != nil {
		c.pingCtx()
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) write(conn *websocket.Conn, f eventbus.Frame) error {
	data, err := eventbus.EncodeFrame(c.codec, f)
	if err != nil {
		return err
	}
	mt := websocket.TextMessage
	if c.codec.Binary() {
		mt = websocket.BinaryMessage
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(mt, data)
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			cc := c.conn
			c.mu.Unlock()
			if cc != conn {
				return
			}
			c.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *Client) dispatch(f eventbus.Frame) tea.Msg {
	switch f.Type {
	case eventbus.FrameRec:
		if f.Address != c.outbound {
			return nil
		}
		n, err := DecodeNotice(c.codec, []byte(f.Body))
		if err != nil {
			slog.Debug("dropping undecodable notice", "error", err)
			return nil
		}
		return NoticeMsg{Notice: n}
	case eventbus.FrameErr:
		return ErrorMsg{Reason: f.Body}
	}
	return nil
}
