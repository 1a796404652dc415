package ws

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chat-relay/backend/internal/bridge"
	"github.com/chat-relay/backend/internal/eventbus"
	"github.com/gorilla/websocket"
)

var ErrTooManyConnections = errors.New("too many websocket connections")

const consumerBufSize = 256

// Options tunes the broadcaster. Zero values fall back to defaults.
type Options struct {
	SendBuffer     int
	MaxConnections int // 0 means unlimited
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = 60 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	return o
}

type client struct {
	info bridge.Conn
	conn *websocket.Conn
	b    *Broadcaster
	send chan []byte

	// registered is set once the bridge accepted a register for this
	// connection; such a connection owes the bridge one disconnect.
	registered atomic.Bool

	mu    sync.Mutex
	codec eventbus.Codec // set by the first frame the client sends
}

// frameCodec is the codec frames to c are written in: the one its first
// frame arrived in, or the broadcaster's until then.
func (c *client) frameCodec() eventbus.Codec {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.codec == nil {
		return c.b.codec
	}
	return c.codec
}

func (c *client) adoptCodec(codec eventbus.Codec) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.codec == nil {
		c.codec = codec
	}
}

func messageType(codec eventbus.Codec) int {
	if codec.Binary() {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.b.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.b.RemoveClient(c)
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.b.opts.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(messageType(c.frameCodec()), msg); err != nil {
				c.b.log.Debug("ws write failed", "conn", c.info.ID, "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.b.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Broadcaster owns the live connections and their address subscriptions. It
// implements bridge.Publisher.
type Broadcaster struct {
	mu          sync.RWMutex
	clients     map[*client]bool
	subscribers map[string]map[*client]bool
	consumers   map[string]map[int64]chan []byte
	nextID      atomic.Int64

	codec eventbus.Codec
	opts  Options
	log   *slog.Logger
}

// NewBroadcaster returns an empty broadcaster. codec is the default frame
// codec and the codec records passed to Publish are written in.
func NewBroadcaster(codec eventbus.Codec, opts Options, logger *slog.Logger) *Broadcaster {
	if codec == nil {
		codec = eventbus.JSON
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		clients:     make(map[*client]bool),
		subscribers: make(map[string]map[*client]bool),
		consumers:   make(map[string]map[int64]chan []byte),
		codec:       codec,
		opts:        opts.withDefaults(),
		log:         logger,
	}
}

// Full reports whether MaxConnections has been reached.
func (b *Broadcaster) Full() bool {
	if b.opts.MaxConnections <= 0 {
		return false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients) >= b.opts.MaxConnections
}

// AddClient tracks conn and starts its write pump.
func (b *Broadcaster) AddClient(conn *websocket.Conn, info bridge.Conn) (*client, error) {
	c := &client{
		info: info,
		conn: conn,
		b:    b,
		send: make(chan []byte, b.opts.SendBuffer),
	}

	b.mu.Lock()
	if b.opts.MaxConnections > 0 && len(b.clients) >= b.opts.MaxConnections {
		b.mu.Unlock()
		return nil, ErrTooManyConnections
	}
	b.clients[c] = true
	b.mu.Unlock()

	go c.writePump()
	return c, nil
}

// RemoveClient drops c and all its subscriptions. Closing the send channel
// makes the write pump say goodbye and close the connection. Safe to call
// more than once.
func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(c)
}

func (b *Broadcaster) removeLocked(c *client) {
	if _, ok := b.clients[c]; !ok {
		return
	}
	delete(b.clients, c)
	for addr, subs := range b.subscribers {
		delete(subs, c)
		if len(subs) == 0 {
			delete(b.subscribers, addr)
		}
	}
	close(c.send)
}

// Subscribe adds c to address. It reports false when c was already
// subscribed or is no longer connected.
func (b *Broadcaster) Subscribe(c *client, address string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.clients[c] {
		return false
	}
	subs, ok := b.subscribers[address]
	if !ok {
		subs = make(map[*client]bool)
		b.subscribers[address] = subs
	}
	if subs[c] {
		return false
	}
	subs[c] = true
	return true
}

func (b *Broadcaster) Unsubscribe(c *client, address string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs, ok := b.subscribers[address]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(b.subscribers, address)
		}
	}
}

func (b *Broadcaster) IsSubscribed(c *client, address string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.subscribers[address][c]
}

// Consume registers an in-process consumer of address. The channel is
// buffered; a slow consumer misses records. Call cancel to stop consuming.
func (b *Broadcaster) Consume(address string) (<-chan []byte, func()) {
	id := b.nextID.Add(1)
	ch := make(chan []byte, consumerBufSize)

	b.mu.Lock()
	cons, ok := b.consumers[address]
	if !ok {
		cons = make(map[int64]chan []byte)
		b.consumers[address] = cons
	}
	cons[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			cons := b.consumers[address]
			if _, ok := cons[id]; !ok {
				return // already closed by Stop
			}
			delete(cons, id)
			if len(cons) == 0 {
				delete(b.consumers, address)
			}
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers record, encoded in the broadcaster's codec, to every
// subscriber and local consumer of address. Subscribers receive it wrapped
// in a rec frame, transcoded to the codec they speak. Clients whose send
// buffer is full are disconnected.
func (b *Broadcaster) Publish(address string, record []byte) {
	frames := make(map[eventbus.Codec][]byte, 2)

	var slow []*client
	b.mu.RLock()
	for c := range b.subscribers[address] {
		codec := c.frameCodec()
		data, ok := frames[codec]
		if !ok {
			data = b.recFrame(codec, address, record)
			frames[codec] = data
		}
		if data == nil {
			continue
		}
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	for _, ch := range b.consumers[address] {
		select {
		case ch <- record:
		default:
		}
	}
	b.mu.RUnlock()

	for _, c := range slow {
		// Client can't keep up, disconnect it
		b.log.Warn("ws client too slow, disconnecting", "conn", c.info.ID, "host", c.info.Host)
		b.RemoveClient(c)
	}
}

// recFrame wraps record for clients speaking codec. It returns nil, and
// logs, when the record cannot be encoded that way.
func (b *Broadcaster) recFrame(codec eventbus.Codec, address string, record []byte) []byte {
	body, err := eventbus.Transcode(b.codec, codec, record)
	if err != nil {
		b.log.Error("broadcast record transcode failed", "address", address, "from", b.codec.Name(), "to", codec.Name(), "error", err)
		return nil
	}
	data, err := eventbus.EncodeFrame(codec, eventbus.Frame{
		Type:    eventbus.FrameRec,
		Address: address,
		Body:    string(body),
	})
	if err != nil {
		b.log.Error("broadcast frame encode failed", "address", address, "codec", codec.Name(), "error", err)
		return nil
	}
	return data
}

// sendFrame queues a frame for a single client. It drops the frame if the
// client is gone or its buffer is full.
func (b *Broadcaster) sendFrame(c *client, f eventbus.Frame) {
	data, err := eventbus.EncodeFrame(c.frameCodec(), f)
	if err != nil {
		b.log.Error("frame encode failed", "type", f.Type, "error", err)
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// Stop disconnects every client and closes every local consumer.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		b.removeLocked(c)
	}
	for addr, cons := range b.consumers {
		for id, ch := range cons {
			delete(cons, id)
			close(ch)
		}
		delete(b.consumers, addr)
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *Broadcaster) SubscriberCount(address string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[address])
}
