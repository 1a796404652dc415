// Package bridge turns inbound client events into broadcast notices. It
// validates published messages, keeps the shared presence count and hands
// encoded notices to the transport for fan-out.
package bridge

import (
	"log/slog"
	"sync"
	"time"

	"github.com/chat-relay/backend/internal/eventbus"
)

// EventKind is what happened on a client connection.
type EventKind int

const (
	EventPublish EventKind = iota
	EventRegister
	EventDisconnect
)

func (k EventKind) String() string {
	switch k {
	case EventPublish:
		return "publish"
	case EventRegister:
		return "register"
	case EventDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// Conn identifies the client connection an event came from.
type Conn struct {
	ID   string
	Host string
	Port int
}

// Event is a single inbound occurrence reported by the transport.
type Event struct {
	Kind    EventKind
	Address string // target of a publish, or the address being registered
	Body    string
	Conn    Conn
}

// Ack receives the bridge's verdict on an event. The bridge calls it exactly
// once per event and always reports the event as handled.
type Ack func(handled bool)

// Publisher delivers an encoded notice to every subscriber of address.
type Publisher interface {
	Publish(address string, record []byte)
}

// Bridge turns events into notices. It holds no per-connection state.
type Bridge struct {
	counter   *PresenceCounter
	pub       Publisher
	inbound   string
	outbound  string
	validator Validator
	codec     eventbus.Codec
	now       func() time.Time
	log       *slog.Logger

	inflight sync.WaitGroup
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithAddresses overrides the inbound (publish) and outbound (broadcast)
// addresses. Empty values keep the defaults.
func WithAddresses(inbound, outbound string) Option {
	return func(b *Bridge) {
		if inbound != "" {
			b.inbound = inbound
		}
		if outbound != "" {
			b.outbound = outbound
		}
	}
}

// WithValidator replaces the message length check.
func WithValidator(v Validator) Option {
	return func(b *Bridge) { b.validator = v }
}

// WithCodec sets how notices are encoded. A nil codec keeps JSON.
func WithCodec(c eventbus.Codec) Option {
	return func(b *Bridge) {
		if c != nil {
			b.codec = c
		}
	}
}

// WithClock sets the time source for publish notices.
func WithClock(now func() time.Time) Option {
	return func(b *Bridge) { b.now = now }
}

// WithLogger sets the bridge logger. A nil logger keeps slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.log = l
		}
	}
}

// New builds a bridge around a shared counter. The counter is owned by the
// caller so several bridges, or tests, never share state by accident.
func New(counter *PresenceCounter, pub Publisher, opts ...Option) *Bridge {
	b := &Bridge{
		counter:   counter,
		pub:       pub,
		inbound:   eventbus.DefaultInboundAddress,
		outbound:  eventbus.DefaultOutboundAddress,
		validator: DefaultValidator,
		codec:     eventbus.JSON,
		now:       time.Now,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bridge) InboundAddress() string  { return b.inbound }
func (b *Bridge) OutboundAddress() string { return b.outbound }
func (b *Bridge) Codec() eventbus.Codec   { return b.codec }
func (b *Bridge) Online() int64           { return b.counter.Load() }

// Handle processes one event and acknowledges it. It is safe for concurrent
// use. Publish notices reach the publisher before ack runs. Register and
// disconnect notices are dispatched on their own goroutine after ack, so a
// transport that subscribes the client inside ack also delivers the client's
// own register notice. ack runs on the caller's goroutine and must not block.
func (b *Bridge) Handle(ev Event, ack Ack) {
	var (
		n        Notice
		detached bool
	)
	switch ev.Kind {
	case EventPublish:
		n = b.onPublish(ev)
	case EventRegister:
		n, detached = b.onRegister(ev), true
	case EventDisconnect:
		n, detached = b.onDisconnect(ev), true
	default:
		b.log.Warn("bridge: unknown event kind", "kind", int(ev.Kind), "conn", ev.Conn.ID)
	}

	if n != nil && !detached {
		b.dispatch(n)
	}
	if ack != nil {
		ack(true)
	}
	if n != nil && detached {
		b.detach(n)
	}
}

// Wait blocks until every detached dispatch has reached the publisher.
func (b *Bridge) Wait() {
	b.inflight.Wait()
}

func (b *Bridge) onPublish(ev Event) Notice {
	if ev.Address != b.inbound {
		b.log.Debug("bridge: publish to foreign address dropped", "address", ev.Address, "conn", ev.Conn.ID)
		return nil
	}
	if !b.validator.IsValid(ev.Body) {
		b.log.Debug("bridge: invalid message dropped", "conn", ev.Conn.ID, "bytes", len(ev.Body))
		return nil
	}
	return PublishNotice(ev.Conn.Host, ev.Conn.Port, ev.Body, b.now())
}

func (b *Bridge) onRegister(ev Event) Notice {
	if ev.Address != b.outbound {
		b.log.Debug("bridge: register on foreign address ignored", "address", ev.Address, "conn", ev.Conn.ID)
		return nil
	}

	online := b.counter.Increment()
	b.log.Info("client registered", "conn", ev.Conn.ID, "host", ev.Conn.Host, "online", online)
	return RegisterNotice(online)
}

func (b *Bridge) onDisconnect(ev Event) Notice {
	online := b.counter.Decrement()
	b.log.Info("client disconnected", "conn", ev.Conn.ID, "host", ev.Conn.Host, "online", online)
	return CloseNotice(online)
}

func (b *Bridge) detach(n Notice) {
	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		b.dispatch(n)
	}()
}

func (b *Bridge) dispatch(n Notice) {
	data, err := b.codec.Marshal(n)
	if err != nil {
		b.log.Error("bridge: notice encode failed, dropping", "type", n.Type(), "codec", b.codec.Name(), "error", err)
		return
	}
	b.pub.Publish(b.outbound, data)
}
