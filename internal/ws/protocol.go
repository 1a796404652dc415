package ws

import (
	"github.com/chat-relay/backend/internal/bridge"
	"github.com/chat-relay/backend/internal/eventbus"
)

// handleFrame turns one decoded client frame into a bridge event and applies
// the bridge's acknowledgment: an acknowledged publish on the inbound address
// reaches local consumers, an acknowledged register on the outbound address
// subscribes the client. Frames to any other address are still shown to the
// bridge but answered with access_denied. Every connection whose register
// was accepted owes the bridge exactly one disconnect.
func (s *Server) handleFrame(c *client, f eventbus.Frame) {
	switch f.Type {
	case eventbus.FrameSend, eventbus.FramePublish:
		ev := bridge.Event{Kind: bridge.EventPublish, Address: f.Address, Body: f.Body, Conn: c.info}
		s.bridge.Handle(ev, func(handled bool) {
			if !handled {
				return
			}
			if f.Address != s.bridge.InboundAddress() {
				s.deny(c, f.Address)
				return
			}
			s.hub.Publish(f.Address, []byte(f.Body))
		})

	case eventbus.FrameRegister:
		// A connection is counted once, however often it re-registers.
		if f.Address == s.bridge.OutboundAddress() && c.registered.Load() {
			s.hub.Subscribe(c, f.Address)
			return
		}
		ev := bridge.Event{Kind: bridge.EventRegister, Address: f.Address, Conn: c.info}
		s.bridge.Handle(ev, func(handled bool) {
			if !handled {
				return
			}
			if f.Address != s.bridge.OutboundAddress() {
				s.deny(c, f.Address)
				return
			}
			c.registered.Store(true)
			s.hub.Subscribe(c, f.Address)
		})

	case eventbus.FrameUnregister:
		s.hub.Unsubscribe(c, f.Address)

	case eventbus.FramePing:

	default:
		// rec and err only flow server to client.
		s.hub.sendFrame(c, eventbus.Frame{Type: eventbus.FrameErr, Address: f.Address, Body: eventbus.ErrBodyInvalidFrame})
	}
}

func (s *Server) deny(c *client, address string) {
	s.log.Debug("ws access denied", "conn", c.info.ID, "address", address)
	s.hub.sendFrame(c, eventbus.Frame{Type: eventbus.FrameErr, Address: address, Body: eventbus.ErrBodyAccessDenied})
}
