// Package eventbus defines the frame protocol spoken between browser or
// terminal clients and the relay, plus the codecs used to encode frames and
// notice records.
package eventbus

import (
	"errors"
	"fmt"
)

// FrameType is the kind of a frame on the event bus.
type FrameType string

const (
	// Client to server.
	FrameSend       FrameType = "send"
	FramePublish    FrameType = "publish"
	FrameRegister   FrameType = "register"
	FrameUnregister FrameType = "unregister"
	FramePing       FrameType = "ping"

	// Server to client.
	FrameRec FrameType = "rec"
	FrameErr FrameType = "err"
)

// Error bodies carried by FrameErr.
const (
	ErrBodyAccessDenied = "access_denied"
	ErrBodyInvalidFrame = "invalid_frame"
)

// Default addresses of the chat bridge.
const (
	DefaultInboundAddress  = "chat.to.server"
	DefaultOutboundAddress = "chat.to.client"
)

var ErrInvalidFrame = errors.New("invalid frame")

// Frame is a single protocol message. For FrameRec the body holds an encoded
// notice record.
type Frame struct {
	Type    FrameType `json:"type" msgpack:"type"`
	Address string    `json:"address,omitempty" msgpack:"address,omitempty"`
	Body    string    `json:"body,omitempty" msgpack:"body,omitempty"`
}

func (t FrameType) valid() bool {
	switch t {
	case FrameSend, FramePublish, FrameRegister, FrameUnregister, FramePing, FrameRec, FrameErr:
		return true
	}
	return false
}

// NeedsAddress reports whether frames of this type must name an address.
func (t FrameType) NeedsAddress() bool {
	switch t {
	case FrameSend, FramePublish, FrameRegister, FrameUnregister, FrameRec:
		return true
	}
	return false
}

// DecodeFrame decodes and validates a frame.
func DecodeFrame(c Codec, data []byte) (Frame, error) {
	var f Frame
	if err := c.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	if !f.Type.valid() {
		return Frame{}, fmt.Errorf("%w: unknown type %q", ErrInvalidFrame, f.Type)
	}
	if f.Type.NeedsAddress() && f.Address == "" {
		return Frame{}, fmt.Errorf("%w: %s frame without address", ErrInvalidFrame, f.Type)
	}
	return f, nil
}

// EncodeFrame serialises f with c.
func EncodeFrame(c Codec, f Frame) ([]byte, error) {
	return c.Marshal(f)
}
