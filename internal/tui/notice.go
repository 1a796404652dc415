package tui

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/charmbracelet/x/ansi"
	"github.com/chat-relay/backend/internal/bridge"
	"github.com/chat-relay/backend/internal/eventbus"
)

// Notice is the client-side view of a broadcast record. Fields a notice
// type does not carry stay zero.
type Notice struct {
	Type    string `json:"type" msgpack:"type"`
	Time    string `json:"time,omitempty" msgpack:"time,omitempty"`
	Host    string `json:"host,omitempty" msgpack:"host,omitempty"`
	Port    int    `json:"port,omitempty" msgpack:"port,omitempty"`
	Message string `json:"message,omitempty" msgpack:"message,omitempty"`
	Online  int64  `json:"online,omitempty" msgpack:"online,omitempty"`
}

// DecodeNotice reads a notice record and rejects unknown types.
func DecodeNotice(c eventbus.Codec, data []byte) (Notice, error) {
	var n Notice
	if err := c.Unmarshal(data, &n); err != nil {
		return Notice{}, err
	}
	switch bridge.NoticeType(n.Type) {
	case bridge.NoticePublish, bridge.NoticeRegister, bridge.NoticeClose:
		return n, nil
	}
	return Notice{}, fmt.Errorf("unknown notice type %q", n.Type)
}

// Timestamp parses Time, returning the zero time when absent or malformed.
func (n Notice) Timestamp() time.Time {
	t, err := time.Parse(bridge.TimeLayout, n.Time)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Printable removes escape sequences and control characters so text from
// other peers cannot drive the terminal.
func Printable(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, ansi.Strip(s))
}
