package tui

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/chat-relay/backend/internal/bridge"
	"github.com/chat-relay/backend/internal/eventbus"
	"github.com/chat-relay/backend/internal/ws"
)

func startRelay(t *testing.T, codec eventbus.Codec) string {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := ws.NewBroadcaster(codec, ws.Options{}, logger)
	br := bridge.New(bridge.NewPresenceCounter(), hub, bridge.WithCodec(codec), bridge.WithLogger(logger))
	srv := httptest.NewServer(ws.NewServer(hub, br, nil, logger))
	t.Cleanup(func() {
		hub.Stop()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func runCmd(t *testing.T, cmd tea.Cmd) tea.Msg {
	t.Helper()
	done := make(chan tea.Msg, 1)
	go func() { done <- cmd() }()
	select {
	case msg := <-done:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("command did not return")
		return nil
	}
}

func TestClientRoundTrip(t *testing.T) {
	for _, codec := range []eventbus.Codec{eventbus.JSON, eventbus.MsgPack} {
		t.Run(codec.Name(), func(t *testing.T) {
			url := startRelay(t, codec)
			c := NewClient(url, codec, eventbus.DefaultInboundAddress, eventbus.DefaultOutboundAddress)
			defer c.Close()

			if _, ok := runCmd(t, c.Listen(context.Background())).(ConnectedMsg); !ok {
				t.Fatal("Listen should yield ConnectedMsg")
			}

			msg, ok := runCmd(t, c.ReadLoop()).(NoticeMsg)
			if !ok || msg.Notice.Type != "register" || msg.Notice.Online != 1 {
				t.Fatalf("first message = %+v, want register with online 1", msg)
			}

			if err := c.Publish("héllo"); err != nil {
				t.Fatalf("Publish: %v", err)
			}
			msg, ok = runCmd(t, c.ReadLoop()).(NoticeMsg)
			if !ok || msg.Notice.Type != "publish" {
				t.Fatalf("second message = %+v, want publish", msg)
			}
			if msg.Notice.Message != "héllo" {
				t.Errorf("message = %q", msg.Notice.Message)
			}
			if msg.Notice.Timestamp().IsZero() {
				t.Errorf("time %q should parse", msg.Notice.Time)
			}
		})
	}
}

func TestClientPublishWhileDisconnected(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/eventbus", eventbus.JSON, "in", "out")
	if err := c.Publish("hi"); err != ErrNotConnected {
		t.Errorf("Publish = %v, want ErrNotConnected", err)
	}
}

func TestListenStopsOnCancel(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/eventbus", eventbus.JSON, "in", "out")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if msg := runCmd(t, c.Listen(ctx)); msg != nil {
		t.Errorf("Listen after cancel = %v, want nil", msg)
	}
}

func TestDecodeNoticeRejectsUnknownType(t *testing.T) {
	if _, err := DecodeNotice(eventbus.JSON, []byte(`{"type":"bogus"}`)); err == nil {
		t.Error("unknown notice type should fail")
	}
	n, err := DecodeNotice(eventbus.JSON, []byte(`{"online":4,"type":"close"}`))
	if err != nil || n.Online != 4 {
		t.Errorf("DecodeNotice = %+v, %v", n, err)
	}
}
