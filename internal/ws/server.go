package ws

import (
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chat-relay/backend/internal/bridge"
	"github.com/chat-relay/backend/internal/eventbus"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// maxFrameBytes bounds a single inbound frame. Valid messages are far
// smaller; the limit only protects the read loop.
const maxFrameBytes = 16 * 1024

// Server upgrades HTTP requests to websocket connections and feeds their
// frames to the bridge.
type Server struct {
	hub            *Broadcaster
	bridge         *bridge.Bridge
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	log            *slog.Logger

	loops sync.WaitGroup
}

// NewServer returns a handler that serves the event bus on hub and br.
// An empty allowedOrigins accepts same-host and loopback origins.
func NewServer(hub *Broadcaster, br *bridge.Bridge, allowedOrigins []string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		hub:            hub,
		bridge:         br,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		log:            logger,
	}

	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.hub.Full() {
		http.Error(w, ErrTooManyConnections.Error(), http.StatusServiceUnavailable)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws upgrade error", "remote", r.RemoteAddr, "error", err)
		return
	}

	info := remoteConn(r.RemoteAddr)
	c, err := s.hub.AddClient(conn, info)
	if err != nil {
		// Lost the race for the last slot.
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error())
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
		s.log.Warn("ws connection rejected", "remote", r.RemoteAddr, "error", err)
		return
	}

	s.log.Info("websocket client connected", "conn", info.ID, "remote", r.RemoteAddr)
	s.loops.Add(1)
	go s.readLoop(c)
}

// Wait blocks until every connection's read loop has exited and reported
// its disconnect to the bridge. Call it after the HTTP server has stopped
// accepting upgrades and the broadcaster has been stopped.
func (s *Server) Wait() {
	s.loops.Wait()
}

func (s *Server) readLoop(c *client) {
	defer s.loops.Done()
	defer func() {
		s.hub.RemoveClient(c)
		if c.registered.Load() {
			s.bridge.Handle(bridge.Event{Kind: bridge.EventDisconnect, Conn: c.info}, nil)
		}
		s.log.Info("websocket client disconnected", "conn", c.info.ID)
	}()

	pongTimeout := s.hub.opts.PongTimeout
	c.conn.SetReadLimit(maxFrameBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.log.Debug("ws read error", "conn", c.info.ID, "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongTimeout))

		codec := eventbus.ForMessage(mt == websocket.BinaryMessage)
		c.adoptCodec(codec)
		f, err := eventbus.DecodeFrame(codec, data)
		if err != nil {
			s.log.Debug("ws bad frame", "conn", c.info.ID, "error", err)
			s.hub.sendFrame(c, eventbus.Frame{Type: eventbus.FrameErr, Body: eventbus.ErrBodyInvalidFrame})
			continue
		}
		s.handleFrame(c, f)
	}
}

// remoteConn derives the client identity from the request's remote address.
func remoteConn(remoteAddr string) bridge.Conn {
	info := bridge.Conn{ID: uuid.NewString(), Host: remoteAddr}
	host, port, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return info
	}
	info.Host = host
	if p, err := strconv.Atoi(port); err == nil {
		info.Port = p
	}
	return info
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := parsed.Host
	if host == "" {
		return false
	}

	if host == r.Host {
		return true
	}

	if strings.HasPrefix(host, "localhost:") || host == "localhost" {
		return true
	}
	if strings.HasPrefix(host, "127.0.0.1:") || host == "127.0.0.1" {
		return true
	}
	if strings.HasPrefix(host, "[::1]:") || host == "::1" {
		return true
	}

	return false
}
