// Package api exposes the relay over HTTP: the websocket endpoint, the chat
// UI and a small JSON API for health and presence.
package api

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shirou/gopsutil/v3/process"
)

// Presence reports the bridge's online count.
type Presence interface {
	Online() int64
}

// Connections reports transport-level connection counts.
type Connections interface {
	ClientCount() int
	SubscriberCount(address string) int
}

// Options wires the API to the running relay.
type Options struct {
	Presence    Presence
	Connections Connections
	// Inbound and Outbound are the publish and broadcast addresses handed
	// to browser clients. Outbound subscribers are also reported.
	Inbound          string
	Outbound         string
	MaxMessageLength int
	// EventBus handles websocket upgrades on /eventbus.
	EventBus http.Handler
	// Static serves the chat UI; nil disables it.
	Static  http.Handler
	Started time.Time
}

type healthOutput struct {
	Body struct {
		Status string `json:"status" example:"ok"`
	}
}

type presenceOutput struct {
	Body struct {
		Online      int64 `json:"online" doc:"Registered clients as counted by the bridge"`
		Connections int   `json:"connections" doc:"Open websocket connections"`
		Subscribers int   `json:"subscribers" doc:"Connections subscribed to the broadcast address"`
	}
}

type clientConfigOutput struct {
	Body struct {
		InboundAddress   string `json:"inbound_address" doc:"Address chat messages are published to"`
		OutboundAddress  string `json:"outbound_address" doc:"Address notices are broadcast on"`
		MaxMessageLength int    `json:"max_message_length" doc:"Longest accepted message in UTF-16 code units"`
	}
}

type processOutput struct {
	Body struct {
		PID           int     `json:"pid"`
		RSSBytes      uint64  `json:"rss_bytes"`
		CPUPercent    float64 `json:"cpu_percent"`
		Threads       int32   `json:"threads"`
		Goroutines    int     `json:"goroutines"`
		UptimeSeconds int64   `json:"uptime_seconds"`
	}
}

// NewServer builds the HTTP handler for the whole relay.
func NewServer(opts Options) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)
	router.Use(securityHeaders)

	cfg := huma.DefaultConfig("Chat Relay API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "get-presence", Method: http.MethodGet, Path: "/api/v1/presence", Summary: "Current online count", Tags: []string{"Presence"}},
		func(ctx context.Context, input *struct{}) (*presenceOutput, error) {
			out := &presenceOutput{}
			out.Body.Online = opts.Presence.Online()
			out.Body.Connections = opts.Connections.ClientCount()
			out.Body.Subscribers = opts.Connections.SubscriberCount(opts.Outbound)
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "get-client-config", Method: http.MethodGet, Path: "/api/v1/config", Summary: "Event bus settings for chat clients", Tags: []string{"Presence"}},
		func(ctx context.Context, input *struct{}) (*clientConfigOutput, error) {
			out := &clientConfigOutput{}
			out.Body.InboundAddress = opts.Inbound
			out.Body.OutboundAddress = opts.Outbound
			out.Body.MaxMessageLength = opts.MaxMessageLength
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "get-process", Method: http.MethodGet, Path: "/api/v1/process", Summary: "Relay process statistics", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*processOutput, error) {
			return processStats(ctx, opts.Started)
		})

	if opts.EventBus != nil {
		router.Handle("/eventbus", opts.EventBus)
	}
	if opts.Static != nil {
		router.Handle("/*", opts.Static)
	}

	return router
}

func processStats(ctx context.Context, started time.Time) (*processOutput, error) {
	pid := os.Getpid()
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return nil, huma.Error500InternalServerError("process lookup failed", err)
	}

	out := &processOutput{}
	out.Body.PID = pid
	out.Body.Goroutines = runtime.NumGoroutine()
	if !started.IsZero() {
		out.Body.UptimeSeconds = int64(time.Since(started).Seconds())
	}

	mem, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("memory info failed", err)
	}
	out.Body.RSSBytes = mem.RSS

	// CPU and thread counts are best effort; not every platform reports them.
	if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
		out.Body.CPUPercent = cpu
	}
	if threads, err := p.NumThreadsWithContext(ctx); err == nil {
		out.Body.Threads = threads
	}
	return out, nil
}
