package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/chat-relay/backend/internal/api"
	"github.com/chat-relay/backend/internal/bridge"
	"github.com/chat-relay/backend/internal/config"
	"github.com/chat-relay/backend/internal/eventbus"
	"github.com/chat-relay/backend/internal/frontend"
	"github.com/chat-relay/backend/internal/netutil"
	"github.com/chat-relay/backend/internal/ws"
	"gopkg.in/natefinch/lumberjack.v2"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	flag.Parse()

	cfg, found, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	envErr := cfg.ApplyEnv()

	// -port and a bare positional port both override file and env.
	if *port > 0 {
		cfg.Server.Port = *port
	}
	badPortArg := ""
	if arg := flag.Arg(0); arg != "" {
		if p, err := strconv.Atoi(arg); err == nil {
			cfg.Server.Port = p
		} else {
			badPortArg = arg
		}
	}

	if err := setupLogger(cfg.Log.Level, cfg.Log.File); err != nil {
		_, _ = io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n")
		os.Exit(1)
	}

	if !found {
		slog.Info("config file not found, using defaults", "path", *configPath)
	}
	if envErr != nil {
		slog.Warn("some environment overrides were ignored", "error", envErr)
	}
	if badPortArg != "" {
		slog.Warn("ignoring non-numeric port argument", "arg", badPortArg)
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	slog.Info("config loaded",
		"bind_addr", cfg.BindAddr(),
		"port_auto_fallback", cfg.Server.PortAutoFallback,
		"port_candidates", cfg.Server.PortCandidates,
		"inbound", cfg.Bridge.InboundAddress,
		"outbound", cfg.Bridge.OutboundAddress,
		"max_message_length", cfg.Bridge.MaxMessageLength,
		"codec", cfg.Bridge.Codec,
		"log_level", cfg.Log.Level,
		"log_file", cfg.Log.File,
	)

	codec, err := eventbus.ByName(cfg.Bridge.Codec)
	if err != nil {
		slog.Error("invalid codec", "codec", cfg.Bridge.Codec, "error", err)
		os.Exit(1)
	}

	hub := ws.NewBroadcaster(codec, ws.Options{
		SendBuffer:     cfg.WS.SendBuffer,
		MaxConnections: cfg.WS.MaxConnections,
		PingInterval:   cfg.WS.PingInterval,
		PongTimeout:    cfg.WS.PongTimeout,
		WriteTimeout:   cfg.WS.WriteTimeout,
	}, slog.Default())

	br := bridge.New(bridge.NewPresenceCounter(), hub,
		bridge.WithAddresses(cfg.Bridge.InboundAddress, cfg.Bridge.OutboundAddress),
		bridge.WithValidator(bridge.Validator{MaxLength: cfg.Bridge.MaxMessageLength}),
		bridge.WithCodec(codec),
		bridge.WithLogger(slog.Default()),
	)

	eventBus := ws.NewServer(hub, br, cfg.Server.AllowedOrigins, slog.Default())

	handler := api.NewServer(api.Options{
		Presence:         br,
		Connections:      hub,
		Inbound:          br.InboundAddress(),
		Outbound:         br.OutboundAddress(),
		MaxMessageLength: cfg.Bridge.MaxMessageLength,
		EventBus:         eventBus,
		Static:           frontend.Handler(cfg.Server.StaticDir),
		Started:          time.Now(),
	})

	ln, err := netutil.Listen(cfg.BindAddr(), cfg.CandidateAddrs(), cfg.Server.PortAutoFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr(), "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("chat relay listening",
			"addr", ln.Addr().String(),
			"url", fmt.Sprintf("http://localhost:%d/", netutil.Port(ln)),
		)
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down", "online", br.Online())

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	// Stopping the hub closes every connection; each read loop then reports
	// its disconnect, and only after that can the bridge drain.
	hub.Stop()
	eventBus.Wait()
	br.Wait()
}

func setupLogger(level, filename string) error {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	var out io.Writer = os.Stdout
	if filename != "" {
		if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
			return err
		}
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   filename,
			MaxSize:    25,
			MaxBackups: 10,
			MaxAge:     14,
			Compress:   true,
		})
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slogLevel})))
	return nil
}
