package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/chat-relay/backend/internal/bridge"
	"github.com/chat-relay/backend/internal/eventbus"
	"github.com/chat-relay/backend/internal/tui"
)

func main() {
	wsURL := flag.String("url", "ws://127.0.0.1:8080/eventbus", "Event bus URL of the chat relay")
	codecName := flag.String("codec", "json", "Frame codec the relay uses (json or msgpack)")
	inbound := flag.String("inbound", eventbus.DefaultInboundAddress, "Address chat messages are published to")
	outbound := flag.String("outbound", eventbus.DefaultOutboundAddress, "Address notices are broadcast on")
	maxLength := flag.Int("max-length", bridge.DefaultMaxLength, "Longest message the relay accepts")
	debug := flag.Bool("debug", false, "Write debug logs to chat-tui.log")
	flag.Parse()

	codec, err := eventbus.ByName(*codecName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// The alt screen owns stdout, so logs go to a file or nowhere.
	var logOut io.Writer = io.Discard
	if *debug {
		f, err := tea.LogToFile("chat-tui.log", "")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		logOut = f
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: slog.LevelDebug})))

	client := tui.NewClient(*wsURL, codec, *inbound, *outbound)
	p := tea.NewProgram(tui.New(client, *maxLength), tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
