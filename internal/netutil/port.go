package netutil

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
)

var ErrNoBindAddr = errors.New("no available bind address")

// Listen opens a TCP listener on preferred. When preferred is busy and
// autoFallback is set, candidates are tried in order; a candidate with port
// 0 picks any free port. The returned listener's Addr reports the port
// actually bound.
func Listen(preferred string, candidates []string, autoFallback bool) (net.Listener, error) {
	if preferred != "" {
		ln, err := net.Listen("tcp", preferred)
		if err == nil {
			return ln, nil
		}
		if !autoFallback {
			return nil, fmt.Errorf("preferred bind address %s: %w", preferred, err)
		}
		slog.Warn("preferred bind address unavailable, trying fallbacks", "addr", preferred, "error", err)
	}

	for _, addr := range candidates {
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return ln, nil
		}
		slog.Debug("bind candidate unavailable", "addr", addr, "error", err)
	}

	return nil, ErrNoBindAddr
}

// Port extracts the bound port of a TCP listener, or 0.
func Port(ln net.Listener) int {
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}
