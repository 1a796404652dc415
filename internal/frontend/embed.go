// Package frontend serves the browser chat client.
package frontend

import (
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
)

//go:embed static/*
var staticFiles embed.FS

// Handler serves the chat UI from dir when set, otherwise from the copy
// embedded in the binary.
func Handler(dir string) http.Handler {
	if dir != "" {
		slog.Info("serving frontend from filesystem", "dir", dir)
		return http.FileServer(http.Dir(dir))
	}

	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	return http.FileServer(http.FS(sub))
}
