package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  port: 9090
  host: "127.0.0.1"
  port_candidates: [9091, 9092]
  allowed_origins:
    - "http://chat.example.com"
bridge:
  max_message_length: 280
  codec: msgpack
ws:
  send_buffer: 16
  max_connections: 500
  ping_interval: 10s
log:
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want 127.0.0.1", cfg.Server.Host)
	}
	if len(cfg.Server.PortCandidates) != 2 || cfg.Server.PortCandidates[1] != 9092 {
		t.Errorf("Server.PortCandidates = %v", cfg.Server.PortCandidates)
	}
	if len(cfg.Server.AllowedOrigins) != 1 {
		t.Errorf("Server.AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Bridge.MaxMessageLength != 280 {
		t.Errorf("Bridge.MaxMessageLength = %d, want 280", cfg.Bridge.MaxMessageLength)
	}
	if cfg.Bridge.Codec != "msgpack" {
		t.Errorf("Bridge.Codec = %q, want msgpack", cfg.Bridge.Codec)
	}
	if cfg.WS.SendBuffer != 16 || cfg.WS.MaxConnections != 500 {
		t.Errorf("WS = %+v", cfg.WS)
	}
	if cfg.WS.PingInterval != 10*time.Second {
		t.Errorf("WS.PingInterval = %v, want 10s", cfg.WS.PingInterval)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}

	// Defaults should still be applied for unspecified fields.
	if cfg.Bridge.InboundAddress != "chat.to.server" {
		t.Errorf("Bridge.InboundAddress = %q, want default", cfg.Bridge.InboundAddress)
	}
	if cfg.Bridge.OutboundAddress != "chat.to.client" {
		t.Errorf("Bridge.OutboundAddress = %q, want default", cfg.Bridge.OutboundAddress)
	}
	if cfg.WS.PongTimeout != 60*time.Second {
		t.Errorf("WS.PongTimeout = %v, want default 60s", cfg.WS.PongTimeout)
	}
	if !cfg.Server.PortAutoFallback {
		t.Error("Server.PortAutoFallback should default to true")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("Load() on missing file should return error")
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, found, err := LoadOrDefault("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("LoadOrDefault() error: %v", err)
	}
	if found {
		t.Error("found should be false for a missing file")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want default 8080", cfg.Server.Port)
	}
	if cfg.Bridge.MaxMessageLength != 140 {
		t.Errorf("Bridge.MaxMessageLength = %d, want default 140", cfg.Bridge.MaxMessageLength)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeFile(t, "bad.yaml", ":::not valid yaml")

	if _, err := Load(path); err == nil {
		t.Fatal("Load() with invalid YAML should return error")
	}
	if _, _, err := LoadOrDefault(path); err == nil {
		t.Fatal("LoadOrDefault() with invalid YAML should return error")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("CHAT_PORT", "7070")
	t.Setenv("CHAT_HOST", "localhost")
	t.Setenv("CHAT_LOG_LEVEL", "WARN")
	t.Setenv("CHAT_MAX_MESSAGE_LENGTH", "not-a-number")

	// CHAT_CODEC only comes from the .env file. godotenv never overrides
	// variables that are already set, so make sure it starts unset.
	os.Unsetenv("CHAT_CODEC")
	t.Cleanup(func() { os.Unsetenv("CHAT_CODEC") })
	envPath := writeFile(t, ".env", "CHAT_CODEC=msgpack\nCHAT_PORT=1111\n")

	cfg := defaultConfig()
	err := cfg.ApplyEnv(envPath)
	if !errors.Is(err, ErrMalformedEnv) || !strings.Contains(err.Error(), "CHAT_MAX_MESSAGE_LENGTH") {
		t.Errorf("ApplyEnv() error = %v, want the malformed CHAT_MAX_MESSAGE_LENGTH reported", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want 7070 (process env wins over .env)", cfg.Server.Port)
	}
	if cfg.Server.Host != "localhost" {
		t.Errorf("Server.Host = %q, want localhost", cfg.Server.Host)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want warn", cfg.Log.Level)
	}
	if cfg.Bridge.Codec != "msgpack" {
		t.Errorf("Bridge.Codec = %q, want msgpack from .env", cfg.Bridge.Codec)
	}
	if cfg.Bridge.MaxMessageLength != 140 {
		t.Errorf("Bridge.MaxMessageLength = %d, malformed env should keep 140", cfg.Bridge.MaxMessageLength)
	}
}

func TestApplyEnvMissingDotEnv(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.ApplyEnv(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Errorf("ApplyEnv() with no .env file = %v, want nil", err)
	}
}

func TestLoadOrDefaultFound(t *testing.T) {
	path := writeFile(t, "config.yaml", "server:\n  port: 9090\n")
	cfg, found, err := LoadOrDefault(path)
	if err != nil {
		t.Fatalf("LoadOrDefault() error: %v", err)
	}
	if !found || cfg.Server.Port != 9090 {
		t.Errorf("found = %v, port = %d; want true, 9090", found, cfg.Server.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"Defaults", func(*Config) {}, false},
		{"EmptyInbound", func(c *Config) { c.Bridge.InboundAddress = "" }, true},
		{"SameAddresses", func(c *Config) { c.Bridge.OutboundAddress = c.Bridge.InboundAddress }, true},
		{"ZeroMaxLength", func(c *Config) { c.Bridge.MaxMessageLength = 0 }, true},
		{"ZeroSendBuffer", func(c *Config) { c.WS.SendBuffer = 0 }, true},
		{"NegativeMaxConnections", func(c *Config) { c.WS.MaxConnections = -1 }, true},
		{"BadPortIsReset", func(c *Config) { c.Server.Port = 70000 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateResetsPort(t *testing.T) {
	cfg := defaultConfig()
	cfg.Server.Port = -5
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
}

func TestBindAddrs(t *testing.T) {
	cfg := defaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 8080
	cfg.Server.PortCandidates = []int{8081, 8082}

	if got := cfg.BindAddr(); got != "127.0.0.1:8080" {
		t.Errorf("BindAddr() = %q", got)
	}

	want := []string{"127.0.0.1:8081", "127.0.0.1:8082", "127.0.0.1:0"}
	got := cfg.CandidateAddrs()
	if len(got) != len(want) {
		t.Fatalf("CandidateAddrs() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("CandidateAddrs()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	cfg.Server.Host = "::1"
	if got := cfg.BindAddr(); got != "[::1]:8080" {
		t.Errorf("IPv6 BindAddr() = %q", got)
	}
}
