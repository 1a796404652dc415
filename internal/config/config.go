package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the relay configuration, read from YAML on top of the defaults.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Bridge BridgeConfig `yaml:"bridge"`
	WS     WSConfig     `yaml:"ws"`
	Log    LogConfig    `yaml:"log"`
}

type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
	// PortCandidates are tried in order when Port is busy and
	// PortAutoFallback is set. A random free port is the last resort.
	PortCandidates   []int    `yaml:"port_candidates"`
	PortAutoFallback bool     `yaml:"port_auto_fallback"`
	AllowedOrigins   []string `yaml:"allowed_origins"`
	// StaticDir serves the chat UI from disk instead of the embedded copy.
	StaticDir string `yaml:"static_dir"`
}

type BridgeConfig struct {
	InboundAddress   string `yaml:"inbound_address"`
	OutboundAddress  string `yaml:"outbound_address"`
	MaxMessageLength int    `yaml:"max_message_length"`
	Codec            string `yaml:"codec"`
}

type WSConfig struct {
	SendBuffer     int           `yaml:"send_buffer"`
	MaxConnections int           `yaml:"max_connections"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	PongTimeout    time.Duration `yaml:"pong_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:             8080,
			Host:             "0.0.0.0",
			PortAutoFallback: true,
		},
		Bridge: BridgeConfig{
			InboundAddress:   "chat.to.server",
			OutboundAddress:  "chat.to.client",
			MaxMessageLength: 140,
			Codec:            "json",
		},
		WS: WSConfig{
			SendBuffer:   64,
			PingInterval: 30 * time.Second,
			PongTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
			File:  "logs/chat-relay.log",
		},
	}
}

// Load reads a YAML config file on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults
// with found set to false. It does not log, so callers can report the
// outcome once their logger is configured.
func LoadOrDefault(path string) (cfg *Config, found bool, err error) {
	cfg, err = Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return defaultConfig(), false, nil
	}
	return cfg, err == nil, err
}

// ErrMalformedEnv marks an environment override that could not be parsed.
var ErrMalformedEnv = errors.New("malformed environment value")

// ApplyEnv loads an optional .env file and applies CHAT_* overrides.
// Malformed values keep the current setting and are reported in the
// returned error; the rest of the overrides still apply.
func (c *Config) ApplyEnv(envFiles ...string) error {
	var errs []error
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		errs = append(errs, fmt.Errorf("load env file: %w", err))
	}
	envInt := func(key string, v *int) {
		n, err := getEnvIntOrDefault(key, *v)
		if err != nil {
			errs = append(errs, err)
		}
		*v = n
	}

	c.Server.Host = getEnvOrDefault("CHAT_HOST", c.Server.Host)
	envInt("CHAT_PORT", &c.Server.Port)
	c.Bridge.Codec = getEnvOrDefault("CHAT_CODEC", c.Bridge.Codec)
	envInt("CHAT_MAX_MESSAGE_LENGTH", &c.Bridge.MaxMessageLength)
	c.Log.Level = strings.ToLower(getEnvOrDefault("CHAT_LOG_LEVEL", c.Log.Level))
	c.Log.File = getEnvOrDefault("CHAT_LOG_FILE", c.Log.File)
	return errors.Join(errs...)
}

// Validate rejects values the server cannot run with. An out of range port
// is reset to 8080.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		slog.Warn("invalid port, using 8080", "port", c.Server.Port)
		c.Server.Port = 8080
	}
	if c.Bridge.InboundAddress == "" || c.Bridge.OutboundAddress == "" {
		return errors.New("config: bridge addresses must not be empty")
	}
	if c.Bridge.InboundAddress == c.Bridge.OutboundAddress {
		return fmt.Errorf("config: inbound and outbound address are both %q", c.Bridge.InboundAddress)
	}
	if c.Bridge.MaxMessageLength < 1 {
		return fmt.Errorf("config: max_message_length must be positive, got %d", c.Bridge.MaxMessageLength)
	}
	if c.WS.SendBuffer < 1 {
		return fmt.Errorf("config: ws.send_buffer must be positive, got %d", c.WS.SendBuffer)
	}
	if c.WS.MaxConnections < 0 {
		return fmt.Errorf("config: ws.max_connections must not be negative, got %d", c.WS.MaxConnections)
	}
	return nil
}

// BindAddr is the preferred listen address.
func (c *Config) BindAddr() string {
	return joinHostPort(c.Server.Host, c.Server.Port)
}

// CandidateAddrs are the fallback listen addresses in order, ending with a
// random free port.
func (c *Config) CandidateAddrs() []string {
	addrs := make([]string, 0, len(c.Server.PortCandidates)+1)
	for _, p := range c.Server.PortCandidates {
		addrs = append(addrs, joinHostPort(c.Server.Host, p))
	}
	return append(addrs, joinHostPort(c.Server.Host, 0))
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) (int, error) {
	if val := os.Getenv(key); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return defaultVal, fmt.Errorf("%w: %s=%q", ErrMalformedEnv, key, val)
		}
		return i, nil
	}
	return defaultVal, nil
}
