package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Default configuration values.
const (
	DefaultDomain             = "localhost:8080"
	DefaultSTUN               = "stun:stun.l.google.com:19302"
	DefaultAddr               = ":8080"
	DefaultSendQueue          = 256
	DefaultShutdownTimeout    = 10 * time.Second
	DefaultNegotiationTimeout = 30 * time.Second
)

// Config holds the call client's configuration.
type Config struct {
	// Domain is the signaling server host[:port].
	Domain string

	// WebSocketURL is the signaling endpoint, derived from Domain unless
	// given explicitly.
	WebSocketURL string

	// APIURL is the base of the HTTP API on the same server.
	APIURL string

	// STUN server for ICE. TURN relaying is not supported.
	STUNServer string

	// NegotiationTimeout bounds how long a peer may take to connect.
	NegotiationTimeout time.Duration
}

// Options for loading config with CLI flag overrides.
type Options struct {
	Domain             string
	ServerURL          string
	STUNServer         string
	NegotiationTimeout time.Duration
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	domain := firstNonEmpty(opts.Domain, os.Getenv("DOMAIN"), DefaultDomain)
	stunServer := firstNonEmpty(opts.STUNServer, os.Getenv("STUN_SERVER"), DefaultSTUN)
	if !strings.HasPrefix(stunServer, "stun:") {
		return nil, fmt.Errorf("invalid STUN server %q: must start with stun:", stunServer)
	}

	timeout := opts.NegotiationTimeout
	if timeout == 0 {
		d, err := envDuration("NEGOTIATION_TIMEOUT", DefaultNegotiationTimeout)
		if err != nil {
			return nil, err
		}
		timeout = d
	}
	if timeout < 0 {
		return nil, fmt.Errorf("negotiation timeout must be positive, got %s", timeout)
	}

	secure := !isLocal(domain)
	wsURL := firstNonEmpty(opts.ServerURL, os.Getenv("SERVER_URL"))
	if wsURL == "" {
		scheme := "ws"
		if secure {
			scheme = "wss"
		}
		wsURL = fmt.Sprintf("%s://%s/ws", scheme, domain)
	}
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("invalid server URL %q: scheme must be ws or wss", wsURL)
	}

	apiScheme := "http"
	if u.Scheme == "wss" {
		apiScheme = "https"
	}

	return &Config{
		Domain:             u.Host,
		WebSocketURL:       u.String(),
		APIURL:             fmt.Sprintf("%s://%s/api", apiScheme, u.Host),
		STUNServer:         stunServer,
		NegotiationTimeout: timeout,
	}, nil
}

// GetRoomLink returns the shareable URL for a room.
func (c *Config) GetRoomLink(roomID string) string {
	scheme := "https"
	if strings.HasPrefix(c.APIURL, "http://") {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s/r/%s", scheme, c.Domain, roomID)
}

// GetSTUNServers returns STUN server URLs as strings.
func (c *Config) GetSTUNServers() []string {
	return []string{c.STUNServer}
}

// ServerConfig holds the signaling server's configuration.
type ServerConfig struct {
	Addr            string
	AllowedOrigins  []string
	SendQueue       int
	ShutdownTimeout time.Duration
}

// ServerOptions for loading server config with flag overrides.
type ServerOptions struct {
	Addr           string
	AllowedOrigins string
}

// LoadServer reads server configuration: flags > env > defaults.
func LoadServer(opts ServerOptions) (*ServerConfig, error) {
	queue, err := envInt("SEND_QUEUE", DefaultSendQueue)
	if err != nil {
		return nil, err
	}
	if queue <= 0 {
		return nil, fmt.Errorf("SEND_QUEUE must be positive, got %d", queue)
	}
	shutdown, err := envDuration("SHUTDOWN_TIMEOUT", DefaultShutdownTimeout)
	if err != nil {
		return nil, err
	}

	var origins []string
	for _, o := range strings.Split(firstNonEmpty(opts.AllowedOrigins, os.Getenv("ALLOWED_ORIGINS")), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	return &ServerConfig{
		Addr:            firstNonEmpty(opts.Addr, os.Getenv("ADDR"), DefaultAddr),
		AllowedOrigins:  origins,
		SendQueue:       queue,
		ShutdownTimeout: shutdown,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func isLocal(domain string) bool {
	host := domain
	if h, _, ok := strings.Cut(domain, ":"); ok {
		host = h
	}
	return host == "localhost" || strings.HasPrefix(host, "127.") || host == "0.0.0.0"
}
