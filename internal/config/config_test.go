package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"DOMAIN", "SERVER_URL", "STUN_SERVER", "NEGOTIATION_TIMEOUT",
		"ADDR", "ALLOWED_ORIGINS", "SEND_QUEUE", "SHUTDOWN_TIMEOUT"} {
		t.Setenv(k, "")
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		env       map[string]string
		opts      Options
		wantWS    string
		wantAPI   string
		wantSTUN  string
		wantTimer time.Duration
		wantErr   bool
	}{
		{
			name:      "defaults",
			wantWS:    "ws://localhost:8080/ws",
			wantAPI:   "http://localhost:8080/api",
			wantSTUN:  DefaultSTUN,
			wantTimer: DefaultNegotiationTimeout,
		},
		{
			name:      "public domain uses tls",
			env:       map[string]string{"DOMAIN": "meet.example.com"},
			wantWS:    "wss://meet.example.com/ws",
			wantAPI:   "https://meet.example.com/api",
			wantSTUN:  DefaultSTUN,
			wantTimer: DefaultNegotiationTimeout,
		},
		{
			name:      "flag beats env",
			env:       map[string]string{"DOMAIN": "env.example.com", "STUN_SERVER": "stun:env:3478"},
			opts:      Options{Domain: "flag.example.com", STUNServer: "stun:flag:3478"},
			wantWS:    "wss://flag.example.com/ws",
			wantAPI:   "https://flag.example.com/api",
			wantSTUN:  "stun:flag:3478",
			wantTimer: DefaultNegotiationTimeout,
		},
		{
			name:      "explicit server url",
			env:       map[string]string{"SERVER_URL": "ws://10.0.0.5:9000/ws", "NEGOTIATION_TIMEOUT": "5s"},
			wantWS:    "ws://10.0.0.5:9000/ws",
			wantAPI:   "http://10.0.0.5:9000/api",
			wantSTUN:  DefaultSTUN,
			wantTimer: 5 * time.Second,
		},
		{
			name:    "bad stun scheme",
			opts:    Options{STUNServer: "turn:relay:3478"},
			wantErr: true,
		},
		{
			name:    "bad server scheme",
			opts:    Options{ServerURL: "http://localhost:8080/ws"},
			wantErr: true,
		},
		{
			name:    "bad timeout",
			env:     map[string]string{"NEGOTIATION_TIMEOUT": "soon"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load(tt.opts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantWS, cfg.WebSocketURL)
			assert.Equal(t, tt.wantAPI, cfg.APIURL)
			assert.Equal(t, tt.wantSTUN, cfg.STUNServer)
			assert.Equal(t, []string{tt.wantSTUN}, cfg.GetSTUNServers())
			assert.Equal(t, tt.wantTimer, cfg.NegotiationTimeout)
		})
	}
}

func TestGetRoomLink(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(Options{Domain: "meet.example.com"})
	require.NoError(t, err)
	assert.Equal(t, "https://meet.example.com/r/ABC123", cfg.GetRoomLink("ABC123"))

	cfg, err = Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/r/ABC123", cfg.GetRoomLink("ABC123"))
}

func TestLoadServer(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadServer(ServerOptions{})
	require.NoError(t, err)
	assert.Equal(t, DefaultAddr, cfg.Addr)
	assert.Empty(t, cfg.AllowedOrigins)
	assert.Equal(t, DefaultSendQueue, cfg.SendQueue)
	assert.Equal(t, DefaultShutdownTimeout, cfg.ShutdownTimeout)

	t.Setenv("ADDR", ":9000")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("SEND_QUEUE", "16")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")

	cfg, err = LoadServer(ServerOptions{Addr: ":7000"})
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Addr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 16, cfg.SendQueue)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)

	t.Setenv("SEND_QUEUE", "0")
	_, err = LoadServer(ServerOptions{})
	assert.Error(t, err)
}
