// Package resolve looks up the signaling server's address, falling back to
// public DNS servers when the system resolver fails. Captive or broken
// resolvers are common on the networks people join calls from.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// PublicDNS are raced when the system resolver cannot answer.
var PublicDNS = []string{
	"1.1.1.1", "1.0.0.1", "[2606:4700:4700::1111]", // Cloudflare
	"8.8.8.8", "8.8.4.4", "[2001:4860:4860::8888]", // Google
	"9.9.9.9", "149.112.112.112",                   // Quad9
	"208.67.222.222",                               // OpenDNS
}

var ErrNoAddress = errors.New("no addresses found")

// Resolver resolves host names with a public DNS fallback.
type Resolver struct {
	// Fallback servers, host or [ipv6] without port.
	Fallback []string

	LocalTimeout    time.Duration
	FallbackTimeout time.Duration
}

// New returns a Resolver using PublicDNS.
func New() *Resolver {
	return &Resolver{
		Fallback:        PublicDNS,
		LocalTimeout:    time.Second,
		FallbackTimeout: 2 * time.Second,
	}
}

// Lookup returns one address for host, preferring IPv4. IP literals are
// returned unchanged.
func (r *Resolver) Lookup(ctx context.Context, host string) (string, error) {
	if net.ParseIP(host) != nil {
		return host, nil
	}

	local, cancel := context.WithTimeout(ctx, r.LocalTimeout)
	ip, err := lookup(local, &net.Resolver{}, host)
	cancel()
	if err == nil {
		return ip, nil
	}
	if len(r.Fallback) == 0 {
		return "", fmt.Errorf("resolve %s: %w", host, err)
	}
	return r.race(ctx, host)
}

// race asks every fallback server at once and takes the first answer.
func (r *Resolver) race(ctx context.Context, host string) (string, error) {
	type result struct {
		ip  string
		err error
	}

	ctx, cancel := context.WithTimeout(ctx, r.FallbackTimeout)
	defer cancel()

	results := make(chan result, len(r.Fallback))
	for _, server := range r.Fallback {
		go func() {
			ip, err := lookup(ctx, viaServer(server), host)
			results <- result{ip, err}
		}()
	}

	for range r.Fallback {
		select {
		case res := <-results:
			if res.err == nil {
				return res.ip, nil
			}
		case <-ctx.Done():
			return "", fmt.Errorf("resolve %s: public DNS timed out", host)
		}
	}
	return "", fmt.Errorf("resolve %s: all %d public DNS servers failed", host, len(r.Fallback))
}

// DialContext resolves the host in addr and dials it. It fits
// websocket.Dialer.NetDialContext.
func (r *Resolver) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	ip, err := r.Lookup(ctx, host)
	if err != nil {
		return nil, err
	}
	var d net.Dialer
	return d.DialContext(ctx, network, net.JoinHostPort(ip, port))
}

func viaServer(server string) *net.Resolver {
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(trimBrackets(server), "53"))
		},
	}
}

func lookup(ctx context.Context, r *net.Resolver, host string) (string, error) {
	ips, err := r.LookupHost(ctx, host)
	if err != nil {
		return "", err
	}
	if len(ips) == 0 {
		return "", ErrNoAddress
	}
	for _, ip := range ips {
		if parsed := net.ParseIP(ip); parsed != nil && parsed.To4() != nil {
			return ip, nil
		}
	}
	return ips[0], nil
}

func trimBrackets(s string) string {
	if len(s) > 1 && s[0] == '[' && s[len(s)-1] == ']' {
		return s[1 : len(s)-1]
	}
	return s
}
