package utils

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"
)

// DialTimeout bounds a reachability probe when the caller's context has no deadline
const DialTimeout = 1500 * time.Millisecond

// Reachable opens and closes a TCP connection to the host of serviceURL
func Reachable(ctx context.Context, serviceURL string) error {
	parsed, err := url.Parse(serviceURL)
	if err != nil || parsed.Hostname() == "" {
		return fmt.Errorf("invalid service URL %q", serviceURL)
	}

	port := parsed.Port()
	if port == "" {
		port = "80"
		if parsed.Scheme == "https" {
			port = "443"
		}
	}
	address := net.JoinHostPort(parsed.Hostname(), port)

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DialTimeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", address, err)
	}
	return conn.Close()
}
