// Command healthcheck probes a running actionwatch server for container
// health checks. It exits 0 only when /api/v1/health reports status "ok".
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"
)

const defaultAddr = "127.0.0.1:8080"

func main() {
	os.Exit(check(os.Getenv("ACTIONWATCH_LISTEN_ADDR"), os.Stderr))
}

func check(listenAddr string, stderr io.Writer) int {
	addr := normalizeAddr(listenAddr)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://%s/api/v1/health", addr), nil)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer resp.Body.Close()

	var health struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&health); err != nil {
		fmt.Fprintf(stderr, "decode health response: %v\n", err)
		return 1
	}
	if resp.StatusCode != http.StatusOK || health.Status != "ok" {
		fmt.Fprintf(stderr, "unhealthy: HTTP %d, status %q\n", resp.StatusCode, health.Status)
		return 1
	}

	return 0
}

// normalizeAddr points the probe at loopback when the server binds every
// interface, since the probe runs inside the same container.
func normalizeAddr(raw string) string {
	if raw == "" {
		return defaultAddr
	}

	host, port, err := net.SplitHostPort(raw)
	if err != nil {
		return defaultAddr
	}

	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}

	return net.JoinHostPort(host, port)
}
