package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAddr(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: "127.0.0.1:8080"},
		{in: "garbage", want: "127.0.0.1:8080"},
		{in: ":9090", want: "127.0.0.1:9090"},
		{in: "0.0.0.0:9090", want: "127.0.0.1:9090"},
		{in: "[::]:9090", want: "127.0.0.1:9090"},
		{in: "10.0.0.5:8080", want: "10.0.0.5:8080"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeAddr(tt.in))
		})
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   int
	}{
		{name: "healthy", status: http.StatusOK, body: `{"status":"ok"}`, want: 0},
		{name: "degraded", status: http.StatusServiceUnavailable, body: `{"status":"degraded"}`, want: 1},
		{name: "not json", status: http.StatusOK, body: `<html>`, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/v1/health", r.URL.Path)
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			addr := strings.TrimPrefix(srv.URL, "http://")
			assert.Equal(t, tt.want, check(addr, io.Discard))
		})
	}
}

func TestCheck_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := strings.TrimPrefix(srv.URL, "http://")
	srv.Close()

	assert.Equal(t, 1, check(addr, io.Discard))
}
