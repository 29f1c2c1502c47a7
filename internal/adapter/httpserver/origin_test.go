package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name   string
		dev    bool
		host   string
		origin string
		want   bool
	}{
		{"no origin header", false, "pet.example.com", "", true},
		{"same host", false, "pet.example.com", "https://pet.example.com", true},
		{"same host with port", false, "pet.example.com:8080", "http://pet.example.com:8080", true},
		{"foreign host", false, "pet.example.com", "https://evil.example.net", false},
		{"localhost in production", false, "pet.example.com", "http://localhost:3000", false},
		{"localhost in development", true, "127.0.0.1:8080", "http://localhost:3000", true},
		{"loopback ip in development", true, "pet.local", "http://127.0.0.1:5173", true},
		{"foreign host in development", true, "pet.local", "https://evil.example.net", false},
		{"unparseable origin", true, "pet.local", "://bad", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/ws", nil)
			req.Host = tt.host
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}

			assert.Equal(t, tt.want, newCheckOrigin(tt.dev)(req))
		})
	}
}
