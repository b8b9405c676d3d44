package server

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOriginPolicy(t *testing.T) {
	policy := newOriginPolicy([]string{"http://localhost:3000", "HTTPS://Chat.Example.com", "not a url", ""}, discardLogger())

	tests := []struct {
		name   string
		origin string
		want   bool
	}{
		{name: "exact match", origin: "http://localhost:3000", want: true},
		{name: "case insensitive", origin: "https://chat.example.com", want: true},
		{name: "path ignored", origin: "https://chat.example.com/app", want: true},
		{name: "other port", origin: "http://localhost:4000", want: false},
		{name: "missing header", origin: "", want: false},
		{name: "garbage", origin: "::::", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, policy.checkOrigin(req))
		})
	}
}

func TestOriginPolicyWildcard(t *testing.T) {
	policy := newOriginPolicy([]string{"*"}, discardLogger())
	assert.True(t, policy.allows("https://anything.test"))
	assert.False(t, policy.allows(""), "an origin header is still required")
}
