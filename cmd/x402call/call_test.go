package main

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveEndpoint(t *testing.T) {
	tests := []struct {
		kind, query string
		byID        bool
		method      string
		path        string
		paid        bool
	}{
		{"profile", "alice", false, http.MethodGet, "/api/profiles/username/alice", true},
		{"profile", "42", true, http.MethodGet, "/api/profiles/42", true},
		{"social", "alice", false, http.MethodGet, "/api/social/username/alice", true},
		{"mbti", "7", true, http.MethodGet, "/api/mbti/7", true},
		{"chat-create", "", false, http.MethodPost, "/api/chat/create", false},
		{"chat-message", "", false, http.MethodPost, "/api/chat/message", true},
	}

	for _, tt := range tests {
		t.Run(tt.kind+"/"+tt.query, func(t *testing.T) {
			e, err := resolveEndpoint(tt.kind, tt.query, tt.byID)
			require.NoError(t, err)
			assert.Equal(t, tt.method, e.Method())
			assert.Equal(t, tt.path, e.Path())
			assert.Equal(t, tt.paid, e.RequiresPayment())
		})
	}

	_, err := resolveEndpoint("profile", "", false)
	assert.ErrorContains(t, err, "requires a query")

	_, err = resolveEndpoint("weather", "x", false)
	assert.ErrorContains(t, err, "unknown endpoint")
}
