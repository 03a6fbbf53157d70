package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"adpilot/internal/config"
)

func TestSendMessage(t *testing.T) {
	var got GenericMessage
	var auth, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"messages":[{"id":"wamid.1"}]}`))
	}))
	defer srv.Close()

	c := NewClient(&config.Config{MetaGraphURL: srv.URL, MetaAPIVersion: "v19.0", WhatsAppToken: "wa-token", PhoneNumberID: "555"}, zap.NewNop())
	require.NoError(t, c.SendMessage(context.Background(), "919876543210", "hello"))

	assert.Equal(t, "Bearer wa-token", auth)
	assert.Equal(t, "/v19.0/555/messages", path)
	assert.Equal(t, "text", got.Type)
	assert.Equal(t, "hello", got.Text.Body)
}

func TestSendMessageTruncatesLongBodies(t *testing.T) {
	var got GenericMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	c := NewClient(&config.Config{MetaGraphURL: srv.URL, MetaAPIVersion: "v19.0", WhatsAppToken: "t", PhoneNumberID: "1"}, nil)
	require.NoError(t, c.SendMessage(context.Background(), "1", strings.Repeat("a", 5000)))
	assert.Len(t, got.Text.Body, maxTextLength)
}

func TestSendErrorsOnStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad token"}}`))
	}))
	defer srv.Close()

	c := NewClient(&config.Config{MetaGraphURL: srv.URL, MetaAPIVersion: "v19.0", WhatsAppToken: "t", PhoneNumberID: "1"}, nil)
	err := c.SendImageMessage(context.Background(), "1", "https://img.example/a.png", "cap")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad token")
}

func TestUnconfiguredChannel(t *testing.T) {
	c := NewClient(&config.Config{}, nil)
	assert.Error(t, c.SendMessage(context.Background(), "1", "x"))
}
