package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushChannel_Send(t *testing.T) {
	var (
		got  PushEnvelope
		auth string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	p, err := NewPushChannel(PushConfig{URL: srv.URL, AuthToken: "secret"}, discardLogger())
	require.NoError(t, err)
	require.NoError(t, p.Ready(context.Background()))

	msg := Message{Title: titleExpired, Body: "Saumon, Glace", Tag: "expiry-2026-10-18", URL: "https://app.example"}
	require.NoError(t, p.Send(context.Background(), msg))

	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "expirywatch.expiry.reminder", got.Type)
	assert.Equal(t, msg.Title, got.Title)
	assert.Equal(t, msg.Body, got.Body)
	assert.Equal(t, msg.Tag, got.Tag)
	assert.Equal(t, msg.URL, got.ClickURL)
	assert.NotEmpty(t, got.Timestamp)
}

func TestPushChannel_RelayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, err := NewPushChannel(PushConfig{URL: srv.URL}, discardLogger())
	require.NoError(t, err)

	err = p.Send(context.Background(), testMsg)
	var relayErr *RelayError
	require.True(t, errors.As(err, &relayErr))
	assert.Equal(t, http.StatusServiceUnavailable, relayErr.StatusCode)
}

func TestPushChannel_ReadinessGate(t *testing.T) {
	p, err := NewPushChannel(PushConfig{URL: "https://relay.example/notify"}, discardLogger())
	require.NoError(t, err)

	p.SetReady(false)
	assert.ErrorIs(t, p.Ready(context.Background()), ErrChannelUnavailable)
	p.SetReady(true)
	assert.NoError(t, p.Ready(context.Background()))

	var nilPush *PushChannel
	assert.ErrorIs(t, nilPush.Ready(context.Background()), ErrChannelUnavailable)
}

func TestNewPushChannel_Validation(t *testing.T) {
	for _, raw := range []string{"", "ftp://relay.example", "https://", "://bad"} {
		_, err := NewPushChannel(PushConfig{URL: raw}, discardLogger())
		assert.Error(t, err, raw)
	}
}
