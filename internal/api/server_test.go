// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ManuGH/pushd/internal/endpoint"
	"github.com/ManuGH/pushd/internal/health"
	"github.com/ManuGH/pushd/internal/hub"
	"github.com/ManuGH/pushd/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Unix(1700000000, 250_000_000)

type fixture struct {
	st      store.Store
	hub     *hub.Hub
	handler http.Handler
	uaid    uuid.UUID
	chid    uuid.UUID
	path    string
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemory()
	uaid, chid := uuid.New(), uuid.New()
	require.NoError(t, st.PutUser(ctx, store.User{UAID: uaid, CurrentMonth: "2023-11"}))
	require.NoError(t, st.AddChannel(ctx, uaid, chid, "k3y"))

	hb := hub.New()
	srv := New(cfg, Deps{
		Store:  st,
		Hub:    hb,
		Health: health.NewManager("test"),
		Clock:  func() time.Time { return now },
	})
	return &fixture{
		st:      st,
		hub:     hb,
		handler: srv.Handler(),
		uaid:    uaid,
		chid:    chid,
		path:    endpoint.PathPrefix + endpoint.Token(uaid, chid, "k3y"),
	}
}

func (f *fixture) push(t *testing.T, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.RemoteAddr = "192.0.2.1:4000"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func decodePush(t *testing.T, w *httptest.ResponseRecorder) PushResponse {
	t.Helper()
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp PushResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestPushStoredWhenOffline(t *testing.T) {
	f := newFixture(t, Config{})
	w := f.push(t, f.path, "ciphertext", map[string]string{
		"TTL":              "60",
		"Topic":            "news",
		"Content-Encoding": "aes128gcm",
	})
	resp := decodePush(t, w)
	assert.True(t, resp.Stored)
	assert.False(t, resp.Delivered)
	assert.Equal(t, "60", w.Header().Get("TTL"))

	msgs, err := f.st.FetchMessages(context.Background(), f.uaid, "2023-11", true, nil, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	n := msgs[0]
	assert.Equal(t, f.chid, n.ChannelID)
	assert.Equal(t, resp.Version, n.Version)
	assert.EqualValues(t, 60, n.TTL)
	assert.EqualValues(t, 1700000000250, n.Timestamp)
	require.NotNil(t, n.Topic)
	assert.Equal(t, "news", *n.Topic)
	require.NotNil(t, n.Data)
	assert.Equal(t, base64.RawURLEncoding.EncodeToString([]byte("ciphertext")), *n.Data)
	assert.Equal(t, map[string]string{"content-encoding": "aes128gcm"}, n.Headers)
}

func TestPushDeliveredToLiveSession(t *testing.T) {
	f := newFixture(t, Config{})
	sub := f.hub.Subscribe(f.uaid)
	defer sub.Close()

	resp := decodePush(t, f.push(t, f.path, "", map[string]string{"TTL": "60"}))
	assert.True(t, resp.Delivered)
	assert.False(t, resp.Stored)

	select {
	case n := <-sub.C():
		assert.Equal(t, resp.Version, n.Version)
		assert.Nil(t, n.Data)
	case <-time.After(time.Second):
		t.Fatal("notification not delivered")
	}

	msgs, err := f.st.FetchMessages(context.Background(), f.uaid, "2023-11", true, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestPushZeroTTLOfflineIsDropped(t *testing.T) {
	f := newFixture(t, Config{})
	resp := decodePush(t, f.push(t, f.path, "", nil))
	assert.False(t, resp.Delivered)
	assert.False(t, resp.Stored)
}

func TestPushRejections(t *testing.T) {
	f := newFixture(t, Config{MaxPayloadBytes: 8})
	other := uuid.New()

	tests := []struct {
		name    string
		path    string
		body    string
		headers map[string]string
		want    int
	}{
		{"garbage token", endpoint.PathPrefix + "!!!", "", nil, http.StatusNotFound},
		{"short token", endpoint.PathPrefix + "AAAA", "", nil, http.StatusNotFound},
		{"wrong key", endpoint.PathPrefix + endpoint.Token(f.uaid, f.chid, "nope"), "", nil, http.StatusNotFound},
		{"unknown channel", endpoint.PathPrefix + endpoint.Token(f.uaid, other, "k3y"), "", nil, http.StatusGone},
		{"bad ttl", f.path, "", map[string]string{"TTL": "soon"}, http.StatusBadRequest},
		{"bad topic", f.path, "", map[string]string{"Topic": "not valid!"}, http.StatusBadRequest},
		{"payload without encoding", f.path, "data", nil, http.StatusBadRequest},
		{"payload too large", f.path, "0123456789", map[string]string{"Content-Encoding": "aes128gcm"}, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.push(t, tt.path, tt.body, tt.headers)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestPushDroppedUserIsGone(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, f.st.DropUser(context.Background(), f.uaid))
	assert.Equal(t, http.StatusGone, f.push(t, f.path, "", nil).Code)
}

func TestPushRateLimited(t *testing.T) {
	f := newFixture(t, Config{PushRequests: 2, PushWindow: time.Minute})
	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusCreated, f.push(t, f.path, "", nil).Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, f.push(t, f.path, "", nil).Code)
}

func TestProbesAndMetrics(t *testing.T) {
	f := newFixture(t, Config{})
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		w := httptest.NewRecorder()
		f.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestWebSocketRouteMounted(t *testing.T) {
	called := false
	srv := New(Config{}, Deps{
		Store: store.NewMemory(),
		Hub:   hub.New(),
		WebSocket: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			called = true
			w.WriteHeader(http.StatusSwitchingProtocols)
		}),
	})
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
}
