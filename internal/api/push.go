// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ManuGH/pushd/internal/endpoint"
	xglog "github.com/ManuGH/pushd/internal/log"
	"github.com/ManuGH/pushd/internal/metrics"
	"github.com/ManuGH/pushd/internal/protocol"
	"github.com/ManuGH/pushd/internal/store"
	"github.com/ManuGH/pushd/internal/wire"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	pushRoute = endpoint.PathPrefix + "{token}"

	// maxTTL matches the longest retention a stored message may ask for.
	maxTTL = 60 * 24 * 60 * 60
	// maxTopicLen bounds the Topic header.
	maxTopicLen = 32
)

// Headers copied from the push request onto the notification so the client
// can decrypt the payload.
var forwardedHeaders = []string{"Content-Encoding", "Encryption", "Crypto-Key", "Encryption-Key"}

// PushResponse is the body of an accepted push.
type PushResponse struct {
	Version   string `json:"version"`
	Delivered bool   `json:"delivered"`
	Stored    bool   `json:"stored"`
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := xglog.WithContext(ctx, s.logger)

	target, err := endpoint.Parse(chi.URLParam(r, "token"))
	if err != nil {
		metrics.RecordPush("invalid", 0)
		writeErrorCode(w, http.StatusNotFound, "unknown endpoint")
		return
	}

	key, err := s.deps.Store.ChannelKey(ctx, target.UAID, target.ChannelID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		metrics.RecordPush("gone", 0)
		writeErrorCode(w, http.StatusGone, "subscription expired")
		return
	case err != nil:
		metrics.RecordPush("error", 0)
		logger.Error().Err(err).Msg("channel lookup failed")
		writeErrorCode(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	case subtle.ConstantTimeCompare([]byte(key), []byte(target.Key)) != 1:
		metrics.RecordPush("invalid", 0)
		writeErrorCode(w, http.StatusNotFound, "unknown endpoint")
		return
	}

	user, err := s.deps.Store.GetUser(ctx, target.UAID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		metrics.RecordPush("gone", 0)
		writeErrorCode(w, http.StatusGone, "subscription expired")
		return
	case err != nil:
		metrics.RecordPush("error", 0)
		logger.Error().Err(err).Msg("user lookup failed")
		writeErrorCode(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}

	n, status, msg := s.buildNotification(w, r, target.ChannelID)
	if status != 0 {
		metrics.RecordPush("invalid", 0)
		writeErrorCode(w, status, msg)
		return
	}
	size := 0
	if n.Data != nil {
		size = len(*n.Data)
	}

	resp := PushResponse{Version: n.Version}
	delivered, err := s.deps.Hub.Deliver(ctx, target.UAID, n)
	if err != nil {
		logger.Warn().Err(err).Str(xglog.FieldUAID, target.UAID.String()).Msg("live delivery abandoned")
	}
	resp.Delivered = delivered

	// A live session stores whatever its client leaves unacknowledged when
	// it closes; a zero TTL means deliver now or never.
	if !delivered && n.TTL > 0 {
		if err := s.deps.Store.SaveMessage(ctx, target.UAID, user.CurrentMonth, n); err != nil {
			metrics.RecordPush("error", size)
			logger.Error().Err(err).Msg("message store failed")
			writeErrorCode(w, http.StatusServiceUnavailable, "storage unavailable")
			return
		}
		resp.Stored = true
	}

	switch {
	case delivered:
		metrics.RecordPush("delivered", size)
	case resp.Stored:
		metrics.RecordPush("stored", size)
	default:
		metrics.RecordPush("dropped", size)
	}
	logger.Debug().
		Str(xglog.FieldUAID, target.UAID.String()).
		Str(xglog.FieldChannelID, target.ChannelID.String()).
		Str(xglog.FieldVersion, n.Version).
		Bool("delivered", resp.Delivered).
		Bool("stored", resp.Stored).
		Msg("push accepted")

	w.Header().Set("TTL", strconv.FormatUint(uint64(n.TTL), 10))
	writeJSON(w, http.StatusCreated, resp)
}

// buildNotification reads the request into a notification. A non-zero status
// rejects the request with msg.
func (s *Server) buildNotification(w http.ResponseWriter, r *http.Request, channelID uuid.UUID) (protocol.Notification, int, string) {
	n := protocol.Notification{
		ChannelID: channelID,
		Version:   uuid.NewString(),
		Timestamp: uint64(wire.ConnectedAtMillis(s.deps.Clock())),
	}

	if raw := r.Header.Get("TTL"); raw != "" {
		ttl, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
		if err != nil {
			return n, http.StatusBadRequest, "invalid TTL header"
		}
		n.TTL = uint32(min(ttl, maxTTL))
	}

	if topic := r.Header.Get("Topic"); topic != "" {
		if len(topic) > maxTopicLen || !isBase64URL(topic) {
			return n, http.StatusBadRequest, "invalid Topic header"
		}
		n.Topic = &topic
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxPayloadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return n, http.StatusRequestEntityTooLarge, "payload too large"
		}
		return n, http.StatusBadRequest, "unreadable body"
	}
	if len(body) == 0 {
		return n, 0, ""
	}

	if r.Header.Get("Content-Encoding") == "" {
		return n, http.StatusBadRequest, "payload requires Content-Encoding"
	}
	data := base64.RawURLEncoding.EncodeToString(body)
	n.Data = &data
	n.Headers = make(map[string]string)
	for _, h := range forwardedHeaders {
		if v := r.Header.Get(h); v != "" {
			n.Headers[strings.ToLower(h)] = v
		}
	}
	return n, 0, ""
}

func isBase64URL(s string) bool {
	for _, c := range s {
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}
