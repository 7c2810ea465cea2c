// Package endpoint encodes push endpoint URLs handed to clients on register.
package endpoint

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// PathPrefix is the route under which push endpoints are served.
const PathPrefix = "/wpush/v1/"

// ErrInvalidToken is returned for tokens that do not decode to a target.
var ErrInvalidToken = errors.New("invalid endpoint token")

// Target is what a push endpoint token points at.
type Target struct {
	UAID      uuid.UUID
	ChannelID uuid.UUID
	Key       string
}

// Codec builds and parses endpoint URLs rooted at BaseURL.
type Codec struct {
	base string
}

// NewCodec validates baseURL and returns a codec for it.
func NewCodec(baseURL string) (*Codec, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("endpoint url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("endpoint url %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("endpoint url %q: missing host", baseURL)
	}
	return &Codec{base: strings.TrimRight(baseURL, "/")}, nil
}

// Endpoint returns the push URL for one registration.
func (c *Codec) Endpoint(uaid, channelID uuid.UUID, key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: empty endpoint key", ErrInvalidToken)
	}
	return c.base + PathPrefix + Token(uaid, channelID, key), nil
}

// Token packs uaid, channelID and key into a URL-safe string.
func Token(uaid, channelID uuid.UUID, key string) string {
	raw := make([]byte, 0, 32+len(key))
	raw = append(raw, uaid[:]...)
	raw = append(raw, channelID[:]...)
	raw = append(raw, key...)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// Parse reverses Token.
func Parse(token string) (Target, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Target{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if len(raw) <= 32 {
		return Target{}, fmt.Errorf("%w: too short", ErrInvalidToken)
	}
	var t Target
	copy(t.UAID[:], raw[:16])
	copy(t.ChannelID[:], raw[16:32])
	t.Key = string(raw[32:])
	return t, nil
}
