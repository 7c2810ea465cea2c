package endpoint

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpointRoundTrip(t *testing.T) {
	c, err := NewCodec("https://push.example.com/")
	require.NoError(t, err)

	uaid, chid := uuid.New(), uuid.New()
	u, err := c.Endpoint(uaid, chid, "k3y")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(u, "https://push.example.com/wpush/v1/"), u)

	got, err := Parse(strings.TrimPrefix(u, "https://push.example.com"+PathPrefix))
	require.NoError(t, err)
	assert.Equal(t, Target{UAID: uaid, ChannelID: chid, Key: "k3y"}, got)
}

func TestEndpointsDifferPerKey(t *testing.T) {
	c, err := NewCodec("http://localhost:8080")
	require.NoError(t, err)
	uaid, chid := uuid.New(), uuid.New()
	a, err := c.Endpoint(uaid, chid, "a")
	require.NoError(t, err)
	b, err := c.Endpoint(uaid, chid, "b")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	_, err = c.Endpoint(uaid, chid, "")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewCodecRejects(t *testing.T) {
	for _, raw := range []string{"", "ftp://x", "https://", "://bad"} {
		_, err := NewCodec(raw)
		assert.Error(t, err, raw)
	}
}

func TestParseRejects(t *testing.T) {
	_, err := Parse("!!!")
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = Parse(Token(uuid.New(), uuid.New(), "")) // no key
	assert.ErrorIs(t, err, ErrInvalidToken)
}
