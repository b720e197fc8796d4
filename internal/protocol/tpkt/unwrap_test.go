package tpkt

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcarmo/go-rdp-core/internal/protocolerr"
)

func TestUnwrap_RoundTrip(t *testing.T) {
	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}

	got, err := Unwrap(Wrap(payload))
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestUnwrap_AnnouncedLengthBelowHeader(t *testing.T) {
	_, err := Unwrap([]byte{0x03, 0x00, 0x00, 0x03})
	require.Error(t, err)

	var invalid *protocolerr.InvalidMessage
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "length", invalid.Field)
}

func TestUnwrap_LengthMismatch(t *testing.T) {
	_, err := Unwrap([]byte{0x03, 0x00, 0x00, 0x09, 0x01})
	assert.Error(t, err)
}

func TestHint_Find(t *testing.T) {
	size, ok := Hint{}.Find([]byte{0x03, 0x00, 0x05, 0x42})
	assert.True(t, ok)
	assert.Equal(t, 1346, size)

	_, ok = Hint{}.Find([]byte{0x03, 0x00, 0x05})
	assert.False(t, ok)
}
