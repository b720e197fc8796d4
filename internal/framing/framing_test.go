package framing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectAction(t *testing.T) {
	assert.Equal(t, ActionX224, DetectAction(0x03))
	assert.Equal(t, ActionX224, DetectAction(0x07))
	assert.Equal(t, ActionFastPath, DetectAction(0x00))
	assert.Equal(t, ActionFastPath, DetectAction(0x04))
	assert.Equal(t, ActionFastPath, DetectAction(0xC1))
}

func TestFindSize_X224(t *testing.T) {
	// TPKT header announcing a 1346 byte packet.
	size, ok := FindSize([]byte{0x03, 0x00, 0x05, 0x42})
	assert.True(t, ok)
	assert.Equal(t, 1346, size)
}

func TestFindSize_X224_ShortPrefix(t *testing.T) {
	for i := 0; i < 4; i++ {
		_, ok := FindSize([]byte{0x03, 0x00, 0x05}[:i])
		assert.False(t, ok, "prefix of %d bytes", i)
	}
}

func TestFindSize_FastPath_OneByteLength(t *testing.T) {
	// Header byte, then a one byte length field: 5 payload bytes follow.
	size, ok := FindSize([]byte{0x00, 0x05})
	assert.True(t, ok)
	assert.Equal(t, 7, size)
}

func TestFindSize_FastPath_TwoByteLength(t *testing.T) {
	// Top bit of the first length byte set: 14 bit big-endian value.
	size, ok := FindSize([]byte{0x00, 0x81, 0x2C})
	assert.True(t, ok)
	assert.Equal(t, 1+2+0x12C, size)
}

func TestFindSize_FastPath_ShortPrefix(t *testing.T) {
	_, ok := FindSize([]byte{0x00})
	assert.False(t, ok)

	// Two byte length field needs a third byte before the size is known.
	_, ok = FindSize([]byte{0x00, 0x81})
	assert.False(t, ok)
}

func TestFindSize_Empty(t *testing.T) {
	_, ok := FindSize(nil)
	assert.False(t, ok)
}
