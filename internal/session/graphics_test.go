package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcarmo/go-rdp-core/internal/codec"
	"github.com/rcarmo/go-rdp-core/internal/protocol/fastpath"
)

// A 32bpp compressed rectangle carries the RDP6 planar stream and must
// not be fed to the interleaved RLE decompressor.
func TestDecodeBitmapRect_PlanarDispatch(t *testing.T) {
	const width, height = 2, 2

	// Raw (non-RLE) planar stream without an alpha plane: format header,
	// then full R, G, B planes. Planar rows are bottom-up.
	stream := []byte{codec.PlanarFlagNoAlpha}
	stream = append(stream, 1, 2, 3, 4) // R plane
	stream = append(stream, 5, 6, 7, 8) // G plane
	stream = append(stream, 9, 10, 11, 12) // B plane

	rect := &fastpath.BitmapData{
		Width:            width,
		Height:           height,
		BitsPerPixel:     32,
		Flags:            fastpath.BitmapDataFlagCompression | fastpath.BitmapDataFlagNoHDR,
		BitmapDataStream: stream,
	}

	rgba := decodeBitmapRect(rect)
	require.Len(t, rgba, width*height*4)

	// Bottom source row (3,4 / 7,8 / 11,12) lands on top.
	assert.Equal(t, []byte{3, 7, 11, 255}, rgba[0:4])
	assert.Equal(t, []byte{4, 8, 12, 255}, rgba[4:8])
	assert.Equal(t, []byte{1, 5, 9, 255}, rgba[8:12])
	assert.Equal(t, []byte{2, 6, 10, 255}, rgba[12:16])
}

// Uncompressed rectangles keep going through the interleaved path.
func TestDecodeBitmapRect_RawPassthrough(t *testing.T) {
	const width, height = 1, 1

	rect := &fastpath.BitmapData{
		Width:            width,
		Height:           height,
		BitsPerPixel:     32,
		BitmapDataStream: []byte{0x11, 0x22, 0x33, 0xFF},
	}

	rgba := decodeBitmapRect(rect)
	require.Len(t, rgba, 4)
}
