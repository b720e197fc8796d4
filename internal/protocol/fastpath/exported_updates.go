package fastpath

import "bytes"

// BitmapUpdate is the decoded body of an UpdateCodeBitmap Update, exported
// for consumers outside this package (session's graphics update path).
type BitmapUpdate struct {
	Rectangles []BitmapData
}

// DecodeBitmapUpdate decodes the body of an Update whose UpdateCode is
// UpdateCodeBitmap.
func DecodeBitmapUpdate(data []byte) (*BitmapUpdate, error) {
	var d bitmapUpdateData
	if err := d.Deserialize(bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return &BitmapUpdate{Rectangles: d.Rectangles}, nil
}

// PointerPositionUpdate is the decoded body of an UpdateCodePTRPosition
// Update.
type PointerPositionUpdate struct {
	X, Y uint16
}

// DecodePointerPositionUpdate decodes the body of an Update whose
// UpdateCode is UpdateCodePTRPosition.
func DecodePointerPositionUpdate(data []byte) (*PointerPositionUpdate, error) {
	var d pointerPositionUpdateData
	if err := d.Deserialize(bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return &PointerPositionUpdate{X: d.xPos, Y: d.yPos}, nil
}

// ColorPointerUpdate is the decoded body of an UpdateCodeColor Update: a
// cached pointer shape with a 1-bpp AND mask and a 24-bpp (or 32-bpp,
// depending on xorBpp caller context) XOR mask, both bottom-up scanlines
// exactly as they arrive on the wire.
type ColorPointerUpdate struct {
	CacheIndex    uint16
	X, Y          uint16
	Width, Height uint16
	XorMaskData   []byte
	AndMaskData   []byte
}

// DecodeColorPointerUpdate decodes the body of an Update whose UpdateCode
// is UpdateCodeColor (and, since the two share a wire shape past the
// header, UpdateCodeCached/UpdateCodePointer new-style color pointers).
func DecodeColorPointerUpdate(data []byte) (*ColorPointerUpdate, error) {
	var d colorPointerUpdateData
	if err := d.Deserialize(bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return &ColorPointerUpdate{
		CacheIndex:  d.cacheIndex,
		X:           d.xPos,
		Y:           d.yPos,
		Width:       d.width,
		Height:      d.height,
		XorMaskData: d.xorMaskData,
		AndMaskData: d.andMaskData,
	}, nil
}

// PaletteUpdate is the decoded body of an UpdateCodePalette Update.
type PaletteUpdate struct {
	Entries []PaletteEntry
}

// DecodePaletteUpdate decodes the body of an Update whose UpdateCode is
// UpdateCodePalette.
func DecodePaletteUpdate(data []byte) (*PaletteUpdate, error) {
	var d paletteUpdateData
	if err := d.Deserialize(bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return &PaletteUpdate{Entries: d.PaletteEntries}, nil
}
