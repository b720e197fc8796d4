package session

// DecodedImage is the session's framebuffer: a 32-bit RGBA pixel array,
// row-major, top-down. Decoders write into it directly and report back
// the rectangle they touched.
type DecodedImage struct {
	Width  int
	Height int
	Pixels []byte
}

// NewDecodedImage allocates a zeroed framebuffer of the given size.
func NewDecodedImage(width, height int) *DecodedImage {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &DecodedImage{
		Width:  width,
		Height: height,
		Pixels: make([]byte, width*height*4),
	}
}

// Reset zeroes every pixel without changing dimensions.
func (img *DecodedImage) Reset() {
	for i := range img.Pixels {
		img.Pixels[i] = 0
	}
}

// WriteRect blits an RGBA source buffer of exactly w*h*4 bytes at (x,y),
// clipping to the framebuffer bounds, and returns the rectangle actually
// written (possibly smaller than the request after clipping, empty if
// the request fell entirely outside the framebuffer).
func (img *DecodedImage) WriteRect(x, y, w, h int, rgba []byte) Rect {
	if w <= 0 || h <= 0 || len(rgba) < w*h*4 {
		return Rect{}
	}

	left, top := x, y
	right, bottom := x+w, y+h

	if left < 0 {
		left = 0
	}
	if top < 0 {
		top = 0
	}
	if right > img.Width {
		right = img.Width
	}
	if bottom > img.Height {
		bottom = img.Height
	}
	if right <= left || bottom <= top {
		return Rect{}
	}

	for row := top; row < bottom; row++ {
		srcRow := row - y
		srcOff := (srcRow*w + (left - x)) * 4
		dstOff := (row*img.Width + left) * 4
		n := (right - left) * 4
		copy(img.Pixels[dstOff:dstOff+n], rgba[srcOff:srcOff+n])
	}

	return Rect{Left: left, Top: top, Right: right, Bottom: bottom}
}
