package session

import (
	"encoding/binary"

	"github.com/rcarmo/go-rdp-core/internal/codec"
	"github.com/rcarmo/go-rdp-core/internal/codec/rfx"
	"github.com/rcarmo/go-rdp-core/internal/protocol/fastpath"
)

// slowPathUpdateTypeBitmap is TS_UPDATE_BITMAP_DATA's own updateType
// discriminant (MS-RDPBCGR 2.2.9.1.1.3.1.2), shared by both the
// slow-path and fast-path encodings of a bitmap update.
const slowPathUpdateTypeBitmap = 0x0001

// handleSlowPathUpdate decodes the body of a PDUTYPE2_UPDATE share data
// PDU: a little-endian updateType followed by update-specific data in
// exactly the shape fastpath.bitmapUpdateData also uses for
// UpdateCodeBitmap, so the two paths converge on the same decoder.
func (s *Session) handleSlowPathUpdate(data []byte) ([]ActiveStageOutput, error) {
	if len(data) < 2 {
		return nil, nil
	}
	if binary.LittleEndian.Uint16(data[0:2]) != slowPathUpdateTypeBitmap {
		return nil, nil
	}
	return s.handleBitmapUpdate(data)
}

// handleBitmapUpdate decodes a TS_UPDATE_BITMAP_DATA body (bitmap
// rectangles with optional RLE compression) into the framebuffer.
func (s *Session) handleBitmapUpdate(data []byte) ([]ActiveStageOutput, error) {
	upd, err := fastpath.DecodeBitmapUpdate(data)
	if err != nil {
		return nil, s.errorf("bitmap update: %w", err)
	}

	var outputs []ActiveStageOutput
	for i := range upd.Rectangles {
		r := &upd.Rectangles[i]
		rgba := decodeBitmapRect(r)
		if rgba == nil {
			s.log.Warn("session: could not decode bitmap rect at (%d,%d) %dx%d bpp=%d", r.DestLeft, r.DestTop, r.Width, r.Height, r.BitsPerPixel)
			continue
		}

		written := s.image.WriteRect(int(r.DestLeft), int(r.DestTop), int(r.Width), int(r.Height), rgba)
		if !written.Empty() {
			outputs = append(outputs, graphicsUpdate(written))
		}
	}

	return outputs, nil
}

func decodeBitmapRect(r *fastpath.BitmapData) []byte {
	bpp := int(r.BitsPerPixel)
	width, height := int(r.Width), int(r.Height)
	compressed := r.Flags&fastpath.BitmapDataFlagCompression != 0
	rowDelta := width * bpp / 8

	// 32bpp compressed rectangles carry the RDP6 planar stream (alpha +
	// color planes, optionally RLE), not interleaved RLE, which only
	// goes up to 24bpp. Planar rectangles are normally sent with
	// BitmapDataFlagNoHDR set; when it is clear, Deserialize has already
	// consumed the compression header, so BitmapDataStream starts at the
	// planar format header either way.
	if compressed && bpp == 32 {
		return codec.DecompressPlanar(r.BitmapDataStream, width, height)
	}

	return codec.ProcessBitmap(r.BitmapDataStream, width, height, bpp, compressed, rowDelta)
}

// handleSurfaceCommands decodes a TS_FP_UPDATE surface commands payload
// (CMDTYPE_SET_SURFACE_BITS/STREAM_SURFACE_BITS, CMDTYPE_FRAME_MARKER).
func (s *Session) handleSurfaceCommands(data []byte) ([]ActiveStageOutput, error) {
	cmds, err := fastpath.ParseSurfaceCommands(data)
	if err != nil {
		return nil, s.errorf("surface commands: %w", err)
	}

	var outputs []ActiveStageOutput
	for _, cmd := range cmds {
		switch cmd.CmdType {
		case fastpath.CmdTypeSurfaceBits, fastpath.CmdTypeStreamSurfaceBits:
			out, err := s.handleSetSurfaceBits(cmd.Data)
			if err != nil {
				return outputs, err
			}
			outputs = append(outputs, out...)
		case fastpath.CmdTypeFrameMarker:
			// Frame boundaries are a host pacing hint (when to flip a
			// buffer, when to frame-acknowledge); this decoder applies
			// updates directly as they arrive and has no buffering to
			// flip, so there is nothing further to do here.
		}
	}

	return outputs, nil
}

func (s *Session) handleSetSurfaceBits(data []byte) ([]ActiveStageOutput, error) {
	cmd, err := fastpath.ParseSetSurfaceBits(data)
	if err != nil {
		return nil, s.errorf("set surface bits: %w", err)
	}

	width := int(cmd.Width)
	height := int(cmd.Height)

	switch s.codecByID[cmd.CodecID] {
	case codecRemoteFX:
		return s.decodeRemoteFX(cmd)

	case codecNSCodec:
		rgba, err := codec.Decode(cmd.BitmapData, width, height)
		if err != nil {
			return nil, s.errorf("nscodec: %w", err)
		}
		written := s.image.WriteRect(int(cmd.DestLeft), int(cmd.DestTop), width, height, rgba)
		if written.Empty() {
			return nil, nil
		}
		return []ActiveStageOutput{graphicsUpdate(written)}, nil

	default:
		rgba := codec.ProcessBitmap(cmd.BitmapData, width, height, int(cmd.BPP), false, width*int(cmd.BPP)/8)
		if rgba == nil {
			s.log.Warn("session: could not decode raw surface bits %dx%d bpp=%d", width, height, cmd.BPP)
			return nil, nil
		}
		written := s.image.WriteRect(int(cmd.DestLeft), int(cmd.DestTop), width, height, rgba)
		if written.Empty() {
			return nil, nil
		}
		return []ActiveStageOutput{graphicsUpdate(written)}, nil
	}
}

func (s *Session) decodeRemoteFX(cmd *fastpath.SetSurfaceBitsCommand) ([]ActiveStageOutput, error) {
	if s.rfxCtx == nil {
		s.rfxCtx = rfx.NewContext()
	}

	frame, err := rfx.ParseRFXMessage(cmd.BitmapData, s.rfxCtx)
	if err != nil {
		return nil, s.errorf("remotefx: %w", err)
	}

	originX, originY := int(cmd.DestLeft), int(cmd.DestTop)

	var outputs []ActiveStageOutput
	for _, tile := range frame.Tiles {
		x := originX + int(tile.X)*rfx.TileSize
		y := originY + int(tile.Y)*rfx.TileSize
		written := s.image.WriteRect(x, y, rfx.TileSize, rfx.TileSize, tile.RGBA)
		if !written.Empty() {
			outputs = append(outputs, graphicsUpdate(written))
		}
	}

	return outputs, nil
}

func decodeColorPointer(p *fastpath.ColorPointerUpdate) *DecodedPointer {
	width, height := int(p.Width), int(p.Height)
	rgba := compositePointerMasks(p.XorMaskData, p.AndMaskData, width, height)
	return &DecodedPointer{
		CacheIndex: int(p.CacheIndex),
		Width:      width,
		Height:     height,
		HotspotX:   int(p.X),
		HotspotY:   int(p.Y),
		RGBA:       rgba,
	}
}

// compositePointerMasks turns a TS_COLORPOINTERATTRIBUTE's bottom-up
// 24-bpp XOR mask and 1-bpp AND mask into top-down straight-alpha RGBA:
// AND bit set means transparent (preserve background), clear means the
// XOR pixel is opaque.
func compositePointerMasks(xorMask, andMask []byte, width, height int) []byte {
	if width <= 0 || height <= 0 {
		return nil
	}

	rgba := make([]byte, width*height*4)
	xorStride := ((width*3 + 1) / 2) * 2 // scanlines padded to 2-byte boundary
	andStride := (((width + 7) / 8) + 1) / 2 * 2

	for row := 0; row < height; row++ {
		srcRow := height - 1 - row // bottom-up source
		xorOff := srcRow * xorStride
		andOff := srcRow * andStride

		for col := 0; col < width; col++ {
			dst := (row*width + col) * 4

			transparent := false
			bitOff := andOff + col/8
			if bitOff < len(andMask) {
				bit := byte(0x80) >> uint(col%8)
				transparent = andMask[bitOff]&bit != 0
			}

			pOff := xorOff + col*3
			var r, g, b byte
			if pOff+2 < len(xorMask) {
				b, g, r = xorMask[pOff], xorMask[pOff+1], xorMask[pOff+2]
			}

			rgba[dst], rgba[dst+1], rgba[dst+2] = r, g, b
			if transparent {
				rgba[dst+3] = 0
			} else {
				rgba[dst+3] = 255
			}
		}
	}

	return rgba
}
