package fastpath

import (
	"encoding/binary"
	"io"
)

// UpdateCode identifies the kind of fast-path graphics update (the low
// nibble of an updateHeader octet).
type UpdateCode uint8

const (
	UpdateCodeOrders      UpdateCode = 0x0
	UpdateCodeBitmap      UpdateCode = 0x1
	UpdateCodePalette     UpdateCode = 0x2
	UpdateCodeSynchronize UpdateCode = 0x3
	UpdateCodeSurfCMDs    UpdateCode = 0x4
	UpdateCodePTRNull     UpdateCode = 0x5
	UpdateCodePTRDefault  UpdateCode = 0x6
	UpdateCodePTRPosition UpdateCode = 0x8
	UpdateCodeColor       UpdateCode = 0x9
	UpdateCodeCached      UpdateCode = 0xa
	UpdateCodePointer     UpdateCode = 0xb
	UpdateCodeLargePointer UpdateCode = 0xc
)

// Fragment is the fragmentation state of an update (bits 4-5 of the
// updateHeader octet), needed to reassemble updates split across more
// than one fast-path update PDU.
type Fragment uint8

const (
	FragmentSingle Fragment = 0x0
	FragmentLast   Fragment = 0x1
	FragmentFirst  Fragment = 0x2
	FragmentNext   Fragment = 0x3
)

// Compression is the compression state of an update (bits 6-7 of the
// updateHeader octet).
type Compression uint8

const (
	CompressionUsed Compression = 0x2
)

// Update is one fast-path graphics update: the updateHeader octet, an
// optional compression flags octet, a little-endian size, and size bytes
// of update-specific data (further decoded by ParseSurfaceCommands or the
// *UpdateData types below, depending on UpdateCode).
type Update struct {
	UpdateCode    UpdateCode
	fragmentation Fragment
	compression   Compression
	size          uint16
	Data          []byte
}

func (u *Update) Deserialize(wire io.Reader) error {
	var header uint8
	if err := binary.Read(wire, binary.BigEndian, &header); err != nil {
		return err
	}

	u.UpdateCode = UpdateCode(header & 0xf)
	u.fragmentation = Fragment((header >> 4) & 0x3)
	u.compression = Compression((header >> 6) & 0x3)

	if u.compression == CompressionUsed {
		var compressionFlags uint8
		if err := binary.Read(wire, binary.BigEndian, &compressionFlags); err != nil {
			return err
		}
	}

	if err := binary.Read(wire, binary.LittleEndian, &u.size); err != nil {
		return err
	}

	data := make([]byte, u.size)
	if _, err := io.ReadFull(wire, data); err != nil {
		return err
	}
	u.Data = data

	return nil
}

// PaletteEntry is a single RGB triple from a TS_PALETTE_UPDATE.
type PaletteEntry struct {
	Red   uint8
	Green uint8
	Blue  uint8
}

func (entry *PaletteEntry) Deserialize(wire io.Reader) error {
	if err := binary.Read(wire, binary.BigEndian, &entry.Red); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.BigEndian, &entry.Green); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.BigEndian, &entry.Blue); err != nil {
		return err
	}

	return nil
}

// paletteUpdateData is a TS_UPDATE_PALETTE_DATA (UpdateCodePalette body).
type paletteUpdateData struct {
	updateType     uint16
	numberColors   uint16
	PaletteEntries []PaletteEntry
}

func (d *paletteUpdateData) Deserialize(wire io.Reader) error {
	if err := binary.Read(wire, binary.LittleEndian, &d.updateType); err != nil {
		return err
	}

	var padding uint16
	if err := binary.Read(wire, binary.LittleEndian, &padding); err != nil {
		return err
	}

	if err := binary.Read(wire, binary.LittleEndian, &d.numberColors); err != nil {
		return err
	}

	entries := make([]PaletteEntry, d.numberColors)
	for i := range entries {
		if err := entries[i].Deserialize(wire); err != nil {
			return err
		}
	}
	d.PaletteEntries = entries

	return nil
}

// CompressedDataHeader is the TS_CD_HEADER prefixing compressed bitmap
// data whose BitmapDataFlagNoHDR flag is clear.
type CompressedDataHeader struct {
	CbCompFirstRowSize uint16
	CbCompMainBodySize uint16
	CbScanWidth        uint16
	CbUncompressedSize uint16
}

func (h *CompressedDataHeader) Deserialize(wire io.Reader) error {
	fields := []*uint16{&h.CbCompFirstRowSize, &h.CbCompMainBodySize, &h.CbScanWidth, &h.CbUncompressedSize}
	for _, f := range fields {
		if err := binary.Read(wire, binary.LittleEndian, f); err != nil {
			return err
		}
	}

	return nil
}

// BitmapDataFlag holds the TS_BITMAP_DATA flags field.
type BitmapDataFlag uint16

const (
	BitmapDataFlagCompression BitmapDataFlag = 0x0001
	BitmapDataFlagNoHDR       BitmapDataFlag = 0x0400
)

// BitmapData is a single TS_BITMAP_DATA rectangle from a bitmap update.
type BitmapData struct {
	DestLeft, DestTop, DestRight, DestBottom uint16
	Width, Height                            uint16
	BitsPerPixel                             uint16
	Flags                                    BitmapDataFlag
	BitmapLength                             uint16
	CompressedHeader                         *CompressedDataHeader
	BitmapDataStream                         []byte
}

func (d *BitmapData) Deserialize(wire io.Reader) error {
	fields := []*uint16{&d.DestLeft, &d.DestTop, &d.DestRight, &d.DestBottom, &d.Width, &d.Height, &d.BitsPerPixel}
	for _, f := range fields {
		if err := binary.Read(wire, binary.LittleEndian, f); err != nil {
			return err
		}
	}

	var flags uint16
	if err := binary.Read(wire, binary.LittleEndian, &flags); err != nil {
		return err
	}
	d.Flags = BitmapDataFlag(flags)

	if err := binary.Read(wire, binary.LittleEndian, &d.BitmapLength); err != nil {
		return err
	}

	streamLen := int(d.BitmapLength)
	if d.Flags&BitmapDataFlagCompression != 0 && d.Flags&BitmapDataFlagNoHDR == 0 {
		header := &CompressedDataHeader{}
		if err := header.Deserialize(wire); err != nil {
			return err
		}
		d.CompressedHeader = header
		streamLen -= 8
		if streamLen < 0 {
			streamLen = 0
		}
	}

	stream := make([]byte, streamLen)
	if _, err := io.ReadFull(wire, stream); err != nil {
		return err
	}
	d.BitmapDataStream = stream

	return nil
}

// bitmapUpdateData is a TS_UPDATE_BITMAP_DATA (UpdateCodeBitmap body).
type bitmapUpdateData struct {
	updateType       uint16
	numberRectangles uint16
	Rectangles       []BitmapData
}

func (d *bitmapUpdateData) Deserialize(wire io.Reader) error {
	if err := binary.Read(wire, binary.LittleEndian, &d.updateType); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &d.numberRectangles); err != nil {
		return err
	}

	rects := make([]BitmapData, d.numberRectangles)
	for i := range rects {
		if err := rects[i].Deserialize(wire); err != nil {
			return err
		}
	}
	d.Rectangles = rects

	return nil
}

// pointerPositionUpdateData is a TS_POINTER_POSITION_ATTRIBUTE
// (UpdateCodePTRPosition body).
type pointerPositionUpdateData struct {
	xPos uint16
	yPos uint16
}

func (d *pointerPositionUpdateData) Deserialize(wire io.Reader) error {
	if err := binary.Read(wire, binary.LittleEndian, &d.xPos); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &d.yPos); err != nil {
		return err
	}

	return nil
}

// colorPointerUpdateData is a TS_COLORPOINTERATTRIBUTE (UpdateCodeColor
// body).
type colorPointerUpdateData struct {
	cacheIndex    uint16
	xPos, yPos    uint16
	width, height uint16
	lengthAndMask uint16
	lengthXorMask uint16
	xorMaskData   []byte
	andMaskData   []byte
}

func (d *colorPointerUpdateData) Deserialize(wire io.Reader) error {
	fields := []*uint16{&d.cacheIndex, &d.xPos, &d.yPos, &d.width, &d.height, &d.lengthAndMask, &d.lengthXorMask}
	for _, f := range fields {
		if err := binary.Read(wire, binary.LittleEndian, f); err != nil {
			return err
		}
	}

	xorData := make([]byte, d.lengthXorMask)
	if _, err := io.ReadFull(wire, xorData); err != nil {
		return err
	}
	d.xorMaskData = xorData

	andData := make([]byte, d.lengthAndMask)
	if _, err := io.ReadFull(wire, andData); err != nil {
		return err
	}
	d.andMaskData = andData

	var padding uint8
	return binary.Read(wire, binary.BigEndian, &padding)
}
