package pdu

import (
	"bytes"
	"encoding/binary"
	"io"
)

// Type2RefreshRect PDUTYPE2_REFRESH_RECT (MS-RDPBCGR 2.2.11.2)
const Type2RefreshRect Type2 = 0x21

// IsRefreshRect returns true if the PDU type 2 is Refresh Rect.
func (t Type2) IsRefreshRect() bool {
	return t == Type2RefreshRect
}

// InclusiveRect is a TS_RECTANGLE16: left/top/right/bottom are all
// inclusive of the pixel they name.
type InclusiveRect struct {
	Left, Top, Right, Bottom uint16
}

// RefreshRectPDUData is the TS_REFRESH_RECT_PDU body a client sends to
// ask the server to resend the graphics covering one or more areas,
// typically after the client's own buffer was invalidated (a resize, a
// restored window).
type RefreshRectPDUData struct {
	AreasToRefresh []InclusiveRect
}

// NewRefreshRect builds the share data PDU requesting the server repaint
// areas.
func NewRefreshRect(shareID uint32, userID uint16, areas []InclusiveRect) *Data {
	return &Data{
		ShareDataHeader:    *newShareDataHeader(shareID, userID, TypeData, Type2RefreshRect),
		RefreshRectPDUData: &RefreshRectPDUData{AreasToRefresh: areas},
	}
}

func (d *RefreshRectPDUData) Serialize() []byte {
	buf := new(bytes.Buffer)

	_ = binary.Write(buf, binary.LittleEndian, uint8(len(d.AreasToRefresh)))
	buf.Write([]byte{0, 0, 0})

	for _, r := range d.AreasToRefresh {
		_ = binary.Write(buf, binary.LittleEndian, r.Left)
		_ = binary.Write(buf, binary.LittleEndian, r.Top)
		_ = binary.Write(buf, binary.LittleEndian, r.Right)
		_ = binary.Write(buf, binary.LittleEndian, r.Bottom)
	}

	return buf.Bytes()
}

func (d *RefreshRectPDUData) Deserialize(wire io.Reader) error {
	var numberOfAreas uint8
	if err := binary.Read(wire, binary.LittleEndian, &numberOfAreas); err != nil {
		return err
	}

	pad := make([]byte, 3)
	if _, err := io.ReadFull(wire, pad); err != nil {
		return err
	}

	areas := make([]InclusiveRect, numberOfAreas)
	for i := range areas {
		fields := []*uint16{&areas[i].Left, &areas[i].Top, &areas[i].Right, &areas[i].Bottom}
		for _, f := range fields {
			if err := binary.Read(wire, binary.LittleEndian, f); err != nil {
				return err
			}
		}
	}
	d.AreasToRefresh = areas

	return nil
}
