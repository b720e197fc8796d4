package pdu

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// CapabilitySetType identifies a TS_CAPS_SET entry's kind (MS-RDPBCGR 2.2.1.13.1.1.1).
type CapabilitySetType uint16

const (
	CapabilitySetTypeGeneral                CapabilitySetType = 1
	CapabilitySetTypeBitmap                 CapabilitySetType = 2
	CapabilitySetTypeOrder                  CapabilitySetType = 3
	CapabilitySetTypeBitmapCache            CapabilitySetType = 4
	CapabilitySetTypeControl                CapabilitySetType = 5
	CapabilitySetTypeActivation             CapabilitySetType = 7
	CapabilitySetTypePointer                CapabilitySetType = 8
	CapabilitySetTypeShare                  CapabilitySetType = 9
	CapabilitySetTypeColorCache             CapabilitySetType = 10
	CapabilitySetTypeSound                  CapabilitySetType = 12
	CapabilitySetTypeInput                  CapabilitySetType = 13
	CapabilitySetTypeFont                   CapabilitySetType = 14
	CapabilitySetTypeBrush                  CapabilitySetType = 15
	CapabilitySetTypeGlyphCache             CapabilitySetType = 16
	CapabilitySetTypeOffscreenBitmapCache   CapabilitySetType = 17
	CapabilitySetTypeBitmapCacheHostSupport CapabilitySetType = 18
	CapabilitySetTypeBitmapCacheRev2        CapabilitySetType = 19
	CapabilitySetTypeVirtualChannel         CapabilitySetType = 20
	CapabilitySetTypeDrawNineGridCache      CapabilitySetType = 21
	CapabilitySetTypeDrawGDIPlus            CapabilitySetType = 22
	CapabilitySetTypeRail                   CapabilitySetType = 23
	CapabilitySetTypeWindow                 CapabilitySetType = 24
	CapabilitySetTypeCompDesk               CapabilitySetType = 25
	CapabilitySetTypeMultifragmentUpdate    CapabilitySetType = 26
	CapabilitySetTypeLargePointer           CapabilitySetType = 27
	CapabilitySetTypeSurfaceCommands        CapabilitySetType = 28
	CapabilitySetTypeBitmapCodecs           CapabilitySetType = 29
	CapabilitySetTypeFrameAcknowledge       CapabilitySetType = 30
)

// FrameAcknowledgeCapabilitySet represents the Frame Acknowledge Capability Set
// (MS-RDPBCGR 2.2.7.2.7), used to negotiate client-side frame acknowledgment.
type FrameAcknowledgeCapabilitySet struct {
	MaxUnacknowledgedFrames uint32
}

// NewFrameAcknowledgeCapabilitySet creates a Frame Acknowledge Capability Set
// allowing a couple of frames in flight before the server must wait for an ack.
func NewFrameAcknowledgeCapabilitySet() CapabilitySet {
	return CapabilitySet{
		CapabilitySetType:             CapabilitySetTypeFrameAcknowledge,
		FrameAcknowledgeCapabilitySet: &FrameAcknowledgeCapabilitySet{MaxUnacknowledgedFrames: 2},
	}
}

// Serialize encodes the capability set to wire format.
func (s *FrameAcknowledgeCapabilitySet) Serialize() []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, s.MaxUnacknowledgedFrames)
	return buf.Bytes()
}

// Deserialize decodes the capability set from wire format.
func (s *FrameAcknowledgeCapabilitySet) Deserialize(wire io.Reader) error {
	return binary.Read(wire, binary.LittleEndian, &s.MaxUnacknowledgedFrames)
}

// CapabilitySet is a TS_CAPS_SET entry: a type/length header followed by one
// of the capability-specific bodies below, discriminated by CapabilitySetType.
// Exactly one of the pointer fields is set at a time.
type CapabilitySet struct {
	CapabilitySetType CapabilitySetType

	GeneralCapabilitySet                 *GeneralCapabilitySet
	BitmapCapabilitySet                  *BitmapCapabilitySet
	OrderCapabilitySet                   *OrderCapabilitySet
	BitmapCacheCapabilitySetRev1         *BitmapCacheCapabilitySetRev1
	BitmapCacheCapabilitySetRev2         *BitmapCacheCapabilitySetRev2
	ControlCapabilitySet                 *ControlCapabilitySet
	WindowActivationCapabilitySet        *WindowActivationCapabilitySet
	PointerCapabilitySet                 *PointerCapabilitySet
	ShareCapabilitySet                   *ShareCapabilitySet
	ColorCacheCapabilitySet              *ColorCacheCapabilitySet
	SoundCapabilitySet                   *SoundCapabilitySet
	InputCapabilitySet                   *InputCapabilitySet
	FontCapabilitySet                    *FontCapabilitySet
	BrushCapabilitySet                   *BrushCapabilitySet
	GlyphCacheCapabilitySet              *GlyphCacheCapabilitySet
	OffscreenBitmapCacheCapabilitySet    *OffscreenBitmapCacheCapabilitySet
	BitmapCacheHostSupportCapabilitySet  *BitmapCacheHostSupportCapabilitySet
	VirtualChannelCapabilitySet          *VirtualChannelCapabilitySet
	DrawNineGridCacheCapabilitySet       *DrawNineGridCacheCapabilitySet
	DrawGDIPlusCapabilitySet             *DrawGDIPlusCapabilitySet
	RailCapabilitySet                    *RailCapabilitySet
	WindowListCapabilitySet              *WindowListCapabilitySet
	DesktopCompositionCapabilitySet      *DesktopCompositionCapabilitySet
	MultifragmentUpdateCapabilitySet     *MultifragmentUpdateCapabilitySet
	LargePointerCapabilitySet            *LargePointerCapabilitySet
	SurfaceCommandsCapabilitySet         *SurfaceCommandsCapabilitySet
	BitmapCodecsCapabilitySet            *BitmapCodecsCapabilitySet
	FrameAcknowledgeCapabilitySet        *FrameAcknowledgeCapabilitySet
}

// body returns the active capability body's serialized bytes, or nil if none
// is set (an empty capability set, or one this implementation never emits).
func (s *CapabilitySet) body() []byte {
	switch {
	case s.GeneralCapabilitySet != nil:
		return s.GeneralCapabilitySet.Serialize()
	case s.BitmapCapabilitySet != nil:
		return s.BitmapCapabilitySet.Serialize()
	case s.OrderCapabilitySet != nil:
		return s.OrderCapabilitySet.Serialize()
	case s.BitmapCacheCapabilitySetRev1 != nil:
		return s.BitmapCacheCapabilitySetRev1.Serialize()
	case s.BitmapCacheCapabilitySetRev2 != nil:
		return s.BitmapCacheCapabilitySetRev2.Serialize()
	case s.ControlCapabilitySet != nil:
		return s.ControlCapabilitySet.Serialize()
	case s.WindowActivationCapabilitySet != nil:
		return s.WindowActivationCapabilitySet.Serialize()
	case s.PointerCapabilitySet != nil:
		return s.PointerCapabilitySet.Serialize()
	case s.ShareCapabilitySet != nil:
		return s.ShareCapabilitySet.Serialize()
	case s.ColorCacheCapabilitySet != nil:
		return s.ColorCacheCapabilitySet.Serialize()
	case s.SoundCapabilitySet != nil:
		return s.SoundCapabilitySet.Serialize()
	case s.InputCapabilitySet != nil:
		return s.InputCapabilitySet.Serialize()
	case s.FontCapabilitySet != nil:
		return s.FontCapabilitySet.Serialize()
	case s.BrushCapabilitySet != nil:
		return s.BrushCapabilitySet.Serialize()
	case s.GlyphCacheCapabilitySet != nil:
		return s.GlyphCacheCapabilitySet.Serialize()
	case s.OffscreenBitmapCacheCapabilitySet != nil:
		return s.OffscreenBitmapCacheCapabilitySet.Serialize()
	case s.BitmapCacheHostSupportCapabilitySet != nil:
		return []byte{1, 0, 0, 0} // cacheVersion, pad1, pad2(2)
	case s.VirtualChannelCapabilitySet != nil:
		return s.VirtualChannelCapabilitySet.Serialize()
	case s.DrawNineGridCacheCapabilitySet != nil:
		return s.DrawNineGridCacheCapabilitySet.Serialize()
	case s.DrawGDIPlusCapabilitySet != nil:
		return s.DrawGDIPlusCapabilitySet.Serialize()
	case s.RailCapabilitySet != nil:
		return s.RailCapabilitySet.Serialize()
	case s.WindowListCapabilitySet != nil:
		return s.WindowListCapabilitySet.Serialize()
	case s.DesktopCompositionCapabilitySet != nil:
		buf := new(bytes.Buffer)
		_ = binary.Write(buf, binary.LittleEndian, s.DesktopCompositionCapabilitySet.CompDeskSupportLevel)
		return buf.Bytes()
	case s.MultifragmentUpdateCapabilitySet != nil:
		return s.MultifragmentUpdateCapabilitySet.Serialize()
	case s.LargePointerCapabilitySet != nil:
		buf := new(bytes.Buffer)
		_ = binary.Write(buf, binary.LittleEndian, s.LargePointerCapabilitySet.LargePointerSupportFlags)
		return buf.Bytes()
	case s.SurfaceCommandsCapabilitySet != nil:
		return s.SurfaceCommandsCapabilitySet.Serialize()
	case s.BitmapCodecsCapabilitySet != nil:
		return s.BitmapCodecsCapabilitySet.Serialize()
	case s.FrameAcknowledgeCapabilitySet != nil:
		return s.FrameAcknowledgeCapabilitySet.Serialize()
	default:
		return nil
	}
}

// Serialize encodes the TS_CAPS_SET header and body to wire format.
func (s *CapabilitySet) Serialize() []byte {
	body := s.body()

	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, uint16(s.CapabilitySetType))
	_ = binary.Write(buf, binary.LittleEndian, uint16(4+len(body))) // #nosec G115
	buf.Write(body)

	return buf.Bytes()
}

// Deserialize decodes one TS_CAPS_SET: the type/length header, then the body
// for every type this implementation understands. Unknown types are left
// with only CapabilitySetType populated, their body bytes consumed but
// discarded.
func (s *CapabilitySet) Deserialize(wire io.Reader) error {
	var (
		capType CapabilitySetType
		length  uint16
	)

	if err := binary.Read(wire, binary.LittleEndian, &capType); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &length); err != nil {
		return err
	}
	if length < 4 {
		return fmt.Errorf("pdu: capability set %d: length %d shorter than header", capType, length)
	}

	body := make([]byte, length-4)
	if _, err := io.ReadFull(wire, body); err != nil {
		return err
	}

	s.CapabilitySetType = capType
	r := bytes.NewReader(body)

	switch capType {
	case CapabilitySetTypeGeneral:
		s.GeneralCapabilitySet = &GeneralCapabilitySet{}
		return s.GeneralCapabilitySet.Deserialize(r)
	case CapabilitySetTypeBitmap:
		s.BitmapCapabilitySet = &BitmapCapabilitySet{}
		return s.BitmapCapabilitySet.Deserialize(r)
	case CapabilitySetTypeOrder:
		s.OrderCapabilitySet = &OrderCapabilitySet{}
		return s.OrderCapabilitySet.Deserialize(r)
	case CapabilitySetTypeBitmapCache:
		s.BitmapCacheCapabilitySetRev1 = &BitmapCacheCapabilitySetRev1{}
		return s.BitmapCacheCapabilitySetRev1.Deserialize(r)
	case CapabilitySetTypeBitmapCacheRev2:
		s.BitmapCacheCapabilitySetRev2 = &BitmapCacheCapabilitySetRev2{}
		return s.BitmapCacheCapabilitySetRev2.Deserialize(r)
	case CapabilitySetTypeControl:
		s.ControlCapabilitySet = &ControlCapabilitySet{}
		return s.ControlCapabilitySet.Deserialize(r)
	case CapabilitySetTypeActivation:
		s.WindowActivationCapabilitySet = &WindowActivationCapabilitySet{}
		return s.WindowActivationCapabilitySet.Deserialize(r)
	case CapabilitySetTypePointer:
		s.PointerCapabilitySet = &PointerCapabilitySet{}
		return s.PointerCapabilitySet.Deserialize(r)
	case CapabilitySetTypeShare:
		s.ShareCapabilitySet = &ShareCapabilitySet{}
		return s.ShareCapabilitySet.Deserialize(r)
	case CapabilitySetTypeColorCache:
		s.ColorCacheCapabilitySet = &ColorCacheCapabilitySet{}
		return s.ColorCacheCapabilitySet.Deserialize(r)
	case CapabilitySetTypeSound:
		s.SoundCapabilitySet = &SoundCapabilitySet{}
		return s.SoundCapabilitySet.Deserialize(r)
	case CapabilitySetTypeInput:
		s.InputCapabilitySet = &InputCapabilitySet{}
		return s.InputCapabilitySet.Deserialize(r)
	case CapabilitySetTypeFont:
		s.FontCapabilitySet = &FontCapabilitySet{}
		return s.FontCapabilitySet.Deserialize(r)
	case CapabilitySetTypeBrush:
		s.BrushCapabilitySet = &BrushCapabilitySet{}
		return s.BrushCapabilitySet.Deserialize(r)
	case CapabilitySetTypeGlyphCache:
		s.GlyphCacheCapabilitySet = &GlyphCacheCapabilitySet{}
		return s.GlyphCacheCapabilitySet.Deserialize(r)
	case CapabilitySetTypeOffscreenBitmapCache:
		s.OffscreenBitmapCacheCapabilitySet = &OffscreenBitmapCacheCapabilitySet{}
		return s.OffscreenBitmapCacheCapabilitySet.Deserialize(r)
	case CapabilitySetTypeBitmapCacheHostSupport:
		s.BitmapCacheHostSupportCapabilitySet = &BitmapCacheHostSupportCapabilitySet{}
		return s.BitmapCacheHostSupportCapabilitySet.Deserialize(r)
	case CapabilitySetTypeVirtualChannel:
		s.VirtualChannelCapabilitySet = &VirtualChannelCapabilitySet{}
		return s.VirtualChannelCapabilitySet.Deserialize(r)
	case CapabilitySetTypeMultifragmentUpdate:
		s.MultifragmentUpdateCapabilitySet = &MultifragmentUpdateCapabilitySet{}
		return s.MultifragmentUpdateCapabilitySet.Deserialize(r)
	case CapabilitySetTypeLargePointer:
		s.LargePointerCapabilitySet = &LargePointerCapabilitySet{}
		return s.LargePointerCapabilitySet.Deserialize(r)
	case CapabilitySetTypeCompDesk:
		s.DesktopCompositionCapabilitySet = &DesktopCompositionCapabilitySet{}
		return s.DesktopCompositionCapabilitySet.Deserialize(r)
	case CapabilitySetTypeSurfaceCommands:
		s.SurfaceCommandsCapabilitySet = &SurfaceCommandsCapabilitySet{}
		return s.SurfaceCommandsCapabilitySet.Deserialize(r)
	case CapabilitySetTypeBitmapCodecs:
		s.BitmapCodecsCapabilitySet = &BitmapCodecsCapabilitySet{}
		return s.BitmapCodecsCapabilitySet.Deserialize(r)
	case CapabilitySetTypeFrameAcknowledge:
		s.FrameAcknowledgeCapabilitySet = &FrameAcknowledgeCapabilitySet{}
		return s.FrameAcknowledgeCapabilitySet.Deserialize(r)
	default:
		// Unknown/unsupported capability set (Rail, Window, DrawNineGridCache,
		// DrawGDIPlus: client never receives these from a server, only sends
		// them). Body bytes were already consumed above.
		return nil
	}
}

// DeserializeQuick reads only the type/length header and skips the body,
// for callers that only need to know which capability sets a peer sent.
func (s *CapabilitySet) DeserializeQuick(wire io.Reader) error {
	var (
		capType CapabilitySetType
		length  uint16
	)

	if err := binary.Read(wire, binary.LittleEndian, &capType); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &length); err != nil {
		return err
	}
	if length < 4 {
		return fmt.Errorf("pdu: capability set %d: length %d shorter than header", capType, length)
	}

	s.CapabilitySetType = capType
	_, err := io.CopyN(io.Discard, wire, int64(length-4))
	return err
}

// ServerDemandActive is the TS_DEMAND_ACTIVE_PDU (MS-RDPBCGR 2.2.1.13.1) a
// server sends to start capability negotiation.
type ServerDemandActive struct {
	ShareControlHeader ShareControlHeader
	ShareID            uint32
	SourceDescriptor   []byte
	CapabilitySets     []CapabilitySet
	SessionID          uint32
}

// Deserialize decodes a Demand Active PDU from wire format.
func (d *ServerDemandActive) Deserialize(wire io.Reader) error {
	if err := d.ShareControlHeader.Deserialize(wire); err != nil {
		return err
	}
	if !d.ShareControlHeader.PDUType.IsDemandActive() {
		return fmt.Errorf("pdu: expected DemandActive PDU, got type %d", d.ShareControlHeader.PDUType)
	}

	var lengthSourceDescriptor, numberCapabilities uint16
	if err := binary.Read(wire, binary.LittleEndian, &d.ShareID); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &lengthSourceDescriptor); err != nil {
		return err
	}
	var lengthCombinedCapabilities uint16
	if err := binary.Read(wire, binary.LittleEndian, &lengthCombinedCapabilities); err != nil {
		return err
	}

	d.SourceDescriptor = make([]byte, lengthSourceDescriptor)
	if _, err := io.ReadFull(wire, d.SourceDescriptor); err != nil {
		return err
	}

	if err := binary.Read(wire, binary.LittleEndian, &numberCapabilities); err != nil {
		return err
	}
	var pad2Octets uint16
	if err := binary.Read(wire, binary.LittleEndian, &pad2Octets); err != nil {
		return err
	}

	d.CapabilitySets = make([]CapabilitySet, numberCapabilities)
	for i := range d.CapabilitySets {
		if err := d.CapabilitySets[i].Deserialize(wire); err != nil {
			return fmt.Errorf("pdu: demand active capability set %d: %w", i, err)
		}
	}

	return binary.Read(wire, binary.LittleEndian, &d.SessionID)
}

// ClientConfirmActive is the TS_CONFIRM_ACTIVE_PDU (MS-RDPBCGR 2.2.1.13.2) the
// client sends back once it has parsed the server's Demand Active PDU.
type ClientConfirmActive struct {
	ShareControlHeader ShareControlHeader
	ShareID            uint32
	OriginatorID       uint16
	SourceDescriptor   []byte
	CapabilitySets     []CapabilitySet
}

// NewClientConfirmActive builds the client's capability set response: the
// baseline desktop/graphics capabilities every session negotiates, plus the
// RAIL and window-list sets when remoteApp is requested.
func NewClientConfirmActive(shareID uint32, userID uint16, desktopWidth, desktopHeight uint16, remoteApp bool) *ClientConfirmActive {
	sets := []CapabilitySet{
		NewGeneralCapabilitySet(),
		NewBitmapCapabilitySet(desktopWidth, desktopHeight),
		NewOrderCapabilitySet(),
		NewBitmapCacheCapabilitySetRev1(),
		{CapabilitySetType: CapabilitySetTypeControl, ControlCapabilitySet: &ControlCapabilitySet{}},
		{CapabilitySetType: CapabilitySetTypeActivation, WindowActivationCapabilitySet: &WindowActivationCapabilitySet{}},
		NewPointerCapabilitySet(),
		{CapabilitySetType: CapabilitySetTypeShare, ShareCapabilitySet: &ShareCapabilitySet{}},
		NewSoundCapabilitySet(),
		NewInputCapabilitySet(),
		NewBrushCapabilitySet(),
		NewGlyphCacheCapabilitySet(),
		NewOffscreenBitmapCacheCapabilitySet(),
		NewVirtualChannelCapabilitySet(),
		NewMultifragmentUpdateCapabilitySet(),
		NewFrameAcknowledgeCapabilitySet(),
	}

	if remoteApp {
		sets = append(sets, NewRailCapabilitySet(), NewWindowListCapabilitySet())
	}

	return &ClientConfirmActive{
		ShareControlHeader: ShareControlHeader{PDUType: TypeConfirmActive, PDUSource: userID},
		ShareID:            shareID,
		OriginatorID:       0x03EA, // SERVER_CHANNEL_ID per MS-RDPBCGR 2.2.1.13.2.1
		SourceDescriptor:   []byte("MSTSC\x00"),
		CapabilitySets:     sets,
	}
}

// Serialize encodes the Confirm Active PDU to wire format.
func (c *ClientConfirmActive) Serialize() []byte {
	body := new(bytes.Buffer)

	var combined bytes.Buffer
	for i := range c.CapabilitySets {
		combined.Write(c.CapabilitySets[i].Serialize())
	}

	_ = binary.Write(body, binary.LittleEndian, c.ShareID)
	_ = binary.Write(body, binary.LittleEndian, c.OriginatorID)
	_ = binary.Write(body, binary.LittleEndian, uint16(len(c.SourceDescriptor))) // #nosec G115
	_ = binary.Write(body, binary.LittleEndian, uint16(4+combined.Len()))       // #nosec G115
	body.Write(c.SourceDescriptor)
	_ = binary.Write(body, binary.LittleEndian, uint16(len(c.CapabilitySets))) // #nosec G115
	_ = binary.Write(body, binary.LittleEndian, uint16(0))                    // pad2Octets
	body.Write(combined.Bytes())

	c.ShareControlHeader.TotalLength = uint16(6 + body.Len()) // #nosec G115

	buf := new(bytes.Buffer)
	buf.Write(c.ShareControlHeader.Serialize())
	buf.Write(body.Bytes())

	return buf.Bytes()
}

// Deserialize decodes a Confirm Active PDU from wire format.
func (c *ClientConfirmActive) Deserialize(wire io.Reader) error {
	if err := c.ShareControlHeader.Deserialize(wire); err != nil {
		return err
	}
	if !c.ShareControlHeader.PDUType.IsConfirmActive() {
		return fmt.Errorf("pdu: expected ConfirmActive PDU, got type %d", c.ShareControlHeader.PDUType)
	}

	var lengthSourceDescriptor, lengthCombinedCapabilities, numberCapabilities, pad2Octets uint16
	if err := binary.Read(wire, binary.LittleEndian, &c.ShareID); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &c.OriginatorID); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &lengthSourceDescriptor); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &lengthCombinedCapabilities); err != nil {
		return err
	}

	c.SourceDescriptor = make([]byte, lengthSourceDescriptor)
	if _, err := io.ReadFull(wire, c.SourceDescriptor); err != nil {
		return err
	}

	if err := binary.Read(wire, binary.LittleEndian, &numberCapabilities); err != nil {
		return err
	}
	if err := binary.Read(wire, binary.LittleEndian, &pad2Octets); err != nil {
		return err
	}

	c.CapabilitySets = make([]CapabilitySet, numberCapabilities)
	for i := range c.CapabilitySets {
		if err := c.CapabilitySets[i].Deserialize(wire); err != nil {
			return fmt.Errorf("pdu: confirm active capability set %d: %w", i, err)
		}
	}

	return nil
}
