// Package cliprdr implements the Clipboard Virtual Channel Extension
// (MS-RDPECLIP) PDUs: the General Capability Set exchanged during
// channel bring-up, and the Format List / Format List Response / Format
// Data Request / Format Data Response PDUs that move clipboard contents.
// Every PDU shares an 8-byte header (msgType, msgFlags, dataLen).
package cliprdr

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/rcarmo/go-rdp-core/internal/protocolerr"
)

// ChannelName is the static virtual channel name RDP servers recognize
// for the clipboard extension.
const ChannelName = "cliprdr"

// Message types (MS-RDPECLIP 2.2.2 CLIPRDR_HEADER.msgType).
const (
	MsgTypeMonitorReady         uint16 = 0x0001
	MsgTypeFormatList           uint16 = 0x0002
	MsgTypeFormatListResponse   uint16 = 0x0003
	MsgTypeFormatDataRequest    uint16 = 0x0004
	MsgTypeFormatDataResponse   uint16 = 0x0005
	MsgTypeTemporaryDirectory   uint16 = 0x0006
	MsgTypeCapabilities         uint16 = 0x0007
	MsgTypeFileContentsRequest  uint16 = 0x0008
	MsgTypeFileContentsResponse uint16 = 0x0009
	MsgTypeLockClipData         uint16 = 0x000A
	MsgTypeUnlockClipData       uint16 = 0x000B
)

// Header flags (MS-RDPECLIP 2.2.2 CLIPRDR_HEADER.msgFlags).
const (
	FlagResponseOK   uint16 = 0x0001
	FlagResponseFail uint16 = 0x0002
	FlagASCIINames   uint16 = 0x0004
)

// Well-known format ids (MS-RDPECLIP 2.2.3).
const (
	FormatIDPalette  uint32 = 9
	FormatIDMetafile uint32 = 3
)

// Header is CLIPRDR_HEADER: the common 8-byte prefix on every clipboard
// PDU, with the msgType split out separately since it selects which body
// follows.
type Header struct {
	MsgType  uint16
	MsgFlags uint16
	DataLen  uint32
}

// Serialize encodes the header.
func (h Header) Serialize() []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, h.MsgType)
	_ = binary.Write(buf, binary.LittleEndian, h.MsgFlags)
	_ = binary.Write(buf, binary.LittleEndian, h.DataLen)
	return buf.Bytes()
}

// DeserializeHeader decodes CLIPRDR_HEADER from wire.
func DeserializeHeader(wire io.Reader) (Header, error) {
	var h Header
	if err := binary.Read(wire, binary.LittleEndian, &h.MsgType); err != nil {
		return Header{}, fmt.Errorf("cliprdr header msgType: %w", err)
	}
	if err := binary.Read(wire, binary.LittleEndian, &h.MsgFlags); err != nil {
		return Header{}, fmt.Errorf("cliprdr header msgFlags: %w", err)
	}
	if err := binary.Read(wire, binary.LittleEndian, &h.DataLen); err != nil {
		return Header{}, fmt.Errorf("cliprdr header dataLen: %w", err)
	}
	return h, nil
}

// ProtocolVersion is CLIPRDR_GENERAL_CAPABILITY.version. It is
// informational only; capability decisions are made from general_flags.
type ProtocolVersion uint32

const (
	ProtocolVersion1 ProtocolVersion = 1
	ProtocolVersion2 ProtocolVersion = 2
)

// General capability flags (MS-RDPECLIP 2.2.2.1.1 CLIPRDR_GENERAL_CAPABILITY.generalFlags).
const (
	GeneralFlagUseLongFormatNames    uint32 = 0x00000002
	GeneralFlagStreamFileClipEnabled uint32 = 0x00000004
	GeneralFlagFileClipNoFilePaths   uint32 = 0x00000008
	GeneralFlagCanLockClipData       uint32 = 0x00000010
	GeneralFlagHugeFileSupportEnable uint32 = 0x00000020
)

const capsSetTypeGeneral uint16 = 0x0001

// Capabilities is CLIPRDR_CAPS: currently always exactly one General
// Capability Set, as every real implementation sends.
type Capabilities struct {
	Version       ProtocolVersion
	GeneralFlags  uint32
}

// NewCapabilities builds a Capabilities PDU carrying one General
// Capability Set.
func NewCapabilities(version ProtocolVersion, flags uint32) *Capabilities {
	return &Capabilities{Version: version, GeneralFlags: flags}
}

// Downgrade narrows this capability set to what both sides support: the
// bitwise AND of the flags, and the lower protocol version if they
// differ (MS-RDPECLIP leaves mixed-version flag semantics undefined).
func (c *Capabilities) Downgrade(server *Capabilities) {
	c.GeneralFlags &= server.GeneralFlags
	if c.Version != server.Version {
		c.Version = ProtocolVersion1
	}
}

// Serialize encodes the full CLIPRDR_CAPS PDU including its CLIPRDR_HEADER.
func (c *Capabilities) Serialize() []byte {
	body := new(bytes.Buffer)
	_ = binary.Write(body, binary.LittleEndian, uint16(1)) // cCapabilitiesSets
	_ = binary.Write(body, binary.LittleEndian, uint16(0)) // pad1
	_ = binary.Write(body, binary.LittleEndian, capsSetTypeGeneral)
	_ = binary.Write(body, binary.LittleEndian, uint16(12)) // lengthCapability: type+length+4+4
	_ = binary.Write(body, binary.LittleEndian, uint32(c.Version))
	_ = binary.Write(body, binary.LittleEndian, c.GeneralFlags)

	h := Header{MsgType: MsgTypeCapabilities, DataLen: uint32(body.Len())}
	return append(h.Serialize(), body.Bytes()...)
}

// DeserializeCapabilities decodes a CLIPRDR_CAPS body (the header has
// already been consumed by the caller). Only the General Capability Set
// is understood; unknown capability set types are skipped by their
// declared length, per MS-RDPECLIP's forward-compatibility rule.
func DeserializeCapabilities(wire io.Reader) (*Capabilities, error) {
	var count, pad uint16
	if err := binary.Read(wire, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("cliprdr caps count: %w", err)
	}
	if err := binary.Read(wire, binary.LittleEndian, &pad); err != nil {
		return nil, fmt.Errorf("cliprdr caps pad: %w", err)
	}

	caps := &Capabilities{Version: ProtocolVersion1}
	found := false

	for i := uint16(0); i < count; i++ {
		var setType, length uint16
		if err := binary.Read(wire, binary.LittleEndian, &setType); err != nil {
			return nil, fmt.Errorf("cliprdr caps set type: %w", err)
		}
		if err := binary.Read(wire, binary.LittleEndian, &length); err != nil {
			return nil, fmt.Errorf("cliprdr caps set length: %w", err)
		}
		if length < 4 {
			return nil, &protocolerr.InvalidMessage{Field: "lengthCapability", Reason: "shorter than capability set header"}
		}
		remaining := int(length) - 4

		if setType == capsSetTypeGeneral && remaining >= 8 {
			var version uint32
			var flags uint32
			if err := binary.Read(wire, binary.LittleEndian, &version); err != nil {
				return nil, fmt.Errorf("cliprdr general caps version: %w", err)
			}
			if err := binary.Read(wire, binary.LittleEndian, &flags); err != nil {
				return nil, fmt.Errorf("cliprdr general caps flags: %w", err)
			}
			caps.Version = ProtocolVersion(version)
			caps.GeneralFlags = flags
			found = true
			remaining -= 8
		}

		if remaining > 0 {
			if _, err := io.CopyN(io.Discard, wire, int64(remaining)); err != nil {
				return nil, fmt.Errorf("cliprdr caps set skip: %w", err)
			}
		}
	}

	if !found {
		return nil, &protocolerr.InvalidMessage{Field: "CLIPRDR_CAPS", Reason: "no General Capability Set present"}
	}
	return caps, nil
}

// FormatName is one entry in the Long Format Name variant of the Format
// List PDU: a format id paired with its Unicode name (empty for
// predefined/registered formats with no name).
type FormatName struct {
	FormatID uint32
	Name     string
}

// FormatList is CLIPRDR_FORMAT_LIST using the Long Format Name variant
// (MS-RDPECLIP 2.2.3.1.1), the variant every General Capability Set with
// USE_LONG_FORMAT_NAMES advertises and the one worth implementing given
// the short-name variant's 1.x-era-only relevance.
type FormatList struct {
	Formats []FormatName
}

// Serialize encodes the full CLIPRDR_FORMAT_LIST PDU.
func (f *FormatList) Serialize() []byte {
	body := new(bytes.Buffer)
	for _, entry := range f.Formats {
		_ = binary.Write(body, binary.LittleEndian, entry.FormatID)
		for _, r := range entry.Name {
			_ = binary.Write(body, binary.LittleEndian, uint16(r))
		}
		_ = binary.Write(body, binary.LittleEndian, uint16(0)) // NUL terminator
	}

	h := Header{MsgType: MsgTypeFormatList, DataLen: uint32(body.Len())}
	return append(h.Serialize(), body.Bytes()...)
}

// DeserializeFormatList decodes a CLIPRDR_FORMAT_LIST body of dataLen
// bytes (the header has already been consumed by the caller) using the
// Long Format Name layout: repeated (formatId uint32, name
// NUL-terminated UTF-16LE) entries until dataLen is exhausted.
func DeserializeFormatList(wire io.Reader, dataLen uint32) (*FormatList, error) {
	raw := make([]byte, dataLen)
	if _, err := io.ReadFull(wire, raw); err != nil {
		return nil, fmt.Errorf("cliprdr format list body: %w", err)
	}

	list := &FormatList{}
	for len(raw) > 0 {
		if len(raw) < 6 {
			return nil, &protocolerr.InvalidMessage{Field: "CLIPRDR_FORMAT_LIST", Reason: "truncated format name entry"}
		}
		formatID := binary.LittleEndian.Uint32(raw[0:4])
		raw = raw[4:]

		var runes []rune
		for {
			if len(raw) < 2 {
				return nil, &protocolerr.InvalidMessage{Field: "CLIPRDR_FORMAT_LIST", Reason: "unterminated format name"}
			}
			unit := binary.LittleEndian.Uint16(raw[0:2])
			raw = raw[2:]
			if unit == 0 {
				break
			}
			runes = append(runes, rune(unit))
		}

		list.Formats = append(list.Formats, FormatName{FormatID: formatID, Name: string(runes)})
	}

	return list, nil
}

// FormatListResponse is CLIPRDR_FORMAT_LIST_RESPONSE: an empty body, the
// outcome carried entirely in the header's msgFlags.
type FormatListResponse struct {
	OK bool
}

// Serialize encodes the full CLIPRDR_FORMAT_LIST_RESPONSE PDU.
func (r *FormatListResponse) Serialize() []byte {
	flags := FlagResponseFail
	if r.OK {
		flags = FlagResponseOK
	}
	h := Header{MsgType: MsgTypeFormatListResponse, MsgFlags: flags}
	return h.Serialize()
}

// FormatDataRequest is CLIPRDR_FORMAT_DATA_REQUEST: a single requested
// format id.
type FormatDataRequest struct {
	FormatID uint32
}

// Serialize encodes the full CLIPRDR_FORMAT_DATA_REQUEST PDU.
func (r *FormatDataRequest) Serialize() []byte {
	body := make([]byte, 4)
	binary.LittleEndian.PutUint32(body, r.FormatID)
	h := Header{MsgType: MsgTypeFormatDataRequest, DataLen: 4}
	return append(h.Serialize(), body...)
}

// DeserializeFormatDataRequest decodes a CLIPRDR_FORMAT_DATA_REQUEST body.
func DeserializeFormatDataRequest(wire io.Reader) (*FormatDataRequest, error) {
	var id uint32
	if err := binary.Read(wire, binary.LittleEndian, &id); err != nil {
		return nil, fmt.Errorf("cliprdr format data request: %w", err)
	}
	return &FormatDataRequest{FormatID: id}, nil
}

// FormatDataResponse is CLIPRDR_FORMAT_DATA_RESPONSE: the raw clipboard
// data in the format that was requested, or a zero-length, failure-
// flagged body if the request could not be satisfied.
type FormatDataResponse struct {
	OK   bool
	Data []byte
}

// Serialize encodes the full CLIPRDR_FORMAT_DATA_RESPONSE PDU.
func (r *FormatDataResponse) Serialize() []byte {
	flags := FlagResponseFail
	data := r.Data
	if r.OK {
		flags = FlagResponseOK
	} else {
		data = nil
	}
	h := Header{MsgType: MsgTypeFormatDataResponse, MsgFlags: flags, DataLen: uint32(len(data))}
	return append(h.Serialize(), data...)
}

// DeserializeFormatDataResponse decodes a CLIPRDR_FORMAT_DATA_RESPONSE
// body of dataLen bytes, with ok taken from the already-parsed header's
// msgFlags.
func DeserializeFormatDataResponse(wire io.Reader, dataLen uint32, ok bool) (*FormatDataResponse, error) {
	data := make([]byte, dataLen)
	if dataLen > 0 {
		if _, err := io.ReadFull(wire, data); err != nil {
			return nil, fmt.Errorf("cliprdr format data response body: %w", err)
		}
	}
	return &FormatDataResponse{OK: ok, Data: data}, nil
}
