package pdu

import (
	"bytes"
	"encoding/binary"
	"io"
	"unicode/utf16"

	"github.com/rcarmo/go-rdp-core/internal/protocolerr"
)

// PreconnectionVersion is the version field of an RDP_PRECONNECTION_PDU.
type PreconnectionVersion uint32

const (
	PreconnectionVersion1 PreconnectionVersion = 0x1
	PreconnectionVersion2 PreconnectionVersion = 0x2
)

// preconnectionFixedSize is the byte size of RDP_PRECONNECTION_PDU_V1:
// cbSize, flags, version and id, 4 bytes each.
const preconnectionFixedSize = 16

// PreconnectionBlob represents RDP_PRECONNECTION_PDU_V1/V2: the blob a
// client sends before the connection sequence so the listener can route
// the connection to the intended RDP source. V2 appends a
// null-terminated Unicode string that is opaque to the protocol; V1
// identifies the source by Id alone.
type PreconnectionBlob struct {
	Version PreconnectionVersion
	ID      uint32

	// Payload is the V2 wszPCB string without its null terminator.
	// Empty for V1.
	Payload string
}

// Size returns the encoded byte size, which is also the cbSize value
// Serialize writes.
func (b *PreconnectionBlob) Size() int {
	if b.Version == PreconnectionVersion1 {
		return preconnectionFixedSize
	}

	return preconnectionFixedSize + 2 + 2*(len(utf16.Encode([]rune(b.Payload)))+1)
}

func (b *PreconnectionBlob) Serialize() []byte {
	buf := new(bytes.Buffer)

	binary.Write(buf, binary.LittleEndian, uint32(b.Size()))
	binary.Write(buf, binary.LittleEndian, uint32(0)) // flags, reserved
	binary.Write(buf, binary.LittleEndian, uint32(b.Version))
	binary.Write(buf, binary.LittleEndian, b.ID)

	if b.Version != PreconnectionVersion1 {
		units := utf16.Encode([]rune(b.Payload))
		binary.Write(buf, binary.LittleEndian, uint16(len(units)+1))
		for _, unit := range units {
			binary.Write(buf, binary.LittleEndian, unit)
		}
		binary.Write(buf, binary.LittleEndian, uint16(0))
	}

	return buf.Bytes()
}

// Deserialize decodes a preconnection blob. The version field is taken
// as the client wrote it; servers are told to ignore it, so whether a
// string payload follows is decided by cbSize, not by version.
func (b *PreconnectionBlob) Deserialize(wire io.Reader) error {
	var cbSize uint32
	if err := binary.Read(wire, binary.LittleEndian, &cbSize); err != nil {
		return err
	}

	if cbSize < preconnectionFixedSize {
		return &protocolerr.InvalidMessage{Field: "cbSize", Reason: "advertised size too small for preconnection PDU"}
	}

	var flags uint32
	if err := binary.Read(wire, binary.LittleEndian, &flags); err != nil {
		return err
	}

	var version uint32
	if err := binary.Read(wire, binary.LittleEndian, &version); err != nil {
		return err
	}
	b.Version = PreconnectionVersion(version)

	if err := binary.Read(wire, binary.LittleEndian, &b.ID); err != nil {
		return err
	}

	remaining := int(cbSize) - preconnectionFixedSize
	if remaining < 2 {
		b.Payload = ""
		return nil
	}

	var cchPCB uint16
	if err := binary.Read(wire, binary.LittleEndian, &cchPCB); err != nil {
		return err
	}

	if remaining-2 < 2*int(cchPCB) {
		return &protocolerr.InvalidMessage{Field: "cchPCB", Reason: "PCB string bigger than advertised size"}
	}

	raw := make([]byte, 2*int(cchPCB))
	if n, err := io.ReadFull(wire, raw); err != nil {
		return &protocolerr.NotEnoughBytes{Received: n, Expected: len(raw)}
	}

	units := make([]uint16, 0, cchPCB)
	for i := 0; i+1 < len(raw); i += 2 {
		unit := binary.LittleEndian.Uint16(raw[i:])
		if unit == 0 {
			break
		}
		units = append(units, unit)
	}
	b.Payload = string(utf16.Decode(units))

	// Leftover bytes past the string but inside cbSize are unused.
	leftover := remaining - 2 - len(raw)
	if leftover > 0 {
		if _, err := io.CopyN(io.Discard, wire, int64(leftover)); err != nil {
			return err
		}
	}

	return nil
}
