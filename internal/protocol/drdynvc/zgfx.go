package drdynvc

import (
	"encoding/binary"
	"fmt"

	"github.com/rcarmo/go-rdp-core/internal/protocolerr"
)

// RDP_SEGMENTED_DATA descriptors (MS-RDPEGFX 2.2.5.1).
const (
	segmentedSingle uint8 = 0xE0
	segmentedMulti  uint8 = 0xE1
)

// RDP8_BULK_ENCODED_DATA header byte (MS-RDPEGFX 2.2.5.3): compression
// type in the low nibble, flags in the high nibble.
const (
	bulkCompressionTypeRDP8 uint8 = 0x04
	bulkPacketCompressed    uint8 = 0x20
)

// singleSegmentBound caps how much one undeclared-size segment may
// inflate to; multi-segment mode bounds each segment by the declared
// total instead.
const singleSegmentBound = 65535

// DecompressSegmented unwraps an RDP_SEGMENTED_DATA envelope: a 0xE0
// descriptor carries one bulk-encoded segment, a 0xE1 descriptor carries
// a segment count, the total uncompressed size, and a size-prefixed
// segment array. Any other descriptor is rejected. Segments marked
// PACKET_COMPRESSED run through the RDP8 bulk decompressor; uncompressed
// segments pass through (and still enter the history window, so later
// matches may reference them).
func (z *ZGFXDecompressor) DecompressSegmented(data []byte) ([]byte, error) {
	if len(data) < 1 {
		return nil, &protocolerr.NotEnoughBytes{Received: len(data), Expected: 1}
	}

	switch data[0] {
	case segmentedSingle:
		return z.decodeBulk(data[1:], singleSegmentBound)

	case segmentedMulti:
		if len(data) < 7 {
			return nil, &protocolerr.NotEnoughBytes{Received: len(data), Expected: 7}
		}
		segmentCount := int(binary.LittleEndian.Uint16(data[1:3]))
		uncompressedSize := int(binary.LittleEndian.Uint32(data[3:7]))

		result := make([]byte, 0, uncompressedSize)
		rest := data[7:]
		for i := 0; i < segmentCount; i++ {
			if len(rest) < 4 {
				return nil, &protocolerr.NotEnoughBytes{Received: len(rest), Expected: 4}
			}
			segSize := int(binary.LittleEndian.Uint32(rest[:4]))
			rest = rest[4:]
			if segSize < 1 || segSize > len(rest) {
				return nil, &protocolerr.InvalidMessage{
					Field:  "segmentSize",
					Reason: fmt.Sprintf("segment %d: size %d exceeds remaining %d bytes", i, segSize, len(rest)),
				}
			}

			out, err := z.decodeBulk(rest[:segSize], uncompressedSize-len(result))
			if err != nil {
				return nil, fmt.Errorf("segment %d: %w", i, err)
			}
			result = append(result, out...)
			rest = rest[segSize:]
		}

		if len(result) != uncompressedSize {
			return nil, &protocolerr.InvalidMessage{
				Field:  "uncompressedSize",
				Reason: fmt.Sprintf("segments yielded %d bytes, descriptor declared %d", len(result), uncompressedSize),
			}
		}
		return result, nil

	default:
		return nil, &protocolerr.InvalidMessage{
			Field:  "descriptor",
			Reason: fmt.Sprintf("unknown segmented data descriptor 0x%02X", data[0]),
		}
	}
}

// decodeBulk handles one RDP8_BULK_ENCODED_DATA: header byte, then either
// raw bytes or an RDP8 bit stream bounded by maxSize.
func (z *ZGFXDecompressor) decodeBulk(data []byte, maxSize int) ([]byte, error) {
	if len(data) < 1 {
		return nil, &protocolerr.NotEnoughBytes{Received: 0, Expected: 1}
	}

	header := data[0]
	if header&0x0F != bulkCompressionTypeRDP8 {
		return nil, &protocolerr.InvalidMessage{
			Field:  "compressionType",
			Reason: fmt.Sprintf("unsupported bulk compression type 0x%X", header&0x0F),
		}
	}

	payload := data[1:]
	if header&bulkPacketCompressed == 0 {
		z.updateHistory(payload)
		return payload, nil
	}

	return z.decompressSingleSegment(payload, maxSize)
}
