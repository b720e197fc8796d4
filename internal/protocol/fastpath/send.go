package fastpath

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// InputEventPDU is the TS_FP_INPUT_PDU a client sends down the fast-path
// channel once the slow-path connection sequence is complete.
type InputEventPDU struct {
	action    uint8
	numEvents uint8
	flags     uint8
	eventData []byte
}

// NewInputEventPDU wraps already-serialized input event data for a single
// input event. Batching more than one event per PDU means setting
// numEvents after construction.
func NewInputEventPDU(eventData []byte) *InputEventPDU {
	return &InputEventPDU{
		numEvents: 1,
		eventData: eventData,
	}
}

// Serialize packs the fpInputHeader (action/numEvents/flags) and the
// PDU's variable-length size field ahead of the already-encoded events.
func (pdu *InputEventPDU) Serialize() []byte {
	buf := new(bytes.Buffer)

	header := pdu.action | pdu.numEvents<<2 | pdu.flags<<6
	buf.WriteByte(header)

	pdu.SerializeLength(1+len(pdu.eventData), buf)
	buf.Write(pdu.eventData)

	return buf.Bytes()
}

// SerializeLength writes value using the fast-path variable length
// encoding: a single byte (value+1) when value fits in 7 bits, otherwise
// a big-endian uint16 with the top bit set and a 2-byte offset.
func (pdu *InputEventPDU) SerializeLength(value int, w io.Writer) error {
	if value <= 0x7f {
		return binary.Write(w, binary.BigEndian, byte(value+1))
	}

	return binary.Write(w, binary.BigEndian, uint16(value+2)|0x8000)
}

// Send writes pdu to the fast-path connection.
func (p *Protocol) Send(pdu *InputEventPDU) error {
	if _, err := p.conn.Write(pdu.Serialize()); err != nil {
		return fmt.Errorf("fastpath send: %w", err)
	}

	return nil
}
