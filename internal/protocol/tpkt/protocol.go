// Package tpkt implements the ISO Transport Service on top of TCP (RFC 1006)
// framing MS-RDPBCGR uses to carry X.224 connection PDUs before the MCS
// domain is up. Every TPKT packet is a 4 byte header (version, reserved,
// big-endian total length) followed by the payload.
package tpkt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/rcarmo/go-rdp-core/internal/protocolerr"
)

const (
	headerLen = 4
	version   = 0x03
)

// Protocol frames and unframes TPKT packets over an underlying stream
// connection (TCP or TLS).
type Protocol struct {
	conn io.ReadWriteCloser
}

func New(conn io.ReadWriteCloser) *Protocol {
	return &Protocol{conn: conn}
}

// Wrap prefixes pduData with a TPKT header, with no I/O of its own. Callers
// that own their own transport (a sans-I/O state machine driven by a host)
// use this directly instead of going through Protocol.
func Wrap(pduData []byte) []byte {
	header := make([]byte, headerLen)
	header[0] = version
	header[1] = 0x00
	binary.BigEndian.PutUint16(header[2:], uint16(headerLen+len(pduData)))
	return append(header, pduData...)
}

// Unwrap strips a TPKT header from a buffer holding exactly one complete
// frame (as sized by Hint.Find) and returns the payload.
func Unwrap(frame []byte) ([]byte, error) {
	if len(frame) < headerLen {
		return nil, fmt.Errorf("tpkt unwrap: frame shorter than header")
	}
	length := binary.BigEndian.Uint16(frame[2:])
	if length < headerLen {
		return nil, &protocolerr.InvalidMessage{Field: "length", Reason: "announced length smaller than the TPKT header itself"}
	}
	if int(length) != len(frame) {
		return nil, fmt.Errorf("tpkt unwrap: header length %d does not match frame size %d", length, len(frame))
	}
	return frame[headerLen:], nil
}

// Send wraps pduData in a TPKT header and writes it to the connection.
func (p *Protocol) Send(pduData []byte) error {
	if _, err := p.conn.Write(Wrap(pduData)); err != nil {
		return fmt.Errorf("tpkt send: %w", err)
	}

	return nil
}

// Receive reads one TPKT header and returns a reader bounded to the payload
// it announces.
func (p *Protocol) Receive() (io.Reader, error) {
	header := make([]byte, headerLen)
	if _, err := io.ReadFull(p.conn, header); err != nil {
		return nil, fmt.Errorf("tpkt receive header: %w", err)
	}

	length := binary.BigEndian.Uint16(header[2:])
	if int(length) < headerLen {
		return nil, fmt.Errorf("tpkt receive header: length %d shorter than header", length)
	}

	payload := make([]byte, int(length)-headerLen)
	if _, err := io.ReadFull(p.conn, payload); err != nil {
		return nil, fmt.Errorf("tpkt receive payload: %w", err)
	}

	return bytes.NewReader(payload), nil
}
