package tpkt

import "encoding/binary"

// Hint implements the sans-I/O PduHint contract for TPKT framing: given a
// byte prefix, report how many bytes the complete TPKT packet needs. It
// holds no state and never mutates its argument.
type Hint struct{}

// Find returns the total packet length (header included) once the 4 byte
// TPKT header is available, and false while buf is still shorter than
// that.
func (Hint) Find(buf []byte) (size int, ok bool) {
	if len(buf) < headerLen {
		return 0, false
	}
	return int(binary.BigEndian.Uint16(buf[2:4])), true
}
