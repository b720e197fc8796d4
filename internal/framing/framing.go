// Package framing answers "how many more bytes until I have a complete
// PDU" for whichever of the two framings a byte stream may carry at any
// point during an RDP session: X.224 (wrapped in TPKT) during the
// connection sequence and deactivate-reactivate, and fast-path for
// steady-state input/output. It never copies the input it is given.
package framing

import (
	"github.com/rcarmo/go-rdp-core/internal/protocol/fastpath"
	"github.com/rcarmo/go-rdp-core/internal/protocol/tpkt"
)

// Action identifies which framing a buffer's leading byte selects, per
// the low two bits of that byte (MS-RDPBCGR 2.2.9.1).
type Action uint8

const (
	ActionFastPath Action = 0x0
	ActionX224     Action = 0x3
)

// DetectAction reads the first byte's low two bits. The caller must have
// at least one byte.
func DetectAction(firstByte byte) Action {
	if firstByte&0x3 == 0x3 {
		return ActionX224
	}
	return ActionFastPath
}

// FindSize dispatches on buf's first byte and returns the total number of
// bytes the next complete PDU needs, using whichever Hint applies. It
// returns false when buf does not yet carry enough bytes to know.
func FindSize(buf []byte) (size int, ok bool) {
	if len(buf) == 0 {
		return 0, false
	}

	switch DetectAction(buf[0]) {
	case ActionX224:
		return tpkt.Hint{}.Find(buf)
	default:
		return fastpath.Hint{}.Find(buf)
	}
}
