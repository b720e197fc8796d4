package fastpath

import "errors"

// ErrUnexpectedX224 is returned when a fast-path update header carries the
// X224 action code; the caller has to fall back to the slow-path PDU
// decoder for that packet instead.
var ErrUnexpectedX224 = errors.New("unexpected x224 action")
