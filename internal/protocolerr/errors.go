// Package protocolerr defines the error kinds the connector and session
// state machines surface to their host, per MS-RDPBCGR's error taxonomy:
// short-circuiting decode failures (NotEnoughBytes, InvalidMessage),
// protocol-sequence failures (UnexpectedMessageType, UnsupportedVersion),
// and a catch-all for everything else domain-specific (Other).
package protocolerr

import "fmt"

// NotEnoughBytes means a decoder reached the end of its input before a
// structure was complete. The framing layer is expected to prevent this
// from reaching a PDU decoder; seeing it past framing is fatal.
type NotEnoughBytes struct {
	Received int
	Expected int
}

func (e *NotEnoughBytes) Error() string {
	return fmt.Sprintf("not enough bytes: received %d, expected %d", e.Received, e.Expected)
}

// InvalidMessage means a decoded field is out of range or inconsistent
// with the rest of the message (unknown discriminant, wrong padding,
// mismatched length).
type InvalidMessage struct {
	Field  string
	Reason string
}

func (e *InvalidMessage) Error() string {
	return fmt.Sprintf("invalid message: field %q: %s", e.Field, e.Reason)
}

// UnexpectedMessageType means a PDU's discriminant didn't match what the
// caller's protocol state expected at this point in the sequence.
type UnexpectedMessageType struct {
	Name string
	Got  string
}

func (e *UnexpectedMessageType) Error() string {
	return fmt.Sprintf("unexpected message type for %s: got %s", e.Name, e.Got)
}

// UnsupportedVersion means a PDU advertised a protocol version older or
// newer than this implementation handles.
type UnsupportedVersion struct {
	Name string
	Got  string
}

func (e *UnsupportedVersion) Error() string {
	return fmt.Sprintf("unsupported version for %s: got %s", e.Name, e.Got)
}

// Other is the catch-all for domain-specific failures that don't fit the
// other kinds; Context names the component, Reason the failure.
type Other struct {
	Context string
	Reason  string
}

func (e *Other) Error() string {
	return fmt.Sprintf("%s: %s", e.Context, e.Reason)
}
