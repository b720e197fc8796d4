package pdu

import "io"

const (
	// Type2ShutdownRequest PDUTYPE2_SHUTDOWN_REQUEST (MS-RDPBCGR 2.2.2.1)
	Type2ShutdownRequest Type2 = 0x24

	// Type2ShutdownDenied PDUTYPE2_SHUTDOWN_DENIED (MS-RDPBCGR 2.2.2.2)
	Type2ShutdownDenied Type2 = 0x25
)

// IsShutdownRequest returns true if the PDU type 2 is Shutdown Request.
func (t Type2) IsShutdownRequest() bool {
	return t == Type2ShutdownRequest
}

// IsShutdownDenied returns true if the PDU type 2 is Shutdown Denied.
func (t Type2) IsShutdownDenied() bool {
	return t == Type2ShutdownDenied
}

// ShutdownRequestPDUData is the TS_SHUTDOWN_REQUEST_PDU body: it carries
// no fields of its own beyond the share data header, the client sends it
// to ask the server to end the session gracefully.
type ShutdownRequestPDUData struct{}

// NewShutdownRequest builds the share data PDU a client sends to start a
// graceful disconnect.
func NewShutdownRequest(shareID uint32, userID uint16) *Data {
	return &Data{
		ShareDataHeader:        *newShareDataHeader(shareID, userID, TypeData, Type2ShutdownRequest),
		ShutdownRequestPDUData: &ShutdownRequestPDUData{},
	}
}

func (d *ShutdownRequestPDUData) Serialize() []byte { return nil }

func (d *ShutdownRequestPDUData) Deserialize(wire io.Reader) error { return nil }

// ShutdownDeniedPDUData is the TS_SHUTDOWN_DENIED_PDU body: the server's
// reply confirming it received the client's Shutdown Request and that
// the client should proceed to tear down the MCS connection itself.
type ShutdownDeniedPDUData struct{}

func (d *ShutdownDeniedPDUData) Serialize() []byte { return nil }

func (d *ShutdownDeniedPDUData) Deserialize(wire io.Reader) error { return nil }
