// Package x224 implements the X.224 connection-oriented transport protocol
// used in the RDP connection sequence for initial negotiation.
package x224

import (
	"fmt"
	"io"

	"github.com/rcarmo/go-rdp-core/internal/protocol/tpkt"
)

// tpktConnection is the interface that wraps tpkt protocol operations
type tpktConnection interface {
	Receive() (io.Reader, error)
	Send(pduData []byte) error
}

// Protocol handles X.224 protocol operations
type Protocol struct {
	tpktConn tpktConnection
}

// New creates a new X.224 protocol handler
func New(tpktConn *tpkt.Protocol) *Protocol {
	return &Protocol{
		tpktConn: tpktConn,
	}
}

// NewWithConn creates a new X.224 protocol handler with an interface (for testing)
func NewWithConn(conn tpktConnection) *Protocol {
	return &Protocol{
		tpktConn: conn,
	}
}

const (
	dtroaEOT = 0xF0
	nreot    = 0x80
)

// CRCDT, DTROAEOT and NREOT are exported so a sans-I/O caller building its
// own ConnectionRequest/Data values directly (without going through
// Protocol) does not have to redeclare these TPDU code octets.
const (
	CRCDT    = crCDT
	DTROAEOT = dtroaEOT
	NREOT    = nreot
)

// Connect performs the X.224 Connection Request/Confirm exchange, carrying
// the RDP negotiation request as userData. On success the returned reader
// is positioned at the RDP negotiation response embedded in the CC TPDU.
func (p *Protocol) Connect(userData []byte) (io.Reader, error) {
	req := ConnectionRequest{
		CRCDT:    crCDT,
		UserData: userData,
	}

	if err := p.tpktConn.Send(req.Serialize()); err != nil {
		return nil, fmt.Errorf("client connection request: send failed: %w", err)
	}

	wire, err := p.tpktConn.Receive()
	if err != nil {
		return nil, fmt.Errorf("recieve connection response: receive failed: %w", err)
	}

	var confirm ConnectionConfirm
	if err := confirm.Deserialize(wire); err != nil {
		return nil, fmt.Errorf("server connection confirm: %w", err)
	}

	return wire, nil
}

// Send wraps userData in an X.224 Data TPDU and sends it over the transport.
func (p *Protocol) Send(userData []byte) error {
	data := Data{
		LI:       2,
		DTROA:    dtroaEOT,
		NREOT:    nreot,
		UserData: userData,
	}

	if err := p.tpktConn.Send(data.Serialize()); err != nil {
		return fmt.Errorf("client data: send failed: %w", err)
	}

	return nil
}

// Receive reads an X.224 Data TPDU header and returns the reader
// positioned at the payload that follows it. Errors are returned
// unwrapped so callers can match them with errors.Is against the
// sentinels this package defines.
func (p *Protocol) Receive() (io.Reader, error) {
	wire, err := p.tpktConn.Receive()
	if err != nil {
		return nil, err
	}

	var data Data
	if err := data.Deserialize(wire); err != nil {
		return nil, err
	}

	return wire, nil
}
