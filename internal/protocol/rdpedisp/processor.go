package rdpedisp

import (
	"bytes"
	"fmt"
)

// ResizeRequest is a host-initiated request to change the remote desktop's
// single-monitor geometry, queued by RequestResize and drained by
// TakePending or by Process's return value when the server's Caps PDU arrives.
type ResizeRequest struct {
	Width, Height uint32
}

// Processor implements the drdynvc.Processor contract for the display
// control dynamic channel (MS-RDPEDISP): it records the server's
// capabilities when Process receives the Caps PDU and turns queued ResizeRequests
// into DISPLAYCONTROL_MONITOR_LAYOUT_PDU frames the host can send without
// tearing the session down. The wire types themselves live in
// rdpedisp.go; this type only owns the channel lifecycle around them.
type Processor struct {
	caps      CapsPDU
	pending   []ResizeRequest
	channelID uint32
	open      bool
}

// NewProcessor creates an idle display-control processor.
func NewProcessor() *Processor {
	return &Processor{}
}

// ChannelName identifies the dynamic channel this processor serves.
func (p *Processor) ChannelName() string { return ChannelName }

// Caps returns the server's advertised capabilities. Only meaningful
// after the server's Caps PDU has arrived via Process.
func (p *Processor) Caps() CapsPDU { return p.caps }

// RequestResize queues a monitor layout change. The queued layouts are
// returned by the next Process call that handles a Caps PDU, or by
// TakePending, which the host calls to send them itself through
// drdynvc.Multiplexer.Send once the channel is open.
func (p *Processor) RequestResize(width, height uint32) {
	p.pending = append(p.pending, ResizeRequest{Width: width, Height: height})
}

// TakePending returns and clears any monitor layout PDUs queued by
// RequestResize, ready for drdynvc.Multiplexer.Send on this channel.
func (p *Processor) TakePending() [][]byte {
	if len(p.pending) == 0 {
		return nil
	}
	out := make([][]byte, 0, len(p.pending))
	for _, req := range p.pending {
		layout := NewSingleMonitorLayout(req.Width, req.Height)
		out = append(out, layout.Serialize())
	}
	p.pending = nil
	return out
}

// ChannelID returns the dynamic channel id the server assigned this
// processor's channel, valid once ok is true (after Start has run).
func (p *Processor) ChannelID() (id uint32, ok bool) { return p.channelID, p.open }

// Start returns no immediate output; the client side of this channel only
// speaks once the server's Caps PDU has established what it supports.
func (p *Processor) Start(channelID uint32) ([][]byte, error) {
	p.channelID = channelID
	p.open = true
	return nil, nil
}

// Process handles one reassembled display-control PDU from the server.
// Only the Caps PDU is server-to-client per MS-RDPEDISP; any other PDU
// type returns an error.
func (p *Processor) Process(channelID uint32, payload []byte) ([][]byte, error) {
	pduType, err := ParsePDUType(payload)
	if err != nil {
		return nil, fmt.Errorf("rdpedisp: %w", err)
	}

	switch pduType {
	case PDUTypeCaps:
		var caps CapsPDU
		if err := caps.Deserialize(bytes.NewReader(payload)); err != nil {
			return nil, fmt.Errorf("rdpedisp: caps: %w", err)
		}
		p.caps = caps
		return p.TakePending(), nil

	default:
		return nil, fmt.Errorf("rdpedisp: unexpected PDU type 0x%08X from server", pduType)
	}
}
