package cliprdr

import (
	"bytes"
	"fmt"
)

// FormatListCallback is invoked when the peer advertises the clipboard
// formats it currently holds.
type FormatListCallback func(formats []FormatName)

// DataCallback is invoked when a requested format's data arrives. The
// processor does not track which format was requested, so formatID is
// always 0.
type DataCallback func(formatID uint32, data []byte)

// Processor drives the clipboard channel state machine described by
// MS-RDPECLIP: capability exchange immediately after the channel opens,
// then Format List / Format List Response / Format Data Request/Response
// as the clipboard changes. It implements the svc.Processor contract
// (ChannelName/Process) without importing the svc package, so either
// side of the channel can host it.
type Processor struct {
	local  *Capabilities
	remote *Capabilities

	onFormatList FormatListCallback
	onData       DataCallback
}

// NewProcessor creates a clipboard processor advertising local
// capabilities. Flags should include GeneralFlagUseLongFormatNames for
// any non-legacy peer.
func NewProcessor(local *Capabilities) *Processor {
	return &Processor{local: local}
}

// ChannelName identifies this processor to a svc.Set or drdynvc.Multiplexer registry.
func (p *Processor) ChannelName() string { return ChannelName }

// OnFormatList registers the callback invoked when the peer's clipboard
// contents change.
func (p *Processor) OnFormatList(cb FormatListCallback) { p.onFormatList = cb }

// OnData registers the callback invoked when requested format data arrives.
func (p *Processor) OnData(cb DataCallback) { p.onData = cb }

// Start returns the PDUs to send once the channel is bound. The host
// calls this itself (svc channels open via channel join, not a
// request/response handshake) rather than a multiplexer invoking it
// automatically: the client's Capabilities PDU needs no peer message to
// trigger it.
func (p *Processor) Start() ([][]byte, error) {
	return [][]byte{p.local.Serialize()}, nil
}

// Process handles one complete clipboard PDU and returns any PDUs to
// send back.
func (p *Processor) Process(payload []byte) ([][]byte, error) {
	r := bytes.NewReader(payload)
	header, err := DeserializeHeader(r)
	if err != nil {
		return nil, fmt.Errorf("cliprdr: %w", err)
	}

	switch header.MsgType {
	case MsgTypeMonitorReady:
		return [][]byte{p.local.Serialize()}, nil

	case MsgTypeCapabilities:
		caps, err := DeserializeCapabilities(r)
		if err != nil {
			return nil, err
		}
		p.remote = caps
		return nil, nil

	case MsgTypeFormatList:
		list, err := DeserializeFormatList(r, header.DataLen)
		if err != nil {
			return nil, err
		}
		if p.onFormatList != nil {
			p.onFormatList(list.Formats)
		}
		resp := FormatListResponse{OK: true}
		return [][]byte{resp.Serialize()}, nil

	case MsgTypeFormatListResponse:
		return nil, nil

	case MsgTypeFormatDataRequest:
		req, err := DeserializeFormatDataRequest(r)
		if err != nil {
			return nil, err
		}
		// No local clipboard source wired in; report the request failed
		// rather than block waiting on a host callback that does not
		// exist yet.
		_ = req
		resp := FormatDataResponse{OK: false}
		return [][]byte{resp.Serialize()}, nil

	case MsgTypeFormatDataResponse:
		resp, err := DeserializeFormatDataResponse(r, header.DataLen, header.MsgFlags&FlagResponseOK != 0)
		if err != nil {
			return nil, err
		}
		if p.onData != nil && resp.OK {
			p.onData(0, resp.Data)
		}
		return nil, nil

	default:
		return nil, nil
	}
}

// RequestFormat builds a Format Data Request PDU for formatID.
func (p *Processor) RequestFormat(formatID uint32) []byte {
	req := FormatDataRequest{FormatID: formatID}
	return req.Serialize()
}

// AnnounceFormats builds a Format List PDU advertising the local
// clipboard's available formats.
func (p *Processor) AnnounceFormats(formats []FormatName) []byte {
	list := FormatList{Formats: formats}
	return list.Serialize()
}
