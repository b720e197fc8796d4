package drdynvc

import "fmt"

// SVCAdapter lets a Multiplexer register as the static channel processor
// for "drdynvc", dispatching each reassembled static virtual channel
// message to the Multiplexer handler matching its DYNVC command id. It
// exists because the static channel registry and the Multiplexer speak
// different shapes (one message at a time vs. a channel-id-plus-payload
// pair) and need a seam between them.
type SVCAdapter struct {
	Mux *Multiplexer
}

// NewSVCAdapter wraps mux so it can be registered with a static channel
// set under the "drdynvc" name.
func NewSVCAdapter(mux *Multiplexer) *SVCAdapter {
	return &SVCAdapter{Mux: mux}
}

// ChannelName identifies the static channel this adapter serves.
func (a *SVCAdapter) ChannelName() string { return ChannelName }

// Process decodes the command from a reassembled drdynvc PDU and routes
// it to the matching Multiplexer handler.
func (a *SVCAdapter) Process(payload []byte) ([][]byte, error) {
	if len(payload) == 0 {
		return nil, nil
	}

	var h Header
	h.Deserialize(payload[0])

	switch h.Cmd {
	case CmdCapability:
		resp, err := a.Mux.HandleCapabilities(payload)
		if err != nil {
			return nil, err
		}
		return [][]byte{resp}, nil
	case CmdCreate:
		resp, start, err := a.Mux.HandleCreateRequest(payload)
		if err != nil {
			return nil, err
		}
		return append([][]byte{resp}, start...), nil
	case CmdDataFirst:
		return a.Mux.HandleDataFirst(payload)
	case CmdData:
		return a.Mux.HandleData(payload)
	case CmdClose:
		return nil, a.Mux.HandleClose(payload)
	default:
		return nil, fmt.Errorf("drdynvc: unsupported command 0x%x", h.Cmd)
	}
}
