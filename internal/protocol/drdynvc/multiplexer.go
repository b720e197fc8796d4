package drdynvc

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/rcarmo/go-rdp-core/internal/protocolerr"
)

// Processor is the per-channel collaborator a host registers against a
// channel name. Start is called once the channel transitions to Open and
// returns any messages the processor wants to send immediately; Process
// is called for every complete reassembled message the channel delivers.
// An error from Process closes the channel locally.
type Processor interface {
	ChannelName() string
	Start(channelID uint32) ([][]byte, error)
	Process(channelID uint32, payload []byte) ([][]byte, error)
}

// ChannelState is the lifecycle of one dynamic channel, per MS-RDPEDYC:
// Idle -> Open (accepted) or Refused (denied); Open -> Assembling on
// DataFirst -> back to Open once reassembly completes; Close is terminal
// from any non-terminal state.
type ChannelState uint8

const (
	ChannelIdle ChannelState = iota
	ChannelOpen
	ChannelAssembling
	ChannelRefused
	ChannelClosed
)

type channel struct {
	id        uint32
	name      string
	state     ChannelState
	processor Processor

	reassembly     []byte
	reassemblyWant int
}

// MaxSupportedVersion is the highest DVC capability version this
// multiplexer negotiates down to.
const MaxSupportedVersion = CapsVersion3

// Multiplexer runs the Dynamic Virtual Channel sub-protocol inside the
// drdynvc static channel: capability negotiation, channel create/refuse,
// fragment reassembly, and per-channel dispatch to registered Processors.
type Multiplexer struct {
	version    uint16
	processors map[string]Processor
	channels   map[uint32]*channel
	// fragmentBudget bounds the size of one outbound Data/DataFirst
	// payload, leaving room for the DVC header in the SVC fragment the
	// session will further chunk.
	fragmentBudget int
}

// NewMultiplexer creates an empty multiplexer. Register processors with
// Register before traffic arrives; fragmentBudget should be the SVC
// layer's negotiated MCS PDU size minus the largest DVC header (8 bytes
// is ample headroom).
func NewMultiplexer(fragmentBudget int) *Multiplexer {
	return &Multiplexer{
		processors:     make(map[string]Processor),
		channels:       make(map[uint32]*channel),
		fragmentBudget: fragmentBudget,
	}
}

// Register adds a processor the multiplexer will accept Create Requests
// for, keyed by its declared channel name.
func (m *Multiplexer) Register(p Processor) {
	m.processors[p.ChannelName()] = p
}

// HandleCapabilities processes a server DYNVC_CAPS PDU and returns the
// client's capability response: the lower of the server's advertised
// version and MaxSupportedVersion.
func (m *Multiplexer) HandleCapabilities(payload []byte) ([]byte, error) {
	var caps CapsPDU
	if err := caps.Deserialize(bytes.NewReader(payload)); err != nil {
		return nil, fmt.Errorf("drdynvc capabilities: %w", err)
	}

	negotiated := caps.Version
	if negotiated > MaxSupportedVersion {
		negotiated = MaxSupportedVersion
	}
	m.version = negotiated

	resp := CapsPDU{Version: negotiated}
	return resp.Serialize(), nil
}

// HandleCreateRequest processes a server Create Request and returns the
// client's Create Response bytes plus any messages the newly-opened
// channel's processor emits on Start. If no processor is registered for
// the channel name, the response carries CreateResultChannelNotFound and
// the channel is marked Refused.
func (m *Multiplexer) HandleCreateRequest(payload []byte) ([]byte, [][]byte, error) {
	_, cbChID, rest, err := ParsePDU(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("drdynvc create request: %w", err)
	}

	channelID, rest, err := ReadChannelID(rest, cbChID)
	if err != nil {
		return nil, nil, fmt.Errorf("drdynvc create request channel id: %w", err)
	}

	name, err := parseCString(rest)
	if err != nil {
		return nil, nil, fmt.Errorf("drdynvc create request name: %w", err)
	}

	proc, found := m.processors[name]
	if !found {
		m.channels[channelID] = &channel{id: channelID, name: name, state: ChannelRefused}
		return buildCreateResponse(channelID, CreateResultChannelNotFound), nil, nil
	}

	ch := &channel{id: channelID, name: name, state: ChannelOpen, processor: proc}
	m.channels[channelID] = ch

	out, serr := proc.Start(channelID)
	if serr != nil {
		ch.state = ChannelClosed
		return buildCreateResponse(channelID, CreateResultDenied), nil, serr
	}

	return buildCreateResponse(channelID, CreateResultOK), m.chunkify(channelID, out), nil
}

// buildCreateResponse encodes DYNVC_CREATE_RSP (MS-RDPEDYC 2.2.2.2).
func buildCreateResponse(channelID uint32, code uint32) []byte {
	buf := new(bytes.Buffer)

	var cbChID uint8
	switch {
	case channelID <= 0xFF:
		cbChID = 0
	case channelID <= 0xFFFF:
		cbChID = 1
	default:
		cbChID = 2
	}

	header := Header{CbChID: cbChID, Sp: 0, Cmd: CmdCreate}
	buf.WriteByte(header.Serialize())

	switch cbChID {
	case 0:
		buf.WriteByte(byte(channelID))
	case 1:
		_ = binary.Write(buf, binary.LittleEndian, uint16(channelID))
	case 2:
		_ = binary.Write(buf, binary.LittleEndian, channelID)
	}

	_ = binary.Write(buf, binary.LittleEndian, code)
	return buf.Bytes()
}

// parseCString reads a NUL-terminated ASCII string, as used for DVC
// channel names.
func parseCString(data []byte) (string, error) {
	idx := bytes.IndexByte(data, 0)
	if idx < 0 {
		return "", &protocolerr.InvalidMessage{Field: "ChannelName", Reason: "missing NUL terminator"}
	}
	return string(data[:idx]), nil
}

// parseVarLength reads the DataFirst total-length field, whose width is
// carried in the header's Sp bits (0=1 byte, 1=2 bytes, 2=4 bytes).
func parseVarLength(data []byte, sp uint8) (length int, remaining []byte, err error) {
	var size int
	switch sp {
	case 0:
		size = 1
	case 1:
		size = 2
	default:
		size = 4
	}

	if len(data) < size {
		return 0, nil, &protocolerr.NotEnoughBytes{Received: len(data), Expected: size}
	}

	switch sp {
	case 0:
		length = int(data[0])
	case 1:
		length = int(binary.LittleEndian.Uint16(data[:2]))
	default:
		length = int(binary.LittleEndian.Uint32(data[:4]))
	}

	return length, data[size:], nil
}

// HandleDataFirst processes a DataFirst fragment: it starts (or restarts)
// reassembly for the channel, bounded by the advertised total length.
// Unknown channel ids are dropped, not escalated.
func (m *Multiplexer) HandleDataFirst(payload []byte) ([][]byte, error) {
	_, cbChID, rest, err := ParsePDU(payload)
	if err != nil {
		return nil, fmt.Errorf("drdynvc data first: %w", err)
	}

	channelID, rest, err := ReadChannelID(rest, cbChID)
	if err != nil {
		return nil, fmt.Errorf("drdynvc data first channel id: %w", err)
	}

	var h Header
	h.Deserialize(payload[0])

	totalLen, data, err := parseVarLength(rest, h.Sp)
	if err != nil {
		return nil, fmt.Errorf("drdynvc data first length: %w", err)
	}

	ch, ok := m.channels[channelID]
	if !ok || ch.state == ChannelClosed || ch.state == ChannelRefused {
		return nil, nil
	}

	if len(data) > totalLen {
		return nil, &protocolerr.InvalidMessage{Field: "DataFirst.totalLength", Reason: "fragment longer than advertised total"}
	}

	ch.reassembly = append([]byte{}, data...)
	ch.reassemblyWant = totalLen
	ch.state = ChannelAssembling

	if len(ch.reassembly) == ch.reassemblyWant {
		return m.deliver(ch)
	}

	return nil, nil
}

// HandleData processes a Data PDU: either a complete message (channel was
// Open, no DataFirst pending) or a reassembly continuation.
func (m *Multiplexer) HandleData(payload []byte) ([][]byte, error) {
	_, cbChID, rest, err := ParsePDU(payload)
	if err != nil {
		return nil, fmt.Errorf("drdynvc data: %w", err)
	}

	channelID, data, err := ReadChannelID(rest, cbChID)
	if err != nil {
		return nil, fmt.Errorf("drdynvc data channel id: %w", err)
	}

	ch, ok := m.channels[channelID]
	if !ok || ch.state == ChannelClosed || ch.state == ChannelRefused {
		return nil, nil
	}

	if ch.state == ChannelAssembling {
		if len(ch.reassembly)+len(data) > ch.reassemblyWant {
			return nil, &protocolerr.InvalidMessage{Field: "Data", Reason: "reassembly exceeds advertised total length"}
		}
		ch.reassembly = append(ch.reassembly, data...)
		if len(ch.reassembly) < ch.reassemblyWant {
			return nil, nil
		}
		return m.deliver(ch)
	}

	ch.reassembly = data
	ch.reassemblyWant = len(data)
	return m.deliver(ch)
}

// HandleClose processes a Close PDU from either side; reassembly buffers
// are discarded and the channel becomes terminal.
func (m *Multiplexer) HandleClose(payload []byte) error {
	_, cbChID, rest, err := ParsePDU(payload)
	if err != nil {
		return fmt.Errorf("drdynvc close: %w", err)
	}
	channelID, _, err := ReadChannelID(rest, cbChID)
	if err != nil {
		return fmt.Errorf("drdynvc close channel id: %w", err)
	}

	if ch, ok := m.channels[channelID]; ok {
		ch.state = ChannelClosed
		ch.reassembly = nil
	}
	return nil
}

// deliver hands a complete reassembled message to its channel's processor
// and, on processor error, closes the channel and returns a Close PDU for
// the session to send, isolating failures to the offending channel.
func (m *Multiplexer) deliver(ch *channel) ([][]byte, error) {
	payload := ch.reassembly
	ch.reassembly = nil
	ch.reassemblyWant = 0
	ch.state = ChannelOpen

	out, err := ch.processor.Process(ch.id, payload)
	if err != nil {
		ch.state = ChannelClosed
		closePDU := ClosePDU{ChannelID: ch.id}
		return [][]byte{closePDU.Serialize()}, nil
	}

	return m.chunkify(ch.id, out), nil
}

// Send chunkifies an outbound processor message into DataFirst/Data
// sub-PDUs sized to fit fragmentBudget, mirroring the static channel
// layer's own chunking one level down.
func (m *Multiplexer) Send(channelID uint32, message []byte) [][]byte {
	return m.chunkify(channelID, [][]byte{message})
}

func (m *Multiplexer) chunkify(channelID uint32, messages [][]byte) [][]byte {
	var frames [][]byte
	for _, msg := range messages {
		if len(msg) <= m.fragmentBudget {
			d := DataPDU{ChannelID: channelID, Data: msg}
			frames = append(frames, d.Serialize())
			continue
		}

		first := DataFirstPDU{ChannelID: channelID, Length: uint32(len(msg)), Data: msg[:m.fragmentBudget]}
		frames = append(frames, first.Serialize())

		rest := msg[m.fragmentBudget:]
		for len(rest) > 0 {
			n := m.fragmentBudget
			if n > len(rest) {
				n = len(rest)
			}
			d := DataPDU{ChannelID: channelID, Data: rest[:n]}
			frames = append(frames, d.Serialize())
			rest = rest[n:]
		}
	}
	return frames
}

// Close releases a channel's local state without sending a Close PDU;
// used when the host drops the session.
func (m *Multiplexer) Close(channelID uint32) {
	if ch, ok := m.channels[channelID]; ok {
		ch.state = ChannelClosed
		ch.reassembly = nil
	}
}

// State returns a channel's current lifecycle state, or ChannelClosed if
// it was never opened.
func (m *Multiplexer) State(channelID uint32) ChannelState {
	if ch, ok := m.channels[channelID]; ok {
		return ch.state
	}
	return ChannelClosed
}
