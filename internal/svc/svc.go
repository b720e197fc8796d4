// Package svc implements the static virtual channel registry and
// CHANNEL_PDU_HEADER chunking shared by every MS-RDPBCGR static channel
// (drdynvc, cliprdr, rdpsnd, ...): one channel id per registered name,
// inbound defragmentation bounded by the advertised total length, and
// outbound fragmentation into CHANNEL_FLAG_FIRST/CHANNEL_FLAG_LAST chunks
// sized to the channel's negotiated MCS send data size.
package svc

import (
	"encoding/binary"

	"github.com/rcarmo/go-rdp-core/internal/protocolerr"
)

// Channel PDU flags (MS-RDPBCGR 2.2.6.1 CHANNEL_PDU_HEADER.flags).
const (
	FlagFirst            uint32 = 0x00000001
	FlagLast             uint32 = 0x00000002
	FlagShowProtocol     uint32 = 0x00000010
	FlagSuspend          uint32 = 0x00000020
	FlagResume           uint32 = 0x00000040
	FlagShadowPersistent uint32 = 0x00000080
	FlagPacketCompressed uint32 = 0x00200000
	FlagPacketAtFront    uint32 = 0x00100000
	FlagPacketFlushed    uint32 = 0x00080000
)

// Header is CHANNEL_PDU_HEADER: an 8-byte prefix on every static virtual
// channel PDU giving the uncompressed total length of the (possibly
// fragmented) message and flags describing this fragment.
type Header struct {
	Length uint32
	Flags  uint32
}

// Serialize encodes the header.
func (h Header) Serialize() []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], h.Length)
	binary.LittleEndian.PutUint32(buf[4:8], h.Flags)
	return buf
}

// Deserialize decodes the header from the start of data, returning the
// bytes following it.
func Deserialize(data []byte) (Header, []byte, error) {
	if len(data) < 8 {
		return Header{}, nil, &protocolerr.NotEnoughBytes{Received: len(data), Expected: 8}
	}
	h := Header{
		Length: binary.LittleEndian.Uint32(data[0:4]),
		Flags:  binary.LittleEndian.Uint32(data[4:8]),
	}
	return h, data[8:], nil
}

// IsFirst reports whether this fragment starts a message.
func (h Header) IsFirst() bool { return h.Flags&FlagFirst != 0 }

// IsLast reports whether this fragment ends a message.
func (h Header) IsLast() bool { return h.Flags&FlagLast != 0 }

// Processor is a static channel's collaborator: it receives each
// complete (reassembled) inbound message and returns zero or more
// outbound messages to deliver back on the same channel.
type Processor interface {
	ChannelName() string
	Process(payload []byte) ([][]byte, error)
}

type defragmenter struct {
	buffer    []byte
	total     uint32
	receiving bool
}

func (d *defragmenter) process(h Header, data []byte) ([]byte, bool, error) {
	if h.IsFirst() {
		d.buffer = d.buffer[:0]
		d.total = h.Length
		d.receiving = true
	}

	if !d.receiving {
		return nil, false, &protocolerr.InvalidMessage{Field: "CHANNEL_PDU_HEADER", Reason: "fragment received with no preceding first chunk"}
	}

	if uint32(len(d.buffer)+len(data)) > d.total {
		return nil, false, &protocolerr.InvalidMessage{Field: "CHANNEL_PDU_HEADER.length", Reason: "fragment total exceeds advertised length"}
	}

	d.buffer = append(d.buffer, data...)

	if h.IsLast() {
		d.receiving = false
		return d.buffer, true, nil
	}

	return nil, false, nil
}

// channelState is the dispatch entry for one joined static channel.
type channelState struct {
	id        uint16
	name      string
	processor Processor
	defrag    defragmenter
}

// Set is the registry of a session's joined static virtual channels. It
// maps MCS channel ids (assigned during channel connection) to the
// processor registered against that channel's name, handles
// defragmentation on the way in, and chunking on the way out.
type Set struct {
	byID      map[uint16]*channelState
	byName    map[string]*channelState
	chunkSize int
}

// NewSet creates an empty registry. chunkSize bounds the payload size of
// one outbound fragment and should be the MCS layer's negotiated maximum
// send data size minus the 8-byte CHANNEL_PDU_HEADER.
func NewSet(chunkSize int) *Set {
	return &Set{
		byID:      make(map[uint16]*channelState),
		byName:    make(map[string]*channelState),
		chunkSize: chunkSize,
	}
}

// Register associates a processor with a channel name. Bind must be
// called once the channel's MCS id is known (after channel join) before
// traffic can be dispatched to it.
func (s *Set) Register(p Processor) {
	s.byName[p.ChannelName()] = &channelState{name: p.ChannelName(), processor: p}
}

// Bind assigns the MCS channel id negotiated for a registered channel
// name. Channel names with no registered processor are ignored: the
// session simply won't dispatch their traffic anywhere.
func (s *Set) Bind(name string, channelID uint16) {
	cs, ok := s.byName[name]
	if !ok {
		return
	}
	cs.id = channelID
	s.byID[channelID] = cs
}

// HasChannel reports whether a channel id has a bound processor.
func (s *Set) HasChannel(channelID uint16) bool {
	_, ok := s.byID[channelID]
	return ok
}

// HandleData processes one inbound MCS Send Data Indication payload
// addressed to channelID: CHANNEL_PDU_HEADER framing, defragmentation,
// and dispatch to the bound Processor. It returns the outbound messages
// (already chunked) the processor produced, or nil if channelID has no
// bound processor or the fragment did not complete a message.
func (s *Set) HandleData(channelID uint16, data []byte) ([][]byte, error) {
	cs, ok := s.byID[channelID]
	if !ok {
		return nil, nil
	}

	header, body, err := Deserialize(data)
	if err != nil {
		return nil, err
	}

	complete, done, err := cs.defrag.process(header, body)
	if err != nil {
		return nil, err
	}
	if !done {
		return nil, nil
	}

	out, err := cs.processor.Process(complete)
	if err != nil {
		return nil, err
	}

	return s.Chunk(channelID, out), nil
}

// Chunk fragments outbound messages into CHANNEL_PDU_HEADER-framed
// chunks no larger than the registry's chunkSize, setting
// FlagFirst/FlagLast appropriately. A message that fits in one chunk
// still carries both flags (MS-RDPBCGR 2.2.6.1).
func (s *Set) Chunk(channelID uint16, messages [][]byte) [][]byte {
	_ = channelID
	var frames [][]byte
	for _, msg := range messages {
		frames = append(frames, s.chunkOne(msg)...)
	}
	return frames
}

func (s *Set) chunkOne(msg []byte) [][]byte {
	total := uint32(len(msg))
	if len(msg) <= s.chunkSize {
		h := Header{Length: total, Flags: FlagFirst | FlagLast}
		return [][]byte{append(h.Serialize(), msg...)}
	}

	var frames [][]byte
	rest := msg
	first := true
	for len(rest) > 0 {
		n := s.chunkSize
		if n > len(rest) {
			n = len(rest)
		}
		flags := uint32(0)
		if first {
			flags |= FlagFirst
			first = false
		}
		if n == len(rest) {
			flags |= FlagLast
		}
		h := Header{Length: total, Flags: flags}
		frames = append(frames, append(h.Serialize(), rest[:n]...))
		rest = rest[n:]
	}
	return frames
}

// ChannelID returns the bound MCS channel id for a registered channel
// name, or false if it has not been bound yet.
func (s *Set) ChannelID(name string) (uint16, bool) {
	cs, ok := s.byName[name]
	if !ok || cs.id == 0 {
		return 0, false
	}
	return cs.id, true
}
