package drdynvc

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcessor struct {
	name       string
	startOut   [][]byte
	startErr   error
	processOut [][]byte
	processErr error
	received   [][]byte
}

func (f *fakeProcessor) ChannelName() string { return f.name }

func (f *fakeProcessor) Start(channelID uint32) ([][]byte, error) {
	return f.startOut, f.startErr
}

func (f *fakeProcessor) Process(channelID uint32, payload []byte) ([][]byte, error) {
	f.received = append(f.received, payload)
	return f.processOut, f.processErr
}

func TestMultiplexer_HandleCapabilities_NegotiatesDown(t *testing.T) {
	m := NewMultiplexer(1024)

	serverCaps := CapsPDU{Version: CapsVersion3, PriorityCharge0: 1, PriorityCharge1: 2, PriorityCharge2: 3, PriorityCharge3: 4}
	resp, err := m.HandleCapabilities(serverCaps.Serialize())
	require.NoError(t, err)

	var decoded CapsPDU
	require.NoError(t, decoded.Deserialize(bytes.NewReader(resp)))
	assert.Equal(t, CapsVersion3, decoded.Version)
	assert.Equal(t, CapsVersion3, m.version)
}

func TestMultiplexer_CreateRequest_AcceptsRegisteredChannel(t *testing.T) {
	m := NewMultiplexer(1024)
	proc := &fakeProcessor{name: "MYCHAN", startOut: [][]byte{[]byte("hello")}}
	m.Register(proc)

	req := CreateRequestPDU{ChannelID: 7, ChannelName: "MYCHAN"}
	resp, out, err := m.HandleCreateRequest(req.Serialize())
	require.NoError(t, err)

	var decoded CreateResponsePDU
	require.NoError(t, decoded.Deserialize(bytes.NewReader(resp[1:]), 0))
	assert.True(t, decoded.IsSuccess())
	assert.Equal(t, uint32(7), decoded.ChannelID)

	require.Len(t, out, 1)
	assert.Equal(t, ChannelOpen, m.State(7))
}

func TestMultiplexer_CreateRequest_RefusesUnknownChannel(t *testing.T) {
	m := NewMultiplexer(1024)

	req := CreateRequestPDU{ChannelID: 9, ChannelName: "NOBODY_HOME"}
	resp, out, err := m.HandleCreateRequest(req.Serialize())
	require.NoError(t, err)
	assert.Nil(t, out)

	var decoded CreateResponsePDU
	require.NoError(t, decoded.Deserialize(bytes.NewReader(resp[1:]), 0))
	assert.False(t, decoded.IsSuccess())
	assert.Equal(t, CreateResultChannelNotFound, decoded.CreationCode)
	assert.Equal(t, ChannelRefused, m.State(9))
}

func TestMultiplexer_DataFirstThenData_ReassemblesAndDelivers(t *testing.T) {
	m := NewMultiplexer(1024)
	proc := &fakeProcessor{name: "CH"}
	m.Register(proc)

	req := CreateRequestPDU{ChannelID: 3, ChannelName: "CH"}
	_, _, err := m.HandleCreateRequest(req.Serialize())
	require.NoError(t, err)

	full := []byte("0123456789")
	first := DataFirstPDU{ChannelID: 3, Length: uint32(len(full)), Data: full[:4]}
	out, err := m.HandleDataFirst(first.Serialize())
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Equal(t, ChannelAssembling, m.State(3))

	rest := DataPDU{ChannelID: 3, Data: full[4:]}
	out, err = m.HandleData(rest.Serialize())
	require.NoError(t, err)
	assert.Equal(t, ChannelOpen, m.State(3))

	require.Len(t, proc.received, 1)
	assert.Equal(t, full, proc.received[0])
	assert.Nil(t, out)
}

func TestMultiplexer_SingleData_DeliversWithoutReassembly(t *testing.T) {
	m := NewMultiplexer(1024)
	proc := &fakeProcessor{name: "CH"}
	m.Register(proc)

	req := CreateRequestPDU{ChannelID: 5, ChannelName: "CH"}
	_, _, err := m.HandleCreateRequest(req.Serialize())
	require.NoError(t, err)

	msg := DataPDU{ChannelID: 5, Data: []byte("short message")}
	_, err = m.HandleData(msg.Serialize())
	require.NoError(t, err)

	require.Len(t, proc.received, 1)
	assert.Equal(t, []byte("short message"), proc.received[0])
}

func TestMultiplexer_DataFirst_RejectsOversizedFragment(t *testing.T) {
	m := NewMultiplexer(1024)
	proc := &fakeProcessor{name: "CH"}
	m.Register(proc)

	req := CreateRequestPDU{ChannelID: 1, ChannelName: "CH"}
	_, _, err := m.HandleCreateRequest(req.Serialize())
	require.NoError(t, err)

	first := DataFirstPDU{ChannelID: 1, Length: 2, Data: []byte("toolong")}
	_, err = m.HandleDataFirst(first.Serialize())
	require.Error(t, err)
}

func TestMultiplexer_ProcessError_ClosesChannelAndEmitsClose(t *testing.T) {
	m := NewMultiplexer(1024)
	proc := &fakeProcessor{name: "CH", processErr: errors.New("boom")}
	m.Register(proc)

	req := CreateRequestPDU{ChannelID: 11, ChannelName: "CH"}
	_, _, err := m.HandleCreateRequest(req.Serialize())
	require.NoError(t, err)

	msg := DataPDU{ChannelID: 11, Data: []byte("x")}
	out, err := m.HandleData(msg.Serialize())
	require.NoError(t, err)
	require.Len(t, out, 1)

	cmd, _, _, perr := ParsePDU(out[0])
	require.NoError(t, perr)
	assert.Equal(t, CmdClose, cmd)
	assert.Equal(t, ChannelClosed, m.State(11))
}

func TestMultiplexer_HandleClose_MarksTerminal(t *testing.T) {
	m := NewMultiplexer(1024)
	proc := &fakeProcessor{name: "CH"}
	m.Register(proc)

	req := CreateRequestPDU{ChannelID: 2, ChannelName: "CH"}
	_, _, err := m.HandleCreateRequest(req.Serialize())
	require.NoError(t, err)

	closePDU := ClosePDU{ChannelID: 2}
	require.NoError(t, m.HandleClose(closePDU.Serialize()))
	assert.Equal(t, ChannelClosed, m.State(2))
}

func TestMultiplexer_Send_ChunksLargeMessages(t *testing.T) {
	m := NewMultiplexer(4)
	m.channels[1] = &channel{id: 1, state: ChannelOpen}

	frames := m.Send(1, []byte("0123456789"))
	require.True(t, len(frames) > 1)

	cmd, cbChID, rest, err := ParsePDU(frames[0])
	require.NoError(t, err)
	assert.Equal(t, CmdDataFirst, cmd)
	channelID, _, err := ReadChannelID(rest, cbChID)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), channelID)

	for _, f := range frames[1:] {
		cmd, _, _, err := ParsePDU(f)
		require.NoError(t, err)
		assert.Equal(t, CmdData, cmd)
	}
}

func TestMultiplexer_UnknownChannel_IsIgnored(t *testing.T) {
	m := NewMultiplexer(1024)

	msg := DataPDU{ChannelID: 99, Data: []byte("x")}
	out, err := m.HandleData(msg.Serialize())
	require.NoError(t, err)
	assert.Nil(t, out)
}

// A Create Response accepting channel 3 is six bytes: the header byte
// (Cmd=1, cbChID=0), the one byte channel id, and a zero status.
func TestMultiplexer_CreateResponse_WireBytes(t *testing.T) {
	m := NewMultiplexer(1024)
	proc := &fakeProcessor{name: "display"}
	m.Register(proc)

	req := CreateRequestPDU{ChannelID: 3, ChannelName: "display"}
	resp, _, err := m.HandleCreateRequest(req.Serialize())
	require.NoError(t, err)

	assert.Equal(t, []byte{0x10, 0x03, 0x00, 0x00, 0x00, 0x00}, resp)
}
