package audio

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	format uint16
	data   []byte
}

func (f *fakeSink) Write(formatIndex uint16, data []byte) {
	f.format = formatIndex
	f.data = append([]byte(nil), data...)
}

func pcmFormat() AudioFormat {
	return AudioFormat{FormatTag: WAVE_FORMAT_PCM, Channels: 2, SamplesPerSec: 44100, AvgBytesPerSec: 176400, BlockAlign: 4, BitsPerSample: 16}
}

func serverFormatsWire(formats []AudioFormat) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint32(1))            // Flags
	_ = binary.Write(&buf, binary.LittleEndian, uint32(0))            // Volume
	_ = binary.Write(&buf, binary.LittleEndian, uint32(0))            // Pitch
	_ = binary.Write(&buf, binary.LittleEndian, uint16(0))            // DGramPort
	_ = binary.Write(&buf, binary.LittleEndian, uint16(len(formats))) // NumFormats
	_ = binary.Write(&buf, binary.LittleEndian, uint8(0))             // LastBlockConfirmed
	_ = binary.Write(&buf, binary.LittleEndian, uint16(6))            // Version
	_ = binary.Write(&buf, binary.LittleEndian, uint8(0))             // Pad
	for _, f := range formats {
		buf.Write(f.Serialize())
	}
	return buf.Bytes()
}

func trainingWire(timestamp, packSize uint16) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, timestamp)
	_ = binary.Write(&buf, binary.LittleEndian, packSize)
	return buf.Bytes()
}

func TestProcessor_ServerFormatsRoundTrip(t *testing.T) {
	p := NewProcessor([]AudioFormat{pcmFormat()}, nil)

	out, err := p.Process(buildPDU(SND_FORMATS, serverFormatsWire([]AudioFormat{pcmFormat()})))
	require.NoError(t, err)
	require.Len(t, out, 1)

	var hdr PDUHeader
	require.NoError(t, hdr.Deserialize(bytes.NewReader(out[0][:4])))
	assert.Equal(t, uint8(SND_FORMATS), hdr.MsgType)
	assert.True(t, p.negotiated)
}

func TestProcessor_TrainingConfirm(t *testing.T) {
	p := NewProcessor(nil, nil)

	out, err := p.Process(buildPDU(SND_TRAINING, trainingWire(42, 4)))
	require.NoError(t, err)
	require.Len(t, out, 1)

	var hdr PDUHeader
	require.NoError(t, hdr.Deserialize(bytes.NewReader(out[0][:4])))
	assert.Equal(t, uint8(SND_TRAINING), hdr.MsgType)
	assert.Equal(t, uint16(42), binary.LittleEndian.Uint16(out[0][4:6]))
}

func TestProcessor_WaveInfoDeliversToSink(t *testing.T) {
	sink := &fakeSink{}
	p := NewProcessor(nil, sink)

	body := []byte{0x10, 0x00, 0x02, 0x00, 0x05, 0, 0, 0, 0xAA, 0xBB, 0xCC, 0xDD}
	out, err := p.Process(buildPDU(SND_WAVE, body))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, uint8(SND_WAVE_CONFIRM), out[0][0])
	assert.Equal(t, uint16(2), sink.format)
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC, 0xDD}, sink.data)
}

func TestProcessor_CloseResetsNegotiation(t *testing.T) {
	p := NewProcessor(nil, nil)
	p.negotiated = true

	out, err := p.Process(buildPDU(SND_CLOSE, nil))
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.False(t, p.negotiated)
}

func TestProcessor_TooShortRejected(t *testing.T) {
	p := NewProcessor(nil, nil)
	_, err := p.Process([]byte{0x01})
	assert.Error(t, err)
}

func TestProcessor_ChannelName(t *testing.T) {
	p := NewProcessor(nil, nil)
	assert.Equal(t, ChannelRDPSND, p.ChannelName())
}
