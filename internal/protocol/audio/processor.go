package audio

import (
	"bytes"
	"fmt"
)

// PlaybackSink receives decoded PCM audio blocks the server streams down
// the rdpsnd channel. The host registers one with NewProcessor; nil means
// audio is negotiated but silently dropped.
type PlaybackSink interface {
	Write(formatIndex uint16, data []byte)
}

// Processor implements the svc.Processor contract for the rdpsnd static
// channel (MS-RDPEA): it answers Server Audio Formats with the client's
// supported subset, acknowledges Training PDUs, and forwards Wave/Wave2
// payloads to a host-supplied PlaybackSink. CHANNEL_PDU_HEADER
// defragmentation happens in the static channel registry before payloads
// reach Process, so each call sees one complete rdpsnd message.
type Processor struct {
	formats []AudioFormat
	sink    PlaybackSink

	negotiated bool
	lastFormat uint16
}

// NewProcessor builds an rdpsnd processor advertising formats as the
// client's supported set. An empty list still completes the handshake
// (the client simply supports nothing the server can use).
func NewProcessor(formats []AudioFormat, sink PlaybackSink) *Processor {
	return &Processor{formats: formats, sink: sink}
}

// ChannelName identifies the static channel this processor serves.
func (p *Processor) ChannelName() string { return ChannelRDPSND }

// Process handles one reassembled rdpsnd PDU and returns the response
// PDUs (already wrapped with the RDPSND PDUHeader) to send back.
func (p *Processor) Process(payload []byte) ([][]byte, error) {
	if len(payload) < 4 {
		return nil, fmt.Errorf("audio: rdpsnd PDU too short: %d bytes", len(payload))
	}

	var hdr PDUHeader
	if err := hdr.Deserialize(bytes.NewReader(payload[:4])); err != nil {
		return nil, fmt.Errorf("audio: %w", err)
	}
	body := payload[4:]

	switch hdr.MsgType {
	case SND_FORMATS:
		return p.handleServerFormats(body)
	case SND_TRAINING:
		return p.handleTraining(body)
	case SND_WAVE:
		return p.handleWaveInfo(body)
	case SND_WAVE2:
		return p.handleWave2(body)
	case SND_CLOSE:
		p.negotiated = false
		return nil, nil
	default:
		// Volume/pitch/crypt-key/quality-mode carry no client response.
		return nil, nil
	}
}

func (p *Processor) handleServerFormats(body []byte) ([][]byte, error) {
	var server ServerAudioFormats
	if err := server.Deserialize(body); err != nil {
		return nil, fmt.Errorf("audio: server formats: %w", err)
	}

	p.negotiated = true

	resp := ClientAudioFormats{
		Flags:      server.Flags,
		Volume:     0xFFFFFFFF,
		Pitch:      0x00010000,
		Version:    server.Version,
		NumFormats: uint16(len(p.formats)),
		Formats:    p.formats,
	}

	return [][]byte{buildPDU(SND_FORMATS, resp.Serialize())}, nil
}

func (p *Processor) handleTraining(body []byte) ([][]byte, error) {
	var training TrainingPDU
	if err := training.Deserialize(body); err != nil {
		return nil, fmt.Errorf("audio: training: %w", err)
	}

	confirm := TrainingConfirmPDU{Timestamp: training.Timestamp, PackSize: training.PackSize}
	return [][]byte{buildPDU(SND_TRAINING, confirm.Serialize())}, nil
}

func (p *Processor) handleWaveInfo(body []byte) ([][]byte, error) {
	var wave WaveInfoPDU
	if err := wave.Deserialize(body); err != nil {
		return nil, fmt.Errorf("audio: wave info: %w", err)
	}
	p.lastFormat = wave.FormatNo
	if p.sink != nil {
		p.sink.Write(wave.FormatNo, wave.InitialData)
	}

	confirm := WaveConfirmPDU{Timestamp: wave.Timestamp, ConfirmedBlock: wave.BlockNo}
	return [][]byte{buildPDU(SND_WAVE_CONFIRM, confirm.Serialize())}, nil
}

func (p *Processor) handleWave2(body []byte) ([][]byte, error) {
	var wave Wave2PDU
	if err := wave.Deserialize(body); err != nil {
		return nil, fmt.Errorf("audio: wave2: %w", err)
	}
	p.lastFormat = wave.FormatNo
	if p.sink != nil {
		p.sink.Write(wave.FormatNo, wave.Data)
	}

	confirm := WaveConfirmPDU{Timestamp: wave.Timestamp, ConfirmedBlock: wave.BlockNo}
	return [][]byte{buildPDU(SND_WAVE_CONFIRM, confirm.Serialize())}, nil
}

func buildPDU(msgType uint8, body []byte) []byte {
	header := PDUHeader{MsgType: msgType, BodySize: uint16(len(body))}
	return append(header.Serialize(), body...)
}
