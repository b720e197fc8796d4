package session

import (
	"bytes"
	"errors"

	"github.com/rcarmo/go-rdp-core/internal/connector"
	"github.com/rcarmo/go-rdp-core/internal/protocol/pdu"
)

// processX224 decodes an MCS Send Data Indication and dispatches its
// payload either to the I/O channel's share-control/share-data handling
// or to a registered static virtual channel.
func (s *Session) processX224(frame []byte) ([]ActiveStageOutput, error) {
	channelID, payload, err := connector.ReadSendDataIndication(frame)
	if err != nil {
		return nil, s.errorf("x224: %w", err)
	}

	if channelID != s.ioChannelID {
		return s.dispatchSVC(channelID, payload)
	}

	return s.handleShareData(payload)
}

func (s *Session) dispatchSVC(channelID uint16, payload []byte) ([]ActiveStageOutput, error) {
	if s.svc == nil || !s.svc.HasChannel(channelID) {
		s.log.Warn("session: data on unbound channel %d, dropping", channelID)
		return nil, nil
	}

	chunks, err := s.svc.HandleData(channelID, payload)
	if err != nil {
		return nil, s.errorf("svc channel %d: %w", channelID, err)
	}

	outputs := make([]ActiveStageOutput, 0, len(chunks))
	for _, chunk := range chunks {
		outputs = append(outputs, responseFrame(connector.SendDataRequest(s.userID, channelID, chunk)))
	}
	return outputs, nil
}

func (s *Session) handleShareData(payload []byte) ([]ActiveStageOutput, error) {
	wire := bytes.NewReader(payload)

	var data pdu.Data
	err := data.Deserialize(wire)
	switch {
	case errors.Is(err, pdu.ErrDeactivateAll):
		return []ActiveStageOutput{s.beginReactivation()}, nil
	case err != nil:
		return nil, s.errorf("share data: %w", err)
	}

	switch {
	case data.ShareDataHeader.PDUType2.IsUpdate():
		remaining := payload[len(payload)-wire.Len():]
		return s.handleSlowPathUpdate(remaining)

	case data.ShareDataHeader.PDUType2.IsShutdownDenied():
		return s.handleShutdownDenied()

	case data.ShareDataHeader.PDUType2.IsErrorInfo():
		return s.handleErrorInfo(data.ErrorInfoPDUData)

	default:
		// Synchronize/Control/FontList/FontMap/Pointer/SaveSessionInfo
		// during steady state carry no session-visible effect here.
		return nil, nil
	}
}

// handleShutdownDenied reacts to the server's TS_SHUTDOWN_DENIED_PDU
// (sent in reply to GracefulShutdown's Shutdown Request) by sending the
// Disconnect Provider Ultimatum that tears down the MCS domain and
// signaling the host to stop calling Process: one ResponseFrame followed
// by one Terminate, nothing else.
func (s *Session) handleShutdownDenied() ([]ActiveStageOutput, error) {
	return []ActiveStageOutput{
		responseFrame(connector.DisconnectProviderUltimatum()),
		{Terminate: &TerminateReason{UserRequested: true}},
	}, nil
}

func (s *Session) handleErrorInfo(info *pdu.ErrorInfoPDUData) ([]ActiveStageOutput, error) {
	if info == nil || info.ErrorInfo == 0 {
		return nil, nil
	}
	if info.Graceful() {
		return []ActiveStageOutput{{Terminate: &TerminateReason{Description: info.String()}}}, nil
	}
	return nil, s.errorf("fatal server error info: %s", info.String())
}
