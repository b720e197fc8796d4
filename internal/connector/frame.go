package connector

import (
	"bytes"
	"fmt"

	"github.com/rcarmo/go-rdp-core/internal/protocol/mcs"
	"github.com/rcarmo/go-rdp-core/internal/protocol/tpkt"
	"github.com/rcarmo/go-rdp-core/internal/protocol/x224"
)

// WrapX224 frames payload as an X.224 Data TPDU inside a TPKT header, the
// shape every PDU after connection initiation travels in. Byte-identical
// to what x224.Protocol.Send/tpkt.Protocol.Send put on the wire, without
// the blocking io.Writer they target.
func WrapX224(payload []byte) []byte {
	data := x224.Data{
		LI:       2,
		DTROA:    x224.DTROAEOT,
		NREOT:    x224.NREOT,
		UserData: payload,
	}
	return tpkt.Wrap(data.Serialize())
}

// UnwrapX224 strips the TPKT header and X.224 Data TPDU header from one
// complete frame (sized by framing.FindSize) and returns the MCS Domain
// PDU bytes that follow.
func UnwrapX224(frame []byte) ([]byte, error) {
	payload, err := tpkt.Unwrap(frame)
	if err != nil {
		return nil, fmt.Errorf("connector: %w", err)
	}

	wire := bytes.NewReader(payload)

	var dt x224.Data
	if err := dt.Deserialize(wire); err != nil {
		return nil, fmt.Errorf("connector: x224 data: %w", err)
	}

	return payload[len(payload)-wire.Len():], nil
}

// SendDataRequest wraps data as an MCS Send Data Request from userID on
// channelID, framed for the wire.
func SendDataRequest(userID, channelID uint16, data []byte) []byte {
	return WrapX224(mcs.NewSendDataRequestPDU(userID, channelID, data).Serialize())
}

// DisconnectProviderUltimatum frames a client-initiated Disconnect
// Provider Ultimatum (reason rn-user-requested) for the wire. Used by
// the session's graceful-shutdown sequence once the server has replied
// with Shutdown Denied; mirrors mcs.Protocol.Disconnect without its
// blocking x224Conn.Send.
func DisconnectProviderUltimatum() []byte {
	return WrapX224(mcs.NewDisconnectProviderUltimatumUserRequested())
}

// ReadSendDataIndication unwraps one frame down to the payload carried by
// a Server Send Data Indication, returning the channel it arrived on.
// ServerSendDataIndication.Deserialize only consumes the fixed header
// fields (initiator, channel id, a PER enumerate octet, and a BER length)
// and never touches the payload bytes themselves, so the unconsumed tail
// of the reader -- recovered via bytes.Reader.Len() against the original
// slice -- is the payload.
func ReadSendDataIndication(frame []byte) (channelID uint16, payload []byte, err error) {
	domainBytes, err := UnwrapX224(frame)
	if err != nil {
		return 0, nil, err
	}

	wire := bytes.NewReader(domainBytes)

	var domainPDU mcs.DomainPDU
	if err := domainPDU.Deserialize(wire); err != nil {
		return 0, nil, fmt.Errorf("connector: domain pdu: %w", err)
	}
	if domainPDU.Application != mcs.SendDataIndication {
		return 0, nil, fmt.Errorf("connector: expected send data indication, got application %d", domainPDU.Application)
	}

	payload = domainBytes[len(domainBytes)-wire.Len():]

	return domainPDU.ServerSendDataIndication.ChannelId, payload, nil
}
