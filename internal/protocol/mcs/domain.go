package mcs

import (
	"bytes"
	"fmt"
	"io"

	"github.com/rcarmo/go-rdp-core/internal/protocol/encoding"
)

// DomainPDUApplication identifies one alternative of the DomainMCSPDU
// CHOICE (ITU-T T.125 section 7, part of MS-RDPBCGR's MCS layer).
type DomainPDUApplication uint8

const (
	plumbDomainIndication DomainPDUApplication = iota
	erectDomainRequest
	mergeChannelsRequest
	mergeChannelsConfirm
	purgeChannelsIndication
	mergeTokensRequest
	mergeTokensConfirm
	purgeTokensIndication
	disconnectProviderUltimatum
	rejectMCSPDUUltimatum
	attachUserRequest
	attachUserConfirm
	detachUserRequest
	detachUserIndication
	channelJoinRequest
	channelJoinConfirm
	channelLeaveRequest
	channelConveneRequest
	channelConveneConfirm
	channelDisbandRequest
	channelDisbandIndication
	channelAdmitRequest
	channelAdmitIndication
	channelExpelRequest
	channelExpelIndication
	// SendDataRequest and SendDataIndication are exported: callers outside
	// this package compare against them when dispatching MCS traffic.
	SendDataRequest
	SendDataIndication
	uniformSendDataRequest
	uniformSendDataIndication
)

// DomainPDU wraps a single alternative of the DomainMCSPDU choice. Only
// the field matching Application is populated.
type DomainPDU struct {
	Application DomainPDUApplication

	ClientErectDomainRequest *ClientErectDomainRequest
	ClientAttachUserRequest  *ClientAttachUserRequest
	ServerAttachUserConfirm  *ServerAttachUserConfirm
	ClientChannelJoinRequest *ClientChannelJoinRequest
	ServerChannelJoinConfirm *ServerChannelJoinConfirm
	ClientSendDataRequest    *ClientSendDataRequest
	ServerSendDataIndication *ServerSendDataIndication
}

// Serialize packs the choice tag (application number shifted into the top
// six bits, per the aligned PER encoding MCS stacks use for this CHOICE)
// followed by the body of whichever alternative is set.
func (pdu *DomainPDU) Serialize() []byte {
	buf := new(bytes.Buffer)

	var body []byte
	switch pdu.Application {
	case erectDomainRequest:
		body = pdu.ClientErectDomainRequest.Serialize()
	case attachUserRequest:
		body = pdu.ClientAttachUserRequest.Serialize()
	case channelJoinRequest:
		body = pdu.ClientChannelJoinRequest.Serialize()
	case SendDataRequest:
		body = pdu.ClientSendDataRequest.Serialize()
	}

	buf.WriteByte(byte(pdu.Application) << 2)
	buf.Write(body)

	return buf.Bytes()
}

// Deserialize reads the choice tag and dispatches to the matching
// alternative's own Deserialize. Optional trailing fields (e.g. the
// channel id on a channel join confirm) are tolerated via EOF rather than
// decoded from the two low tag bits, since every caller here only cares
// about the fields it asks for.
func (pdu *DomainPDU) Deserialize(wire io.Reader) error {
	choice, err := encoding.PerReadChoice(wire)
	if err != nil {
		return err
	}

	pdu.Application = DomainPDUApplication(choice >> 2)

	switch pdu.Application {
	case attachUserConfirm:
		confirm := &ServerAttachUserConfirm{}
		if err := confirm.Deserialize(wire); err != nil {
			return err
		}
		pdu.ServerAttachUserConfirm = confirm
	case channelJoinConfirm:
		confirm := &ServerChannelJoinConfirm{}
		if err := confirm.Deserialize(wire); err != nil {
			return err
		}
		pdu.ServerChannelJoinConfirm = confirm
	case SendDataIndication:
		ind := &ServerSendDataIndication{}
		if err := ind.Deserialize(wire); err != nil {
			return err
		}
		pdu.ServerSendDataIndication = ind
	case SendDataRequest:
		req := &ClientSendDataRequest{}
		if err := req.Deserialize(wire); err != nil {
			return err
		}
		pdu.ClientSendDataRequest = req
	case disconnectProviderUltimatum:
		return fmt.Errorf("mcs domain pdu: %w", ErrDisconnectUltimatum)
	default:
		return fmt.Errorf("mcs domain pdu: application %d: %w", pdu.Application, ErrUnknownDomainApplication)
	}

	return nil
}

// ClientAttachUserRequest carries no fields; the client only needs to
// signal intent to attach.
type ClientAttachUserRequest struct{}

func (req *ClientAttachUserRequest) Serialize() []byte {
	return nil
}

// ServerAttachUserConfirm is the server's response to an attach user
// request.
type ServerAttachUserConfirm struct {
	Result    uint8
	Initiator uint16
}

func (confirm *ServerAttachUserConfirm) Deserialize(wire io.Reader) error {
	var result uint8
	if err := readUint8(wire, &result); err != nil {
		return err
	}
	confirm.Result = result

	initiator, err := encoding.PerReadInteger16(1001, wire)
	if err != nil {
		return err
	}
	confirm.Initiator = initiator

	return nil
}

// ClientChannelJoinRequest asks the server to join the initiator to a
// channel.
type ClientChannelJoinRequest struct {
	Initiator uint16
	ChannelId uint16
}

func (req *ClientChannelJoinRequest) Serialize() []byte {
	buf := new(bytes.Buffer)

	encoding.PerWriteInteger16(req.Initiator, 1001, buf)
	encoding.PerWriteInteger16(req.ChannelId, 0, buf)

	return buf.Bytes()
}

// ServerChannelJoinConfirm is the server's response to a channel join
// request. ChannelId is optional on the wire; when absent it is left 0.
type ServerChannelJoinConfirm struct {
	Result    uint8
	Initiator uint16
	Requested uint16
	ChannelId uint16
}

func (confirm *ServerChannelJoinConfirm) Deserialize(wire io.Reader) error {
	var result uint8
	if err := readUint8(wire, &result); err != nil {
		return err
	}
	confirm.Result = result

	initiator, err := encoding.PerReadInteger16(1001, wire)
	if err != nil {
		return err
	}
	confirm.Initiator = initiator

	requested, err := encoding.PerReadInteger16(0, wire)
	if err != nil {
		return err
	}
	confirm.Requested = requested

	channelID, err := encoding.PerReadInteger16(0, wire)
	if err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	confirm.ChannelId = channelID

	return nil
}

func readUint8(wire io.Reader, out *uint8) error {
	buf := make([]byte, 1)
	n, err := io.ReadFull(wire, buf)
	if err != nil {
		return err
	}
	if n != 1 {
		return io.ErrUnexpectedEOF
	}
	*out = buf[0]
	return nil
}
