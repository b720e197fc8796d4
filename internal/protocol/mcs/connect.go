package mcs

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/rcarmo/go-rdp-core/internal/protocol/encoding"
)

// ConnectPDUApplication identifies one alternative of the ConnectMCSPDU
// CHOICE (ITU-T T.125 section 7).
type ConnectPDUApplication uint8

const (
	connectInitial    ConnectPDUApplication = 101
	connectResponse   ConnectPDUApplication = 102
	connectAdditional ConnectPDUApplication = 103
	connectResult     ConnectPDUApplication = 104
)

// ConnectPDU wraps one alternative of the ConnectMCSPDU choice, BER-tagged
// with an application class tag equal to the application number.
type ConnectPDU struct {
	Application           ConnectPDUApplication
	ClientConnectInitial  *ClientConnectInitial
	ServerConnectResponse *ServerConnectResponse
}

func (pdu *ConnectPDU) Serialize() []byte {
	var body []byte

	switch pdu.Application {
	case connectInitial:
		body = pdu.ClientConnectInitial.Serialize()
	}

	buf := new(bytes.Buffer)
	encoding.BerWriteApplicationTag(uint8(pdu.Application), len(body), buf)
	buf.Write(body)

	return buf.Bytes()
}

// Deserialize only decodes the connectResponse alternative; a client has
// no reason to receive connectInitial/connectAdditional/connectResult.
func (pdu *ConnectPDU) Deserialize(wire io.Reader) error {
	tag, err := encoding.BerReadApplicationTag(wire)
	if err != nil {
		return err
	}

	if _, err := encoding.BerReadLength(wire); err != nil {
		return err
	}

	pdu.Application = ConnectPDUApplication(tag)

	switch pdu.Application {
	case connectResponse:
		resp := &ServerConnectResponse{}
		if err := resp.Deserialize(wire); err != nil {
			return err
		}
		pdu.ServerConnectResponse = resp
	default:
		return fmt.Errorf("mcs connect pdu: application %d: %w", pdu.Application, ErrUnknownConnectApplication)
	}

	return nil
}

// ClientConnectInitial is the ConnectMCSPDU connect-initial alternative a
// client sends to open an MCS connection. The domain parameter triples
// are fixed to the values every RDP client advertises; only userData
// (the GCC Conference Create Request, already serialized) varies.
type ClientConnectInitial struct {
	calledDomainSelector  []byte
	callingDomainSelector []byte
	upwardFlag            bool
	targetParameters      domainParameters
	minimumParameters     domainParameters
	maximumParameters     domainParameters
	userData              []byte
}

func NewClientMCSConnectInitial(userData []byte) *ClientConnectInitial {
	return &ClientConnectInitial{
		calledDomainSelector:  []byte{0x01},
		callingDomainSelector: []byte{0x01},
		upwardFlag:            true,
		targetParameters: domainParameters{
			maxChannelIds:   34,
			maxUserIds:      2,
			maxTokenIds:     0,
			numPriorities:   1,
			minThroughput:   0,
			maxHeight:       1,
			maxMCSPDUsize:   65535,
			protocolVersion: 2,
		},
		minimumParameters: domainParameters{
			maxChannelIds:   1,
			maxUserIds:      1,
			maxTokenIds:     1,
			numPriorities:   1,
			minThroughput:   0,
			maxHeight:       1,
			maxMCSPDUsize:   1056,
			protocolVersion: 2,
		},
		maximumParameters: domainParameters{
			maxChannelIds:   65535,
			maxUserIds:      65535,
			maxTokenIds:     65535,
			numPriorities:   1,
			minThroughput:   0,
			maxHeight:       1,
			maxMCSPDUsize:   65535,
			protocolVersion: 2,
		},
		userData: userData,
	}
}

func (initial *ClientConnectInitial) Serialize() []byte {
	buf := new(bytes.Buffer)

	encoding.BerWriteOctetString(initial.calledDomainSelector, buf)
	encoding.BerWriteOctetString(initial.callingDomainSelector, buf)
	encoding.BerWriteBoolean(initial.upwardFlag, buf)
	encoding.BerWriteSequence(initial.targetParameters.Serialize(), buf)
	encoding.BerWriteSequence(initial.minimumParameters.Serialize(), buf)
	encoding.BerWriteSequence(initial.maximumParameters.Serialize(), buf)
	encoding.BerWriteOctetString(initial.userData, buf)

	return buf.Bytes()
}

// ServerConnectResponse is the ConnectMCSPDU connect-response alternative
// the server replies with. Deserialize stops right after the user data
// octet string's tag and length, leaving wire positioned at the raw GCC
// Conference Create Response bytes for the caller to continue decoding.
type ServerConnectResponse struct {
	Result           uint8
	CalledConnectId  int
	ServerParameters domainParameters
}

func (resp *ServerConnectResponse) Deserialize(wire io.Reader) error {
	result, err := encoding.BerReadEnumerated(wire)
	if err != nil {
		return err
	}
	resp.Result = result

	calledConnectId, err := encoding.BerReadInteger(wire)
	if err != nil {
		return err
	}
	resp.CalledConnectId = calledConnectId

	isSequence, err := encoding.BerReadUniversalTag(encoding.TagSequence, true, wire)
	if err != nil {
		return err
	}
	if !isSequence {
		return errors.New("mcs connect response: expected domain parameters sequence")
	}
	if _, err := encoding.BerReadLength(wire); err != nil {
		return err
	}
	if err := resp.ServerParameters.Deserialize(wire); err != nil {
		return err
	}

	isOctetString, err := encoding.BerReadUniversalTag(encoding.TagOctetString, false, wire)
	if err != nil {
		return err
	}
	if !isOctetString {
		return errors.New("mcs connect response: expected user data octet string")
	}
	if _, err := encoding.BerReadLength(wire); err != nil {
		return err
	}

	return nil
}

// Connect performs the MCS Connect-Initial/Connect-Response exchange,
// wrapping userData (the GCC Conference Create Request) in the standard
// domain parameter triples every RDP client advertises. On success the
// returned reader is positioned at the GCC Conference Create Response
// bytes embedded in the reply.
func (p *Protocol) Connect(userData []byte) (io.Reader, error) {
	req := ConnectPDU{
		Application:          connectInitial,
		ClientConnectInitial: NewClientMCSConnectInitial(userData),
	}

	if err := p.x224Conn.Send(req.Serialize()); err != nil {
		return nil, fmt.Errorf("client MCS connect initial: %w", err)
	}

	wire, err := p.x224Conn.Receive()
	if err != nil {
		return nil, fmt.Errorf("client MCS connect response: %w", err)
	}

	var resp ConnectPDU
	if err := resp.Deserialize(wire); err != nil {
		return nil, err
	}

	if resp.ServerConnectResponse.Result != RTSuccessful {
		return nil, fmt.Errorf("mcs connect rejected: result %d", resp.ServerConnectResponse.Result)
	}

	return wire, nil
}
