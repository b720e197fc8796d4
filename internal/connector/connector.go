package connector

import (
	"bytes"
	"crypto/x509"
	"fmt"

	"github.com/rcarmo/go-rdp-core/internal/protocol/gcc"
	"github.com/rcarmo/go-rdp-core/internal/protocol/mcs"
	"github.com/rcarmo/go-rdp-core/internal/protocol/pdu"
	"github.com/rcarmo/go-rdp-core/internal/protocol/tpkt"
	"github.com/rcarmo/go-rdp-core/internal/protocol/x224"
	"github.com/rcarmo/go-rdp-core/internal/rdpconfig"
)

// Hint is the sans-I/O PduHint contract: given a byte prefix, report how
// many bytes complete the next frame. tpkt.Hint, fastpath.Hint, and
// DERHint all satisfy it; Connector's FrameHint tells the host which one
// applies to its current phase.
type Hint interface {
	Find(buf []byte) (size int, ok bool)
}

// Connector drives the MS-RDPBCGR connection sequence as a step-driven
// automaton: the host calls one method per phase with whatever bytes it
// read, gets bytes to write back, and advances Phase() until it reaches
// PhaseConnected. It never touches a transport itself -- TLS upgrade and
// socket I/O belong entirely to the host -- which is what makes it usable
// from both a blocking CLI client and an async gateway alike.
type Connector struct {
	cfg          rdpconfig.Connector
	channelNames []string

	phase Phase

	requestedProtocol pdu.NegotiationProtocol
	selectedProtocol  pdu.NegotiationProtocol
	securityUpgrade   SecurityUpgrade

	channelIDMap map[string]uint16
	userID       uint16

	joinOrder []channelJoin
	joinIndex int

	credssp    *CredSSP
	activation *ActivationSequence

	result ConnectionResult
}

// New creates a Connector that will request cfg's configured security
// protocol and, once channels are negotiated, join exactly channelNames
// (plus the implicit "user" and "global" channels every connection gets).
func New(cfg rdpconfig.Connector, channelNames []string) *Connector {
	return &Connector{
		cfg:               cfg,
		channelNames:      channelNames,
		phase:             PhaseConnectionInitiation,
		requestedProtocol: cfg.SecurityProtocol.Wire(),
	}
}

// Phase reports where the connector is in the connection sequence.
func (c *Connector) Phase() Phase { return c.phase }

// Result returns the artifacts of a completed connection. Only valid once
// Phase reports PhaseConnected.
func (c *Connector) Result() ConnectionResult { return c.result }

// FrameHint returns the PduHint the host should use to size its next read
// and whether the current phase reads a frame at all (PhaseSecurityUpgrade
// does not: the host performs a TLS handshake with no PDU exchanged).
func (c *Connector) FrameHint() (Hint, bool) {
	switch c.phase {
	case PhaseSecurityUpgrade:
		return nil, false
	case PhaseCredssp:
		return DERHint{}, true
	default:
		return tpkt.Hint{}, true
	}
}

// ConnectionInitiationRequest returns the X.224 Connection Request frame
// carrying the RDP negotiation request. Call once, before reading any
// reply.
func (c *Connector) ConnectionInitiationRequest() []byte {
	req := pdu.ClientConnectionRequest{
		NegotiationRequest: pdu.NegotiationRequest{RequestedProtocols: c.requestedProtocol},
	}
	cr := x224.ConnectionRequest{CRCDT: x224.CRCDT, UserData: req.Serialize()}
	return tpkt.Wrap(cr.Serialize())
}

// HandleConnectionConfirm consumes the server's X.224 Connection Confirm
// frame carrying the negotiation response, records the selected security
// protocol, and reports what the host must do next: nothing further
// (plain RDP security), a TLS handshake, or a TLS handshake followed by
// CredSSP.
func (c *Connector) HandleConnectionConfirm(frame []byte) (SecurityUpgrade, error) {
	if c.phase != PhaseConnectionInitiation {
		return 0, ErrUnexpectedPhase
	}

	payload, err := tpkt.Unwrap(frame)
	if err != nil {
		return 0, fmt.Errorf("connector: %w", err)
	}
	wire := bytes.NewReader(payload)

	var confirm x224.ConnectionConfirm
	if err := confirm.Deserialize(wire); err != nil {
		return 0, fmt.Errorf("connector: connection confirm: %w", err)
	}

	var resp pdu.ServerConnectionConfirm
	if err := resp.Deserialize(wire); err != nil {
		return 0, fmt.Errorf("connector: negotiation response: %w", err)
	}

	if resp.Type.IsFailure() {
		return 0, fmt.Errorf("connector: negotiation failure: %s (code=%d)", resp.FailureCode().String(), uint32(resp.FailureCode()))
	}

	selected := resp.SelectedProtocol()

	// AllowSecurityDowngrade governs only the HybridEx->SSL tie-break a
	// server is permitted to make per MS-RDPBCGR 2.2.1.2.1; any other
	// mismatch between what was requested and what came back is always an
	// error.
	if c.requestedProtocol.IsHybridEx() && selected.IsSSL() && !c.cfg.AllowSecurityDowngrade {
		return 0, ErrUnsupportedRequestedProtocol
	}

	switch {
	case selected.IsHybrid(), selected.IsHybridEx():
		c.securityUpgrade = SecurityUpgradeCredSSP
		c.phase = PhaseSecurityUpgrade
	case selected.IsSSL():
		c.securityUpgrade = SecurityUpgradeTLS
		c.phase = PhaseSecurityUpgrade
	case selected.IsRDP():
		c.securityUpgrade = SecurityUpgradeNone
		c.phase = PhaseBasicSettingsExchange
	default:
		return 0, ErrUnsupportedRequestedProtocol
	}

	c.selectedProtocol = selected

	return c.securityUpgrade, nil
}

// CompleteSecurityUpgrade tells the connector the host's TLS handshake
// finished, and supplies the server's leaf certificate so a CredSSP
// exchange (if one is required) can bind to it. Pass nil when
// SecurityUpgrade was SecurityUpgradeNone or SecurityUpgradeTLS.
func (c *Connector) CompleteSecurityUpgrade(serverCert *x509.Certificate) error {
	if c.phase != PhaseSecurityUpgrade {
		return ErrUnexpectedPhase
	}

	if c.securityUpgrade == SecurityUpgradeCredSSP {
		cs, err := NewCredSSP(c.cfg.Credentials, serverCert)
		if err != nil {
			return err
		}
		c.credssp = cs
		c.phase = PhaseCredssp
		return nil
	}

	c.phase = PhaseBasicSettingsExchange
	return nil
}

// CredSSP returns the CredSSP sub-automaton the host drives directly
// (Negotiate/Challenge/VerifyAndSendCredentials/Finish) while in
// PhaseCredssp.
func (c *Connector) CredSSP() *CredSSP { return c.credssp }

// CompleteCredSSP advances past a finished CredSSP exchange.
func (c *Connector) CompleteCredSSP() error {
	if c.phase != PhaseCredssp {
		return ErrUnexpectedPhase
	}
	if c.credssp == nil || !c.credssp.Done() {
		return fmt.Errorf("connector: credssp exchange not complete")
	}
	c.phase = PhaseBasicSettingsExchange
	return nil
}

// BasicSettingsExchangeRequest returns the MCS Connect Initial frame
// carrying the GCC Conference Create Request with the client's desktop,
// security, network, and cluster data.
func (c *Connector) BasicSettingsExchangeRequest() []byte {
	colorDepth := 32
	if c.cfg.Bitmap != nil {
		colorDepth = int(c.cfg.Bitmap.ColorDepth)
	}

	core := pdu.NewClientUserDataSet(uint32(c.selectedProtocol), c.cfg.DesktopSize.Width, c.cfg.DesktopSize.Height, colorDepth, c.channelNames)
	cc := gcc.NewConferenceCreateRequest(core.Serialize())
	initial := mcs.NewConnectInitialPDU(cc.Serialize())

	return WrapX224(initial.Serialize())
}

// HandleBasicSettingsExchangeResponse consumes the MCS Connect Response
// frame carrying the GCC Conference Create Response and the server's core,
// security, and network data, and populates the channel id map every
// subsequent phase addresses traffic with.
func (c *Connector) HandleBasicSettingsExchangeResponse(frame []byte) error {
	if c.phase != PhaseBasicSettingsExchange {
		return ErrUnexpectedPhase
	}

	payload, err := UnwrapX224(frame)
	if err != nil {
		return err
	}
	wire := bytes.NewReader(payload)

	var connectPDU mcs.ConnectPDU
	if err := connectPDU.Deserialize(wire); err != nil {
		return fmt.Errorf("connector: basic settings exchange: %w", err)
	}
	if connectPDU.ServerConnectResponse == nil || connectPDU.ServerConnectResponse.Result != mcs.RTSuccessful {
		return fmt.Errorf("connector: mcs connect rejected")
	}

	var ccResp gcc.ConferenceCreateResponse
	if err := ccResp.Deserialize(wire); err != nil {
		return fmt.Errorf("connector: conference create response: %w", err)
	}

	var serverUserData pdu.ServerUserData
	if err := serverUserData.Deserialize(wire); err != nil {
		return fmt.Errorf("connector: server user data: %w", err)
	}
	if serverUserData.ServerNetworkData == nil {
		return fmt.Errorf("connector: server user data missing network data")
	}

	c.channelIDMap = make(map[string]uint16, len(c.channelNames)+2)
	for i, name := range c.channelNames {
		if i < len(serverUserData.ServerNetworkData.ChannelIdArray) {
			c.channelIDMap[name] = serverUserData.ServerNetworkData.ChannelIdArray[i]
		}
	}
	c.channelIDMap["global"] = serverUserData.ServerNetworkData.MCSChannelId

	c.phase = PhaseChannelConnection
	return nil
}

// ErectDomainRequest returns the MCS Erect Domain Request frame. Send
// before AttachUserRequest.
func (c *Connector) ErectDomainRequest() []byte {
	return WrapX224(mcs.NewErectDomainPDU().Serialize())
}

// AttachUserRequest returns the MCS Attach User Request frame.
func (c *Connector) AttachUserRequest() []byte {
	return WrapX224(mcs.NewAttachUserPDU().Serialize())
}

// HandleAttachUserConfirm consumes the MCS Attach User Confirm frame,
// records the user id the server assigned, and builds the deterministic
// channel join order NextChannelJoinRequest walks.
func (c *Connector) HandleAttachUserConfirm(frame []byte) error {
	if c.phase != PhaseChannelConnection {
		return ErrUnexpectedPhase
	}

	payload, err := UnwrapX224(frame)
	if err != nil {
		return err
	}
	wire := bytes.NewReader(payload)

	var domainPDU mcs.DomainPDU
	if err := domainPDU.Deserialize(wire); err != nil {
		return fmt.Errorf("connector: attach user confirm: %w", err)
	}
	if domainPDU.ServerAttachUserConfirm == nil {
		return fmt.Errorf("connector: expected attach user confirm")
	}

	c.userID = domainPDU.ServerAttachUserConfirm.Initiator
	c.channelIDMap["user"] = c.userID
	c.joinOrder = buildJoinOrder(c.userID, c.channelIDMap, c.channelNames)
	c.joinIndex = 0

	return nil
}

// NextChannelJoinRequest returns the Channel Join Request frame for the
// next channel awaiting a join, and false once every channel has been
// requested (HandleChannelJoinConfirm must still be called for the last
// one before the phase advances).
func (c *Connector) NextChannelJoinRequest() ([]byte, bool) {
	if c.joinIndex >= len(c.joinOrder) {
		return nil, false
	}
	join := c.joinOrder[c.joinIndex]
	return WrapX224(mcs.NewChannelJoinPDU(c.userID, join.channelID).Serialize()), true
}

// HandleChannelJoinConfirm consumes one Channel Join Confirm frame and
// advances to the next channel in the join order, or to
// PhaseSecureSettingsExchange once every channel has joined.
func (c *Connector) HandleChannelJoinConfirm(frame []byte) error {
	if c.phase != PhaseChannelConnection {
		return ErrUnexpectedPhase
	}

	payload, err := UnwrapX224(frame)
	if err != nil {
		return err
	}
	wire := bytes.NewReader(payload)

	var domainPDU mcs.DomainPDU
	if err := domainPDU.Deserialize(wire); err != nil {
		return fmt.Errorf("connector: channel join confirm: %w", err)
	}
	if domainPDU.ServerChannelJoinConfirm == nil {
		return fmt.Errorf("connector: expected channel join confirm")
	}

	c.joinIndex++
	if c.joinIndex >= len(c.joinOrder) {
		c.phase = PhaseSecureSettingsExchange
	}

	return nil
}

// SecureSettingsExchangeRequest returns the Client Info frame carrying the
// configured credentials, and advances to PhaseLicensing.
func (c *Connector) SecureSettingsExchangeRequest() []byte {
	info := pdu.NewClientInfo(c.cfg.Credentials.Domain, c.cfg.Credentials.Username, c.cfg.Credentials.Password)

	// MS-RDPBCGR 2.2.1.11.1.1: the security header MUST NOT be present
	// once Enhanced RDP Security (TLS) is in effect, which SSL, Hybrid,
	// and HybridEx all put the connection into.
	useEnhancedSecurity := !c.selectedProtocol.IsRDP()
	data := info.Serialize(useEnhancedSecurity)

	c.phase = PhaseLicensing

	return SendDataRequest(c.userID, c.channelIDMap["global"], data)
}

// HandleLicensing consumes one licensing frame. Most deployments send a
// single Server License Error PDU carrying STATUS_VALID_CLIENT, which this
// treats as success along with an outright NEW_LICENSE grant; any other
// outcome is ErrLicenseRejected.
func (c *Connector) HandleLicensing(frame []byte) error {
	if c.phase != PhaseLicensing {
		return ErrUnexpectedPhase
	}

	_, payload, err := ReadSendDataIndication(frame)
	if err != nil {
		return err
	}

	useEnhancedSecurity := !c.selectedProtocol.IsRDP()

	var resp pdu.ServerLicenseError
	if err := resp.Deserialize(bytes.NewReader(payload), useEnhancedSecurity); err != nil {
		return fmt.Errorf("connector: licensing: %w", err)
	}

	const (
		msgTypeNewLicense = 0x03
		msgTypeErrorAlert = 0xFF

		statusValidClient  = 0x00000007
		stateNoTransition  = 0x00000002
	)

	switch resp.Preamble.MsgType {
	case msgTypeNewLicense:
		c.beginActivation()
		return nil
	case msgTypeErrorAlert:
		if resp.ValidClientMessage.ErrorCode != statusValidClient || resp.ValidClientMessage.StateTransition != stateNoTransition {
			return ErrLicenseRejected
		}
		c.beginActivation()
		return nil
	default:
		return fmt.Errorf("connector: licensing: unknown message type 0x%02x", resp.Preamble.MsgType)
	}
}

func (c *Connector) beginActivation() {
	c.activation = NewActivationSequence(c.userID, c.channelIDMap["global"], c.cfg.DesktopSize.Width, c.cfg.DesktopSize.Height, false)
	c.phase = PhaseConnectionActivation
}

// Activation returns the capability-exchange/finalization sub-automaton
// the host drives directly while in PhaseConnectionActivation.
func (c *Connector) Activation() *ActivationSequence { return c.activation }

// CompleteActivation finishes the connector once Activation().Done()
// reports true, producing the ConnectionResult a session needs to start.
func (c *Connector) CompleteActivation() (ConnectionResult, error) {
	if c.phase != PhaseConnectionActivation {
		return ConnectionResult{}, ErrUnexpectedPhase
	}
	if c.activation == nil || !c.activation.Done() {
		return ConnectionResult{}, fmt.Errorf("connector: activation not complete")
	}

	c.result = ConnectionResult{
		UserID:               c.userID,
		ShareID:              c.activation.ShareID(),
		IOChannelID:          c.channelIDMap["global"],
		ChannelIDMap:         c.channelIDMap,
		DesktopSize:          c.cfg.DesktopSize,
		SelectedProtocol:     c.selectedProtocol,
		ServerCapabilitySets: c.activation.ServerCapabilitySets(),
	}
	c.phase = PhaseConnected

	return c.result, nil
}
