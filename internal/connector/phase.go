package connector

// Phase identifies where a Connector is in the MS-RDPBCGR connection
// sequence, from connection initiation through finalization. Each phase
// is one stage the host drives explicitly, one network round-trip at a
// time, instead of a straight-line blocking call chain.
type Phase uint8

const (
	// PhaseConnectionInitiation covers the X.224 Connection Request/Confirm
	// exchange carrying the RDP negotiation request/response.
	PhaseConnectionInitiation Phase = iota

	// PhaseSecurityUpgrade is entered once the server has selected a
	// protocol requiring TLS. The connector does not touch the transport;
	// it waits for the host to call CompleteSecurityUpgrade once its own
	// TLS handshake is done.
	PhaseSecurityUpgrade

	// PhaseCredssp is entered only when the negotiated protocol is Hybrid
	// or HybridEx. The host drives the CredSSP sub-automaton returned by
	// CredSSP() directly, then calls CompleteCredSSP.
	PhaseCredssp

	// PhaseBasicSettingsExchange covers the MCS Connect Initial/Response
	// exchange carrying GCC Conference Create Request/Response.
	PhaseBasicSettingsExchange

	// PhaseChannelConnection covers Erect Domain, Attach User, and the
	// per-channel Join Request/Confirm sequence.
	PhaseChannelConnection

	// PhaseSecureSettingsExchange covers the Client Info PDU send.
	PhaseSecureSettingsExchange

	// PhaseLicensing covers the licensing exchange. Most deployments send
	// a single Server License Error PDU carrying STATUS_VALID_CLIENT; this
	// phase tolerates that and treats it as success.
	PhaseLicensing

	// PhaseConnectionActivation covers capability exchange and connection
	// finalization, delegated to an ActivationSequence.
	PhaseConnectionActivation

	// PhaseConnected is terminal: Result() returns a populated
	// ConnectionResult and the host should stop driving the connector and
	// start driving a session.Session instead.
	PhaseConnected
)

// String names the phase for logging.
func (p Phase) String() string {
	switch p {
	case PhaseConnectionInitiation:
		return "ConnectionInitiation"
	case PhaseSecurityUpgrade:
		return "SecurityUpgrade"
	case PhaseCredssp:
		return "Credssp"
	case PhaseBasicSettingsExchange:
		return "BasicSettingsExchange"
	case PhaseChannelConnection:
		return "ChannelConnection"
	case PhaseSecureSettingsExchange:
		return "SecureSettingsExchange"
	case PhaseLicensing:
		return "Licensing"
	case PhaseConnectionActivation:
		return "ConnectionActivation"
	case PhaseConnected:
		return "Connected"
	default:
		return "Unknown"
	}
}

// Terminal reports whether the connector has finished and Result is ready.
func (p Phase) Terminal() bool { return p == PhaseConnected }
