package connector

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rcarmo/go-rdp-core/internal/protocol/pdu"
	"github.com/rcarmo/go-rdp-core/internal/protocol/tpkt"
	"github.com/rcarmo/go-rdp-core/internal/rdpconfig"
)

func newTestConnector(proto rdpconfig.SecurityProtocol, allowDowngrade bool) *Connector {
	cfg := rdpconfig.DefaultConnector()
	cfg.SecurityProtocol = proto
	cfg.AllowSecurityDowngrade = allowDowngrade
	cfg.Credentials = rdpconfig.Credentials{Username: "alice", Password: "hunter2"}
	return New(cfg, []string{"rdpdr", "cliprdr"})
}

// buildConnectionConfirmFrame hand-assembles a TPKT-wrapped X.224
// Connection Confirm carrying an RDP Negotiation Response or Failure, the
// shape a server sends in reply to ConnectionInitiationRequest.
func buildConnectionConfirmFrame(t *testing.T, negType pdu.NegotiationType, value uint32) []byte {
	t.Helper()

	negBody := make([]byte, 8)
	negBody[0] = byte(negType)
	negBody[1] = 0
	binary.LittleEndian.PutUint16(negBody[2:4], 8)
	binary.LittleEndian.PutUint32(negBody[4:8], value)

	body := make([]byte, 0, 6+len(negBody))
	body = append(body, 0xD0, 0x00, 0x00, 0x00, 0x00, 0x00) // CCCDT, DSTREF, SRCREF, ClassOption
	body = append(body, negBody...)

	tpdu := append([]byte{byte(len(body))}, body...)

	return tpkt.Wrap(tpdu)
}

func TestConnector_ConnectionInitiationRequest(t *testing.T) {
	c := newTestConnector(rdpconfig.SecurityProtocolHybrid, false)

	frame := c.ConnectionInitiationRequest()

	payload, err := tpkt.Unwrap(frame)
	require.NoError(t, err)
	require.Equal(t, byte(0xE0), payload[1], "CRCDT byte")

	negReq := payload[6:]
	require.Equal(t, byte(0x01), negReq[0], "negotiation request type")
	require.Equal(t, pdu.NegotiationProtocolHybrid, pdu.NegotiationProtocol(binary.LittleEndian.Uint32(negReq[4:8])))
}

func TestConnector_HandleConnectionConfirm_SecurityUpgradeDecision(t *testing.T) {
	tests := []struct {
		name           string
		requested      rdpconfig.SecurityProtocol
		allowDowngrade bool
		selected       pdu.NegotiationProtocol
		wantUpgrade    SecurityUpgrade
		wantPhase      Phase
		wantErr        bool
	}{
		{"ssl accepted", rdpconfig.SecurityProtocolSSL, false, pdu.NegotiationProtocolSSL, SecurityUpgradeTLS, PhaseSecurityUpgrade, false},
		{"hybrid accepted", rdpconfig.SecurityProtocolHybrid, false, pdu.NegotiationProtocolHybrid, SecurityUpgradeCredSSP, PhaseSecurityUpgrade, false},
		{"hybridex accepted", rdpconfig.SecurityProtocolHybridEx, false, pdu.NegotiationProtocolHybridEx, SecurityUpgradeCredSSP, PhaseSecurityUpgrade, false},
		{"hybridex downgraded to ssl without consent", rdpconfig.SecurityProtocolHybridEx, false, pdu.NegotiationProtocolSSL, 0, PhaseConnectionInitiation, true},
		{"hybridex downgraded to ssl with consent", rdpconfig.SecurityProtocolHybridEx, true, pdu.NegotiationProtocolSSL, SecurityUpgradeTLS, PhaseSecurityUpgrade, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestConnector(tt.requested, tt.allowDowngrade)
			frame := buildConnectionConfirmFrame(t, pdu.NegotiationTypeResponse, uint32(tt.selected))

			upgrade, err := c.HandleConnectionConfirm(frame)

			if tt.wantErr {
				require.Error(t, err)
				require.Equal(t, tt.wantPhase, c.Phase())
				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.wantUpgrade, upgrade)
			require.Equal(t, tt.wantPhase, c.Phase())
			require.Equal(t, tt.selected, c.selectedProtocol)
		})
	}
}

func TestConnector_HandleConnectionConfirm_Failure(t *testing.T) {
	c := newTestConnector(rdpconfig.SecurityProtocolSSL, false)
	frame := buildConnectionConfirmFrame(t, pdu.NegotiationTypeFailure, uint32(pdu.NegotiationFailureCodeSSLRequired))

	_, err := c.HandleConnectionConfirm(frame)
	require.Error(t, err)
	require.Equal(t, PhaseConnectionInitiation, c.Phase())
}

func TestConnector_PhaseGuardsRejectOutOfOrderCalls(t *testing.T) {
	c := newTestConnector(rdpconfig.SecurityProtocolSSL, false)

	// Still in PhaseConnectionInitiation: every later-phase method must
	// refuse rather than silently act on stale state.
	require.ErrorIs(t, c.CompleteSecurityUpgrade(nil), ErrUnexpectedPhase)
	require.ErrorIs(t, c.CompleteCredSSP(), ErrUnexpectedPhase)
	require.ErrorIs(t, c.HandleBasicSettingsExchangeResponse(nil), ErrUnexpectedPhase)
	require.ErrorIs(t, c.HandleAttachUserConfirm(nil), ErrUnexpectedPhase)
	require.ErrorIs(t, c.HandleChannelJoinConfirm(nil), ErrUnexpectedPhase)
	require.ErrorIs(t, c.HandleLicensing(nil), ErrUnexpectedPhase)
	_, err := c.CompleteActivation()
	require.ErrorIs(t, err, ErrUnexpectedPhase)
}

func TestConnector_RDPSecurityUpgradeIsNone(t *testing.T) {
	c := newTestConnector(rdpconfig.SecurityProtocolSSL, false)
	// Force a plain-RDP path even though SSL was configured, to exercise
	// the IsRDP branch: a server is always free to offer weaker security.
	c.requestedProtocol = pdu.NegotiationProtocolRDP
	frame := buildConnectionConfirmFrame(t, pdu.NegotiationTypeResponse, uint32(pdu.NegotiationProtocolRDP))

	upgrade, err := c.HandleConnectionConfirm(frame)
	require.NoError(t, err)
	require.Equal(t, SecurityUpgradeNone, upgrade)
	require.Equal(t, PhaseBasicSettingsExchange, c.Phase())
}

func TestConnector_FrameHint(t *testing.T) {
	c := newTestConnector(rdpconfig.SecurityProtocolHybrid, false)

	hint, ok := c.FrameHint()
	require.True(t, ok)
	require.IsType(t, tpkt.Hint{}, hint)

	c.phase = PhaseSecurityUpgrade
	_, ok = c.FrameHint()
	require.False(t, ok)

	c.phase = PhaseCredssp
	hint, ok = c.FrameHint()
	require.True(t, ok)
	require.IsType(t, DERHint{}, hint)
}

func TestDERHint_Find(t *testing.T) {
	tests := []struct {
		name     string
		buf      []byte
		wantSize int
		wantOK   bool
	}{
		{"too short", []byte{0x30}, 0, false},
		{"short form", []byte{0x30, 0x05, 1, 2, 3, 4, 5}, 7, true},
		{"short form incomplete is still sized", []byte{0x30, 0x05}, 7, true},
		{"long form one length byte", []byte{0x30, 0x81, 0x80}, 3 + 0x80, true},
		{"long form two length bytes", []byte{0x30, 0x82, 0x01, 0x00}, 4 + 0x0100, true},
		{"long form missing length bytes", []byte{0x30, 0x82, 0x01}, 0, false},
		{"indefinite length unsupported", []byte{0x30, 0x80}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size, ok := DERHint{}.Find(tt.buf)
			require.Equal(t, tt.wantOK, ok)
			if ok {
				require.Equal(t, tt.wantSize, size)
			}
		})
	}
}

// A server Connection Confirm selecting CredSSP (PROTOCOL_HYBRID) with
// every response flag set, as captured off the wire.
func TestConnector_HandleConnectionConfirm_HybridWireFrame(t *testing.T) {
	frame := []byte{
		0x03, 0x00, 0x00, 0x13, // TPKT, 19 bytes
		0x0E, 0xD0, 0x00, 0x00, 0x00, 0x00, 0x00, // CC TPDU
		0x02, 0x1F, 0x08, 0x00, // RDP_NEG_RSP, flags 0x1F, length 8
		0x02, 0x00, 0x00, 0x00, // PROTOCOL_HYBRID
	}

	c := newTestConnector(rdpconfig.SecurityProtocolHybrid, false)

	upgrade, err := c.HandleConnectionConfirm(frame)
	require.NoError(t, err)
	require.Equal(t, SecurityUpgradeCredSSP, upgrade)
	require.Equal(t, PhaseSecurityUpgrade, c.Phase())
}
