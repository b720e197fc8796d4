package connector

import (
	"bytes"
	"fmt"

	"github.com/rcarmo/go-rdp-core/internal/protocol/pdu"
)

// ActivationSequence is the capability-exchange-plus-finalization
// sub-automaton MS-RDPBCGR runs both right after licensing on the initial
// connect, and again -- on its own, without repeating security, MCS, or
// licensing -- whenever the server sends a Deactivate All PDU. Factoring
// it out of Connector lets session.Session reuse it verbatim for that
// second case.
type ActivationSequence struct {
	userID      uint16
	ioChannelID uint16
	desktopSize desktopSize
	remoteApp   bool

	phase         activationPhase
	shareID       uint32
	serverCaps    []pdu.CapabilitySet
	seenSync      bool
	seenCooperate bool
	seenGranted   bool
	seenFontMap   bool
}

type desktopSize struct {
	Width, Height uint16
}

type activationPhase uint8

const (
	activationAwaitingDemandActive activationPhase = iota
	activationAwaitingFinalization
	activationDone
)

// NewActivationSequence starts a fresh capability-exchange/finalization
// run for the given MCS identifiers and desktop geometry.
func NewActivationSequence(userID, ioChannelID uint16, width, height uint16, remoteApp bool) *ActivationSequence {
	return &ActivationSequence{
		userID:      userID,
		ioChannelID: ioChannelID,
		desktopSize: desktopSize{Width: width, Height: height},
		remoteApp:   remoteApp,
		phase:       activationAwaitingDemandActive,
	}
}

// Done reports whether the sequence has reached ConfirmActive/finalization
// completion. ShareID/ServerCapabilitySets are only valid after Done.
func (a *ActivationSequence) Done() bool { return a.phase == activationDone }

// ShareID returns the share id the server assigned in Demand Active. Only
// valid once Done reports true.
func (a *ActivationSequence) ShareID() uint32 { return a.shareID }

// ServerCapabilitySets returns the capability sets the server demanded.
// Only valid once Done reports true.
func (a *ActivationSequence) ServerCapabilitySets() []pdu.CapabilitySet { return a.serverCaps }

// HandleDemandActive consumes a frame carrying the Server Demand Active
// PDU and returns the Client Confirm Active frame to send in reply. It is
// only valid while the sequence is awaiting Demand Active.
func (a *ActivationSequence) HandleDemandActive(frame []byte) ([]byte, error) {
	if a.phase != activationAwaitingDemandActive {
		return nil, ErrUnexpectedPhase
	}

	_, payload, err := ReadSendDataIndication(frame)
	if err != nil {
		return nil, err
	}

	var demand pdu.ServerDemandActive
	if err := demand.Deserialize(bytes.NewReader(payload)); err != nil {
		return nil, fmt.Errorf("connector: demand active: %w", err)
	}

	a.shareID = demand.ShareID
	a.serverCaps = demand.CapabilitySets

	confirm := pdu.NewClientConfirmActive(a.shareID, a.userID, a.desktopSize.Width, a.desktopSize.Height, a.remoteApp)
	a.phase = activationAwaitingFinalization

	return SendDataRequest(a.userID, a.ioChannelID, confirm.Serialize()), nil
}

// FinalizationRequest returns the burst of Synchronize, Control
// (Cooperate), Control (Request Control), and Font List PDUs the client
// sends once Confirm Active is on the wire, all framed together since
// MS-RDPBCGR never requires a response in between.
func (a *ActivationSequence) FinalizationRequest() []byte {
	var out bytes.Buffer
	out.Write(SendDataRequest(a.userID, a.ioChannelID, pdu.NewSynchronize(a.shareID, a.userID).Serialize()))
	out.Write(SendDataRequest(a.userID, a.ioChannelID, pdu.NewControl(a.shareID, a.userID, pdu.ControlActionCooperate).Serialize()))
	out.Write(SendDataRequest(a.userID, a.ioChannelID, pdu.NewControl(a.shareID, a.userID, pdu.ControlActionRequestControl).Serialize()))
	out.Write(SendDataRequest(a.userID, a.ioChannelID, pdu.NewFontList(a.shareID, a.userID).Serialize()))
	return out.Bytes()
}

// HandleFinalizationResponse consumes one server response frame during
// finalization (Synchronize, Control Cooperate, Control Granted, or Font
// Map, in any order -- MS-RDPBCGR does not fix the order and well-behaved
// servers have been observed to vary it). Mismatched grant/control ids are
// tolerated: logging them is a host concern, not a reason to fail the
// connection. Done() reports true once all four have arrived.
func (a *ActivationSequence) HandleFinalizationResponse(frame []byte) error {
	if a.phase != activationAwaitingFinalization {
		return ErrUnexpectedPhase
	}

	_, payload, err := ReadSendDataIndication(frame)
	if err != nil {
		return err
	}

	var data pdu.Data
	if err := data.Deserialize(bytes.NewReader(payload)); err != nil {
		return fmt.Errorf("connector: finalization response: %w", err)
	}

	switch {
	case data.SynchronizePDUData != nil:
		a.seenSync = true
	case data.ControlPDUData != nil:
		switch data.ControlPDUData.Action {
		case pdu.ControlActionCooperate:
			a.seenCooperate = true
		case pdu.ControlActionGrantedControl:
			a.seenGranted = true
		}
	case data.FontMapPDUData != nil:
		a.seenFontMap = true
	case data.ErrorInfoPDUData != nil:
		// Servers may interleave a Set Error Info PDU with the
		// finalization replies; ERRINFO_NONE means keep waiting, any
		// real code aborts the connection with its description.
		if data.ErrorInfoPDUData.ErrorInfo != 0 {
			return fmt.Errorf("connector: server error info during finalization: %s", data.ErrorInfoPDUData.String())
		}
	default:
		return fmt.Errorf("connector: unexpected PDU during finalization")
	}

	if a.seenSync && a.seenCooperate && a.seenGranted && a.seenFontMap {
		a.phase = activationDone
	}

	return nil
}
