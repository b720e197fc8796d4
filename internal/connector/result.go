package connector

import (
	"github.com/rcarmo/go-rdp-core/internal/protocol/pdu"
	"github.com/rcarmo/go-rdp-core/internal/rdpconfig"
)

// ConnectionResult is everything a session needs to start exchanging
// update and input PDUs once a connector run completes: the MCS
// identifiers the session addresses traffic with, the desktop geometry
// the server confirmed, and the capability sets it demanded during
// capabilities exchange.
type ConnectionResult struct {
	UserID               uint16
	ShareID              uint32
	IOChannelID          uint16
	ChannelIDMap         map[string]uint16
	DesktopSize          rdpconfig.DesktopSize
	SelectedProtocol     pdu.NegotiationProtocol
	ServerCapabilitySets []pdu.CapabilitySet
}
