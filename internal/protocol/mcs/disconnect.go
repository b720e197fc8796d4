package mcs

import "fmt"

// reasonUserRequested is the wire encoding of a client-initiated
// Disconnect Provider Ultimatum's reason field (rn-user-requested).
const reasonUserRequested = 0x80

// NewDisconnectProviderUltimatumUserRequested builds the Domain MCS PDU
// bytes for a client-initiated Disconnect Provider Ultimatum, reason
// rn-user-requested. Exported so sans-I/O callers (connector.DisconnectProviderUltimatum)
// can frame it themselves instead of going through a blocking x224Conn.
func NewDisconnectProviderUltimatumUserRequested() []byte {
	return []byte{byte(disconnectProviderUltimatum)<<2 | 1, reasonUserRequested}
}

// Disconnect sends a client-initiated Disconnect Provider Ultimatum with
// reason rn-user-requested, the usual way an MCS client tears down the
// domain before closing the transport below it.
func (p *Protocol) Disconnect() error {
	if err := p.x224Conn.Send(NewDisconnectProviderUltimatumUserRequested()); err != nil {
		return fmt.Errorf("client MCS disconnect provider ultimatum: %w", err)
	}

	return nil
}
