package mcs

import "fmt"

// AttachUser requests a user attachment and returns the initiator id the
// server assigned.
func (p *Protocol) AttachUser() (uint16, error) {
	req := DomainPDU{
		Application:             attachUserRequest,
		ClientAttachUserRequest: &ClientAttachUserRequest{},
	}

	if err := p.x224Conn.Send(req.Serialize()); err != nil {
		return 0, fmt.Errorf("client MCS attach user request: %w", err)
	}

	wire, err := p.x224Conn.Receive()
	if err != nil {
		return 0, fmt.Errorf("client MCS attach user confirm: %w", err)
	}

	var resp DomainPDU
	if err := resp.Deserialize(wire); err != nil {
		return 0, err
	}

	if resp.Application != attachUserConfirm {
		return 0, ErrUnknownDomainApplication
	}

	if resp.ServerAttachUserConfirm.Result != RTSuccessful {
		return 0, fmt.Errorf("mcs attach user rejected: result %d", resp.ServerAttachUserConfirm.Result)
	}

	return resp.ServerAttachUserConfirm.Initiator, nil
}

// JoinChannels joins userID to every channel in channelIDMap, one MCS
// channel join request/confirm round trip per channel.
func (p *Protocol) JoinChannels(userID uint16, channelIDMap map[string]uint16) error {
	for name, channelID := range channelIDMap {
		req := DomainPDU{
			Application: channelJoinRequest,
			ClientChannelJoinRequest: &ClientChannelJoinRequest{
				Initiator: userID,
				ChannelId: channelID,
			},
		}

		if err := p.x224Conn.Send(req.Serialize()); err != nil {
			return fmt.Errorf("client MCS channel join request for %s: %w", name, err)
		}

		wire, err := p.x224Conn.Receive()
		if err != nil {
			return fmt.Errorf("client MCS channel join confirm for %s: %w", name, err)
		}

		var resp DomainPDU
		if err := resp.Deserialize(wire); err != nil {
			return fmt.Errorf("client MCS channel join confirm for %s: %w", name, err)
		}

		if resp.Application != channelJoinConfirm {
			return ErrUnknownDomainApplication
		}

		if resp.ServerChannelJoinConfirm.Result != RTSuccessful {
			return fmt.Errorf("mcs channel join rejected for %s: result %d", name, resp.ServerChannelJoinConfirm.Result)
		}
	}

	return nil
}
