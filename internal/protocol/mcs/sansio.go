package mcs

// The constructors below build the same ConnectPDU/DomainPDU values
// Protocol's own Connect/ErectDomain/AttachUser/JoinChannels/Send methods
// send, for a caller that owns its own transport (a sans-I/O state
// machine driven by a host) instead of going through Protocol's
// x224Conn-backed I/O.

// NewConnectInitialPDU builds the MCS Connect Initial carrying userData
// (the GCC Conference Create Request, already serialized).
func NewConnectInitialPDU(userData []byte) *ConnectPDU {
	return &ConnectPDU{
		Application:          connectInitial,
		ClientConnectInitial: NewClientMCSConnectInitial(userData),
	}
}

// NewErectDomainPDU builds the Erect Domain Request every MCS client sends
// once before attaching a user.
func NewErectDomainPDU() *DomainPDU {
	return &DomainPDU{
		Application:              erectDomainRequest,
		ClientErectDomainRequest: &ClientErectDomainRequest{},
	}
}

// NewAttachUserPDU builds the Attach User Request.
func NewAttachUserPDU() *DomainPDU {
	return &DomainPDU{
		Application:             attachUserRequest,
		ClientAttachUserRequest: &ClientAttachUserRequest{},
	}
}

// NewChannelJoinPDU builds a Channel Join Request for userID to join
// channelID.
func NewChannelJoinPDU(userID, channelID uint16) *DomainPDU {
	return &DomainPDU{
		Application: channelJoinRequest,
		ClientChannelJoinRequest: &ClientChannelJoinRequest{
			Initiator: userID,
			ChannelId: channelID,
		},
	}
}

// NewSendDataRequestPDU builds a Send Data Request carrying data to
// channelID on behalf of userID.
func NewSendDataRequestPDU(userID, channelID uint16, data []byte) *DomainPDU {
	return &DomainPDU{
		Application: SendDataRequest,
		ClientSendDataRequest: &ClientSendDataRequest{
			Initiator: userID,
			ChannelId: channelID,
			Data:      data,
		},
	}
}
