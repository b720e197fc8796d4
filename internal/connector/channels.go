package connector

// channelJoin is one entry in the deterministic channel-join order: the
// user channel first, then the I/O channel ("global"), then every static
// virtual channel in the order the caller configured them.
//
// mcs.Protocol.JoinChannels ranges over a map, so the order
// it joins channels in varies from run to run; servers that rely on join
// order (XRDP's channel bring-up logs, in particular) see a different
// sequence every connection. Building the join order as a slice up front
// keeps it identical across runs.
type channelJoin struct {
	name      string
	channelID uint16
}

// buildJoinOrder returns the channels to join, in a fixed order, given the
// user id the server assigned and the channel id map basic settings
// exchange populated ("global" plus every configured static channel).
func buildJoinOrder(userID uint16, channelIDMap map[string]uint16, channelNames []string) []channelJoin {
	order := make([]channelJoin, 0, len(channelNames)+2)

	order = append(order, channelJoin{name: "user", channelID: userID})

	if globalID, ok := channelIDMap["global"]; ok {
		order = append(order, channelJoin{name: "global", channelID: globalID})
	}

	for _, name := range channelNames {
		channelID, ok := channelIDMap[name]
		if !ok {
			continue
		}
		order = append(order, channelJoin{name: name, channelID: channelID})
	}

	return order
}
