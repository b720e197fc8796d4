package main

import (
	"fmt"
	"net"

	"github.com/gorilla/websocket"

	"github.com/rcarmo/go-rdp-core/internal/connector"
	"github.com/rcarmo/go-rdp-core/internal/logging"
	"github.com/rcarmo/go-rdp-core/internal/protocol/audio"
	"github.com/rcarmo/go-rdp-core/internal/protocol/cliprdr"
	"github.com/rcarmo/go-rdp-core/internal/protocol/drdynvc"
	"github.com/rcarmo/go-rdp-core/internal/protocol/rdpedisp"
	"github.com/rcarmo/go-rdp-core/internal/rdpconfig"
	"github.com/rcarmo/go-rdp-core/internal/session"
	"github.com/rcarmo/go-rdp-core/internal/svc"
)

// staticChannelNames lists every static virtual channel this gateway
// joins on every connection: drdynvc carries the dynamic channels
// (display control) multiplexed inside it, cliprdr and rdpsnd are
// themselves static channels per MS-RDPBCGR.
var staticChannelNames = []string{drdynvc.ChannelName, cliprdr.ChannelName, audio.ChannelRDPSND}

// channelSet is everything buildChannels wires up for one connection: the
// static channel registry a session.Session dispatches through, plus the
// individual processors the bridge loop talks to directly (cliprdr needs
// an explicit Start kickoff; rdpedisp's resize requests are host-driven).
type channelSet struct {
	svc     *svc.Set
	clip    *cliprdr.Processor
	disp    *rdpedisp.Processor
	dispMux *drdynvc.Multiplexer
}

// buildChannels constructs the static/dynamic channel registry for one
// session and binds every registered processor to the MCS channel id the
// connector negotiated during channel join.
func buildChannels(result connector.ConnectionResult) channelSet {
	mux := drdynvc.NewMultiplexer(1024)
	disp := rdpedisp.NewProcessor()
	mux.Register(disp)

	clip := cliprdr.NewProcessor(cliprdr.NewCapabilities(cliprdr.ProtocolVersion2, cliprdr.GeneralFlagUseLongFormatNames))

	set := svc.NewSet(1600)
	set.Register(drdynvc.NewSVCAdapter(mux))
	set.Register(clip)
	set.Register(audio.NewProcessor(nil, nil))

	for name, id := range result.ChannelIDMap {
		set.Bind(name, id)
	}

	return channelSet{svc: set, clip: clip, disp: disp, dispMux: mux}
}

// bridgeConnection owns one browser<->RDP-server relay for the lifetime
// of a WebSocket connection: it dials the upstream server, drives the
// connector handshake, wires the static/dynamic channel registry, then
// pumps session.Session output to the browser and browser input to the
// RDP wire until either side closes.
func bridgeConnection(ws *websocket.Conn, gw *rdpconfig.Gateway, log *logging.Logger) error {
	_, raw, err := ws.ReadMessage()
	if err != nil {
		return fmt.Errorf("gateway: reading connect request: %w", err)
	}
	req, err := parseConnectRequest(raw)
	if err != nil {
		return err
	}

	cfg := gw.Connector()
	cfg.Credentials = rdpconfig.Credentials{Domain: req.Domain, Username: req.User, Password: req.Password}
	if req.Width > 0 && req.Height > 0 {
		cfg.DesktopSize = rdpconfig.DesktopSize{Width: uint16(req.Width), Height: uint16(req.Height)}
	}
	if req.NLA {
		cfg.SecurityProtocol = rdpconfig.SecurityProtocolHybrid
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	addr := net.JoinHostPort(req.Host, req.Port)
	upstream, err := net.DialTimeout("tcp", addr, gw.RDP.Timeout)
	if err != nil {
		return fmt.Errorf("gateway: dialing %s: %w", addr, err)
	}
	defer upstream.Close()

	tlsServerName := gw.Security.TLSServerName
	if tlsServerName == "" {
		tlsServerName = req.Host
	}

	result, wire, err := runHandshake(upstream, cfg, staticChannelNames, tlsServerName, gw.Security.SkipTLSValidation)
	if err != nil {
		return fmt.Errorf("gateway: connecting to %s: %w", addr, err)
	}

	channels := buildChannels(result)
	sess := session.New(session.Config{Result: result, SVC: channels.svc, Logger: log})

	if id, ok := channels.svc.ChannelID(cliprdr.ChannelName); ok {
		if out, err := channels.clip.Start(); err == nil {
			for _, chunk := range channels.svc.Chunk(id, out) {
				if _, err := wire.Write(connector.SendDataRequest(result.UserID, id, chunk)); err != nil {
					log.Warn("gateway: sending cliprdr start: %v", err)
				}
			}
		}
	}

	return pump(ws, wire, sess, result, channels, log)
}
