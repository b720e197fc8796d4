package main

import (
	"fmt"
	"io"
	"net"
	"time"

	"github.com/rcarmo/go-rdp-core/internal/connector"
	"github.com/rcarmo/go-rdp-core/internal/rdpconfig"
)

// readFrame reads exactly one PDU from r, sizing it with find (the
// current phase's Hint.Find), one byte at a time until find reports a
// definite size and then the remainder in a single read. This is the
// host-owns-the-socket half of the sans-I/O contract every phase and the
// active session share.
func readFrame(r io.Reader, find func([]byte) (int, bool)) ([]byte, error) {
	buf := make([]byte, 0, 256)
	probe := make([]byte, 1)

	for {
		if size, ok := find(buf); ok {
			if len(buf) < size {
				rest := make([]byte, size-len(buf))
				if _, err := io.ReadFull(r, rest); err != nil {
					return nil, fmt.Errorf("gateway: reading frame body: %w", err)
				}
				buf = append(buf, rest...)
			}
			return buf[:size], nil
		}
		if _, err := io.ReadFull(r, probe); err != nil {
			return nil, fmt.Errorf("gateway: reading frame prefix: %w", err)
		}
		buf = append(buf, probe[0])
	}
}

// next reads and returns one frame sized by conn's current hint. Every
// phase but PhaseSecurityUpgrade wants a frame read this way.
func next(wire net.Conn, conn *connector.Connector) ([]byte, error) {
	hint, needsRead := conn.FrameHint()
	if !needsRead {
		return nil, fmt.Errorf("gateway: no frame expected in phase %s", conn.Phase())
	}
	return readFrame(wire, hint.Find)
}

// runHandshake drives a connector.Connector end to end over raw,
// performing the TLS (and, when negotiated, CredSSP) upgrade itself since
// the connector never touches a transport. It returns the connection
// result plus the wire to keep using for the active session: raw itself
// for plain RDP security, or the TLS-wrapped conn once upgraded.
func runHandshake(raw net.Conn, cfg rdpconfig.Connector, channelNames []string, tlsServerName string, skipTLSVerify bool) (connector.ConnectionResult, net.Conn, error) {
	conn := connector.New(cfg, channelNames)
	wire := raw

	if _, err := wire.Write(conn.ConnectionInitiationRequest()); err != nil {
		return connector.ConnectionResult{}, wire, fmt.Errorf("gateway: sending connection request: %w", err)
	}
	frame, err := next(wire, conn)
	if err != nil {
		return connector.ConnectionResult{}, wire, err
	}
	upgrade, err := conn.HandleConnectionConfirm(frame)
	if err != nil {
		return connector.ConnectionResult{}, wire, err
	}

	if upgrade != connector.SecurityUpgradeNone {
		upgraded, err := upgradeTLS(raw, tlsServerName, skipTLSVerify)
		if err != nil {
			return connector.ConnectionResult{}, wire, err
		}
		wire = upgraded.conn

		if err := conn.CompleteSecurityUpgrade(upgraded.cert); err != nil {
			return connector.ConnectionResult{}, wire, err
		}

		if upgrade == connector.SecurityUpgradeCredSSP {
			if err := runCredSSP(wire, conn); err != nil {
				return connector.ConnectionResult{}, wire, err
			}
		}
	}

	if _, err := wire.Write(conn.BasicSettingsExchangeRequest()); err != nil {
		return connector.ConnectionResult{}, wire, fmt.Errorf("gateway: sending basic settings exchange: %w", err)
	}
	frame, err = next(wire, conn)
	if err != nil {
		return connector.ConnectionResult{}, wire, err
	}
	if err := conn.HandleBasicSettingsExchangeResponse(frame); err != nil {
		return connector.ConnectionResult{}, wire, err
	}

	if _, err := wire.Write(conn.ErectDomainRequest()); err != nil {
		return connector.ConnectionResult{}, wire, fmt.Errorf("gateway: sending erect domain request: %w", err)
	}
	if _, err := wire.Write(conn.AttachUserRequest()); err != nil {
		return connector.ConnectionResult{}, wire, fmt.Errorf("gateway: sending attach user request: %w", err)
	}
	frame, err = next(wire, conn)
	if err != nil {
		return connector.ConnectionResult{}, wire, err
	}
	if err := conn.HandleAttachUserConfirm(frame); err != nil {
		return connector.ConnectionResult{}, wire, err
	}

	for {
		req, more := conn.NextChannelJoinRequest()
		if !more {
			break
		}
		if _, err := wire.Write(req); err != nil {
			return connector.ConnectionResult{}, wire, fmt.Errorf("gateway: sending channel join request: %w", err)
		}
		frame, err = next(wire, conn)
		if err != nil {
			return connector.ConnectionResult{}, wire, err
		}
		if err := conn.HandleChannelJoinConfirm(frame); err != nil {
			return connector.ConnectionResult{}, wire, err
		}
	}

	if _, err := wire.Write(conn.SecureSettingsExchangeRequest()); err != nil {
		return connector.ConnectionResult{}, wire, fmt.Errorf("gateway: sending client info: %w", err)
	}

	for conn.Phase() == connector.PhaseLicensing {
		frame, err = next(wire, conn)
		if err != nil {
			return connector.ConnectionResult{}, wire, err
		}
		if err := conn.HandleLicensing(frame); err != nil {
			return connector.ConnectionResult{}, wire, err
		}
	}

	act := conn.Activation()
	frame, err = next(wire, conn)
	if err != nil {
		return connector.ConnectionResult{}, wire, err
	}
	confirmActive, err := act.HandleDemandActive(frame)
	if err != nil {
		return connector.ConnectionResult{}, wire, err
	}
	if _, err := wire.Write(confirmActive); err != nil {
		return connector.ConnectionResult{}, wire, fmt.Errorf("gateway: sending confirm active: %w", err)
	}
	if _, err := wire.Write(act.FinalizationRequest()); err != nil {
		return connector.ConnectionResult{}, wire, fmt.Errorf("gateway: sending finalization burst: %w", err)
	}
	for !act.Done() {
		frame, err = next(wire, conn)
		if err != nil {
			return connector.ConnectionResult{}, wire, err
		}
		if err := act.HandleFinalizationResponse(frame); err != nil {
			return connector.ConnectionResult{}, wire, err
		}
	}

	result, err := conn.CompleteActivation()
	if err != nil {
		return connector.ConnectionResult{}, wire, err
	}

	return result, wire, nil
}

// runCredSSP drives the CredSSP/NTLMv2 sub-automaton to completion over
// wire, once the TLS handshake wrapping it is in place. Per CredSSP.Finish's
// own doc comment, many servers accept credentials silently and send
// nothing back; a short read deadline lets the host treat that silence as
// success instead of blocking forever.
func runCredSSP(wire net.Conn, conn *connector.Connector) error {
	cs := conn.CredSSP()

	negotiate, err := cs.Negotiate()
	if err != nil {
		return fmt.Errorf("gateway: credssp negotiate: %w", err)
	}
	if _, err := wire.Write(negotiate); err != nil {
		return fmt.Errorf("gateway: sending credssp negotiate: %w", err)
	}

	challengeFrame, err := readFrame(wire, connector.DERHint{}.Find)
	if err != nil {
		return fmt.Errorf("gateway: reading credssp challenge: %w", err)
	}
	authenticate, err := cs.Challenge(challengeFrame)
	if err != nil {
		return fmt.Errorf("gateway: credssp challenge: %w", err)
	}
	if _, err := wire.Write(authenticate); err != nil {
		return fmt.Errorf("gateway: sending credssp authenticate: %w", err)
	}

	pubKeyFrame, err := readFrame(wire, connector.DERHint{}.Find)
	if err != nil {
		return fmt.Errorf("gateway: reading credssp pubkey response: %w", err)
	}
	credentials, err := cs.VerifyAndSendCredentials(pubKeyFrame)
	if err != nil {
		return fmt.Errorf("gateway: credssp verify: %w", err)
	}
	if _, err := wire.Write(credentials); err != nil {
		return fmt.Errorf("gateway: sending credssp credentials: %w", err)
	}

	_ = wire.SetReadDeadline(time.Now().Add(2 * time.Second))
	finalFrame, err := readFrame(wire, connector.DERHint{}.Find)
	_ = wire.SetReadDeadline(time.Time{})
	if err != nil {
		finalFrame = nil
	}

	if err := cs.Finish(finalFrame); err != nil {
		return fmt.Errorf("gateway: credssp finish: %w", err)
	}

	return conn.CompleteCredSSP()
}
