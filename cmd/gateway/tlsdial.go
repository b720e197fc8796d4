package main

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"

	icodetls "github.com/icodeface/tls"
)

// tlsUpgradeResult carries the upgraded connection plus the server's leaf
// certificate, re-parsed into a stdlib *x509.Certificate regardless of
// which TLS stack performed the handshake: connector.CompleteSecurityUpgrade
// only ever consumes the certificate's bytes, never the stack that
// produced them.
type tlsUpgradeResult struct {
	conn net.Conn
	cert *x509.Certificate
}

// upgradeTLS performs the Enhanced RDP Security TLS handshake MS-RDPBCGR
// requires once the connector reports SecurityUpgradeTLS or
// SecurityUpgradeCredSSP. It tries the standard library first -- correct
// for any server running a supported modern cipher suite -- and falls
// back to the icodeface/tls fork only on failure, since a handful of
// older RDP hosts still negotiate cipher suites the standard library
// dropped. The fallback is never the common path; it exists for exactly
// those legacy servers.
func upgradeTLS(raw net.Conn, serverName string, skipVerify bool) (*tlsUpgradeResult, error) {
	cfg := &tls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: skipVerify, // #nosec G402 -- opt-in via gateway flag, for lab/legacy servers only
		MinVersion:         tls.VersionTLS10,
	}

	conn := tls.Client(raw, cfg)
	if err := conn.Handshake(); err == nil {
		return finishStdlibUpgrade(conn)
	}

	legacyCfg := &icodetls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: skipVerify, // #nosec G402
	}
	legacyConn := icodetls.Client(raw, legacyCfg)
	if err := legacyConn.Handshake(); err != nil {
		return nil, fmt.Errorf("gateway: tls handshake failed on both modern and legacy stacks: %w", err)
	}
	return finishLegacyUpgrade(legacyConn)
}

func finishStdlibUpgrade(conn *tls.Conn) (*tlsUpgradeResult, error) {
	state := conn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return nil, fmt.Errorf("gateway: tls handshake produced no peer certificate")
	}
	return &tlsUpgradeResult{conn: conn, cert: state.PeerCertificates[0]}, nil
}

func finishLegacyUpgrade(conn *icodetls.Conn) (*tlsUpgradeResult, error) {
	state := conn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return nil, fmt.Errorf("gateway: legacy tls handshake produced no peer certificate")
	}

	// icodeface/tls vendors its own x509 implementation with a
	// DER-compatible *x509.Certificate-shaped type; re-parse the raw DER
	// bytes with the standard library so the rest of the gateway (and
	// connector.CompleteSecurityUpgrade) only ever deals in one
	// certificate type.
	cert, err := x509.ParseCertificate(state.PeerCertificates[0].Raw)
	if err != nil {
		return nil, fmt.Errorf("gateway: re-parsing legacy tls certificate: %w", err)
	}
	return &tlsUpgradeResult{conn: conn, cert: cert}, nil
}
