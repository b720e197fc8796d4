package connector

import (
	"crypto/x509"
	"fmt"
)

// SecurityUpgrade tells the host what to do to the underlying transport
// before the connector can continue: nothing, a plain TLS handshake, or a
// TLS handshake followed by a CredSSP exchange. The connector never
// touches the transport itself; it only ever learns the outcome (the
// negotiated TLS connection state) back through CompleteSecurityUpgrade.
type SecurityUpgrade uint8

const (
	SecurityUpgradeNone SecurityUpgrade = iota
	SecurityUpgradeTLS
	SecurityUpgradeCredSSP
)

// extractTLSPublicKey pulls the raw SubjectPublicKey DER bytes (not the
// full SubjectPublicKeyInfo) out of a peer certificate, the form MS-CSSP
// public key binding hashes over. Ported to work directly off
// RawSubjectPublicKeyInfo so CredSSP's pure step functions never need a
// live *tls.Conn, only the certificate the host's handshake produced.
func extractTLSPublicKey(cert *x509.Certificate) ([]byte, error) {
	spki := cert.RawSubjectPublicKeyInfo
	if len(spki) < 4 {
		return nil, fmt.Errorf("connector: SubjectPublicKeyInfo too short")
	}

	if spki[0] != 0x30 {
		return nil, fmt.Errorf("connector: expected SEQUENCE tag for SubjectPublicKeyInfo")
	}

	offset := 1
	seqLen, lenBytes := parseASN1Length(spki[offset:])
	offset += lenBytes
	if seqLen == 0 || offset+seqLen > len(spki) {
		return nil, fmt.Errorf("connector: invalid SubjectPublicKeyInfo length")
	}

	if spki[offset] != 0x30 {
		return nil, fmt.Errorf("connector: expected SEQUENCE tag for AlgorithmIdentifier")
	}
	algIDLen, algIDLenBytes := parseASN1Length(spki[offset+1:])
	offset += 1 + algIDLenBytes + algIDLen

	if offset >= len(spki) || spki[offset] != 0x03 {
		return nil, fmt.Errorf("connector: expected BIT STRING tag for SubjectPublicKey")
	}
	offset++

	bitStrLen, bitStrLenBytes := parseASN1Length(spki[offset:])
	offset += bitStrLenBytes
	if offset+bitStrLen > len(spki) {
		return nil, fmt.Errorf("connector: SubjectPublicKey extends past end of SubjectPublicKeyInfo")
	}
	if bitStrLen < 1 {
		return nil, fmt.Errorf("connector: SubjectPublicKey BIT STRING too short")
	}
	offset++ // skip the BIT STRING's "unused bits" byte
	bitStrLen--

	return spki[offset : offset+bitStrLen], nil
}

// parseASN1Length decodes an ASN.1 DER length (short or long form) and
// returns the value and the number of bytes it occupied.
func parseASN1Length(data []byte) (int, int) {
	if len(data) == 0 {
		return 0, 0
	}
	if data[0] < 128 {
		return int(data[0]), 1
	}
	numBytes := int(data[0] & 0x7F)
	if numBytes == 0 || numBytes > 4 || numBytes >= len(data) {
		return 0, 1
	}
	length := 0
	for i := 0; i < numBytes; i++ {
		length = (length << 8) | int(data[1+i])
	}
	return length, 1 + numBytes
}
