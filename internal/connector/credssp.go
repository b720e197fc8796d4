package connector

import (
	"crypto/rand"
	"crypto/x509"
	"fmt"

	"github.com/rcarmo/go-rdp-core/internal/auth"
	"github.com/rcarmo/go-rdp-core/internal/rdpconfig"
)

// credSSPPhase tracks where a CredSSP exchange is so each step method
// rejects calls made out of order.
type credSSPPhase int

const (
	credSSPAwaitingNegotiate credSSPPhase = iota
	credSSPAwaitingChallenge
	credSSPAwaitingPubKeyVerify
	credSSPAwaitingFinal
	credSSPDone
)

// CredSSP drives the CredSSP/NTLMv2 exchange (MS-CSSP) over whatever TLS
// stream the host already established for SecurityUpgradeCredSSP. It is a
// sans-I/O sub-automaton in the same shape as Connector itself: the host
// calls the next step method with the bytes it read, gets bytes to write back,
// and loops until Done.
type CredSSP struct {
	ntlm         *auth.NTLMv2
	serverPubKey []byte
	clientNonce  []byte

	security *auth.Security
	phase    credSSPPhase
}

// NewCredSSP builds a CredSSP exchange for the given credentials, bound to
// the TLS public key the host's handshake produced. serverCert is the
// leaf certificate from the TLS connection state.
func NewCredSSP(creds rdpconfig.Credentials, serverCert *x509.Certificate) (*CredSSP, error) {
	pubKey, err := extractTLSPublicKey(serverCert)
	if err != nil {
		return nil, fmt.Errorf("connector: credssp: %w", err)
	}

	domain, user := splitDomainUser(creds.Domain, creds.Username)

	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("connector: credssp: generating client nonce: %w", err)
	}

	return &CredSSP{
		ntlm:         auth.NewNTLMv2(domain, user, creds.Password),
		serverPubKey: pubKey,
		clientNonce:  nonce,
		phase:        credSSPAwaitingNegotiate,
	}, nil
}

func splitDomainUser(configuredDomain, username string) (domain, user string) {
	for i, r := range username {
		if r == '\\' {
			return username[:i], username[i+1:]
		}
	}
	for i, r := range username {
		if r == '@' {
			return username[i+1:], username[:i]
		}
	}
	return configuredDomain, username
}

// Negotiate returns the first TSRequest, carrying the NTLM negotiate
// message and the client nonce CredSSP version 5+ binds the public key
// hash to.
func (c *CredSSP) Negotiate() ([]byte, error) {
	if c.phase != credSSPAwaitingNegotiate {
		return nil, ErrUnexpectedPhase
	}

	negotiate := c.ntlm.GetNegotiateMessage()
	c.phase = credSSPAwaitingChallenge

	return auth.EncodeTSRequestWithNonce([][]byte{negotiate}, nil, nil, c.clientNonce), nil
}

// Challenge consumes the server's NTLM challenge TSRequest and returns the
// NTLM authenticate message TSRequest, carrying the encrypted, nonce-bound
// hash of the TLS public key the server must echo back.
func (c *CredSSP) Challenge(serverTSRequest []byte) ([]byte, error) {
	if c.phase != credSSPAwaitingChallenge {
		return nil, ErrUnexpectedPhase
	}

	resp, err := auth.DecodeTSRequest(serverTSRequest)
	if err != nil {
		return nil, fmt.Errorf("connector: credssp: decoding challenge: %w", err)
	}
	if len(resp.NegoTokens) == 0 {
		return nil, fmt.Errorf("connector: credssp: server sent no challenge token")
	}

	authenticate, security := c.ntlm.GetAuthenticateMessage(resp.NegoTokens[0].Data)
	if authenticate == nil || security == nil {
		return nil, fmt.Errorf("connector: credssp: failed to build authenticate message")
	}
	c.security = security

	var pubKeyData []byte
	if resp.Version >= 5 {
		pubKeyData = auth.ComputeClientPubKeyAuth(resp.Version, c.serverPubKey, c.clientNonce)
	} else {
		pubKeyData = c.serverPubKey
	}

	encryptedPubKey := c.security.GssEncrypt(pubKeyData)
	c.phase = credSSPAwaitingPubKeyVerify

	return auth.EncodeTSRequestWithNonce([][]byte{authenticate}, nil, encryptedPubKey, c.clientNonce), nil
}

// VerifyAndSendCredentials consumes the server's encrypted pubKeyAuth
// response, verifies the TLS channel binding, and returns the final
// TSRequest carrying the encrypted credentials. Returning an error here
// means the TLS connection is not the one the server authenticated for
// (a man-in-the-middle) and the host must tear the connection down.
func (c *CredSSP) VerifyAndSendCredentials(serverTSRequest []byte) ([]byte, error) {
	if c.phase != credSSPAwaitingPubKeyVerify {
		return nil, ErrUnexpectedPhase
	}

	resp, err := auth.DecodeTSRequest(serverTSRequest)
	if err != nil {
		return nil, fmt.Errorf("connector: credssp: decoding pubkey response: %w", err)
	}

	if len(resp.PubKeyAuth) > 0 {
		decrypted := c.security.GssDecrypt(resp.PubKeyAuth)
		if decrypted == nil {
			return nil, fmt.Errorf("connector: credssp: failed to decrypt server pubKeyAuth")
		}
		if !auth.VerifyServerPubKeyAuth(resp.Version, decrypted, c.serverPubKey, c.clientNonce) {
			return nil, fmt.Errorf("connector: credssp: server pubKeyAuth verification failed")
		}
	}

	domainBytes, userBytes, passBytes := c.ntlm.GetEncodedCredentials()
	credentials := auth.EncodeCredentials(domainBytes, userBytes, passBytes)
	encryptedCreds := c.security.GssEncrypt(credentials)

	c.phase = credSSPAwaitingFinal

	return auth.EncodeTSRequest(nil, encryptedCreds, nil), nil
}

// Finish consumes the server's optional final TSRequest. Many servers
// accept the credentials silently and send nothing at all; the host
// should treat a read timeout at this point as success and skip calling
// Finish rather than wait for bytes that are never coming.
func (c *CredSSP) Finish(serverTSRequest []byte) error {
	if c.phase != credSSPAwaitingFinal {
		return ErrUnexpectedPhase
	}
	c.phase = credSSPDone

	if len(serverTSRequest) == 0 {
		return nil
	}

	resp, err := auth.DecodeTSRequest(serverTSRequest)
	if err != nil {
		return nil
	}
	if resp.ErrorCode != 0 {
		return fmt.Errorf("connector: credssp: server rejected credentials: 0x%08X", resp.ErrorCode)
	}

	return nil
}

// Done reports whether the exchange has reached its terminal state.
func (c *CredSSP) Done() bool { return c.phase == credSSPDone }
