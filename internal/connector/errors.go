package connector

import "errors"

var (
	// ErrUnexpectedPhase is returned when a phase method is called while
	// the connector is not waiting for the kind of input being supplied.
	ErrUnexpectedPhase = errors.New("connector: call not valid in current phase")

	// ErrUnsupportedRequestedProtocol is returned when the server confirms
	// a security protocol the connector never offered.
	ErrUnsupportedRequestedProtocol = errors.New("connector: server selected an unrequested security protocol")

	// ErrLicenseRejected is returned when the server's license exchange
	// ends in anything other than a new license or STATUS_VALID_CLIENT.
	ErrLicenseRejected = errors.New("connector: license exchange rejected")
)
