package mcs

import "errors"

var (
	ErrChannelNotFound          = errors.New("channel not found")
	ErrUnknownChannel           = errors.New("unknown channel")
	ErrUnknownConnectApplication = errors.New("unknown connect application")
	ErrUnknownDomainApplication  = errors.New("unknown domain application")
	ErrDisconnectUltimatum       = errors.New("disconnect ultimatum")
)
