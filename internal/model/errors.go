package model

import "errors"

var (
	// ErrUnauthorized is returned when a token is missing or does not resolve to an identity.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidCredentials is returned when an auth request has an empty username or password.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrMalformedMessage is returned when a chat frame cannot be parsed or carries no content.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrMessageTooLong is returned when chat content exceeds the configured limit.
	ErrMessageTooLong = errors.New("message too long")

	// ErrDuplicateSession is returned when a session id is subscribed twice.
	ErrDuplicateSession = errors.New("session already subscribed")

	// ErrSessionNotFound is returned when a session is not found.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSubscriberDropped is returned by the outbound pump once the registry
	// has dropped its delivery handle.
	ErrSubscriberDropped = errors.New("subscriber dropped")

	// ErrServiceClosed is returned when a message is posted after shutdown.
	ErrServiceClosed = errors.New("chat service closed")
)
