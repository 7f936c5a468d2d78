package entities

import "github.com/pkg/errors"

var (
	// ErrConfiguration is fatal at startup.
	ErrConfiguration = errors.New("configuration error")
	// ErrAuth is fatal at startup; the client never retries it.
	ErrAuth = errors.New("authentication failed")
	// ErrTransport covers connect failures and drops. Never fatal.
	ErrTransport = errors.New("transport error")
	// ErrCommand marks a rejected remote command. Never fatal.
	ErrCommand = errors.New("command rejected")
	// ErrEmissionSkipped is returned by emits attempted while disconnected.
	ErrEmissionSkipped = errors.New("emission skipped: not connected")
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrNotConnected    = errors.New("transport not connected")
)
