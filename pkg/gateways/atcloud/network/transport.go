package network

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
)

// Handler receives the raw JSON payload of an inbound event.
type Handler func(payload []byte)

// Lifecycle receives connection transitions from a transport. Callbacks
// run on the transport's own goroutine and must not block for long.
// OnReconnecting fires after a dropped connection, before the transport
// starts dialing again.
type Lifecycle struct {
	OnConnect      func()
	OnDisconnect   func(reason string)
	OnConnectError func(err error)
	OnReconnecting func()
}

func (l Lifecycle) connected() {
	if l.OnConnect != nil {
		l.OnConnect()
	}
}

func (l Lifecycle) disconnected(reason string) {
	if l.OnDisconnect != nil {
		l.OnDisconnect(reason)
	}
}

func (l Lifecycle) connectError(err error) {
	if l.OnConnectError != nil {
		l.OnConnectError(err)
	}
}

func (l Lifecycle) reconnecting() {
	if l.OnReconnecting != nil {
		l.OnReconnecting()
	}
}

// ConnectOptions carries the per-session credentials and the metadata the
// platform uses to correlate the session.
type ConnectOptions struct {
	Token string
	Query map[string]string
}

// Transport is an event based duplex channel that reconnects on its own.
type Transport interface {
	// Open starts connecting in the background and returns immediately.
	Open(ctx context.Context, options ConnectOptions, lifecycle Lifecycle) error
	Emit(event string, payload interface{}) error
	Subscribe(event string, handler Handler)
	Close() error
}

// ReconnectPolicy is a bounded number of attempts with a fixed delay.
type ReconnectPolicy struct {
	Enabled  bool
	Attempts uint64
	Delay    time.Duration
}

func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{Enabled: true, Attempts: 50, Delay: 5 * time.Second}
}

func (p ReconnectPolicy) backOff(ctx context.Context) backoff.BackOff {
	if !p.Enabled {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}
	return backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), p.Attempts), ctx)
}
